package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eidolon-labs/notesync/internal/client/transport"
	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/server/models"
	"github.com/eidolon-labs/notesync/internal/server/services"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

func decodeJSON(r *http.Request, v interface{}) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req transport.RegisterRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	kp := services.KeyParams{
		Version:    req.KeyParams.Version,
		Identifier: req.KeyParams.Identifier,
		PwNonce:    req.KeyParams.PwNonce,
		PwSalt:     req.KeyParams.PwSalt,
		PwCost:     req.KeyParams.PwCost,
	}

	user, err := s.authService.Register(r.Context(), req.Email, kp, []byte(req.ServerPassword))
	if err != nil {
		s.log.Error(r.Context(), "register failed", "err", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	_, pair, err := s.authService.SignIn(r.Context(), req.Email, []byte(req.ServerPassword))
	if err != nil {
		// account was created but the immediate sign-in failed; unusual but
		// recoverable by the client retrying sign-in separately.
		writeJSON(w, http.StatusCreated, transport.RegisterResponse{UserUUID: user.ID})
		return
	}

	writeJSON(w, http.StatusCreated, transport.RegisterResponse{
		UserUUID: user.ID,
		Token:    pair.AccessToken,
		Roles:    defaultRoles,
	})
}

// defaultRoles is every account's role set on this deployment. There is
// no plan/entitlement system yet, so every account gets the same single
// role; the field exists on the wire now so a future entitlement system
// doesn't need a transport change to land.
var defaultRoles = []string{"basic"}

func (s *Server) handleKeyParams(w http.ResponseWriter, r *http.Request) {
	var req transport.KeyParamsRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	kp, err := s.authService.KeyParams(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, transport.KeyParamsWire{
		Version:    kp.Version,
		Identifier: kp.Identifier,
		PwNonce:    kp.PwNonce,
		PwSalt:     kp.PwSalt,
		PwCost:     kp.PwCost,
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req transport.SignInRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	user, pair, err := s.authService.SignIn(r.Context(), req.Email, []byte(req.ServerPassword))
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	writeJSON(w, http.StatusOK, transport.SignInResponse{
		UserUUID: user.ID,
		Token:    pair.AccessToken,
		Roles:    defaultRoles,
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req transport.ChangePasswordRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	newParams := services.KeyParams{
		Version:    req.NewKeyParams.Version,
		Identifier: req.NewKeyParams.Identifier,
		PwNonce:    req.NewKeyParams.PwNonce,
		PwSalt:     req.NewKeyParams.PwSalt,
		PwCost:     req.NewKeyParams.PwCost,
	}

	err := s.authService.ChangePassword(r.Context(), userID,
		[]byte(req.CurrentServerPassword), []byte(req.NewServerPassword), newParams)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "current password incorrect")
			return
		}
		writeError(w, http.StatusInternalServerError, "change password failed")
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req transport.SyncRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	minVersion := parseSyncToken(req.SyncToken)

	pending := make([]*models.Payload, 0, len(req.Items))
	for _, it := range req.Items {
		pending = append(pending, &models.Payload{
			UUID:        it.UUID,
			ContentType: it.ContentType,
			Content:     it.Content,
			EncItemKey:  it.EncItemKey,
			ItemsKeyID:  it.ItemsKeyID,
			UpdatedAt:   it.UpdatedAt,
			Deleted:     it.Deleted,
		})
	}

	saved, retrieved, conflicts, maxVersion, err := s.syncService.Sync(r.Context(), userID, pending, minVersion)
	if err != nil {
		s.log.Error(r.Context(), "sync failed", "err", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	resp := transport.SyncResponse{
		SavedItems:     toWireItems(saved),
		RetrievedItems: toWireItems(retrieved),
		Conflicts:      toWireConflicts(conflicts),
		SyncToken:      formatSyncToken(maxServerVersion(minVersion, maxVersion, retrieved)),
	}

	writeJSON(w, http.StatusOK, resp)
}

func toWireItems(items []*models.Payload) []transport.Item {
	out := make([]transport.Item, 0, len(items))
	for _, p := range items {
		out = append(out, transport.Item{
			UUID:        p.UUID,
			ContentType: p.ContentType,
			Content:     p.Content,
			EncItemKey:  p.EncItemKey,
			ItemsKeyID:  p.ItemsKeyID,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
			Deleted:     p.Deleted,
		})
	}
	return out
}

func toWireConflicts(conflicts []services.Conflict) []transport.Conflict {
	out := make([]transport.Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		wc := transport.Conflict{Type: transport.ConflictType(c.Type)}
		if c.ServerItem != nil {
			item := toWireItems([]*models.Payload{c.ServerItem})[0]
			wc.ServerItem = &item
		}
		if c.UnsavedItem != nil {
			item := toWireItems([]*models.Payload{c.UnsavedItem})[0]
			wc.UnsavedItem = &item
		}
		out = append(out, wc)
	}
	return out
}

// maxServerVersion computes the next sync token: the highest version the
// client now holds knowledge of, whether from its own writes this round
// or from another device's updates retrieved alongside them.
// SelectUpdated orders ascending, so the last retrieved item carries the
// round's highest pre-existing version.
func maxServerVersion(minVersion, roundMax int64, retrieved []*models.Payload) int64 {
	max := minVersion
	if roundMax > max {
		max = roundMax
	}
	if n := len(retrieved); n > 0 && retrieved[n-1].Version > max {
		max = retrieved[n-1].Version
	}
	return max
}
