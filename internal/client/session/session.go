// Package session implements the Session/Credential Service (spec §8):
// register, sign-in, change-password and sign-out, persisting the access
// token and expiry the server returns. It does not refresh tokens, does
// not react to a 401, and makes no reauthentication retry: a 401 during
// sync surfaces from the sync engine as common.ErrInvalidSyncSession.
// Grounded on the teacher's authService (online/offline login,
// saveOfflineData) generalized from a single master-key verifier to the
// full root-key + key-params + server-password protocol.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/crypto"
	"github.com/eidolon-labs/notesync/internal/client/keys"
	"github.com/eidolon-labs/notesync/internal/client/lifecycle"
	"github.com/eidolon-labs/notesync/internal/client/storage"
	"github.com/eidolon-labs/notesync/internal/client/transport"
	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/logging"
)

// Service owns account lifecycle and the current session/root key.
type Service struct {
	log       logging.Logger
	auth      transport.AuthTransport
	storage   *storage.Service
	bus       *lifecycle.Bus
	rootKey   *keys.RootKey
	onRootKey func(*keys.RootKey) // notifies protocol.Service.SetRootKey on change
}

func NewService(log logging.Logger, auth transport.AuthTransport, store *storage.Service, bus *lifecycle.Bus, onRootKey func(*keys.RootKey)) *Service {
	return &Service{log: log, auth: auth, storage: store, bus: bus, onRootKey: onRootKey}
}

func (s *Service) publish(event lifecycle.Event, data map[string]interface{}) {
	if s.bus != nil {
		s.bus.Publish(event, data)
	}
}

// Register creates a new account: derives a RootKey under the latest
// protocol version from a fresh random pw_nonce, sends the server password
// and key params, and persists the returned session and user record
// (spec §8 scenario 1).
func (s *Service) Register(ctx context.Context, email, password string) error {
	pwNonce, err := common.MakeRandHexString(16)
	if err != nil {
		return fmt.Errorf("session: generate pw_nonce: %w", err)
	}
	kp := keys.KeyParams{Version: crypto.LatestVersion, Identifier: email, PwNonce: pwNonce}
	rk, err := keys.DeriveRootKey(password, kp)
	if err != nil {
		return fmt.Errorf("session: derive root key: %w", err)
	}

	resp, err := s.auth.Register(ctx, transport.RegisterRequest{
		Email:          email,
		Version:        string(crypto.LatestVersion),
		Identifier:     email,
		PwNonce:        pwNonce,
		ServerPassword: string(rk.ServerPassword),
		KeyParams:      transport.FromDomainKeyParams(kp),
	})
	if err != nil {
		return fmt.Errorf("session: register: %w", err)
	}

	s.setRootKey(&rk)
	if err := s.persistSession(ctx, resp.UserUUID, email, resp.Token, resp.Expires, resp.Roles); err != nil {
		return err
	}
	s.publish(lifecycle.SignedIn, map[string]interface{}{"user_uuid": resp.UserUUID, "email": email})
	return nil
}

// SignIn fetches the account's key params from the server, derives a
// RootKey from the supplied password, and authenticates with the
// resulting server password. Returns common.ErrorUnauthorized on a wrong
// password (spec §8 scenario 1's "wrong password returns an error
// response").
func (s *Service) SignIn(ctx context.Context, email, password string) error {
	wireKP, err := s.auth.KeyParams(ctx, transport.KeyParamsRequest{Email: email})
	if err != nil {
		return fmt.Errorf("session: fetch key params: %w", err)
	}
	kp := wireKP.ToDomain()
	rk, err := keys.DeriveRootKey(password, kp)
	if err != nil {
		return fmt.Errorf("session: derive root key: %w", err)
	}

	resp, err := s.auth.SignIn(ctx, transport.SignInRequest{Email: email, ServerPassword: string(rk.ServerPassword)})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}

	s.setRootKey(&rk)
	if err := s.persistSession(ctx, resp.UserUUID, email, resp.Token, resp.Expires, resp.Roles); err != nil {
		return err
	}
	s.publish(lifecycle.SignedIn, map[string]interface{}{"user_uuid": resp.UserUUID, "email": email})
	return nil
}

// ChangePassword derives a new RootKey from newPassword under a fresh
// pw_nonce, authenticates the change with the current server password,
// and installs the new root key. It only rotates credentials: it does not
// re-encrypt items or mark them dirty, and no caller in this module does
// so after a password change.
func (s *Service) ChangePassword(ctx context.Context, email, newPassword string) error {
	if s.rootKey == nil {
		return common.ErrNoRootKey
	}
	sess, ok, err := s.storage.Session(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrInvalidSyncSession
	}

	pwNonce, err := common.MakeRandHexString(16)
	if err != nil {
		return fmt.Errorf("session: generate pw_nonce: %w", err)
	}
	newKP := keys.KeyParams{Version: crypto.LatestVersion, Identifier: email, PwNonce: pwNonce}
	newRK, err := keys.DeriveRootKey(newPassword, newKP)
	if err != nil {
		return fmt.Errorf("session: derive new root key: %w", err)
	}

	err = s.auth.ChangePassword(ctx, sess.AccessToken, transport.ChangePasswordRequest{
		CurrentServerPassword: string(s.rootKey.ServerPassword),
		NewServerPassword:     string(newRK.ServerPassword),
		NewKeyParams:          transport.FromDomainKeyParams(newKP),
	})
	if err != nil {
		return fmt.Errorf("session: change password: %w", err)
	}

	s.setRootKey(&newRK)
	return nil
}

// SignOut clears the locally cached session and root key. It does not
// contact the server — there is no per-device server-side session to
// revoke in this protocol (spec Non-goals: no server-side session
// management beyond the bearer token itself).
func (s *Service) SignOut(ctx context.Context) error {
	if s.rootKey != nil {
		s.rootKey.Wipe()
	}
	s.setRootKey(nil)
	if err := s.storage.ClearSession(ctx); err != nil {
		return err
	}
	s.publish(lifecycle.SignedOut, nil)
	return nil
}

// RootKey returns the currently active root key, if signed in.
func (s *Service) RootKey() (*keys.RootKey, bool) {
	return s.rootKey, s.rootKey != nil
}

// InstallRootKey replaces the active root key without touching the
// stored session or re-contacting the server — used by key recovery
// (spec §4.5 step 5's root-key-replacement condition) when a newer items
// key decrypted under a candidate root key proves that key is now the
// account's real one.
func (s *Service) InstallRootKey(rk *keys.RootKey) {
	s.setRootKey(rk)
}

func (s *Service) setRootKey(rk *keys.RootKey) {
	s.rootKey = rk
	if s.onRootKey != nil {
		s.onRootKey(rk)
	}
}

func (s *Service) persistSession(ctx context.Context, userUUID, email, token string, expires int64, roles []string) error {
	prior, hadPrior, err := s.storage.User(ctx)
	if err != nil {
		return fmt.Errorf("session: read prior user: %w", err)
	}
	if err := s.storage.SetUser(ctx, storage.User{UUID: userUUID, Email: email, Roles: roles}); err != nil {
		return fmt.Errorf("session: persist user: %w", err)
	}
	sess := storage.Session{AccessToken: token, ExpiresAt: expires}
	if err := s.storage.SetSession(ctx, sess); err != nil {
		return fmt.Errorf("session: persist session: %w", err)
	}
	if !hadPrior || !rolesEqual(prior.Roles, roles) {
		s.publish(lifecycle.UserRolesChanged, map[string]interface{}{"user_uuid": userUUID, "roles": roles})
	}
	return nil
}

func rolesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ExpiresSoon reports whether the session's token expiry is within the
// given lookahead window, used to schedule a proactive refresh before the
// server would reject the token outright. It compares against the stored
// Session.ExpiresAt (the expiry the server reported at sign-in); the
// client never parses or verifies the JWT itself.
func ExpiresSoon(sess storage.Session, lookahead time.Duration, now time.Time) bool {
	return now.Add(lookahead).Unix() >= sess.ExpiresAt
}
