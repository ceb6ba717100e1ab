// Package transport defines the external, untrusted collaborators the
// sync engine and session service talk to (spec §6: "HTTP transport...
// specified only by interface"). This package holds only the abstract
// contracts and wire-shape types; internal/client/transport/http provides
// one concrete implementation, and internal/server a reference backend to
// exercise it against in tests.
package transport

import (
	"context"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/crypto"
	"github.com/eidolon-labs/notesync/internal/client/keys"
)

// Item is the wire shape of a single payload as sent/received in a sync
// request or response (spec §6 "Item wire shape").
type Item struct {
	UUID        string    `json:"uuid"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content,omitempty"`
	EncItemKey  string    `json:"enc_item_key,omitempty"`
	ItemsKeyID  string    `json:"items_key_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Deleted     bool      `json:"deleted,omitempty"`
	AuthHash    string    `json:"auth_hash,omitempty"`
}

// ConflictType enumerates the two conflict shapes the server can report
// (spec §6).
type ConflictType string

const (
	ConflictSync ConflictType = "sync_conflict"
	ConflictUUID ConflictType = "uuid_conflict"
)

// Conflict is one entry of a sync response's conflicts array.
type Conflict struct {
	Type        ConflictType `json:"type"`
	ServerItem  *Item        `json:"server_item,omitempty"`
	UnsavedItem *Item        `json:"unsaved_item,omitempty"`
}

// SyncRequest is the spec §6 sync request body.
type SyncRequest struct {
	Items            []Item `json:"items"`
	SyncToken        string `json:"sync_token,omitempty"`
	CursorToken      string `json:"cursor_token,omitempty"`
	Limit            int    `json:"limit,omitempty"`
	ComputeIntegrity bool   `json:"compute_integrity"`
}

// SyncResponse is the spec §6 sync response body.
type SyncResponse struct {
	RetrievedItems []Item     `json:"retrieved_items"`
	SavedItems     []Item     `json:"saved_items"`
	Conflicts      []Conflict `json:"conflicts"`
	SyncToken      string     `json:"sync_token"`
	CursorToken    string     `json:"cursor_token,omitempty"`
	IntegrityHash  string     `json:"integrity_hash,omitempty"`
}

// SyncTransport is the external collaborator the sync engine drives a
// request/response cycle through (spec §4.3). Implementations must map a
// 401 response to common.ErrInvalidSyncSession, on which the sync engine
// publishes InvalidSyncSession and returns the error; nothing retries it.
type SyncTransport interface {
	Sync(ctx context.Context, req SyncRequest) (SyncResponse, error)
}

// RegisterRequest/Response and SignInRequest/Response mirror spec §8
// scenario 1 (register, sign in, wrong-password rejection).
type RegisterRequest struct {
	Email          string        `json:"email"`
	Version        string        `json:"version"`
	Identifier     string        `json:"identifier"`
	PwNonce        string        `json:"pw_nonce,omitempty"`
	ServerPassword string        `json:"server_password"`
	KeyParams      KeyParamsWire `json:"key_params"`
}

type RegisterResponse struct {
	UserUUID string   `json:"user_uuid"`
	Token    string   `json:"token"`
	Expires  int64    `json:"expires"`
	Roles    []string `json:"roles,omitempty"`
}

// KeyParamsWire is the wire shape of keys.KeyParams.
type KeyParamsWire struct {
	Version    string `json:"version"`
	Identifier string `json:"identifier"`
	PwNonce    string `json:"pw_nonce,omitempty"`
	PwSalt     string `json:"pw_salt,omitempty"`
	PwCost     int    `json:"pw_cost,omitempty"`
}

func (w KeyParamsWire) ToDomain() keys.KeyParams {
	return keys.KeyParams{
		Version:    crypto.Version(w.Version),
		Identifier: w.Identifier,
		PwNonce:    w.PwNonce,
		PwSalt:     w.PwSalt,
		PwCost:     w.PwCost,
	}
}

func FromDomainKeyParams(kp keys.KeyParams) KeyParamsWire {
	return KeyParamsWire{
		Version:    string(kp.Version),
		Identifier: kp.Identifier,
		PwNonce:    kp.PwNonce,
		PwSalt:     kp.PwSalt,
		PwCost:     kp.PwCost,
	}
}

type KeyParamsRequest struct {
	Email string `json:"email"`
}

type SignInRequest struct {
	Email          string `json:"email"`
	ServerPassword string `json:"server_password"`
}

type SignInResponse struct {
	UserUUID string   `json:"user_uuid"`
	Token    string   `json:"token"`
	Expires  int64    `json:"expires"`
	Roles    []string `json:"roles,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentServerPassword string        `json:"current_server_password"`
	NewServerPassword     string        `json:"new_server_password"`
	NewKeyParams          KeyParamsWire `json:"new_key_params"`
}

// AuthTransport is the external collaborator for account lifecycle
// operations (register / key-params lookup / sign-in / change-password),
// separated from SyncTransport since a host may point them at different
// endpoints or mock them independently in tests.
type AuthTransport interface {
	Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error)
	KeyParams(ctx context.Context, req KeyParamsRequest) (KeyParamsWire, error)
	SignIn(ctx context.Context, req SignInRequest) (SignInResponse, error)
	ChangePassword(ctx context.Context, token string, req ChangePasswordRequest) error
}
