package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/common"
)

// User is the spec §6 "user" storage record.
type User struct {
	UUID  string   `json:"uuid"`
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
}

// Session is the spec §6 "session" storage record: the server-issued
// bearer token plus its expiry, treated as opaque by the rest of the
// engine (nothing in the client parses the token's claims).
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Service is the facade every other component goes through to read/write
// durable state, wrapping a DeviceInterface (spec §6/§7). It owns no
// business logic of its own beyond (de)serializing the named storage
// records — decisions about *when* to persist belong to the sync engine,
// session service, and key recovery service that call it.
type Service struct {
	device DeviceInterface
}

func NewService(device DeviceInterface) *Service {
	return &Service{device: device}
}

func (s *Service) SNJSVersion(ctx context.Context) (string, error) {
	raw, ok, err := s.device.GetRawStorageValue(ctx, KeySNJSVersion)
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

func (s *Service) SetSNJSVersion(ctx context.Context, version string) error {
	return s.device.SetRawStorageValue(ctx, KeySNJSVersion, []byte(version))
}

func (s *Service) LastSyncToken(ctx context.Context) (string, bool, error) {
	raw, ok, err := s.device.GetRawStorageValue(ctx, KeyLastSyncToken)
	return string(raw), ok, err
}

func (s *Service) SetLastSyncToken(ctx context.Context, token string) error {
	return s.device.SetRawStorageValue(ctx, KeyLastSyncToken, []byte(token))
}

func (s *Service) PaginationToken(ctx context.Context) (string, bool, error) {
	raw, ok, err := s.device.GetRawStorageValue(ctx, KeyPaginationToken)
	return string(raw), ok, err
}

func (s *Service) SetPaginationToken(ctx context.Context, token string) error {
	if token == "" {
		return s.device.RemoveRawStorageValue(ctx, KeyPaginationToken)
	}
	return s.device.SetRawStorageValue(ctx, KeyPaginationToken, []byte(token))
}

func (s *Service) User(ctx context.Context) (User, bool, error) {
	var u User
	ok, err := s.getJSON(ctx, KeyUser, &u)
	return u, ok, err
}

func (s *Service) SetUser(ctx context.Context, u User) error {
	return s.setJSON(ctx, KeyUser, u)
}

func (s *Service) Session(ctx context.Context) (Session, bool, error) {
	var sess Session
	ok, err := s.getJSON(ctx, KeySession, &sess)
	return sess, ok, err
}

func (s *Service) SetSession(ctx context.Context, sess Session) error {
	return s.setJSON(ctx, KeySession, sess)
}

func (s *Service) ClearSession(ctx context.Context) error {
	return s.device.RemoveRawStorageValue(ctx, KeySession)
}

// KeyRecoveryUndecryptableItems returns the map of uuid to decoded
// payload for items-keys that arrived undecryptable, persisted so they
// survive a restart while key recovery (§4.5) works through them.
func (s *Service) KeyRecoveryUndecryptableItems(ctx context.Context) (map[string]payload.Payload, error) {
	raw, ok, err := s.device.GetRawStorageValue(ctx, KeyRecoveryUndecryptable)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]payload.Payload{}, nil
	}
	var out map[string]payload.Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("storage: unmarshal key recovery record: %w", err)
	}
	return out, nil
}

func (s *Service) SetKeyRecoveryUndecryptableItems(ctx context.Context, items map[string]payload.Payload) error {
	return s.setJSON(ctx, KeyRecoveryUndecryptable, items)
}

// AllPayloads returns every payload from the bulk payload table.
func (s *Service) AllPayloads(ctx context.Context) ([]payload.Payload, error) {
	return s.device.GetAllRawDatabasePayloads(ctx)
}

// SavePayload upserts a single payload into the bulk payload table.
func (s *Service) SavePayload(ctx context.Context, p payload.Payload) error {
	return s.device.SaveRawDatabasePayload(ctx, p)
}

// SavePayloads upserts several payloads, stopping at the first error.
func (s *Service) SavePayloads(ctx context.Context, payloads []payload.Payload) error {
	for _, p := range payloads {
		if err := s.SavePayload(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceAllPayloads overwrites the entire local payload table with
// payloads: any stored payload whose uuid isn't present is removed
// outright rather than kept as a stale tombstone. Used by out-of-sync
// recovery's wholesale master replacement (spec §4.3), never by normal
// sync rounds which always merge through SavePayloads instead.
func (s *Service) ReplaceAllPayloads(ctx context.Context, payloads []payload.Payload) error {
	existing, err := s.AllPayloads(ctx)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(payloads))
	for _, p := range payloads {
		keep[p.UUID] = true
	}
	for _, p := range existing {
		if !keep[p.UUID] {
			if err := s.RemovePayload(ctx, p.UUID); err != nil {
				return err
			}
		}
	}
	return s.SavePayloads(ctx, payloads)
}

// RemovePayload deletes a payload from the bulk payload table entirely
// (distinct from marking it deleted=true, which keeps the tombstone for
// sync — this is used once a tombstone is known to be fully propagated).
func (s *Service) RemovePayload(ctx context.Context, uuid string) error {
	return s.device.RemoveRawDatabasePayload(ctx, uuid)
}

// RootKeyWrapperParams returns the passcode key-params if a passcode is
// set, used to unwrap a persisted root key on launch.
func (s *Service) RootKeyWrapperParams(ctx context.Context) ([]byte, bool, error) {
	return s.device.GetRawStorageValue(ctx, KeyRootKeyWrapperParams)
}

func (s *Service) SetRootKeyWrapperParams(ctx context.Context, raw []byte) error {
	return s.device.SetRawStorageValue(ctx, KeyRootKeyWrapperParams, raw)
}

// Keychain, SetKeychain, and ClearKeychain pass through to the host
// platform's keychain for values the migration service's keychain-repair
// PreRun step and future passcode support need stored more securely than
// the plain KV table (spec §6 deviceInterface keychain methods).
func (s *Service) Keychain(ctx context.Context, key string) ([]byte, bool, error) {
	return s.device.GetKeychainValue(ctx, key)
}

func (s *Service) SetKeychain(ctx context.Context, key string, value []byte) error {
	return s.device.SetKeychainValue(ctx, key, value)
}

func (s *Service) ClearKeychain(ctx context.Context, key string) error {
	return s.device.ClearKeychainValue(ctx, key)
}

func (s *Service) getJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, ok, err := s.device.GetRawStorageValue(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%w: unmarshal %s: %v", common.ErrorInternal, key, err)
	}
	return true, nil
}

func (s *Service) setJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", common.ErrorInternal, key, err)
	}
	return s.device.SetRawStorageValue(ctx, key, raw)
}
