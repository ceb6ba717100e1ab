// Package protocol implements the dispatch service that owns items-key
// selection and runs the version-specific decrypt/encrypt pipeline over a
// Payload (spec §4.1). It is the single place that knows how to go from a
// Payload's ContentType + Content string to a decrypted in-memory payload,
// or back.
package protocol

import (
	"context"
	"errors"

	"github.com/eidolon-labs/notesync/internal/client/crypto"
	"github.com/eidolon-labs/notesync/internal/client/keys"
	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/logging"
)

// Service dispatches encrypt/decrypt operations across all four protocol
// versions plus the 000 unencrypted wrapper, holding the active root key
// and items-key ring needed to do so.
type Service struct {
	log       logging.Logger
	rootKey   *keys.RootKey
	itemsKeys *keys.Ring
}

func NewService(log logging.Logger, itemsKeys *keys.Ring) *Service {
	return &Service{log: log, itemsKeys: itemsKeys}
}

// SetRootKey installs the active root key, used to unwrap items keys and
// to encrypt/decrypt SN|ItemsKey payloads directly.
func (s *Service) SetRootKey(rk *keys.RootKey) {
	s.rootKey = rk
}

// Decrypt runs the full spec §4.1 decryption pipeline over p, returning a
// new Payload reflecting the outcome. It never returns an error for a
// decryption failure — per spec §7 policy ("no exception may cross the
// sync boundary"), failures are recorded on the returned Payload
// (ErrorDecrypting or WaitingForKey) instead; a successful decryption
// clears both flags. Deleted or empty payloads are returned unchanged.
// The returned error is reserved for content that carries no version
// prefix at all.
func (s *Service) Decrypt(ctx context.Context, p payload.Payload) (payload.Payload, error) {
	if p.Deleted || p.Content == "" {
		return p, nil
	}
	// A payload retried after an earlier failure starts clean; each path
	// below sets whichever flag its own outcome calls for.
	p.ErrorDecrypting = false
	p.WaitingForKey = false
	if crypto.IsUnencrypted(p.Content) {
		return p.WithContent(crypto.UnwrapUnencrypted(p.Content)), nil
	}

	version, ok := crypto.VersionOf(p.Content)
	if !ok {
		return p, errors.New("protocol: content has no version prefix")
	}

	if p.ContentType == payload.ContentTypeItemsKey {
		return s.decryptItemsKeyPayload(ctx, p, version)
	}
	return s.decryptItemPayload(ctx, p, version)
}

// decryptItemsKeyPayload decrypts a SN|ItemsKey payload directly under the
// root key's master key — items keys have no items_key_id of their own.
func (s *Service) decryptItemsKeyPayload(ctx context.Context, p payload.Payload, version crypto.Version) (payload.Payload, error) {
	if s.rootKey == nil {
		return markWaitingForKey(p), nil
	}
	plaintext, err := s.decryptWithKey(p.Content, version, s.rootKey.MasterKey, s.rootKey.DataAuthenticationKey, p.UUID, "")
	if err != nil {
		s.log.Warn(ctx, "items key decryption failed", "uuid", p.UUID, "error", err)
		return markErrorDecrypting(p), nil
	}
	return p.WithContent(string(plaintext)), nil
}

// decryptItemPayload implements spec §4.1's numbered v004 pipeline,
// generalized across versions: locate the items key (step 1-2), decrypt
// enc_item_key to recover the per-item key (step 3), then decrypt content
// with it (step 4), recording errorDecrypting on auth failure (step 5).
// v001-003 have no separate per-item key step — content is decrypted
// directly with the root-key-derived master key — so the per-item-key
// unwrap is skipped for those versions.
func (s *Service) decryptItemPayload(ctx context.Context, p payload.Payload, version crypto.Version) (payload.Payload, error) {
	if version == crypto.Version004 {
		ik, ok := s.itemsKeys.Find(p.ItemsKeyID)
		if !ok {
			return markWaitingForKey(p), nil
		}
		if ik.ErrorState {
			return markWaitingForKey(p), nil
		}
		itemKey, err := crypto.DecryptString004(p.EncItemKey, ik.ItemsKey, p.UUID, p.ItemsKeyID)
		if err != nil {
			s.log.Warn(ctx, "enc_item_key decryption failed", "uuid", p.UUID, "error", err)
			return markErrorDecrypting(p), nil
		}
		plaintext, err := crypto.DecryptString004(p.Content, itemKey, p.UUID, p.ItemsKeyID)
		if err != nil {
			s.log.Warn(ctx, "content decryption failed", "uuid", p.UUID, "error", err)
			return markErrorDecrypting(p), nil
		}
		return p.WithContent(string(plaintext)), nil
	}

	if s.rootKey == nil {
		return markWaitingForKey(p), nil
	}
	plaintext, err := s.decryptWithKey(p.Content, version, s.rootKey.MasterKey, s.rootKey.DataAuthenticationKey, p.UUID, "")
	if err != nil {
		s.log.Warn(ctx, "legacy content decryption failed", "uuid", p.UUID, "version", version, "error", err)
		return markErrorDecrypting(p), nil
	}
	return p.WithContent(string(plaintext)), nil
}

func (s *Service) decryptWithKey(ciphertext string, version crypto.Version, key, authKey []byte, uuid, itemsKeyID string) ([]byte, error) {
	switch version {
	case crypto.Version004:
		return crypto.DecryptString004(ciphertext, key, uuid, itemsKeyID)
	case crypto.Version003:
		return crypto.DecryptString003(ciphertext, key, authKey, uuid)
	case crypto.Version002:
		return crypto.DecryptString002(ciphertext, key, uuid)
	case crypto.Version001:
		return crypto.DecryptString001(ciphertext, key, uuid)
	default:
		return nil, common.ErrUnsupportedVersion
	}
}

// Encrypt encrypts p's plaintext Content under the protocol's latest
// version (004), generating a fresh per-item key wrapped under the
// default items key, per spec §4.1. Items-key payloads are encrypted
// directly under the root key.
func (s *Service) Encrypt(ctx context.Context, p payload.Payload) (payload.Payload, error) {
	if s.rootKey == nil {
		return payload.Payload{}, common.ErrNoRootKey
	}
	if p.ContentType == payload.ContentTypeItemsKey {
		ct, err := crypto.EncryptString004([]byte(p.Content), s.rootKey.MasterKey, p.UUID, "")
		if err != nil {
			return payload.Payload{}, err
		}
		return p.WithContent(ct).Encrypted(), nil
	}

	dk, ok := s.itemsKeys.Default()
	if !ok {
		return payload.Payload{}, common.ErrNoDefaultItemsKey
	}
	itemKey := common.GenerateRandByteArray(32)
	defer common.WipeByteArray(itemKey)

	encItemKey, err := crypto.EncryptString004(itemKey, dk.ItemsKey, p.UUID, dk.UUID)
	if err != nil {
		return payload.Payload{}, err
	}
	content, err := crypto.EncryptString004([]byte(p.Content), itemKey, p.UUID, dk.UUID)
	if err != nil {
		return payload.Payload{}, err
	}

	out := p.WithContent(content).Encrypted()
	out.EncItemKey = encItemKey
	out.ItemsKeyID = dk.UUID
	return out, nil
}

func markWaitingForKey(p payload.Payload) payload.Payload {
	c := p
	c.WaitingForKey = true
	c.ErrorDecrypting = false
	return c
}

func markErrorDecrypting(p payload.Payload) payload.Payload {
	c := p
	c.ErrorDecrypting = true
	c.WaitingForKey = false
	return c
}
