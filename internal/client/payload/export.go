package payload

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/crypto"
	"github.com/eidolon-labs/notesync/internal/client/keys"
)

// ExportedItem is the on-disk shape of one item inside an export file,
// grounded on gosn-v2's EncryptedItemExport (other_examples/jonhadfield-
// gosn-v2__items.go's writeJSON): still-encrypted Content plus the
// key-wrapping metadata needed to decrypt it later, sync bookkeeping
// stripped.
type ExportedItem struct {
	UUID        string  `json:"uuid"`
	ItemsKeyID  string  `json:"items_key_id,omitempty"`
	Content     string  `json:"content"`
	ContentType string  `json:"content_type"`
	EncItemKey  string  `json:"enc_item_key"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	DuplicateOf *string `json:"duplicate_of,omitempty"`
}

// ExportedKeyParams is the on-disk shape of the keyParams block an export
// file carries so a future import can re-derive the root key needed to
// decrypt it, without depending on this package's keys.KeyParams JSON tags.
type ExportedKeyParams struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	PwNonce    string `json:"pw_nonce,omitempty"`
	PwSalt     string `json:"pw_salt,omitempty"`
	PwCost     int    `json:"pw_cost,omitempty"`
}

// Export is the full export file shape: {version, items[], keyParams},
// matching gosn-v2's writeJSON output verbatim in field naming so an
// export produced here or read from a gosn-v2-family backup round-trips.
type Export struct {
	Version   string            `json:"version"`
	Items     []ExportedItem    `json:"items"`
	KeyParams ExportedKeyParams `json:"keyParams"`
}

const timeLayout = time.RFC3339Nano

// BuildExport projects encrypted payloads (Variant == VariantEncrypted)
// plus the account's key params into the on-disk export shape. Payloads
// are expected already encrypted — BuildExport never encrypts on the
// caller's behalf, matching writeJSON which only ever ran over
// EncryptedItems already resident in that shape.
func BuildExport(items []Payload, kp keys.KeyParams) Export {
	out := Export{
		Version: string(kp.Version),
		Items:   make([]ExportedItem, 0, len(items)),
		KeyParams: ExportedKeyParams{
			Identifier: kp.Identifier,
			Version:    string(kp.Version),
			PwNonce:    kp.PwNonce,
			PwSalt:     kp.PwSalt,
			PwCost:     kp.PwCost,
		},
	}
	for _, p := range items {
		ei := ExportedItem{
			UUID:        p.UUID,
			ItemsKeyID:  p.ItemsKeyID,
			Content:     p.Content,
			ContentType: string(p.ContentType),
			EncItemKey:  p.EncItemKey,
			CreatedAt:   p.CreatedAt.Format(timeLayout),
			UpdatedAt:   p.UpdatedAt.Format(timeLayout),
		}
		if p.DuplicateOf != "" {
			d := p.DuplicateOf
			ei.DuplicateOf = &d
		}
		out.Items = append(out.Items, ei)
	}
	return out
}

// MarshalExport renders e as indented JSON, matching writeJSON's
// human-readable output (an export file is meant to be portable and
// occasionally hand-inspected, not a compact wire format).
func MarshalExport(e Export) ([]byte, error) {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("payload: marshal export: %w", err)
	}
	return b, nil
}

// ParseExport reads back an export file previously produced by
// BuildExport/MarshalExport (or a compatible gosn-v2-family backup) into
// still-encrypted payloads ready to hand to delta.FileImport, plus the
// key params needed to decrypt them.
func ParseExport(raw []byte) ([]Payload, keys.KeyParams, error) {
	var e Export
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, keys.KeyParams{}, fmt.Errorf("payload: unmarshal export: %w", err)
	}

	kp := keys.KeyParams{
		Version:    crypto.Version(e.KeyParams.Version),
		Identifier: e.KeyParams.Identifier,
		PwNonce:    e.KeyParams.PwNonce,
		PwSalt:     e.KeyParams.PwSalt,
		PwCost:     e.KeyParams.PwCost,
	}

	items := make([]Payload, 0, len(e.Items))
	for _, ei := range e.Items {
		createdAt, err := time.Parse(timeLayout, ei.CreatedAt)
		if err != nil {
			return nil, keys.KeyParams{}, fmt.Errorf("payload: parse created_at for %s: %w", ei.UUID, err)
		}
		updatedAt, err := time.Parse(timeLayout, ei.UpdatedAt)
		if err != nil {
			return nil, keys.KeyParams{}, fmt.Errorf("payload: parse updated_at for %s: %w", ei.UUID, err)
		}
		p := Payload{
			UUID:        ei.UUID,
			ContentType: ContentType(ei.ContentType),
			Content:     ei.Content,
			ItemsKeyID:  ei.ItemsKeyID,
			EncItemKey:  ei.EncItemKey,
			CreatedAt:   createdAt,
			UpdatedAt:   updatedAt,
			Variant:     VariantEncrypted,
		}
		if ei.DuplicateOf != nil {
			p.DuplicateOf = *ei.DuplicateOf
		}
		items = append(items, p)
	}
	return items, kp, nil
}
