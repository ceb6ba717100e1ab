package item

import (
	"encoding/json"
	"fmt"

	"github.com/eidolon-labs/notesync/internal/client/payload"
)

// Item is a typed read-only view over a decrypted Payload. Every concrete
// type (Note, Tag, ItemsKeyView, ...) embeds Base and exposes its own
// domain getters, mirroring gosn-v2's per-type structs returned from
// ParseItem's content-type switch.
type Item interface {
	UUID() string
	ContentType() payload.ContentType
	Payload() payload.Payload
}

// Base carries the fields common to every typed item view.
type Base struct {
	p payload.Payload
}

func (b Base) UUID() string                    { return b.p.UUID }
func (b Base) ContentType() payload.ContentType { return b.p.ContentType }
func (b Base) Payload() payload.Payload         { return b.p }

// Note is the typed view over a Note payload.
type Note struct {
	Base
	Content NoteContent
}

// Tag is the typed view over a Tag payload.
type Tag struct {
	Base
	Content TagContent
}

// ItemsKeyView is the typed view over a SN|ItemsKey payload. Named
// ItemsKeyView rather than ItemsKey to avoid colliding with
// internal/client/keys.ItemsKey, the key-material type this view only
// describes at the metadata level — the item layer never holds raw key
// bytes.
type ItemsKeyView struct {
	Base
	Content ItemsKeyContent
}

// Privileges is the typed view over an SN|Privileges payload.
type Privileges struct {
	Base
	Content PrivilegesContent
}

// Component is the typed view over an SN|Component payload.
type Component struct {
	Base
	Content ComponentContent
}

// UserPreferences is the typed view over an SN|UserPreferences payload.
type UserPreferences struct {
	Base
	Content UserPreferencesContent
}

// Parse dispatches on p.ContentType and unmarshals p.Content into the
// matching typed view, mirroring gosn-v2's ParseItem switch
// (other_examples/jonhadfield-gosn-v2__items.go). p must already be
// decrypted (protocol.Service.Decrypt) and non-deleted; callers filter
// tombstones before reaching this layer (payload.RemoveDeleted).
func Parse(p payload.Payload) (Item, error) {
	base := Base{p: p}
	switch p.ContentType {
	case payload.ContentTypeNote:
		var c NoteContent
		if err := unmarshal(p, &c); err != nil {
			return nil, err
		}
		return Note{Base: base, Content: c}, nil
	case payload.ContentTypeTag:
		var c TagContent
		if err := unmarshal(p, &c); err != nil {
			return nil, err
		}
		return Tag{Base: base, Content: c}, nil
	case payload.ContentTypeItemsKey:
		var c ItemsKeyContent
		if err := unmarshal(p, &c); err != nil {
			return nil, err
		}
		return ItemsKeyView{Base: base, Content: c}, nil
	case payload.ContentTypePrivileges:
		var c PrivilegesContent
		if err := unmarshal(p, &c); err != nil {
			return nil, err
		}
		return Privileges{Base: base, Content: c}, nil
	case payload.ContentTypeComponent:
		var c ComponentContent
		if err := unmarshal(p, &c); err != nil {
			return nil, err
		}
		return Component{Base: base, Content: c}, nil
	case payload.ContentTypeUserPreferences:
		var c UserPreferencesContent
		if err := unmarshal(p, &c); err != nil {
			return nil, err
		}
		return UserPreferences{Base: base, Content: c}, nil
	default:
		return nil, fmt.Errorf("item: unhandled content type %q", p.ContentType)
	}
}

func unmarshal(p payload.Payload, v interface{}) error {
	if p.Content == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(p.Content), v); err != nil {
		return fmt.Errorf("item: parse %s content %s: %w", p.ContentType, p.UUID, err)
	}
	return nil
}
