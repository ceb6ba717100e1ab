// Package payload implements the immutable Payload model (spec §3/§9): the
// single data shape shared by the wire protocol, local storage, and the
// decrypted in-memory item views built on top of it. A Payload never
// mutates in place — every state transition (decrypt, dirty, delete,
// re-key) produces a new value via a projection over the previous one,
// mirroring gosn-v2's EncryptedItem/DecryptedItem split but collapsed into
// one struct with a Variant tag, since Go lacks algebraic sum types.
package payload

import (
	"time"

	"github.com/google/uuid"
)

// Variant tags which projection of the max field set a Payload represents.
// Only the fields meaningful for that variant are populated; the others
// carry their zero value. Variant is metadata for callers (principally the
// sync engine and storage service) to validate they received what they
// expected — it is never branched on inside this package's own logic.
type Variant string

const (
	VariantEncrypted       Variant = "encrypted"
	VariantDecryptedMax    Variant = "decrypted_max"
	VariantRemoteSaved     Variant = "remote_saved"
	VariantRemoteRetrieved Variant = "remote_retrieved"
	VariantConflict        Variant = "conflict"
	VariantExport          Variant = "export"
)

// Payload is the immutable unit of data the sync engine, storage service,
// and item layer all operate over. Content holds either ciphertext
// (Variant == VariantEncrypted) framed per internal/client/crypto, or
// decrypted JSON text ready for item-layer parsing — never both, and the
// Variant plus EncItemKey presence tell a reader which.
type Payload struct {
	UUID        string
	ContentType ContentType
	Content     string
	ItemsKeyID  string
	EncItemKey  string

	CreatedAt time.Time
	UpdatedAt time.Time

	Deleted         bool
	Dirty           bool
	DirtiedDate     time.Time
	DuplicateOf     string
	ErrorDecrypting bool
	WaitingForKey   bool
	LastSyncBegan   time.Time
	LastSyncEnd     time.Time

	Variant Variant
}

// Builder assembles a Payload field-by-field and yields it via Build,
// matching the teacher's config/request builder pattern rather than a
// giant positional constructor. Zero value is ready to use.
type Builder struct {
	p Payload
}

func NewBuilder() *Builder {
	return &Builder{p: Payload{Variant: VariantDecryptedMax}}
}

func (b *Builder) UUID(id string) *Builder {
	b.p.UUID = id
	return b
}

func (b *Builder) NewUUID() *Builder {
	b.p.UUID = uuid.NewString()
	return b
}

func (b *Builder) ContentType(ct ContentType) *Builder {
	b.p.ContentType = ct
	return b
}

func (b *Builder) Content(c string) *Builder {
	b.p.Content = c
	return b
}

func (b *Builder) ItemsKeyID(id string) *Builder {
	b.p.ItemsKeyID = id
	return b
}

func (b *Builder) EncItemKey(k string) *Builder {
	b.p.EncItemKey = k
	return b
}

func (b *Builder) CreatedAt(t time.Time) *Builder {
	b.p.CreatedAt = t
	return b
}

func (b *Builder) UpdatedAt(t time.Time) *Builder {
	b.p.UpdatedAt = t
	return b
}

func (b *Builder) Deleted(d bool) *Builder {
	b.p.Deleted = d
	return b
}

func (b *Builder) Dirty(d bool) *Builder {
	b.p.Dirty = d
	return b
}

func (b *Builder) Variant(v Variant) *Builder {
	b.p.Variant = v
	return b
}

// Build returns the assembled Payload. If no UUID was set, one is
// generated — every Payload must be addressable, and forgetting to call
// UUID()/NewUUID() is a programmer error the spec has no room for.
func (b *Builder) Build() Payload {
	if b.p.UUID == "" {
		b.p.UUID = uuid.NewString()
	}
	return b.p
}

// --- variant projections ---
//
// Each projection is a pure function over an existing Payload returning a
// new one; none mutate the receiver. They exist so every layer (transport,
// storage, conflict resolution) can ask for exactly the field subset its
// contract allows, the way gosn-v2 keeps EncryptedItem and DecryptedItem as
// distinct types instead of one item with optional fields used
// inconsistently.

// Encrypted projects p down to what travels on the wire or sits in local
// storage: ciphertext Content plus key-wrapping metadata, no decrypted
// state. Callers must not inspect DuplicateOf/Dirty on this variant.
func (p Payload) Encrypted() Payload {
	c := p
	c.Variant = VariantEncrypted
	return c
}

// DecryptedMax is the full in-memory shape used by the item layer and
// manager: decrypted Content plus all local bookkeeping fields.
func (p Payload) DecryptedMax() Payload {
	c := p
	c.Variant = VariantDecryptedMax
	return c
}

// RemoteSaved projects p to the shape sent in a sync request's "saved
// items" acknowledgement path: UUID and the server-assigned UpdatedAt, with
// Dirty cleared and LastSyncEnd stamped.
func (p Payload) RemoteSaved(updatedAt time.Time) Payload {
	c := p
	c.Variant = VariantRemoteSaved
	c.UpdatedAt = updatedAt
	c.Dirty = false
	c.LastSyncEnd = updatedAt
	return c
}

// RemoteRetrieved projects p to the shape of an item freshly pulled from
// the server in a sync response's retrieved_items: encrypted Content,
// Dirty forced false (a payload fresh off the wire is never locally dirty
// until the conflict delta says otherwise).
func (p Payload) RemoteRetrieved() Payload {
	c := p.Encrypted()
	c.Variant = VariantRemoteRetrieved
	c.Dirty = false
	return c
}

// Conflict projects p to the shape handed to a delta resolver: both sides
// of a conflict are normalized to this variant so resolvers never need to
// special-case which side is "theirs".
func (p Payload) Conflict() Payload {
	c := p
	c.Variant = VariantConflict
	return c
}

// Export projects p to the shape written by a backup/export operation
// (spec §6 export format): decrypted or still-encrypted Content depending
// on whether the export is plaintext or encrypted-backup, UUID and
// ContentType preserved, sync bookkeeping stripped.
func (p Payload) Export() Payload {
	c := p
	c.Variant = VariantExport
	c.Dirty = false
	c.DirtiedDate = time.Time{}
	c.LastSyncBegan = time.Time{}
	c.LastSyncEnd = time.Time{}
	return c
}

// WithContent returns a copy of p with Content replaced — used by the
// protocol service after decrypt/encrypt and by the item mutator after a
// content edit. The original is left untouched.
func (p Payload) WithContent(content string) Payload {
	c := p
	c.Content = content
	return c
}

// MarkDirty returns a copy of p flagged dirty with DirtiedDate stamped to
// now, the transition the item mutator applies on every local edit.
func (p Payload) MarkDirty(now time.Time) Payload {
	c := p
	c.Dirty = true
	c.DirtiedDate = now
	return c
}

// MarkDeleted returns a tombstoned copy of p: Deleted set, Content cleared,
// Dirty set so the tombstone syncs out. Mirrors gosn-v2's delete handling
// where a deleted item keeps its UUID/ContentType but drops Content.
func (p Payload) MarkDeleted(now time.Time) Payload {
	c := p
	c.Deleted = true
	c.Content = ""
	c.Dirty = true
	c.DirtiedDate = now
	return c
}

// AsDuplicate returns a copy of p with a fresh UUID and DuplicateOf set to
// the original's UUID, the shape produced by the KeepLeftDuplicateRight and
// KeepRightDuplicateLeft deltas (spec §4.4).
func (p Payload) AsDuplicate() Payload {
	c := p
	c.DuplicateOf = p.UUID
	c.UUID = uuid.NewString()
	c.Dirty = true
	return c
}
