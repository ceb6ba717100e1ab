package manager

import (
	"context"
	"sync"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/item"
	"github.com/eidolon-labs/notesync/internal/client/lifecycle"
	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/logging"
)

// ItemManager wraps a PayloadManager, constructing typed items and
// maintaining a reverse-reference index so ItemsReferencingItem(uuid) is
// O(k) rather than a full scan (spec §4.2). Only Tag items carry
// references in this item set (spec §3); the index is built generically
// off item.Tag's References field so adding another referencing type
// later doesn't require touching the index structure itself.
type ItemManager struct {
	mu       sync.Mutex
	log      logging.Logger
	payloads *PayloadManager
	mutator  *item.Mutator
	bus      *lifecycle.Bus

	items       map[string]item.Item
	reverseRefs map[string]map[string]bool // referenced uuid -> set of referencing uuids
}

func NewItemManager(log logging.Logger, payloads *PayloadManager, now func() time.Time) *ItemManager {
	im := &ItemManager{
		log:         log,
		payloads:    payloads,
		mutator:     item.NewMutator(now),
		items:       make(map[string]item.Item),
		reverseRefs: make(map[string]map[string]bool),
	}
	payloads.Subscribe(ObserverFunc(im.onPayloadsEmitted))
	return im
}

// WithBus attaches the lifecycle bus this manager publishes domain events
// to (spec §6's PreferencesChanged). Optional: a manager built without it
// behaves exactly as before, just silently.
func (im *ItemManager) WithBus(bus *lifecycle.Bus) *ItemManager {
	im.bus = bus
	return im
}

func (im *ItemManager) publish(event lifecycle.Event, data map[string]interface{}) {
	if im.bus != nil {
		im.bus.Publish(event, data)
	}
}

// onPayloadsEmitted runs as a PayloadManager Observer callback, which
// carries no caller context (spec §4.2's observer graph is a plain
// notification fan-out); logging from here uses context.Background().
func (im *ItemManager) onPayloadsEmitted(r EmitResult) {
	im.mu.Lock()
	defer im.mu.Unlock()
	for _, p := range append(append([]payload.Payload{}, r.Inserted...), r.Changed...) {
		im.indexPayload(p)
	}
}

// indexPayload must be called with im.mu held.
func (im *ItemManager) indexPayload(p payload.Payload) {
	if p.Deleted || p.Content == "" || p.ErrorDecrypting || p.WaitingForKey {
		im.removeFromIndex(p.UUID)
		delete(im.items, p.UUID)
		return
	}
	parsed, err := item.Parse(p)
	if err != nil {
		im.log.Warn(context.Background(), "item manager: parse failed, skipping index", "uuid", p.UUID, "error", err)
		return
	}
	im.removeFromIndex(p.UUID)
	im.items[p.UUID] = parsed
	if tag, ok := parsed.(item.Tag); ok {
		for _, ref := range tag.Content.References {
			if im.reverseRefs[ref.UUID] == nil {
				im.reverseRefs[ref.UUID] = make(map[string]bool)
			}
			im.reverseRefs[ref.UUID][p.UUID] = true
		}
	}
}

// removeFromIndex must be called with im.mu held.
func (im *ItemManager) removeFromIndex(uuid string) {
	for referenced, referencers := range im.reverseRefs {
		delete(referencers, uuid)
		if len(referencers) == 0 {
			delete(im.reverseRefs, referenced)
		}
	}
}

// Find returns the typed item view for uuid, if known and decrypted.
func (im *ItemManager) Find(uuid string) (item.Item, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	it, ok := im.items[uuid]
	return it, ok
}

// ItemsReferencingItem returns the UUIDs of every item that references
// uuid, built from the reverse-reference index rather than scanning the
// full item set.
func (im *ItemManager) ItemsReferencingItem(uuid string) []string {
	im.mu.Lock()
	defer im.mu.Unlock()
	referencers, ok := im.reverseRefs[uuid]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(referencers))
	for id := range referencers {
		out = append(out, id)
	}
	return out
}

// ChangeNote builds an ItemMutator for the note with the given uuid,
// invokes fn, and emits the resulting payload into the Payload Manager,
// returning the updated typed item (spec §4.2 "changeItem").
func (im *ItemManager) ChangeNote(uuid string, fn func(*item.NoteMutator)) (item.Note, error) {
	it, ok := im.Find(uuid)
	if !ok {
		return item.Note{}, errItemNotFound(uuid)
	}
	note, ok := it.(item.Note)
	if !ok {
		return item.Note{}, errWrongType(uuid, payload.ContentTypeNote)
	}
	newPayload, err := im.mutator.MutateNote(note, fn)
	if err != nil {
		return item.Note{}, err
	}
	im.payloads.EmitPayloads([]payload.Payload{newPayload}, SourceLocalChanged)
	updated, _ := im.Find(uuid)
	return updated.(item.Note), nil
}

// CreateNote assembles a brand-new dirty Note payload, emits it into the
// PayloadManager, and returns the indexed typed item — the creation-side
// counterpart to ChangeNote, which only ever mutates an already-indexed
// item.
func (im *ItemManager) CreateNote(title, text string) (item.Note, error) {
	newPayload, err := im.mutator.NewNote(title, text)
	if err != nil {
		return item.Note{}, err
	}
	im.payloads.EmitPayloads([]payload.Payload{newPayload}, SourceLocalChanged)
	created, ok := im.Find(newPayload.UUID)
	if !ok {
		return item.Note{}, errItemNotFound(newPayload.UUID)
	}
	return created.(item.Note), nil
}

// ChangeTag mirrors ChangeNote for Tag items.
func (im *ItemManager) ChangeTag(uuid string, fn func(*item.TagMutator)) (item.Tag, error) {
	it, ok := im.Find(uuid)
	if !ok {
		return item.Tag{}, errItemNotFound(uuid)
	}
	tag, ok := it.(item.Tag)
	if !ok {
		return item.Tag{}, errWrongType(uuid, payload.ContentTypeTag)
	}
	newPayload, err := im.mutator.MutateTag(tag, fn)
	if err != nil {
		return item.Tag{}, err
	}
	im.payloads.EmitPayloads([]payload.Payload{newPayload}, SourceLocalChanged)
	updated, _ := im.Find(uuid)
	return updated.(item.Tag), nil
}

// SetPreference mirrors ChangeNote for the UserPreferences singleton
// (spec §8 scenario 5).
func (im *ItemManager) SetPreference(uuid, key string, value interface{}) (item.UserPreferences, error) {
	it, ok := im.Find(uuid)
	if !ok {
		return item.UserPreferences{}, errItemNotFound(uuid)
	}
	prefs, ok := it.(item.UserPreferences)
	if !ok {
		return item.UserPreferences{}, errWrongType(uuid, payload.ContentTypeUserPreferences)
	}
	newPayload, err := im.mutator.SetPreference(prefs, key, value)
	if err != nil {
		return item.UserPreferences{}, err
	}
	im.payloads.EmitPayloads([]payload.Payload{newPayload}, SourceLocalChanged)
	im.publish(lifecycle.PreferencesChanged, map[string]interface{}{"key": key})
	updated, _ := im.Find(uuid)
	return updated.(item.UserPreferences), nil
}
