// Package manager implements the Payload Manager and Item Manager (spec
// §4.2): the authoritative in-memory master collection, the ignored-key
// rule for items-key conflicts, and the reverse-reference index the Item
// Manager builds on top. Grounded on gosn-v2's items-key handling in
// DecryptAndParseItemsKeys (other_examples/jonhadfield-gosn-v2__items.go)
// for the "undecryptable arrival is always a key mismatch" rule, and on
// the teacher's observer-pattern usage in its repository layer for the
// Subscription handle shape.
package manager

import (
	"sync"

	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/logging"
)

// Source identifies where a batch of payloads being emitted came from —
// the sync engine sources (RemoteRetrieved, RemoteSaved, Conflict), a
// local edit, or a file import — passed through to observers so they can
// tell e.g. "this changed because of something I typed" from "this
// changed because another device edited it".
type Source string

const (
	SourceLocalChanged    Source = "local_changed"
	SourceLocalRetrieved  Source = "local_retrieved"
	SourceRemoteRetrieved Source = "remote_retrieved"
	SourceRemoteSaved     Source = "remote_saved"
	SourceConflict        Source = "conflict"
	SourceFileImport      Source = "file_import"
)

// EmitResult reports how each incoming payload was classified by
// EmitPayloads, matching spec §4.2's "(changed, inserted, discarded,
// ignored, source)" observer notification shape.
type EmitResult struct {
	Changed   []payload.Payload
	Inserted  []payload.Payload
	Discarded []payload.Payload
	Ignored   []payload.Payload
	Source    Source
}

// Observer receives EmitResult notifications. Unsubscribe works through
// the Subscription handle Subscribe returns, not through the observer
// value itself.
type Observer interface {
	PayloadsEmitted(EmitResult)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(EmitResult)

func (f ObserverFunc) PayloadsEmitted(r EmitResult) { f(r) }

// Subscription is an opaque handle returned from Subscribe, passed back to
// Unsubscribe. The manager holds no back-reference to the subscriber
// beyond this handle (spec §9 "observer graph: subscribe/unsubscribe, no
// back-reference from manager to subscriber").
type Subscription struct {
	id int
}

// PayloadManager owns the authoritative in-memory master collection
// (spec §4.2). Not safe for concurrent use beyond the locking it does
// internally — external callers still serialize through the single
// sync-engine goroutine per spec §5.
type PayloadManager struct {
	mu        sync.Mutex
	log       logging.Logger
	master    *payload.Collection
	observers map[int]Observer
	nextID    int
}

func NewPayloadManager(log logging.Logger) *PayloadManager {
	return &PayloadManager{
		log:       log,
		master:    payload.NewCollection(),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer, returning a Subscription handle for
// later Unsubscribe.
func (m *PayloadManager) Subscribe(o Observer) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.observers[id] = o
	return Subscription{id: id}
}

// Unsubscribe removes a previously registered observer.
func (m *PayloadManager) Unsubscribe(s Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observers, s.id)
}

// Find returns the master copy of the payload with the given UUID.
func (m *PayloadManager) Find(uuid string) (payload.Payload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master.Find(uuid)
}

// All returns every payload currently held in the master collection.
func (m *PayloadManager) All() []payload.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master.All()
}

// EmitPayloads inserts/overlays incoming payloads into the master
// collection, applying the ignored-key rule (spec §4.2) for
// SN|ItemsKey content, then notifies observers with the classified
// result. Returns the EmitResult so callers that don't need the full
// observer fan-out (e.g. the sync engine computing its own bookkeeping)
// can use it directly.
func (m *PayloadManager) EmitPayloads(incoming []payload.Payload, source Source) EmitResult {
	m.mu.Lock()
	result := EmitResult{Source: source}
	for _, p := range incoming {
		existing, exists := m.master.Find(p.UUID)

		if p.ContentType == payload.ContentTypeItemsKey && source != SourceLocalChanged {
			if p.ErrorDecrypting && exists && !existing.ErrorDecrypting {
				// Ignored-key rule: items-key material is immutable; an
				// undecryptable arrival is always a key mismatch, never
				// an update. Preserve the master copy.
				result.Ignored = append(result.Ignored, p)
				continue
			}
		}

		m.master.Set(p)
		if exists {
			result.Changed = append(result.Changed, p)
		} else {
			result.Inserted = append(result.Inserted, p)
		}
	}
	observers := make([]Observer, 0, len(m.observers))
	for _, o := range m.observers {
		observers = append(observers, o)
	}
	m.mu.Unlock()

	for _, o := range observers {
		o.PayloadsEmitted(result)
	}
	return result
}

// ReplaceAll discards the entire master collection and replaces it with
// payloads, notifying observers with every payload classified Inserted.
// Used by out-of-sync recovery's wholesale replacement (spec §4.3) —
// unlike EmitPayloads, which only ever upserts, this drops any payload not
// present in the replacement set.
func (m *PayloadManager) ReplaceAll(payloads []payload.Payload, source Source) EmitResult {
	m.mu.Lock()
	m.master = payload.NewCollectionFrom(payloads)
	result := EmitResult{Source: source, Inserted: append([]payload.Payload(nil), payloads...)}
	observers := make([]Observer, 0, len(m.observers))
	for _, o := range m.observers {
		observers = append(observers, o)
	}
	m.mu.Unlock()

	for _, o := range observers {
		o.PayloadsEmitted(result)
	}
	return result
}

// Discard removes a payload from the master collection without emitting
// it anywhere — used by the sync engine's pre-flight partitioning for
// items that are both deleted and never-synced (spec §4.3 step 2).
func (m *PayloadManager) Discard(uuid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.master.Remove(uuid)
}
