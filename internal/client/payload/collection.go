package payload

// Collection indexes a set of Payloads by UUID and by content type, the
// structure the sync engine and item manager both query against. It is not
// safe for concurrent use without external locking, matching the rest of
// the engine's cooperative single-threaded model (spec §5).
//
// Grounded on gosn-v2's EncryptedItems slice-based helpers (DeDupe,
// RemoveUnsupported, RemoveDeleted), restructured around a map index since
// the manager and delta layers do repeated UUID lookups that a linear scan
// over a slice would make quadratic during a large sync.
type Collection struct {
	byUUID map[string]Payload
	order  []string // insertion order, preserved for deterministic iteration
}

func NewCollection() *Collection {
	return &Collection{byUUID: make(map[string]Payload)}
}

// NewCollectionFrom builds a Collection from an existing slice, de-duping
// by UUID with the last occurrence winning (mirrors DeDupe's "last write
// wins within a batch" behavior).
func NewCollectionFrom(payloads []Payload) *Collection {
	c := NewCollection()
	for _, p := range payloads {
		c.Set(p)
	}
	return c
}

// Set inserts or replaces the payload with the same UUID, preserving its
// original position in iteration order.
func (c *Collection) Set(p Payload) {
	if _, exists := c.byUUID[p.UUID]; !exists {
		c.order = append(c.order, p.UUID)
	}
	c.byUUID[p.UUID] = p
}

// Find returns the payload with the given UUID, if present.
func (c *Collection) Find(uuid string) (Payload, bool) {
	p, ok := c.byUUID[uuid]
	return p, ok
}

// Remove deletes the payload with the given UUID from the collection.
func (c *Collection) Remove(uuid string) {
	if _, ok := c.byUUID[uuid]; !ok {
		return
	}
	delete(c.byUUID, uuid)
	for i, id := range c.order {
		if id == uuid {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// All returns every payload in insertion order.
func (c *Collection) All() []Payload {
	out := make([]Payload, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byUUID[id])
	}
	return out
}

// ByContentType returns every payload whose ContentType matches, in
// insertion order. Used heavily by the item layer to fetch e.g. all
// SN|ItemsKey payloads without scanning unrelated content types.
func (c *Collection) ByContentType(ct ContentType) []Payload {
	var out []Payload
	for _, id := range c.order {
		if p := c.byUUID[id]; p.ContentType == ct {
			out = append(out, p)
		}
	}
	return out
}

// Len reports the number of payloads held.
func (c *Collection) Len() int {
	return len(c.order)
}

// DeDupe removes duplicate-UUID entries from an unordered payload slice,
// keeping the last occurrence of each UUID. Ported from gosn-v2's
// EncryptedItems.DeDupe, which exists because a sync response or an
// imported backup can legitimately contain the same UUID more than once
// (e.g. retrieved_items and saved_items both referencing an item touched
// mid-sync by another device).
func DeDupe(payloads []Payload) []Payload {
	seen := make(map[string]int, len(payloads))
	out := make([]Payload, 0, len(payloads))
	for _, p := range payloads {
		if idx, ok := seen[p.UUID]; ok {
			out[idx] = p
			continue
		}
		seen[p.UUID] = len(out)
		out = append(out, p)
	}
	return out
}

// RemoveDeleted filters out tombstoned payloads, mirroring gosn-v2's
// RemoveDeleted used when building the in-memory item view (tombstones
// stay in storage and keep syncing, but never surface as live items).
func RemoveDeleted(payloads []Payload) []Payload {
	out := make([]Payload, 0, len(payloads))
	for _, p := range payloads {
		if !p.Deleted {
			out = append(out, p)
		}
	}
	return out
}

// RemoveUnsupported filters out payloads whose content type is not in the
// supplied supported set, mirroring gosn-v2's RemoveUnsupported (a client
// encountering a content type from a newer app version should carry it
// through sync untouched, but never try to parse it into a typed item).
func RemoveUnsupported(payloads []Payload, supported map[ContentType]bool) []Payload {
	out := make([]Payload, 0, len(payloads))
	for _, p := range payloads {
		if supported[p.ContentType] {
			out = append(out, p)
		}
	}
	return out
}

// Immutable is a read-only snapshot of a Collection at a point in time:
// later mutations of the live Collection do not reach it. The delta
// processors do not use it; they take and return *Collection.
type Immutable struct {
	payloads []Payload
	byUUID   map[string]Payload
}

// Snapshot freezes the current contents of c into an Immutable.
func (c *Collection) Snapshot() Immutable {
	byUUID := make(map[string]Payload, len(c.byUUID))
	payloads := make([]Payload, 0, len(c.order))
	for _, id := range c.order {
		p := c.byUUID[id]
		byUUID[id] = p
		payloads = append(payloads, p)
	}
	return Immutable{payloads: payloads, byUUID: byUUID}
}

func (s Immutable) Find(uuid string) (Payload, bool) {
	p, ok := s.byUUID[uuid]
	return p, ok
}

func (s Immutable) All() []Payload {
	return s.payloads
}
