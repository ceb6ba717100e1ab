package keys

import (
	"time"

	"github.com/eidolon-labs/notesync/internal/client/crypto"
)

// ItemsKey is the per-user symmetric key that encrypts ordinary item
// content (spec §3). It is itself stored as a regular syncable payload
// with content_type SN|ItemsKey, encrypted directly under the RootKey's
// MasterKey rather than under another items key — there is no "items key
// of an items key". Key material is immutable once created for v004; a
// user may hold several, with exactly one marked Default for new writes.
type ItemsKey struct {
	UUID       string
	ItemsKey   []byte // the symmetric key wrapping ordinary item content
	Version    crypto.Version
	Default    bool
	CreatedAt  time.Time
	ErrorState bool // mirrors Payload.ErrorDecrypting for this key specifically
}

// Ring holds the locally known items keys, tracking which is default.
// Not safe for concurrent use without external locking (spec §5).
type Ring struct {
	byUUID     map[string]ItemsKey
	defaultKey string
}

func NewRing() *Ring {
	return &Ring{byUUID: make(map[string]ItemsKey)}
}

// Add inserts or replaces an items key. If k.Default is set, it becomes the
// new default and any previously-default key is demoted — spec §3's "at
// most one items key is marked default at any time" invariant.
func (r *Ring) Add(k ItemsKey) {
	if k.Default {
		for id, existing := range r.byUUID {
			if existing.Default {
				existing.Default = false
				r.byUUID[id] = existing
			}
		}
		r.defaultKey = k.UUID
	}
	r.byUUID[k.UUID] = k
}

// Find returns the items key with the given UUID, if known locally.
func (r *Ring) Find(uuid string) (ItemsKey, bool) {
	k, ok := r.byUUID[uuid]
	return k, ok
}

// Default returns the current default items key used for new encryptions.
func (r *Ring) Default() (ItemsKey, bool) {
	if r.defaultKey == "" {
		return ItemsKey{}, false
	}
	return r.Find(r.defaultKey)
}

// All returns every known items key.
func (r *Ring) All() []ItemsKey {
	out := make([]ItemsKey, 0, len(r.byUUID))
	for _, k := range r.byUUID {
		out = append(out, k)
	}
	return out
}
