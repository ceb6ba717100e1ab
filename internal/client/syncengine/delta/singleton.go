package delta

import (
	"time"

	"github.com/eidolon-labs/notesync/internal/client/item"
	"github.com/eidolon-labs/notesync/internal/client/payload"
)

// EnforceSingletons scans c for every content type with singleton
// semantics and, within each group of matches, keeps the earliest-created
// payload and marks the rest deleted+dirty, per spec §4.4: "for items
// with isSingleton=true, after any emission, scan matches of
// singletonPredicate; keep the earliest-created and mark the rest
// deleted+dirty." Returns the payloads that were newly marked (the sync
// engine must persist and sync these out), c itself is updated in place.
func EnforceSingletons(c *payload.Collection, now time.Time) []payload.Payload {
	var touched []payload.Payload

	for ct := range groupableSingletonTypes(c) {
		predicate := item.PredicateFor(ct)
		var matches []payload.Payload
		for _, p := range c.All() {
			if !p.Deleted && predicate(p) {
				matches = append(matches, p)
			}
		}
		if len(matches) < 2 {
			continue
		}

		keep := matches[0]
		for _, m := range matches[1:] {
			if m.CreatedAt.Before(keep.CreatedAt) {
				keep = m
			}
		}

		for _, m := range matches {
			if m.UUID == keep.UUID {
				continue
			}
			deleted := m.MarkDeleted(now)
			c.Set(deleted)
			touched = append(touched, deleted)
		}
	}

	return touched
}

// groupableSingletonTypes returns the distinct singleton content types
// actually present in c, so EnforceSingletons never scans the full
// collection once per known singleton type when most accounts don't even
// carry one of each.
func groupableSingletonTypes(c *payload.Collection) map[payload.ContentType]bool {
	present := make(map[payload.ContentType]bool)
	for _, p := range c.All() {
		if item.IsSingleton(p.ContentType) {
			present[p.ContentType] = true
		}
	}
	return present
}
