package delta

import (
	"time"

	"github.com/eidolon-labs/notesync/internal/client/payload"
)

// RemoteRejected re-sources a payload the server rejected from its
// locally-held decrypted counterpart with dirty cleared and lastSyncEnd
// stamped to now, per spec §4.4. Returns the payload to emit; the caller
// is responsible for actually emitting it into the Payload Manager. The
// original spec description ends in a bare-string panic in the source
// this is grounded on for unrecoverable rejection reasons — REDESIGN
// FLAGS replaces that with this typed, always-successful re-source plus
// a lifecycle event the caller fires separately, so a single rejected
// item can never crash a sync round.
func RemoteRejected(local payload.Payload, now time.Time) payload.Payload {
	c := local
	c.Dirty = false
	c.LastSyncEnd = now
	return c
}

// FileImport applies incoming import payloads against master, always
// duplicating on a uuid collision (never overwriting existing local data
// during import, per spec §4.4).
func FileImport(master *payload.Collection, incoming []payload.Payload) Result {
	resulting := payload.NewCollectionFrom(master.All())
	var duplicates []payload.Payload

	for _, p := range incoming {
		if existing, exists := resulting.Find(p.UUID); exists {
			dup := p.AsDuplicate()
			dup = withConflictOf(dup, existing.UUID)
			resulting.Set(dup)
			duplicates = append(duplicates, dup)
			continue
		}
		resulting.Set(p)
	}

	return Result{Resulting: resulting, Duplicates: duplicates}
}

// OutOfSync replaces the entire local master with the server's
// authoritative full download, per spec §4.3 out-of-sync recovery
// ("download all items server-side, run a DeltaOutOfSync delta"). Unlike
// Apply/FileImport this delta trusts the incoming set completely — any
// local-only payload not present server-side is dropped, since the whole
// point of recovery is discarding a master collection that's provably
// diverged from the server's ledger.
func OutOfSync(serverPayloads []payload.Payload) Result {
	return Result{Resulting: payload.NewCollectionFrom(serverPayloads)}
}
