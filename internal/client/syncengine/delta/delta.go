// Package delta implements spec §4.4's conflict resolution strategies: a
// delta takes a base collection (current master) and an apply collection
// (incoming payloads of a given source) and produces a resulting
// collection, per-uuid and deterministic. Grounded on gosn-v2's
// processSyncConflict switch (other_examples/jonhadfield-gosn-v2__sync.go)
// for the underlying decision tree (server-deleted keeps local,
// newer-unsaved wins with updated timestamp, content-type mismatch
// duplicates), restructured into named Strategy values dispatched by
// content-type predicates rather than gosn-v2's single inline switch, so
// each item type declares its own strategy per spec §4.4's
// "SNItem.strategyWhenConflictingWithItem".
package delta

import (
	"github.com/eidolon-labs/notesync/internal/client/item"
	"github.com/eidolon-labs/notesync/internal/client/payload"
)

// Strategy is one of the spec §4.4 conflict resolution strategies.
type Strategy string

const (
	KeepLeft               Strategy = "keep_left"
	KeepRight              Strategy = "keep_right"
	KeepLeftDuplicateRight Strategy = "keep_left_duplicate_right"
	KeepRightDuplicateLeft Strategy = "keep_right_duplicate_left"
	KeepLeftMergeRefs      Strategy = "keep_left_merge_refs"
)

// contentKeysToIgnoreWhenCheckingEquality lists JSON keys within a
// payload's decrypted content that don't count toward equality — spec
// §4.4. conflict_of is set by this very package's duplication logic and
// must never itself cause two otherwise-identical payloads to compare
// unequal.
var contentKeysToIgnoreWhenCheckingEquality = map[string]bool{
	"conflict_of": true,
}

// appDataContentKeysToIgnoreWhenCheckingEquality lists app-domain keys
// ignored the same way (spec §4.4's example: client_updated_at, a
// timestamp that changes on every save without the user-visible content
// changing).
var appDataContentKeysToIgnoreWhenCheckingEquality = map[string]bool{
	"client_updated_at": true,
}

// StrategyFor returns the conflict resolution strategy for a conflict
// between local and remote versions of the same uuid, per spec §4.4:
// singleton and locally-errored items always KeepLeft; either side
// deleted, or contents equal, KeepRight; two Tags, KeepLeftMergeRefs;
// otherwise KeepLeftDuplicateRight (the general case — never silently
// drop local edits), except when the remote is the one that's errored,
// which mirrors to KeepRightDuplicateLeft.
func StrategyFor(local, remote payload.Payload) Strategy {
	if item.IsSingleton(local.ContentType) || local.ErrorDecrypting {
		return KeepLeft
	}
	if remote.ErrorDecrypting {
		return KeepRightDuplicateLeft
	}
	if local.Deleted || remote.Deleted {
		return KeepRight
	}
	if ContentEqual(local, remote) {
		return KeepRight
	}
	if local.ContentType == payload.ContentTypeTag && remote.ContentType == payload.ContentTypeTag {
		return KeepLeftMergeRefs
	}
	return KeepLeftDuplicateRight
}

// ContentEqual reports whether local and remote have equivalent content
// for conflict-resolution purposes, ignoring the keys spec §4.4 names.
// Payloads must already be decrypted.
func ContentEqual(local, remote payload.Payload) bool {
	if local.ContentType != remote.ContentType {
		return false
	}
	lm, err1 := decodeIgnoring(local.Content)
	rm, err2 := decodeIgnoring(remote.Content)
	if err1 != nil || err2 != nil {
		return local.Content == remote.Content
	}
	return mapsEqual(lm, rm)
}
