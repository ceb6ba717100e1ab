package delta

import (
	"encoding/json"

	"github.com/eidolon-labs/notesync/internal/client/item"
	"github.com/eidolon-labs/notesync/internal/client/payload"
)

// Result reports the outcome of applying a delta over a base collection:
// the resulting collection (base with apply's changes merged in per
// strategy) plus every duplicate payload freshly minted while resolving
// (the sync engine must persist and sync these out immediately — spec §8
// scenario 6).
type Result struct {
	Resulting  *payload.Collection
	Duplicates []payload.Payload
}

// Apply runs the standard per-uuid conflict resolution over base and
// apply, dispatching each uuid present in apply through StrategyFor and
// the matching strategy handler (spec §4.4). Payloads only in base are
// left untouched; payloads only in apply are inserted as new.
func Apply(base *payload.Collection, applyPayloads []payload.Payload) Result {
	resulting := payload.NewCollectionFrom(base.All())
	var duplicates []payload.Payload

	for _, remote := range applyPayloads {
		local, exists := resulting.Find(remote.UUID)
		if !exists {
			resulting.Set(remote)
			continue
		}

		strategy := StrategyFor(local, remote)
		switch strategy {
		case KeepLeft:
			// no-op: local wins outright
		case KeepRight:
			resulting.Set(remote)
		case KeepLeftDuplicateRight:
			dup := remote.AsDuplicate()
			dup = withConflictOf(dup, local.UUID)
			resulting.Set(dup)
			duplicates = append(duplicates, dup)
		case KeepRightDuplicateLeft:
			dup := local.AsDuplicate()
			dup = withConflictOf(dup, remote.UUID)
			resulting.Set(remote)
			resulting.Set(dup)
			duplicates = append(duplicates, dup)
		case KeepLeftMergeRefs:
			merged, err := mergeReferences(local, remote)
			if err != nil {
				// Fall back to duplication if content can't be parsed as
				// a Tag — a malformed payload must never silently lose
				// the remote edit.
				dup := remote.AsDuplicate()
				dup = withConflictOf(dup, local.UUID)
				resulting.Set(dup)
				duplicates = append(duplicates, dup)
				continue
			}
			resulting.Set(merged)
		}
	}

	return Result{Resulting: resulting, Duplicates: duplicates}
}

// withConflictOf stamps the conflict_of back-reference into a duplicate
// payload's content (spec §4.4), best-effort: a malformed content string
// leaves the duplicate as-is rather than failing resolution outright.
func withConflictOf(p payload.Payload, originalUUID string) payload.Payload {
	if p.Content == "" {
		return p
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(p.Content), &m); err != nil {
		return p
	}
	m["conflict_of"] = originalUUID
	raw, err := json.Marshal(m)
	if err != nil {
		return p
	}
	return p.WithContent(string(raw))
}

// mergeReferences implements KeepLeftMergeRefs for Tag payloads: keep
// local's content but union the two sides' reference arrays by uuid,
// deterministic per spec §4.4.
func mergeReferences(local, remote payload.Payload) (payload.Payload, error) {
	var localContent, remoteContent item.TagContent
	if err := json.Unmarshal([]byte(local.Content), &localContent); err != nil {
		return payload.Payload{}, err
	}
	if err := json.Unmarshal([]byte(remote.Content), &remoteContent); err != nil {
		return payload.Payload{}, err
	}

	seen := make(map[string]bool, len(localContent.References))
	merged := append([]item.Reference(nil), localContent.References...)
	for _, r := range localContent.References {
		seen[r.UUID] = true
	}
	for _, r := range remoteContent.References {
		if !seen[r.UUID] {
			merged = append(merged, r)
			seen[r.UUID] = true
		}
	}
	localContent.References = merged

	raw, err := json.Marshal(localContent)
	if err != nil {
		return payload.Payload{}, err
	}
	merged2 := local.WithContent(string(raw))
	merged2.Dirty = true
	return merged2, nil
}
