package syncengine

import (
	"context"

	"github.com/eidolon-labs/notesync/internal/client/lifecycle"
	"github.com/eidolon-labs/notesync/internal/client/manager"
	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/client/syncengine/delta"
	"github.com/eidolon-labs/notesync/internal/client/transport"
	"golang.org/x/sync/errgroup"
)

// handleResponse implements spec §4.3 "Response handling": persist
// tokens, decrypt every returned payload, run the conflict resolver per
// source, merge metadata-only acknowledgements with existing master
// content, emit the reconciled result into the Payload Manager, run
// singleton enforcement, and check integrity if the server supplied a
// hash. Returns the number of payloads touched this round, used for the
// MajorDataChange threshold.
func (e *Engine) handleResponse(ctx context.Context, resp transport.SyncResponse) (int, error) {
	if err := e.storage.SetLastSyncToken(ctx, resp.SyncToken); err != nil {
		e.bus.Publish(lifecycle.LocalDatabaseWriteError, map[string]interface{}{"error": err.Error()})
		return 0, err
	}
	if err := e.storage.SetPaginationToken(ctx, resp.CursorToken); err != nil {
		e.bus.Publish(lifecycle.LocalDatabaseWriteError, map[string]interface{}{"error": err.Error()})
		return 0, err
	}

	retrieved, err := e.decryptBatch(ctx, resp.RetrievedItems)
	if err != nil {
		return 0, err
	}
	saved, err := e.buildSavedPayloads(ctx, resp.SavedItems)
	if err != nil {
		return 0, err
	}
	conflicted, err := e.handleConflicts(ctx, resp.Conflicts)
	if err != nil {
		return 0, err
	}

	touched := 0
	for _, batch := range []struct {
		payloads []payload.Payload
		source   manager.Source
	}{
		{retrieved, manager.SourceRemoteRetrieved},
		{saved, manager.SourceRemoteSaved},
		{conflicted, manager.SourceConflict},
	} {
		emitted, err := e.reconcileAndEmit(ctx, batch.payloads, batch.source)
		if err != nil {
			return touched, err
		}
		touched += len(emitted)
	}

	singles, err := e.enforceSingletons(ctx)
	if err != nil {
		return touched, err
	}
	touched += len(singles)

	if resp.IntegrityHash != "" {
		if err := e.checkIntegrity(ctx, resp.IntegrityHash); err != nil {
			return touched, err
		}
	}

	return touched, nil
}

// decryptBatch decrypts a page of retrieved items concurrently — each
// item's decryption is independent CPU-bound work over already-fetched
// ciphertext, so fanning the page out across goroutines shortens a large
// initial sync materially without any shared mutable state between items.
func (e *Engine) decryptBatch(ctx context.Context, items []transport.Item) ([]payload.Payload, error) {
	if len(items) == 0 {
		return nil, nil
	}
	results := make([]payload.Payload, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			decrypted, err := e.protocol.Decrypt(gctx, fromWireRetrieved(it))
			if err != nil {
				return err
			}
			results[i] = decrypted
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// buildSavedPayloads implements spec §4.3's "for sources whose payload
// variant omits content (e.g. RemoteSaved carries only metadata), merge
// with the existing master content before persisting": a save
// acknowledgement usually carries no content, so the existing master copy
// (the very payload we just uploaded) is projected through RemoteSaved
// with the server's authoritative updated_at. An acknowledgement that
// does carry content (some server implementations echo it back) is
// decrypted like any other incoming item instead, keeping the master
// copy's DuplicateOf back-reference, which the wire item does not carry.
func (e *Engine) buildSavedPayloads(ctx context.Context, acks []transport.Item) ([]payload.Payload, error) {
	out := make([]payload.Payload, 0, len(acks))
	for _, ack := range acks {
		if ack.Content == "" {
			existing, ok := e.payloads.Find(ack.UUID)
			if !ok {
				continue
			}
			out = append(out, existing.RemoteSaved(ack.UpdatedAt))
			continue
		}
		decrypted, err := e.protocol.Decrypt(ctx, fromWireRetrieved(ack))
		if err != nil {
			return nil, err
		}
		saved := decrypted.RemoteSaved(ack.UpdatedAt)
		if existing, ok := e.payloads.Find(ack.UUID); ok {
			saved.DuplicateOf = existing.DuplicateOf
		}
		out = append(out, saved)
	}
	return out, nil
}

// handleConflicts implements spec §6/§4.3's conflict array: a sync_conflict
// carries the server's winning item plus the client's rejected attempt; a
// uuid_conflict carries only the rejected attempt, whose uuid collided
// with an unrelated server item. Both cases keep the server's state (if
// any) as the reconciled truth and duplicate the client's conflicting
// edit under a fresh uuid so it is never silently dropped.
//
// The rejected attempt's original uuid is discarded from the master
// collection and local storage once its content is safe under the
// duplicate's fresh uuid — the same "discard what can never be
// resubmitted" move preflight makes for never-uploaded deletes. Left in
// place it would still carry Dirty==true, so every subsequent sync round
// would resubmit it, collide again, and mint another duplicate.
func (e *Engine) handleConflicts(ctx context.Context, conflicts []transport.Conflict) ([]payload.Payload, error) {
	var out []payload.Payload
	for _, c := range conflicts {
		if c.ServerItem != nil {
			serverPayload, err := e.protocol.Decrypt(ctx, fromWireRetrieved(*c.ServerItem))
			if err != nil {
				return nil, err
			}
			out = append(out, serverPayload.Conflict())
		}
		if c.UnsavedItem != nil {
			if existing, ok := e.payloads.Find(c.UnsavedItem.UUID); ok {
				out = append(out, existing.AsDuplicate())
				e.payloads.Discard(existing.UUID)
				if err := e.storage.RemovePayload(ctx, existing.UUID); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// reconcileAndEmit runs the spec §4.4 conflict delta over incoming against
// the current master collection, then emits the reconciled winners (plus
// any freshly-minted duplicates) into the Payload Manager and persists
// them. Returns the payloads actually emitted, for touched-count
// bookkeeping.
func (e *Engine) reconcileAndEmit(ctx context.Context, incoming []payload.Payload, source manager.Source) ([]payload.Payload, error) {
	if len(incoming) == 0 {
		return nil, nil
	}

	base := payload.NewCollectionFrom(e.payloads.All())
	result := delta.Apply(base, incoming)

	seen := make(map[string]bool, len(incoming)+len(result.Duplicates))
	toEmit := make([]payload.Payload, 0, len(incoming)+len(result.Duplicates))
	for _, p := range incoming {
		if final, ok := result.Resulting.Find(p.UUID); ok && !seen[p.UUID] {
			toEmit = append(toEmit, final)
			seen[p.UUID] = true
		}
	}
	for _, d := range result.Duplicates {
		if !seen[d.UUID] {
			toEmit = append(toEmit, d)
			seen[d.UUID] = true
		}
	}

	e.payloads.EmitPayloads(toEmit, source)
	if err := e.storage.SavePayloads(ctx, toEmit); err != nil {
		e.bus.Publish(lifecycle.LocalDatabaseWriteError, map[string]interface{}{"error": err.Error()})
		return toEmit, err
	}
	return toEmit, nil
}

// enforceSingletons runs the spec §4.4 singleton rule over the current
// master collection, emitting and persisting any items it tombstones.
func (e *Engine) enforceSingletons(ctx context.Context) ([]payload.Payload, error) {
	base := payload.NewCollectionFrom(e.payloads.All())
	touched := delta.EnforceSingletons(base, e.now())
	if len(touched) == 0 {
		return nil, nil
	}
	e.payloads.EmitPayloads(touched, manager.SourceRemoteRetrieved)
	if err := e.storage.SavePayloads(ctx, touched); err != nil {
		return touched, err
	}
	return touched, nil
}
