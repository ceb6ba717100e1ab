package syncengine

import (
	"context"

	"github.com/eidolon-labs/notesync/internal/client/lifecycle"
	"github.com/eidolon-labs/notesync/internal/client/manager"
	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/client/syncengine/delta"
	"github.com/eidolon-labs/notesync/internal/client/transport"
)

// checkIntegrity implements spec §4.3's integrity check: compute the local
// hash the same way the server did and compare. A run of maxDiscordance
// consecutive mismatches declares the client out-of-sync and kicks off
// recovery; any match resets the counter.
func (e *Engine) checkIntegrity(ctx context.Context, serverHash string) error {
	localHash := computeIntegrityHash(e.payloads.All())
	if localHash == serverHash {
		e.mu.Lock()
		wasOut := e.discordanceCount >= e.maxDiscordance
		e.discordanceCount = 0
		e.mu.Unlock()
		if wasOut {
			e.bus.Publish(lifecycle.ExitedOutOfSync, nil)
		}
		return nil
	}

	e.mu.Lock()
	e.discordanceCount++
	outOfSync := e.discordanceCount >= e.maxDiscordance
	e.mu.Unlock()

	if !outOfSync {
		return nil
	}

	e.bus.Publish(lifecycle.EnteredOutOfSync, nil)
	return e.resolveOutOfSync(ctx)
}

// resolveOutOfSync implements spec §4.3's "Out-of-sync recovery":
// download every item the server holds, replace the local master
// wholesale via the OutOfSync delta, then run one more integrity-checked
// round inline to confirm recovery. This runs one more round via runOnce
// rather than Sync: resolveOutOfSync is only ever reached from inside
// handleResponse, itself called from the runOnce/runChain chain already
// running inside this Engine's singleflight-coalesced round — re-entering
// Sync here would deadlock singleflight.Group.Do waiting on its own
// in-flight call.
func (e *Engine) resolveOutOfSync(ctx context.Context) error {
	serverPayloads, err := e.downloadAll(ctx)
	if err != nil {
		return err
	}

	result := delta.OutOfSync(serverPayloads)
	all := result.Resulting.All()

	e.payloads.ReplaceAll(all, manager.SourceRemoteRetrieved)
	if err := e.storage.ReplaceAllPayloads(ctx, all); err != nil {
		return err
	}

	e.mu.Lock()
	e.discordanceCount = 0
	e.mu.Unlock()

	return e.runOnce(ctx, Options{Mode: ModeDefault, CheckIntegrity: true})
}

// downloadAll pages through the server's entire item set with no upload
// and no sync token, the "download all items server-side" step of out-of-
// sync recovery.
func (e *Engine) downloadAll(ctx context.Context) ([]payload.Payload, error) {
	var all []payload.Payload
	cursorToken := ""
	for {
		resp, err := e.transport.Sync(ctx, transport.SyncRequest{CursorToken: cursorToken})
		if err != nil {
			return nil, err
		}
		decrypted, err := e.decryptBatch(ctx, resp.RetrievedItems)
		if err != nil {
			return nil, err
		}
		all = append(all, decrypted...)

		cursorToken = resp.CursorToken
		if cursorToken == "" {
			return all, nil
		}
	}
}
