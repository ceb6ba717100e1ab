package syncengine

import (
	"context"
	"errors"

	"github.com/eidolon-labs/notesync/internal/client/crypto"
	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/client/transport"
	"github.com/eidolon-labs/notesync/internal/common"
)

// preflight implements spec §4.3 "Pre-flight": collect dirty items,
// discard ones that are deleted and were never uploaded, persist anything
// dirtied since the last pre-sync save, then encrypt what remains for
// upload. Initial-mode syncs upload nothing (spec: "upload nothing;
// download first so the client can discover existing items keys before
// creating new ones").
func (e *Engine) preflight(ctx context.Context, opts Options) ([]transport.Item, error) {
	if opts.Mode == ModeInitial {
		return nil, nil
	}

	var dirty []payload.Payload
	for _, p := range e.payloads.All() {
		if p.Dirty {
			dirty = append(dirty, p)
		}
	}

	var toUpload []payload.Payload
	var toPersist []payload.Payload
	for _, p := range dirty {
		if p.Deleted && p.UpdatedAt.IsZero() {
			// Never uploaded, deleted locally: clear it out entirely
			// rather than syncing a tombstone the server has never seen.
			e.payloads.Discard(p.UUID)
			if err := e.storage.RemovePayload(ctx, p.UUID); err != nil {
				return nil, err
			}
			continue
		}
		if p.DirtiedDate.After(e.lastPreSyncSaveDate) {
			toPersist = append(toPersist, p)
		}
		toUpload = append(toUpload, p)
	}

	if len(toPersist) > 0 {
		if err := e.storage.SavePayloads(ctx, toPersist); err != nil {
			return nil, err
		}
		e.lastPreSyncSaveDate = e.now()
	}

	items := make([]transport.Item, 0, len(toUpload))
	for _, p := range toUpload {
		encrypted, err := e.protocol.Encrypt(ctx, p)
		if err != nil {
			if errors.Is(err, common.ErrNoRootKey) || errors.Is(err, common.ErrNoDefaultItemsKey) {
				// No account is signed in yet (spec §4.3: "encrypt remaining
				// dirty payloads under the current items-key (online) or
				// local-storage key (offline)"): fall back to the 000
				// unencrypted wrapper rather than block local editing on
				// having a server session.
				encrypted = p.WithContent(crypto.WrapUnencrypted(p.Content)).Encrypted()
			} else {
				return nil, err
			}
		}
		items = append(items, toWireItem(encrypted))
	}
	return items, nil
}
