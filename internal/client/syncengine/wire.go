package syncengine

import (
	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/client/transport"
)

// toWireItem projects an encrypted Payload to its wire shape for upload.
func toWireItem(p payload.Payload) transport.Item {
	return transport.Item{
		UUID:        p.UUID,
		ContentType: string(p.ContentType),
		Content:     p.Content,
		EncItemKey:  p.EncItemKey,
		ItemsKeyID:  p.ItemsKeyID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Deleted:     p.Deleted,
	}
}

// fromWireRetrieved builds the RemoteRetrieved-variant Payload for an
// incoming retrieved_items entry (spec §4.3: "decrypt each returned
// payload"). Content still carries ciphertext at this point.
func fromWireRetrieved(it transport.Item) payload.Payload {
	return payload.NewBuilder().
		UUID(it.UUID).
		ContentType(payload.ContentType(it.ContentType)).
		Content(it.Content).
		ItemsKeyID(it.ItemsKeyID).
		EncItemKey(it.EncItemKey).
		CreatedAt(it.CreatedAt).
		UpdatedAt(it.UpdatedAt).
		Deleted(it.Deleted).
		Build().
		RemoteRetrieved()
}
