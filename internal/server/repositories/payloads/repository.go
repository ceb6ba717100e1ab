// Package payloads declares the server-side repository contract for
// synced item ciphertext (the reference server's counterpart to the
// teacher's entries repository, generalized from a fixed vault-entry
// shape to the spec's opaque Payload wire shape).
package payloads

import (
	"context"

	"github.com/eidolon-labs/notesync/internal/server/models"
)

type Repository interface {
	// CreateOrUpdate upserts a payload by UUID for a specific user. If a
	// conflicting row exists owned by a different user, no row is
	// touched and ErrForeignOwner is returned; if the same user's row was
	// updated after p.UpdatedAt, no row is touched and ErrStaleWrite is
	// returned.
	CreateOrUpdate(ctx context.Context, p *models.Payload) error

	// SelectUpdated returns every payload for userID with version >
	// minVersion, the set a sync round must hand back to the client.
	SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Payload, error)

	// FindByUUID looks up a single payload regardless of owner, used to
	// classify a uuid_conflict against whichever account currently holds it.
	FindByUUID(ctx context.Context, uuid string) (*models.Payload, error)
}
