// Package payloads provides PostgreSQL-backed repositories for the
// reference sync server's item ciphertext store, adapted from the
// teacher's entries repository (which persisted a fixed vault-entry
// shape) to the spec's Payload wire shape.
package payloads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/dbx"
	"github.com/eidolon-labs/notesync/internal/server/models"
)

// ErrForeignOwner is returned by CreateOrUpdate when the uuid already
// belongs to a different account — the server-side half of spec §6's
// uuid_conflict classification.
var ErrForeignOwner = errors.New("payload uuid owned by a different account")

// ErrStaleWrite is returned by CreateOrUpdate when the same account's
// stored row has already moved past the updated_at the caller edited
// from — the server-side half of spec §14's sync_conflict classification:
// two writers touched the same uuid and this one lost the race.
var ErrStaleWrite = errors.New("payload updated_at is stale")

// PostgresRepository implements Payload storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateOrUpdate inserts a new payload or overwrites an existing one in
// place, guarded by two conditions baked into the UPDATE's WHERE clause so
// both hold atomically with the write rather than needing a separate
// locking SELECT: the row must still belong to the submitting account, and
// the account's own prior write must not be newer than the one p was
// edited from. A row that fails either guard reports zero rows affected,
// and the caller distinguishes which guard tripped via a follow-up
// FindByUUID (see Sync's foreign-owner/stale-write handling).
func (r *PostgresRepository) CreateOrUpdate(ctx context.Context, p *models.Payload) error {
	query := `
		INSERT INTO payloads (uuid, user_id, content_type, content, enc_item_key, items_key_id, version, deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (uuid)
		DO UPDATE SET
			content_type = EXCLUDED.content_type,
			content      = EXCLUDED.content,
			enc_item_key = EXCLUDED.enc_item_key,
			items_key_id = EXCLUDED.items_key_id,
			version      = EXCLUDED.version,
			deleted      = EXCLUDED.deleted,
			updated_at   = now()
			WHERE payloads.user_id = EXCLUDED.user_id
			  AND payloads.updated_at <= $9
	`
	res, err := r.db.ExecContext(ctx, query,
		p.UUID, p.UserID, p.ContentType, p.Content, p.EncItemKey, p.ItemsKeyID, p.Version, p.Deleted, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n > 0 {
		return nil
	}

	existing, findErr := r.FindByUUID(ctx, p.UUID)
	if findErr != nil {
		if errors.Is(findErr, common.ErrorNotFound) {
			// The guarded UPDATE matched nothing and a plain INSERT would
			// have succeeded unconditionally, so a row must exist.
			return ErrForeignOwner
		}
		return findErr
	}
	if existing.UserID != p.UserID {
		return ErrForeignOwner
	}
	return ErrStaleWrite
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Payload, error) {
	query := `
		SELECT uuid, user_id, content_type, content, enc_item_key, items_key_id, version, deleted, created_at, updated_at
		FROM payloads
		WHERE user_id = $1 AND version > $2
		ORDER BY version ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, minVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select payloads: %w", err)
	}
	defer rows.Close()

	var result []*models.Payload
	for rows.Next() {
		var p models.Payload
		if err := rows.Scan(
			&p.UUID, &p.UserID, &p.ContentType, &p.Content, &p.EncItemKey, &p.ItemsKeyID,
			&p.Version, &p.Deleted, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) FindByUUID(ctx context.Context, uuid string) (*models.Payload, error) {
	query := `
		SELECT uuid, user_id, content_type, content, enc_item_key, items_key_id, version, deleted, created_at, updated_at
		FROM payloads
		WHERE uuid = $1
	`
	var p models.Payload
	err := r.db.QueryRowContext(ctx, query, uuid).Scan(
		&p.UUID, &p.UserID, &p.ContentType, &p.Content, &p.EncItemKey, &p.ItemsKeyID,
		&p.Version, &p.Deleted, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &p, nil
}
