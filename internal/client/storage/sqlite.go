package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/dbx"
)

// SQLiteDevice implements DeviceInterface over a local SQLite database
// (modernc.org/sqlite, pure-Go driver, matching the teacher's own choice
// so the demo CLI needs no cgo toolchain). Grounded on the teacher's
// metadata.SQLiteRepository (key/value table) and entries.SQLiteRepository
// (bulk row table), merged into one DeviceInterface implementation since
// the spec asks for a single collaborator rather than the teacher's
// separate metadata/entries/files repositories.
//
// Schema (applied by internal/client/storage/migrations via goose):
//
//	CREATE TABLE kv (key TEXT PRIMARY KEY, value BLOB NOT NULL);
//	CREATE TABLE payloads (
//	    uuid TEXT PRIMARY KEY, content_type TEXT NOT NULL, content TEXT,
//	    items_key_id TEXT, enc_item_key TEXT,
//	    created_at TEXT, updated_at TEXT, deleted INTEGER NOT NULL DEFAULT 0
//	);
//	CREATE TABLE keychain (key TEXT PRIMARY KEY, value BLOB NOT NULL);
type SQLiteDevice struct {
	db dbx.DBTX
}

func NewSQLiteDevice(db dbx.DBTX) *SQLiteDevice {
	return &SQLiteDevice{db: db}
}

func (d *SQLiteDevice) GetRawStorageValue(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get kv[%s]: %w", key, err)
	}
	return value, true, nil
}

func (d *SQLiteDevice) SetRawStorageValue(ctx context.Context, key string, value []byte) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("storage: set kv[%s]: %w", key, err)
	}
	return nil
}

func (d *SQLiteDevice) RemoveRawStorageValue(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage: remove kv[%s]: %w", key, err)
	}
	return nil
}

func (d *SQLiteDevice) GetAllRawDatabasePayloads(ctx context.Context) ([]payload.Payload, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT uuid, content_type, content, items_key_id, enc_item_key, created_at, updated_at, deleted
		FROM payloads
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: list payloads: %w", err)
	}
	defer rows.Close()

	var out []payload.Payload
	for rows.Next() {
		var p payload.Payload
		var createdAt, updatedAt string
		var deleted int
		if err := rows.Scan(&p.UUID, &p.ContentType, &p.Content, &p.ItemsKeyID, &p.EncItemKey, &createdAt, &updatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("storage: scan payload row: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		p.Deleted = deleted != 0
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate payload rows: %w", err)
	}
	return out, nil
}

func (d *SQLiteDevice) SaveRawDatabasePayload(ctx context.Context, p payload.Payload) error {
	deleted := 0
	if p.Deleted {
		deleted = 1
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO payloads (uuid, content_type, content, items_key_id, enc_item_key, created_at, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			content_type = excluded.content_type,
			content = excluded.content,
			items_key_id = excluded.items_key_id,
			enc_item_key = excluded.enc_item_key,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted
	`, p.UUID, p.ContentType, p.Content, p.ItemsKeyID, p.EncItemKey,
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano), deleted)
	if err != nil {
		return fmt.Errorf("storage: save payload %s: %w", p.UUID, err)
	}
	return nil
}

func (d *SQLiteDevice) RemoveRawDatabasePayload(ctx context.Context, uuid string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM payloads WHERE uuid = ?`, uuid); err != nil {
		return fmt.Errorf("storage: remove payload %s: %w", uuid, err)
	}
	return nil
}

func (d *SQLiteDevice) SetKeychainValue(ctx context.Context, key string, value []byte) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO keychain (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("storage: set keychain[%s]: %w", key, err)
	}
	return nil
}

func (d *SQLiteDevice) GetKeychainValue(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := d.db.QueryRowContext(ctx, `SELECT value FROM keychain WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get keychain[%s]: %w", key, err)
	}
	return value, true, nil
}

func (d *SQLiteDevice) ClearKeychainValue(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM keychain WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage: clear keychain[%s]: %w", key, err)
	}
	return nil
}
