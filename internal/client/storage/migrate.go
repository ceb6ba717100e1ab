package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/eidolon-labs/notesync/internal/client/storage/migrations"
)

// RunMigrations applies the local SQLite schema migrations, mirroring the
// teacher's internal/client/client.RunMigrations. Safe to call on every
// launch — goose tracks applied versions in its own table.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("storage: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("storage: run migrations: %w", err)
	}
	return nil
}

// Open opens (creating if needed) a SQLite database at dsn and applies
// migrations, returning a ready-to-use SQLiteDevice.
func Open(ctx context.Context, dsn string) (*SQLiteDevice, *sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return NewSQLiteDevice(db), db, nil
}
