// Package users provides PostgreSQL-backed repositories for server-side
// account persistence.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/dbx"
	"github.com/eidolon-labs/notesync/internal/server/models"
)

// PostgresRepository implements account storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email, identifier, key_params_version, pw_nonce, pw_salt, pw_cost, server_password)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.Identifier, user.KeyParamsVersion, user.PwNonce, user.PwSalt, user.PwCost, user.ServerPassword,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `INSERT INTO user_versions (user_id, current) VALUES ($1, 0)`, user.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, identifier, key_params_version, pw_nonce, pw_salt, pw_cost, server_password, created_at
		FROM users
		WHERE email = $1
	`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.Identifier, &user.KeyParamsVersion,
		&user.PwNonce, &user.PwSalt, &user.PwCost, &user.ServerPassword, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, email, identifier, key_params_version, pw_nonce, pw_salt, pw_cost, server_password, created_at
		FROM users
		WHERE id = $1
	`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.Email, &user.Identifier, &user.KeyParamsVersion,
		&user.PwNonce, &user.PwSalt, &user.PwCost, &user.ServerPassword, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID string, newServerPassword []byte, keyParamsVersion, pwNonce, pwSalt string, pwCost int) error {
	query := `
		UPDATE users
		SET server_password = $2, key_params_version = $3, pw_nonce = $4, pw_salt = $5, pw_cost = $6
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, newServerPassword, keyParamsVersion, pwNonce, pwSalt, pwCost)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IncrementCurrentVersion(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE user_versions SET current = current + 1
		WHERE user_id = $1
		RETURNING current
	`
	var maxVersion int64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&maxVersion)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return maxVersion, nil
}
