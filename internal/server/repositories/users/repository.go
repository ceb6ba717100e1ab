// Package users declares the server-side repository contract for account
// records.
package users

import (
	"context"

	"github.com/eidolon-labs/notesync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID string, newServerPassword []byte, keyParamsVersion, pwNonce, pwSalt string, pwCost int) error
	IncrementCurrentVersion(ctx context.Context, userID string) (int64, error)
}
