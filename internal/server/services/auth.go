// Package services implements the reference sync server's application
// logic: account registration/authentication and item sync, adapted
// from the teacher's services/users.go and services/entries.go onto the
// spec's key-params/server-password model and opaque Payload wire shape.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/dbx"
	"github.com/eidolon-labs/notesync/internal/server/auth"
	"github.com/eidolon-labs/notesync/internal/server/config"
	"github.com/eidolon-labs/notesync/internal/server/models"
	"github.com/eidolon-labs/notesync/internal/server/repositories/repomanager"
)

// KeyParams is the server's view of keys.KeyParams — the recipe another
// device needs to re-derive the same RootKey from a password, minus
// anything the server doesn't itself need to carry (spec §3/§6).
type KeyParams struct {
	Version    string
	Identifier string
	PwNonce    string
	PwSalt     string
	PwCost     int
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService implements account registration, key-params lookup,
// sign-in, and password change — the server half of spec §8 scenario 1.
// Grounded on the teacher's UserService, adapted from a username+salt+
// verifier model to the spec's email+KeyParams+ServerPassword model.
type AuthService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AuthService {
	return &AuthService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Register creates a new account. serverPassword is the proof value
// derived client-side from the master password (spec §3) — the server
// never sees the master password itself, only this already-derived value,
// and stores it directly for later constant-time comparison at sign-in
// (mirroring the teacher's verifier, which was the same kind of opaque
// proof value from a different KDF).
func (s *AuthService) Register(ctx context.Context, email string, kp KeyParams, serverPassword []byte) (*models.User, error) {
	user := &models.User{
		Email:            email,
		Identifier:       kp.Identifier,
		KeyParamsVersion: kp.Version,
		PwNonce:          kp.PwNonce,
		PwSalt:           kp.PwSalt,
		PwCost:           kp.PwCost,
		ServerPassword:   serverPassword,
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return user, nil
}

// KeyParams returns the stored KeyParams for email, or a set of
// plausible-looking random params when the account doesn't exist — spec
// §8's requirement that a key-params lookup never reveals account
// existence, mirroring the teacher's GetSalt random-salt fallback.
func (s *AuthService) KeyParams(ctx context.Context, email string) (KeyParams, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return randomKeyParams(email), nil
		}
		return KeyParams{}, common.ErrorInternal
	}
	return KeyParams{
		Version:    user.KeyParamsVersion,
		Identifier: user.Identifier,
		PwNonce:    user.PwNonce,
		PwSalt:     user.PwSalt,
		PwCost:     user.PwCost,
	}, nil
}

func randomKeyParams(email string) KeyParams {
	nonce, err := common.MakeRandHexString(32)
	if err != nil {
		nonce = ""
	}
	return KeyParams{
		Version:    "004",
		Identifier: email,
		PwNonce:    nonce,
	}
}

func (s *AuthService) checkServerPassword(stored, candidate []byte) bool {
	if len(stored) != len(candidate) {
		return false
	}
	return subtle.ConstantTimeCompare(stored, candidate) == 1
}

func (s *AuthService) SignIn(ctx context.Context, email string, serverPasswordCandidate []byte) (*models.User, *TokenPair, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, common.ErrorInternal
	}

	if !s.checkServerPassword(user.ServerPassword, serverPasswordCandidate) {
		return nil, nil, common.ErrorUnauthorized
	}

	tokens, err := s.generateTokenPair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// ChangePassword verifies the current server password, then rotates the
// account's stored KeyParams/ServerPassword atomically so a failure
// midway never leaves the two out of sync.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, currentServerPassword, newServerPassword []byte, newParams KeyParams) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}

		if !s.checkServerPassword(user.ServerPassword, currentServerPassword) {
			return common.ErrorUnauthorized
		}

		return repo.UpdatePassword(ctx, userID, newServerPassword, newParams.Version, newParams.PwNonce, newParams.PwSalt, newParams.PwCost)
	})
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := repo.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *AuthService) generateAccessToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *AuthService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *AuthService) generateTokenPair(ctx context.Context, userID string) (*TokenPair, error) {
	accessToken, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}

	refreshToken, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}

	refreshTokenRepo := s.repomanager.RefreshTokens(s.db)
	if err := refreshTokenRepo.Create(ctx, userID, refreshToken, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
