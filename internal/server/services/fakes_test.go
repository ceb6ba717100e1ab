package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/eidolon-labs/notesync/internal/dbx"
	"github.com/eidolon-labs/notesync/internal/server/models"
	"github.com/eidolon-labs/notesync/internal/server/repositories/payloads"
	refreshtokensrepo "github.com/eidolon-labs/notesync/internal/server/repositories/refreshtokens"
	usersrepo "github.com/eidolon-labs/notesync/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type fakeUsersRepo struct {
	createOut *models.User
	createErr error

	getByEmailOut *models.User
	getByEmailErr error

	getByIDOut *models.User
	getByIDErr error

	updatePasswordErr error

	incrementOut int64
	incrementErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	return u, nil
}

func (f *fakeUsersRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getByEmailErr != nil {
		return nil, f.getByEmailErr
	}
	return f.getByEmailOut, nil
}

func (f *fakeUsersRepo) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	return f.getByIDOut, nil
}

func (f *fakeUsersRepo) UpdatePassword(ctx context.Context, userID string, newServerPassword []byte, keyParamsVersion, pwNonce, pwSalt string, pwCost int) error {
	return f.updatePasswordErr
}

func (f *fakeUsersRepo) IncrementCurrentVersion(ctx context.Context, userID string) (int64, error) {
	if f.incrementErr != nil {
		return 0, f.incrementErr
	}
	f.incrementOut++
	return f.incrementOut, nil
}

type fakeRefreshRepo struct {
	findOut *models.RefreshToken
	findErr error
	delErr  error
	createErr error
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID, token string, validity time.Duration) error {
	return f.createErr
}
func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}
func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error { return f.delErr }

type fakePayloadsRepo struct {
	selectOut []*models.Payload
	selectErr error

	createOrUpdateErr func(p *models.Payload) error
	created           []*models.Payload

	findByUUIDOut *models.Payload
	findByUUIDErr error
}

func (f *fakePayloadsRepo) CreateOrUpdate(ctx context.Context, p *models.Payload) error {
	if f.createOrUpdateErr != nil {
		if err := f.createOrUpdateErr(p); err != nil {
			return err
		}
	}
	f.created = append(f.created, p)
	return nil
}

func (f *fakePayloadsRepo) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Payload, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.selectOut, nil
}

func (f *fakePayloadsRepo) FindByUUID(ctx context.Context, uuid string) (*models.Payload, error) {
	if f.findByUUIDErr != nil {
		return nil, f.findByUUIDErr
	}
	return f.findByUUIDOut, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	p *fakePayloadsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository      { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository {
	return m.r
}
func (m *fakeRepoManager) Payloads(db dbx.DBTX) payloads.Repository { return m.p }
