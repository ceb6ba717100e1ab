package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/eidolon-labs/notesync/internal/client/transport"
	"github.com/eidolon-labs/notesync/internal/dbx"
	"github.com/eidolon-labs/notesync/internal/logging"
	"github.com/eidolon-labs/notesync/internal/server/auth"
	"github.com/eidolon-labs/notesync/internal/server/config"
	"github.com/eidolon-labs/notesync/internal/server/models"
	"github.com/eidolon-labs/notesync/internal/server/repositories/payloads"
	"github.com/eidolon-labs/notesync/internal/server/repositories/refreshtokens"
	"github.com/eidolon-labs/notesync/internal/server/repositories/users"
	"github.com/eidolon-labs/notesync/internal/server/services"
)

type fakeUsersRepo struct {
	createOut     *models.User
	createErr     error
	getByEmailOut *models.User
	getByEmailErr error
	getByIDOut    *models.User
	getByIDErr    error
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
	return nil
}
func (f *fakeUsersRepo) IncrementCurrentVersion(ctx context.Context, userID string) (int64, error) {
	return 1, nil
}

type fakeRefreshRepo struct{}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID, token string, validity time.Duration) error {
	return nil
}
func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	return &models.RefreshToken{UserID: "user-1", Expires: time.Now().Add(time.Hour)}, nil
}
func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error { return nil }

type fakePayloadsRepo struct {
	selectOut []*models.Payload
}

func (f *fakePayloadsRepo) CreateOrUpdate(ctx context.Context, p *models.Payload) error { return nil }
func (f *fakePayloadsRepo) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Payload, error) {
	return f.selectOut, nil
}
func (f *fakePayloadsRepo) FindByUUID(ctx context.Context, uuid string) (*models.Payload, error) {
	return nil, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	p *fakePayloadsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository          { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return m.r
}
func (m *fakeRepoManager) Payloads(db dbx.DBTX) payloads.Repository { return m.p }

func newTestServer(t *testing.T, rm *fakeRepoManager) (*Server, []byte) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	secret := []byte("test-secret")
	cfg := &config.Config{
		SecretKey:                    string(secret),
		AccessTokenValidityDuration:  15 * time.Minute,
		RefreshTokenValidityDuration: 24 * time.Hour,
	}

	authService := services.NewAuthService(db, rm, cfg)
	syncService := services.NewSyncService(db, rm)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	return NewServer(logger, authService, syncService, secret), secret
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHandleRegister(t *testing.T) {
	rm := &fakeRepoManager{
		u: &fakeUsersRepo{
			createOut:     &models.User{ID: "user-1", ServerPassword: []byte("proof")},
			getByEmailOut: &models.User{ID: "user-1", ServerPassword: []byte("proof")},
		},
		r: &fakeRefreshRepo{},
	}
	srv, _ := newTestServer(t, rm)

	rec := doRequest(t, srv, http.MethodPost, "/v1/register", transport.RegisterRequest{
		Email:          "alice@example.com",
		ServerPassword: "proof",
		KeyParams:      transport.KeyParamsWire{Version: "004"},
	}, "")

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.RegisterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserUUID != "user-1" {
		t.Fatalf("unexpected user uuid: %s", resp.UserUUID)
	}
}

func TestHandleSignIn_WrongPassword(t *testing.T) {
	rm := &fakeRepoManager{
		u: &fakeUsersRepo{getByEmailOut: &models.User{ID: "user-1", ServerPassword: []byte("correct")}},
	}
	srv, _ := newTestServer(t, rm)

	rec := doRequest(t, srv, http.MethodPost, "/v1/auth/sign-in", transport.SignInRequest{
		Email:          "alice@example.com",
		ServerPassword: "wrong",
	}, "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleSync_RequiresAuth(t *testing.T) {
	rm := &fakeRepoManager{p: &fakePayloadsRepo{}}
	srv, _ := newTestServer(t, rm)

	rec := doRequest(t, srv, http.MethodPost, "/v1/sync", transport.SyncRequest{}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestHandleSync_WithValidToken(t *testing.T) {
	rm := &fakeRepoManager{
		u: &fakeUsersRepo{},
		p: &fakePayloadsRepo{selectOut: []*models.Payload{{UUID: "existing", Version: 3}}},
	}
	srv, secret := newTestServer(t, rm)

	token, err := auth.GenerateToken("user-1", secret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	rec := doRequest(t, srv, http.MethodPost, "/v1/sync", transport.SyncRequest{
		Items: []transport.Item{{UUID: "new-item", ContentType: "note"}},
	}, token)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.SyncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.SavedItems) != 1 || resp.SavedItems[0].UUID != "new-item" {
		t.Fatalf("unexpected saved items: %+v", resp.SavedItems)
	}
	if len(resp.RetrievedItems) != 1 || resp.RetrievedItems[0].UUID != "existing" {
		t.Fatalf("unexpected retrieved items: %+v", resp.RetrievedItems)
	}
}
