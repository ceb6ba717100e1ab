package payloads

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock, db
}

func TestCreateOrUpdate_Success(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	q := `(?s)^\s*INSERT\s+INTO\s+payloads\s*\(uuid,\s*user_id,\s*content_type,\s*content,\s*enc_item_key,\s*items_key_id,\s*version,\s*deleted,\s*updated_at\)\s*VALUES.*ON\s+CONFLICT\s*\(uuid\).*$`
	now := time.Now()
	mock.ExpectExec(q).
		WithArgs("p-1", "user-1", "note", "ciphertext", "enckey", "ik-1", int64(1), false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateOrUpdate(context.Background(), &models.Payload{
		UUID: "p-1", UserID: "user-1", ContentType: "note", Content: "ciphertext",
		EncItemKey: "enckey", ItemsKeyID: "ik-1", Version: 1, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrUpdate_ForeignOwnerZeroRowsAffected(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	insertQ := `(?s)^\s*INSERT\s+INTO\s+payloads.*$`
	mock.ExpectExec(insertQ).WillReturnResult(sqlmock.NewResult(0, 0))

	findQ := `(?s)^\s*SELECT\s+uuid,\s*user_id,\s*content_type,\s*content,\s*enc_item_key,\s*items_key_id,\s*version,\s*deleted,\s*created_at,\s*updated_at\s*FROM\s+payloads\s*WHERE\s+uuid\s*=\s*\$1\s*$`
	rows := sqlmock.NewRows([]string{"uuid", "user_id", "content_type", "content", "enc_item_key", "items_key_id", "version", "deleted", "created_at", "updated_at"}).
		AddRow("contested", "someone-else", "note", "ct", "ek", "ik-1", int64(3), false, time.Now(), time.Now())
	mock.ExpectQuery(findQ).WithArgs("contested").WillReturnRows(rows)

	err := repo.CreateOrUpdate(context.Background(), &models.Payload{UUID: "contested", UserID: "user-1"})
	if !errors.Is(err, ErrForeignOwner) {
		t.Fatalf("expected ErrForeignOwner, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrUpdate_SameOwnerStaleUpdatedAtZeroRowsAffected(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	insertQ := `(?s)^\s*INSERT\s+INTO\s+payloads.*$`
	mock.ExpectExec(insertQ).WillReturnResult(sqlmock.NewResult(0, 0))

	findQ := `(?s)^\s*SELECT\s+uuid,\s*user_id,\s*content_type,\s*content,\s*enc_item_key,\s*items_key_id,\s*version,\s*deleted,\s*created_at,\s*updated_at\s*FROM\s+payloads\s*WHERE\s+uuid\s*=\s*\$1\s*$`
	rows := sqlmock.NewRows([]string{"uuid", "user_id", "content_type", "content", "enc_item_key", "items_key_id", "version", "deleted", "created_at", "updated_at"}).
		AddRow("p-1", "user-1", "note", "ct", "ek", "ik-1", int64(9), false, time.Now(), time.Now())
	mock.ExpectQuery(findQ).WithArgs("p-1").WillReturnRows(rows)

	err := repo.CreateOrUpdate(context.Background(), &models.Payload{UUID: "p-1", UserID: "user-1"})
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrUpdate_ZeroRowsAffectedButRowGone(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	insertQ := `(?s)^\s*INSERT\s+INTO\s+payloads.*$`
	mock.ExpectExec(insertQ).WillReturnResult(sqlmock.NewResult(0, 0))

	findQ := `(?s)^\s*SELECT\s+uuid,\s*user_id,\s*content_type,\s*content,\s*enc_item_key,\s*items_key_id,\s*version,\s*deleted,\s*created_at,\s*updated_at\s*FROM\s+payloads\s*WHERE\s+uuid\s*=\s*\$1\s*$`
	mock.ExpectQuery(findQ).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	err := repo.CreateOrUpdate(context.Background(), &models.Payload{UUID: "ghost", UserID: "user-1"})
	if !errors.Is(err, ErrForeignOwner) {
		t.Fatalf("expected ErrForeignOwner, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrUpdate_DBError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	q := `(?s)^\s*INSERT\s+INTO\s+payloads.*$`
	mock.ExpectExec(q).WillReturnError(errors.New("db down"))

	err := repo.CreateOrUpdate(context.Background(), &models.Payload{UUID: "p-1", UserID: "user-1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestSelectUpdated_Success(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	q := `(?s)^\s*SELECT\s+uuid,\s*user_id,\s*content_type,\s*content,\s*enc_item_key,\s*items_key_id,\s*version,\s*deleted,\s*created_at,\s*updated_at\s*FROM\s+payloads\s*WHERE\s+user_id\s*=\s*\$1\s+AND\s+version\s*>\s*\$2\s*ORDER\s+BY\s+version\s+ASC\s*$`

	now := time.Now()
	rows := sqlmock.NewRows([]string{"uuid", "user_id", "content_type", "content", "enc_item_key", "items_key_id", "version", "deleted", "created_at", "updated_at"}).
		AddRow("p-1", "user-1", "note", "ct", "ek", "ik-1", int64(5), false, now, now).
		AddRow("p-2", "user-1", "note", "ct2", "ek2", "ik-1", int64(6), false, now, now)
	mock.ExpectQuery(q).WithArgs("user-1", int64(0)).WillReturnRows(rows)

	got, err := repo.SelectUpdated(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("SelectUpdated error: %v", err)
	}
	if len(got) != 2 || got[1].UUID != "p-2" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestSelectUpdated_DBError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	q := `(?s)^\s*SELECT\s+uuid.*FROM\s+payloads.*$`
	mock.ExpectQuery(q).WillReturnError(errors.New("db err"))

	_, err := repo.SelectUpdated(context.Background(), "user-1", 0)
	if err == nil || !regexp.MustCompile(`failed to select payloads: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByUUID_NotFound(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	q := `(?s)^\s*SELECT\s+uuid,\s*user_id,\s*content_type,\s*content,\s*enc_item_key,\s*items_key_id,\s*version,\s*deleted,\s*created_at,\s*updated_at\s*FROM\s+payloads\s*WHERE\s+uuid\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUUID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFindByUUID_Found(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	q := `(?s)^\s*SELECT\s+uuid,\s*user_id,\s*content_type,\s*content,\s*enc_item_key,\s*items_key_id,\s*version,\s*deleted,\s*created_at,\s*updated_at\s*FROM\s+payloads\s*WHERE\s+uuid\s*=\s*\$1\s*$`

	now := time.Now()
	rows := sqlmock.NewRows([]string{"uuid", "user_id", "content_type", "content", "enc_item_key", "items_key_id", "version", "deleted", "created_at", "updated_at"}).
		AddRow("p-1", "someone-else", "note", "ct", "ek", "ik-1", int64(9), false, now, now)
	mock.ExpectQuery(q).WithArgs("p-1").WillReturnRows(rows)

	got, err := repo.FindByUUID(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("FindByUUID error: %v", err)
	}
	if got.UserID != "someone-else" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}
