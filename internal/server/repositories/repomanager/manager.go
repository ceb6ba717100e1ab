package repomanager

import (
	"context"
	"database/sql"

	"github.com/eidolon-labs/notesync/internal/dbx"
	"github.com/eidolon-labs/notesync/internal/server/repositories/payloads"
	"github.com/eidolon-labs/notesync/internal/server/repositories/refreshtokens"
	"github.com/eidolon-labs/notesync/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Payloads(db dbx.DBTX) payloads.Repository
}
