package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eidolon-labs/notesync/internal/dbx"
	"github.com/eidolon-labs/notesync/internal/server/models"
	"github.com/eidolon-labs/notesync/internal/server/repositories/payloads"
	"github.com/eidolon-labs/notesync/internal/server/repositories/repomanager"
)

// ConflictType mirrors transport.ConflictType server-side, kept as its
// own type so this package doesn't need to import the client transport
// package just for two string constants.
type ConflictType string

const (
	ConflictSync ConflictType = "sync_conflict"
	ConflictUUID ConflictType = "uuid_conflict"
)

type Conflict struct {
	Type        ConflictType
	ServerItem  *models.Payload
	UnsavedItem *models.Payload
}

// SyncService implements the reference server's half of spec §6/§14:
// intentionally dumb last-write-wins persistence plus conflict
// classification, since real reconciliation is a client-side concern
// (spec §1 non-goal: "server-side conflict resolution"). Grounded on the
// teacher's EntryService.Sync, generalized from a fixed vault-entry shape
// to the opaque Payload wire shape and extended with uuid_conflict
// detection the teacher's single-tenant entries model never needed.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager) *SyncService {
	return &SyncService{db: db, repomanager: m}
}

// Sync persists pendingItems for userID, classifies any that couldn't be
// written as conflicts, and returns everything server-side newer than
// minVersion so the caller can fold it into its retrieved set.
//
// A payload whose uuid already belongs to another account is reported as
// a uuid_conflict and left untouched — the server never resolves this,
// it just tells the client so item-layer re-keying (spec §9) can kick in.
// A payload whose uuid belongs to the same account but whose base
// updated_at has already been superseded by another device's write is
// reported as a sync_conflict and likewise left untouched. Anything else
// is written unconditionally: the server does no merging of its own, it
// is last-write-wins for whichever write actually lands.
func (s *SyncService) Sync(ctx context.Context, userID string, pendingItems []*models.Payload, minVersion int64) (saved []*models.Payload, retrieved []*models.Payload, conflicts []Conflict, maxVersion int64, err error) {
	payloadRepo := s.repomanager.Payloads(s.db)

	retrieved, err = payloadRepo.SelectUpdated(ctx, userID, minVersion)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("sync: select updated: %w", err)
	}

	txErr := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txUserRepo := s.repomanager.Users(tx)
		txPayloadRepo := s.repomanager.Payloads(tx)

		for _, p := range pendingItems {
			version, vErr := txUserRepo.IncrementCurrentVersion(ctx, userID)
			if vErr != nil {
				return vErr
			}
			p.UserID = userID
			p.Version = version
			maxVersion = version

			if cErr := txPayloadRepo.CreateOrUpdate(ctx, p); cErr != nil {
				switch {
				case errors.Is(cErr, payloads.ErrForeignOwner):
					existing, findErr := txPayloadRepo.FindByUUID(ctx, p.UUID)
					if findErr != nil {
						return findErr
					}
					conflicts = append(conflicts, Conflict{Type: ConflictUUID, ServerItem: existing, UnsavedItem: p})
					continue
				case errors.Is(cErr, payloads.ErrStaleWrite):
					existing, findErr := txPayloadRepo.FindByUUID(ctx, p.UUID)
					if findErr != nil {
						return findErr
					}
					conflicts = append(conflicts, Conflict{Type: ConflictSync, ServerItem: existing, UnsavedItem: p})
					continue
				default:
					return cErr
				}
			}
			saved = append(saved, p)
		}
		return nil
	})
	if txErr != nil {
		return nil, nil, nil, 0, fmt.Errorf("sync: %w", txErr)
	}

	return saved, retrieved, conflicts, maxVersion, nil
}
