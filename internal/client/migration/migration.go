// Package migration implements the Migration Service (spec §4.6): user
// data semantics are versioned independently of local schema (the goose
// migrations under internal/client/storage/migrations version this
// device's SQLite tables; this package versions the meaning synced data
// carries across every device an account signs into). Migrations are
// plain values with a semver version and per-lifecycle-stage handlers
// registered at construction, run in ascending version order against a
// last-completed version stored under the snjs_version storage key.
//
// Grounded on the teacher's storage/migrations goose runner
// (_examples/dmitrijs2005-gophkeeper/internal/client/storage/migrations)
// for the shape of "compare a stored version marker against what's
// pending, run only what's newer" — generalized here from goose's
// up/down SQL files to in-process stage callbacks, since there is no SQL
// to run against synced JSON payloads.
package migration

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/eidolon-labs/notesync/internal/client/lifecycle"
	"github.com/eidolon-labs/notesync/internal/client/storage"
	"github.com/eidolon-labs/notesync/internal/logging"
)

// Stage names a point in the host application's launch sequence that
// migrations may need to react to (spec §4.6).
type Stage string

const (
	StagePreparingForLaunch Stage = "PreparingForLaunch"
	StageLoadedDatabase     Stage = "LoadedDatabase"
	StageStorageDecrypted   Stage = "StorageDecrypted"
	StageLaunched           Stage = "Launched"
	StageSignedIn           Stage = "SignedIn"
)

// StageHandler reacts to one lifecycle stage reaching a migration.
type StageHandler func(ctx context.Context) error

// Migration is a single versioned unit of data-semantics migration: a
// semver version plus whichever stage handlers it registers at
// construction (spec §4.6 "classes with a static version() and per-stage
// handlers registered during construction"). Unregistered stages are a
// no-op for that migration.
type Migration struct {
	version  string
	handlers map[Stage]StageHandler
}

// New constructs a Migration at the given semver version ("MAJOR.MINOR.PATCH").
func New(version string) *Migration {
	return &Migration{version: version, handlers: make(map[Stage]StageHandler)}
}

// On registers h to run when stage is reached, returning m for chaining.
func (m *Migration) On(stage Stage, h StageHandler) *Migration {
	m.handlers[stage] = h
	return m
}

func (m *Migration) Version() string { return m.version }

func (m *Migration) handle(ctx context.Context, stage Stage) error {
	h, ok := m.handlers[stage]
	if !ok {
		return nil
	}
	return h(ctx)
}

// BaseMigration always runs regardless of the stored version: its PreRun
// repairs the keychain and bootstraps a version marker for clients
// upgrading from a release that predates this versioning scheme at all
// (spec §4.6 step 1 "repair keychain / bootstrap version marker for
// legacy clients").
type BaseMigration struct {
	*Migration
	storage             *storage.Service
	needsKeychainRepair bool
}

// legacyKeychainProbeKey is the keychain entry this base migration checks
// for on PreRun; its absence on an account that already has a root key
// wrapper configured is the "needs repair" signal — a pre-versioning
// client never wrote it.
const legacyKeychainProbeKey = "notesync.keychain.v1"

func NewBaseMigration(store *storage.Service) *BaseMigration {
	return &BaseMigration{Migration: New("0.0.0"), storage: store}
}

// PreRun runs unconditionally, before the stored-version comparison that
// decides which other migrations are pending (spec §4.6 step 1).
func (b *BaseMigration) PreRun(ctx context.Context) error {
	_, ok, err := b.storage.Keychain(ctx, legacyKeychainProbeKey)
	if err != nil {
		return fmt.Errorf("migration: probe keychain: %w", err)
	}
	if !ok {
		b.needsKeychainRepair = true
		if err := b.storage.SetKeychain(ctx, legacyKeychainProbeKey, []byte("1")); err != nil {
			return fmt.Errorf("migration: repair keychain: %w", err)
		}
	}

	version, err := b.storage.SNJSVersion(ctx)
	if err != nil {
		return fmt.Errorf("migration: read stored version: %w", err)
	}
	if version == "" {
		// Legacy clients that predate snjs_version entirely bootstrap at
		// 0.0.0 so every registered migration is considered pending.
		if err := b.storage.SetSNJSVersion(ctx, "0.0.0"); err != nil {
			return fmt.Errorf("migration: bootstrap version marker: %w", err)
		}
	}
	return nil
}

// NeedsKeychainRepair reports whether PreRun found and repaired a legacy
// keychain, used by Runner.HasPendingMigrations. Runner.Forward clears it
// once the completed version has been recorded.
func (b *BaseMigration) NeedsKeychainRepair() bool { return b.needsKeychainRepair }

// Runner drives the full spec §4.6 startup sequence: base PreRun,
// resolving which registered migrations are pending against the stored
// version, forwarding lifecycle stages to each as the host progresses,
// and overwriting the stored version once the last pending migration has
// seen its final stage.
type Runner struct {
	log             logging.Logger
	storage         *storage.Service
	bus             *lifecycle.Bus
	base            *BaseMigration
	registered      []*Migration
	compiledVersion string

	pending  []*Migration
	finished bool
}

func NewRunner(log logging.Logger, store *storage.Service, compiledVersion string, bus *lifecycle.Bus, registered ...*Migration) *Runner {
	return &Runner{
		log:             log,
		storage:         store,
		bus:             bus,
		base:            NewBaseMigration(store),
		registered:      registered,
		compiledVersion: compiledVersion,
	}
}

// Prepare runs spec §4.6 steps 1-2: the base migration's PreRun, then
// collects every registered migration whose version is newer than the
// stored one, sorted ascending by semver so older data-semantics changes
// apply before newer ones that may depend on them.
func (r *Runner) Prepare(ctx context.Context) error {
	if err := r.base.PreRun(ctx); err != nil {
		return err
	}
	if r.base.NeedsKeychainRepair() {
		r.log.Warn(ctx, "legacy keychain repaired on launch")
	}

	stored, err := r.storage.SNJSVersion(ctx)
	if err != nil {
		return fmt.Errorf("migration: read stored version: %w", err)
	}

	var pending []*Migration
	for _, m := range r.registered {
		if compareSemver(m.version, stored) > 0 {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return compareSemver(pending[i].version, pending[j].version) < 0
	})
	r.pending = pending
	r.finished = len(pending) == 0

	if r.bus != nil {
		r.bus.Publish(lifecycle.MigrationsLoaded, map[string]interface{}{"pending": len(pending)})
	}
	return nil
}

// HasPendingMigrations reports spec §4.6's "hasPendingMigrations()":
// true iff required migrations remain or the keychain still needs
// repair.
func (r *Runner) HasPendingMigrations() bool {
	return len(r.pending) > 0 || r.base.NeedsKeychainRepair()
}

// Forward implements spec §4.6 step 4: as the host transitions through
// lifecycle stages, forward each to every active (pending) migration
// plus the base migration. Once the last pending migration — the one
// with the highest version, by construction the final element of
// r.pending — has handled StageSignedIn (the last stage in the spec's
// named sequence), the stored version is overwritten, implementing step
// 3's "register the final migration's done callback"; from then on no
// migrations and no keychain repair count as pending.
func (r *Runner) Forward(ctx context.Context, stage Stage) error {
	if err := r.base.handle(ctx, stage); err != nil {
		return fmt.Errorf("migration: base migration stage %s: %w", stage, err)
	}
	for _, m := range r.pending {
		if err := m.handle(ctx, stage); err != nil {
			return fmt.Errorf("migration: %s stage %s: %w", m.version, stage, err)
		}
	}

	if stage == StageSignedIn && !r.finished && len(r.pending) > 0 {
		if err := r.storage.SetSNJSVersion(ctx, r.compiledVersion); err != nil {
			return fmt.Errorf("migration: record completed version: %w", err)
		}
		r.finished = true
		r.log.Info(ctx, "data migrations complete", "version", r.compiledVersion, "count", len(r.pending))
		r.pending = nil
		r.base.needsKeychainRepair = false
	}
	return nil
}

// compareSemver orders two "MAJOR.MINOR.PATCH"-shaped version strings
// numerically, missing or non-numeric components treated as 0. No
// third-party semver library appears anywhere in the example pack, so
// this is the one piece of the migration service grounded on the
// standard library rather than an ecosystem dependency — see DESIGN.md.
func compareSemver(a, b string) int {
	pa, pb := parseSemver(a), parseSemver(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parseSemver(v string) [3]int {
	var out [3]int
	parts := strings.SplitN(v, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, _ := strconv.Atoi(parts[i])
		out[i] = n
	}
	return out
}
