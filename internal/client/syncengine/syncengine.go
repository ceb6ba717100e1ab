// Package syncengine implements the spec §4.3 sync engine: a single
// queued state machine that reconciles the local Payload Manager master
// collection against a remote SyncTransport, encrypting outbound and
// decrypting inbound payloads through the protocol Service and resolving
// conflicts through the delta package.
//
// Grounded on gosn-v2's Sync/syncItems/processSyncOutput control flow
// (other_examples/jonhadfield-gosn-v2__sync.go) for the retry-with-backoff
// and pagination shape, restructured as an explicit single-goroutine state
// machine per spec §5 rather than gosn-v2's recursive retry-on-error
// closures — this engine never spawns a sync concurrently with another;
// overlapping callers are serialized by resolveOnNext/forceSpawnNew
// instead.
package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/lifecycle"
	"github.com/eidolon-labs/notesync/internal/client/manager"
	"github.com/eidolon-labs/notesync/internal/client/protocol"
	"github.com/eidolon-labs/notesync/internal/client/storage"
	"github.com/eidolon-labs/notesync/internal/client/transport"
	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Mode selects whether a sync round uploads local changes (spec §4.3).
type Mode string

const (
	ModeDefault Mode = "default"
	ModeInitial Mode = "initial"
)

// TimingStrategy controls how a Sync call behaves when a round is already
// in progress (spec §4.3 "Serialization").
type TimingStrategy string

const (
	// ResolveOnNext registers a resolver fired when the in-progress round
	// completes, without spawning a new round of its own.
	ResolveOnNext TimingStrategy = "resolve_on_next"
	// ForceSpawnNew enqueues a fresh round to run immediately after the
	// current one finishes, regardless of whether anything changed.
	ForceSpawnNew TimingStrategy = "force_spawn_new"
)

// Options are the inputs to a single Sync call (spec §4.3).
type Options struct {
	Mode           Mode
	Timing         TimingStrategy
	CheckIntegrity bool
}

// Engine is the sync state machine. One Engine serves one signed-in
// account; it is not safe for concurrent Sync calls from multiple
// goroutines racing each other — serialization is handled internally, but
// internally means "one goroutine at a time actually touches the network
// and master collection", not "thread-safe in the general sense" (spec
// §5's cooperative single-threaded model).
type Engine struct {
	log       logging.Logger
	transport transport.SyncTransport
	storage   *storage.Service
	protocol  *protocol.Service
	payloads  *manager.PayloadManager
	bus       *lifecycle.Bus
	now       func() time.Time

	maxDiscordance int

	mu                   sync.Mutex
	running              bool
	spawnQueued          bool
	spawnOpts            Options
	completedInitialSync bool
	discordanceCount     int
	lastPreSyncSaveDate  time.Time

	// sf coalesces concurrent ResolveOnNext callers onto a single
	// in-flight sync round rather than queuing each behind its own
	// channel (spec §4.3 "resolveOnNext registers a resolver fired when
	// the next completed sync finishes").
	sf singleflight.Group
}

// New constructs an Engine. now defaults to time.Now if nil.
func New(
	log logging.Logger,
	tr transport.SyncTransport,
	store *storage.Service,
	proto *protocol.Service,
	payloads *manager.PayloadManager,
	bus *lifecycle.Bus,
	now func() time.Time,
) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		log:            log,
		transport:      tr,
		storage:        store,
		protocol:       proto,
		payloads:       payloads,
		bus:            bus,
		now:            now,
		maxDiscordance: DefaultMaxDiscordance,
	}
}

// syncRoundKey is the singleflight key for "the currently running sync
// round" — a single Engine only ever has one round of any mode in flight,
// so a constant key is correct (cf. golang.org/x/sync/singleflight's own
// doc example of collapsing concurrent identical requests).
const syncRoundKey = "round"

// CompletedInitialSync reports whether an initial-mode sync has ever
// finished for this Engine (spec §4.3 "mark completedInitialSync true
// when initial mode finishes").
func (e *Engine) CompletedInitialSync() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completedInitialSync
}

// SetMaxDiscordance overrides DefaultMaxDiscordance, primarily for tests
// that want to exercise out-of-sync recovery without 5 full rounds.
func (e *Engine) SetMaxDiscordance(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxDiscordance = n
}

// Sync runs a sync round, or serializes against one already in progress
// per opts.Timing (spec §4.3 "Serialization"). ResolveOnNext callers that
// arrive while a round is in flight are coalesced via singleflight onto
// that same round and all observe its result, rather than each spawning
// their own; ForceSpawnNew instead queues a fresh round to start the
// instant the current one finishes.
func (e *Engine) Sync(ctx context.Context, opts Options) error {
	e.mu.Lock()
	if e.running && opts.Timing == ForceSpawnNew {
		e.spawnQueued = true
		e.spawnOpts = opts
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	_, err, _ := e.sf.Do(syncRoundKey, func() (interface{}, error) {
		e.mu.Lock()
		e.running = true
		e.mu.Unlock()

		runErr := e.runChain(ctx, opts)

		e.mu.Lock()
		e.running = false
		spawn := e.spawnQueued
		spawnOpts := e.spawnOpts
		e.spawnQueued = false
		e.mu.Unlock()

		if spawn {
			go func() { _ = e.Sync(context.WithoutCancel(ctx), spawnOpts) }()
		}
		return nil, runErr
	})
	return err
}

// runChain runs opts, then chains additional rounds per spec §4.3
// "Post-sync": an initial-mode sync that completes chains a default-mode
// sync, and any round that leaves dirty items behind (typically fresh
// conflict duplicates) chains another round.
func (e *Engine) runChain(ctx context.Context, opts Options) error {
	if err := e.runOnce(ctx, opts); err != nil {
		e.bus.Publish(lifecycle.FailedSync, map[string]interface{}{"error": err.Error()})
		return err
	}

	if opts.Mode == ModeInitial {
		e.mu.Lock()
		e.completedInitialSync = true
		e.mu.Unlock()
		return e.runChain(ctx, Options{Mode: ModeDefault, Timing: opts.Timing, CheckIntegrity: opts.CheckIntegrity})
	}

	if e.hasDirtyItems() {
		return e.runChain(ctx, Options{Mode: ModeDefault, Timing: opts.Timing, CheckIntegrity: opts.CheckIntegrity})
	}

	return nil
}

func (e *Engine) hasDirtyItems() bool {
	for _, p := range e.payloads.All() {
		if p.Dirty {
			return true
		}
	}
	return false
}

// runOnce executes exactly one pre-flight → request/response round,
// looping internally only to drain server-side pagination (spec §4.3
// "If paginationToken present → immediately loop another sync round").
func (e *Engine) runOnce(ctx context.Context, opts Options) error {
	e.bus.Publish(lifecycle.WillSync, nil)

	outbound, err := e.preflight(ctx, opts)
	if err != nil {
		return err
	}

	syncToken, _, err := e.storage.LastSyncToken(ctx)
	if err != nil {
		e.bus.Publish(lifecycle.LocalDatabaseReadError, map[string]interface{}{"error": err.Error()})
		return err
	}
	cursorToken, _, err := e.storage.PaginationToken(ctx)
	if err != nil {
		e.bus.Publish(lifecycle.LocalDatabaseReadError, map[string]interface{}{"error": err.Error()})
		return err
	}

	for {
		req := transport.SyncRequest{
			Items:            outbound,
			SyncToken:        syncToken,
			CursorToken:      cursorToken,
			ComputeIntegrity: opts.CheckIntegrity,
		}
		resp, err := e.transport.Sync(ctx, req)
		if err != nil {
			if errors.Is(err, common.ErrInvalidSyncSession) {
				e.bus.Publish(lifecycle.InvalidSyncSession, nil)
			}
			return err
		}

		touched, err := e.handleResponse(ctx, resp)
		if err != nil {
			return err
		}

		syncToken = resp.SyncToken
		cursorToken = resp.CursorToken
		// uploads only happen on the first iteration of the pagination
		// loop — everything after is download-only retrieval continuation.
		outbound = nil

		if cursorToken == "" {
			if touched >= lifecycle.MajorDataChangeThreshold {
				e.bus.Publish(lifecycle.MajorDataChange, map[string]interface{}{"count": touched})
			}
			if opts.Mode == ModeInitial {
				e.bus.Publish(lifecycle.CompletedFullSync, nil)
			} else {
				e.bus.Publish(lifecycle.CompletedIncrementalSync, nil)
			}
			return nil
		}
	}
}
