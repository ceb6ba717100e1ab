package syncengine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/lifecycle"
	"github.com/eidolon-labs/notesync/internal/client/manager"
	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/client/protocol"
	"github.com/eidolon-labs/notesync/internal/client/storage"
	"github.com/eidolon-labs/notesync/internal/client/transport"
	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/logging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeTransport is a scripted transport.SyncTransport: each call to Sync
// pops the next response (or the configured error) off responses, in
// order. Once responses is exhausted, it auto-acknowledges whatever
// items the request uploaded (echoing them back as SavedItems) rather
// than returning a bare empty response — a chained round with a freshly
// generated uuid (e.g. a conflict duplicate) can't be scripted in advance,
// and a round that uploads dirty items but never sees them acked would
// leave them dirty forever, chaining another round on every test run.
// It records every request it received for assertions.
type fakeTransport struct {
	mu        sync.Mutex
	responses []transport.SyncResponse
	errs      []error
	requests  []transport.SyncRequest
}

func (f *fakeTransport) Sync(_ context.Context, req transport.SyncRequest) (transport.SyncResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1

	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return transport.SyncResponse{}, err
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	if len(req.Items) > 0 {
		return transport.SyncResponse{SavedItems: req.Items}, nil
	}
	return transport.SyncResponse{}, nil
}

func (f *fakeTransport) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// wireNote builds an unencrypted-wrapper wire item, matching what the 000
// fallback path in preflight.go produces for a no-root-key engine, and
// what protocol.Service.Decrypt unwraps straight back on the way in.
func wireNote(t *testing.T, id, text string, updatedAt time.Time) transport.Item {
	t.Helper()
	plaintext := `{"title":"n","text":"` + text + `"}`
	return transport.Item{
		UUID:        id,
		ContentType: string(payload.ContentTypeNote),
		Content:     "000" + plaintext,
		UpdatedAt:   updatedAt,
		CreatedAt:   updatedAt,
	}
}

type harness struct {
	engine    *Engine
	transport *fakeTransport
	storage   *storage.Service
	payloads  *manager.PayloadManager
	bus       *lifecycle.Bus
	now       time.Time
}

func newHarness(t *testing.T, tr *fakeTransport) *harness {
	t.Helper()
	log := testLogger()
	store := storage.NewService(storage.NewInMemoryDevice())
	proto := protocol.NewService(log, nil)
	payloads := manager.NewPayloadManager(log)
	bus := lifecycle.NewBus(log)
	now := time.Unix(1700000000, 0)

	e := New(log, tr, store, proto, payloads, bus, func() time.Time { return now })
	return &harness{engine: e, transport: tr, storage: store, payloads: payloads, bus: bus, now: now}
}

func subscribeEvents(bus *lifecycle.Bus) *[]lifecycle.Event {
	events := &[]lifecycle.Event{}
	var mu sync.Mutex
	bus.Subscribe(func(p lifecycle.Payload) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, p.Event)
	})
	return events
}

func TestSync_DefaultModeDownloadsAndStoresRetrievedItems(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		responses: []transport.SyncResponse{
			{
				RetrievedItems: []transport.Item{wireNote(t, "n1", "hello", time.Unix(1700000000, 0))},
				SyncToken:      "tok-1",
			},
		},
	}
	h := newHarness(t, tr)
	events := subscribeEvents(h.bus)

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	p, ok := h.payloads.Find("n1")
	require.True(t, ok)
	assert.Equal(t, `{"title":"n","text":"hello"}`, p.Content)
	assert.False(t, p.Dirty)

	stored, err := h.storage.AllPayloads(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)

	assert.Contains(t, *events, lifecycle.WillSync)
	assert.Contains(t, *events, lifecycle.CompletedIncrementalSync)
}

func TestSync_InitialModeUploadsNothingThenChainsDefault(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		responses: []transport.SyncResponse{
			{RetrievedItems: []transport.Item{wireNote(t, "n1", "from-server", time.Unix(1700000000, 0))}},
			{}, // the chained default-mode round
		},
	}
	h := newHarness(t, tr)

	err := h.engine.Sync(context.Background(), Options{Mode: ModeInitial, Timing: ResolveOnNext})
	require.NoError(t, err)

	require.Equal(t, 2, tr.requestCount())
	assert.Empty(t, tr.requests[0].Items, "initial mode must upload nothing")
	assert.True(t, h.engine.CompletedInitialSync())
}

func TestSync_PaginationLoopsUntilCursorExhausted(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		responses: []transport.SyncResponse{
			{
				RetrievedItems: []transport.Item{wireNote(t, "n1", "page1", time.Unix(1700000000, 0))},
				CursorToken:    "cursor-2",
			},
			{
				RetrievedItems: []transport.Item{wireNote(t, "n2", "page2", time.Unix(1700000001, 0))},
			},
		},
	}
	h := newHarness(t, tr)

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	require.Equal(t, 2, tr.requestCount())
	assert.Equal(t, "cursor-2", tr.requests[1].CursorToken)

	_, ok1 := h.payloads.Find("n1")
	_, ok2 := h.payloads.Find("n2")
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestSync_DirtyLocalItemsEncryptedViaUnencryptedFallbackAndUploaded(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		responses: []transport.SyncResponse{{
			SavedItems: []transport.Item{{UUID: "local-1", UpdatedAt: time.Unix(1700000050, 0)}},
		}},
	}
	h := newHarness(t, tr)

	dirty := payload.NewBuilder().
		UUID("local-1").
		ContentType(payload.ContentTypeNote).
		Content(`{"title":"n","text":"local edit"}`).
		Build().
		MarkDirty(h.now.Add(-time.Minute))
	h.payloads.EmitPayloads([]payload.Payload{dirty}, manager.SourceLocalChanged)
	require.NoError(t, h.storage.SavePayload(context.Background(), dirty))

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	require.Len(t, tr.requests, 1)
	require.Len(t, tr.requests[0].Items, 1)
	uploaded := tr.requests[0].Items[0]
	assert.Equal(t, "local-1", uploaded.UUID)
	assert.Contains(t, uploaded.Content, "000", "no root key installed: falls back to the unencrypted wrapper")

	saved, ok := h.payloads.Find("local-1")
	require.True(t, ok)
	assert.False(t, saved.Dirty)
	assert.Equal(t, time.Unix(1700000050, 0), saved.UpdatedAt)
}

func TestSync_DirtyDeletedNeverUploadedIsDiscardedNotSynced(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{responses: []transport.SyncResponse{{}}}
	h := newHarness(t, tr)

	neverSynced := payload.NewBuilder().
		UUID("ghost").
		ContentType(payload.ContentTypeNote).
		Build().
		MarkDeleted(h.now)
	// UpdatedAt left zero: never acknowledged by the server.
	h.payloads.EmitPayloads([]payload.Payload{neverSynced}, manager.SourceLocalChanged)
	require.NoError(t, h.storage.SavePayload(context.Background(), neverSynced))

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	assert.Empty(t, tr.requests[0].Items, "a never-synced tombstone must never be uploaded")
	_, ok := h.payloads.Find("ghost")
	assert.False(t, ok)

	stored, err := h.storage.AllPayloads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSync_ConflictingRemoteContentDuplicatesLocalEdit(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		responses: []transport.SyncResponse{{
			RetrievedItems: []transport.Item{wireNote(t, "a", "remote-edit", time.Unix(1700000100, 0))},
		}},
	}
	h := newHarness(t, tr)

	local := payload.NewBuilder().
		UUID("a").
		ContentType(payload.ContentTypeNote).
		Content(`{"title":"n","text":"local-edit"}`).
		Build()
	h.payloads.EmitPayloads([]payload.Payload{local}, manager.SourceLocalRetrieved)
	require.NoError(t, h.storage.SavePayload(context.Background(), local))

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	// The never-dropped local edit keeps its own uuid; the conflicting
	// remote content surfaces as a fresh duplicate (spec §4.4's general
	// KeepLeftDuplicateRight case).
	winner, ok := h.payloads.Find("a")
	require.True(t, ok)
	assert.Contains(t, winner.Content, "local-edit")

	var dup payload.Payload
	found := false
	for _, p := range h.payloads.All() {
		if p.DuplicateOf == "a" {
			dup = p
			found = true
		}
	}
	require.True(t, found, "conflicting remote content must survive as a duplicate")
	assert.Contains(t, dup.Content, "remote-edit")
	assert.False(t, dup.Dirty, "the fresh duplicate is synced out by the chained round")
}

func TestSync_InvalidSyncSessionPublishesEventAndReturnsError(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{errs: []error{common.ErrInvalidSyncSession}}
	h := newHarness(t, tr)
	events := subscribeEvents(h.bus)

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})

	require.ErrorIs(t, err, common.ErrInvalidSyncSession)
	assert.Contains(t, *events, lifecycle.InvalidSyncSession)
	assert.Contains(t, *events, lifecycle.FailedSync)
}

func TestSync_MajorDataChangePublishedAboveThreshold(t *testing.T) {
	t.Parallel()
	items := make([]transport.Item, 0, lifecycle.MajorDataChangeThreshold)
	for i := 0; i < lifecycle.MajorDataChangeThreshold; i++ {
		items = append(items, wireNote(t, uuid.NewString(), "x", time.Unix(1700000000, 0)))
	}
	tr := &fakeTransport{responses: []transport.SyncResponse{{RetrievedItems: items}}}
	h := newHarness(t, tr)
	events := subscribeEvents(h.bus)

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	assert.Contains(t, *events, lifecycle.MajorDataChange)
}

func TestSync_BelowThresholdNeverPublishesMajorDataChange(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		responses: []transport.SyncResponse{{RetrievedItems: []transport.Item{wireNote(t, "n1", "x", time.Unix(1700000000, 0))}}},
	}
	h := newHarness(t, tr)
	events := subscribeEvents(h.bus)

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	assert.NotContains(t, *events, lifecycle.MajorDataChange)
}

func TestSync_SyncConflictServerItemSurfacesAsConflictVariant(t *testing.T) {
	t.Parallel()
	serverItem := wireNote(t, "a", "servers-version", time.Unix(1700000100, 0))
	unsavedItem := wireNote(t, "a", "rejected-local-edit", time.Unix(1700000050, 0))
	tr := &fakeTransport{
		responses: []transport.SyncResponse{{
			Conflicts: []transport.Conflict{{
				Type:        transport.ConflictSync,
				ServerItem:  &serverItem,
				UnsavedItem: &unsavedItem,
			}},
		}},
	}
	h := newHarness(t, tr)

	local := payload.NewBuilder().
		UUID("a").
		ContentType(payload.ContentTypeNote).
		Content(`{"title":"n","text":"rejected-local-edit"}`).
		Build().
		MarkDirty(h.now)
	h.payloads.EmitPayloads([]payload.Payload{local}, manager.SourceLocalChanged)
	require.NoError(t, h.storage.SavePayload(context.Background(), local))

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	// The server's version takes over "a" as a Conflict payload, and the
	// rejected local edit survives under a fresh-uuid duplicate, which the
	// chained round syncs out.
	server, ok := h.payloads.Find("a")
	require.True(t, ok)
	assert.Contains(t, server.Content, "servers-version")
	assert.Equal(t, payload.VariantConflict, server.Variant)

	var dup payload.Payload
	found := false
	for _, p := range h.payloads.All() {
		if p.DuplicateOf == "a" {
			dup = p
			found = true
		}
	}
	require.True(t, found, "rejected local edit must survive as a duplicate")
	assert.Contains(t, dup.Content, "rejected-local-edit")
	assert.False(t, dup.Dirty)

	stored, err := h.storage.AllPayloads(context.Background())
	require.NoError(t, err)
	for _, p := range stored {
		if p.UUID == "a" {
			assert.Contains(t, p.Content, "servers-version", "the rejected local edit must not linger at the original uuid in local storage")
		}
	}
}

func TestSync_UUIDConflictDuplicatesRejectedAttemptAndDiscardsOriginal(t *testing.T) {
	t.Parallel()
	unsavedItem := wireNote(t, "x", "collided-edit", time.Unix(1700000050, 0))
	tr := &fakeTransport{
		responses: []transport.SyncResponse{{
			Conflicts: []transport.Conflict{{
				Type:        transport.ConflictUUID,
				UnsavedItem: &unsavedItem,
			}},
		}},
	}
	h := newHarness(t, tr)

	local := payload.NewBuilder().
		UUID("x").
		ContentType(payload.ContentTypeNote).
		Content(`{"title":"n","text":"collided-edit"}`).
		Build().
		MarkDirty(h.now)
	h.payloads.EmitPayloads([]payload.Payload{local}, manager.SourceLocalChanged)
	require.NoError(t, h.storage.SavePayload(context.Background(), local))

	err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	_, stillThere := h.payloads.Find("x")
	assert.False(t, stillThere, "colliding uuid must be discarded so it is never resubmitted")

	var dup payload.Payload
	found := false
	for _, p := range h.payloads.All() {
		if p.DuplicateOf == "x" {
			dup = p
			found = true
		}
	}
	require.True(t, found, "the rejected attempt must survive under a fresh uuid")
	assert.Contains(t, dup.Content, "collided-edit")
	assert.False(t, dup.Dirty)

	// A second sync round must not resubmit "x" nor mint another
	// duplicate of it — the whole point of discarding the original.
	tr.responses = append(tr.responses, transport.SyncResponse{SavedItems: []transport.Item{{UUID: dup.UUID, UpdatedAt: h.now}}})
	err = h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})
	require.NoError(t, err)

	dupCount := 0
	for _, p := range h.payloads.All() {
		if p.DuplicateOf == "x" {
			dupCount++
		}
	}
	assert.Equal(t, 1, dupCount, "must not keep minting duplicates of a discarded uuid")
}

// failingSaveDevice wraps an InMemoryDevice but fails every payload save,
// letting tests drive the LocalDatabaseWriteError publish path without a
// real SQLite disk-full or permission failure.
type failingSaveDevice struct {
	*storage.InMemoryDevice
}

func (d failingSaveDevice) SaveRawDatabasePayload(context.Context, payload.Payload) error {
	return assertErr("disk full")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestSync_StorageWriteFailurePublishesLocalDatabaseWriteError(t *testing.T) {
	t.Parallel()
	log := testLogger()
	store := storage.NewService(failingSaveDevice{storage.NewInMemoryDevice()})
	proto := protocol.NewService(log, nil)
	payloads := manager.NewPayloadManager(log)
	bus := lifecycle.NewBus(log)
	events := subscribeEvents(bus)
	now := time.Unix(1700000000, 0)

	tr := &fakeTransport{
		responses: []transport.SyncResponse{{RetrievedItems: []transport.Item{wireNote(t, "n1", "x", now)}}},
	}
	e := New(log, tr, store, proto, payloads, bus, func() time.Time { return now })

	err := e.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext})

	assert.Error(t, err)
	assert.Contains(t, *events, lifecycle.LocalDatabaseWriteError)
}

// blockingTransport blocks every Sync call on a gate channel until the
// test closes it, so a coalescing test can guarantee every concurrent
// caller has had the chance to join the in-flight singleflight round
// before that round's one network call is allowed to return — a
// deterministic substitute for racing goroutine scheduling against a
// fixed response count.
type blockingTransport struct {
	gate  chan struct{}
	calls int32
}

func (b *blockingTransport) Sync(_ context.Context, _ transport.SyncRequest) (transport.SyncResponse, error) {
	atomic.AddInt32(&b.calls, 1)
	<-b.gate
	return transport.SyncResponse{}, nil
}

func TestSync_ResolveOnNextCoalescesConcurrentCallers(t *testing.T) {
	t.Parallel()
	log := testLogger()
	store := storage.NewService(storage.NewInMemoryDevice())
	proto := protocol.NewService(log, nil)
	payloads := manager.NewPayloadManager(log)
	bus := lifecycle.NewBus(log)
	now := time.Unix(1700000000, 0)

	tr := &blockingTransport{gate: make(chan struct{})}
	e := New(log, tr, store, proto, payloads, bus, func() time.Time { return now })

	const callers = 5
	var wg sync.WaitGroup
	var errCount int32
	started := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			if err := e.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext}); err != nil {
				atomic.AddInt32(&errCount, 1)
			}
		}()
	}

	for i := 0; i < callers; i++ {
		<-started
	}
	// Every caller has at least begun its Sync call; give the scheduler a
	// moment to land them all inside sf.Do (registration there is near-
	// instant next to the network call it blocks on) before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(tr.gate)

	wg.Wait()

	assert.Zero(t, errCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tr.calls), "concurrent ResolveOnNext callers must coalesce onto a single in-flight round")
}

func TestCheckIntegrity_ConsecutiveMismatchesTriggerRecovery(t *testing.T) {
	t.Parallel()
	serverItem := wireNote(t, "server-only", "authoritative", time.Unix(1700000500, 0))
	responses := []transport.SyncResponse{
		{IntegrityHash: "mismatch-1"},
		{IntegrityHash: "mismatch-2"},
		{IntegrityHash: "mismatch-3"},
		// round 4: resolveOutOfSync's downloadAll call.
		{RetrievedItems: []transport.Item{serverItem}},
		// round 5: the post-recovery confirmation sync; it carries no
		// integrity hash, so no comparison is made.
		{},
	}
	tr := &fakeTransport{responses: responses}
	h := newHarness(t, tr)
	h.engine.SetMaxDiscordance(3)
	events := subscribeEvents(h.bus)

	for i := 0; i < 3; i++ {
		err := h.engine.Sync(context.Background(), Options{Mode: ModeDefault, Timing: ResolveOnNext, CheckIntegrity: true})
		require.NoError(t, err)
	}

	assert.Contains(t, *events, lifecycle.EnteredOutOfSync)

	got, ok := h.payloads.Find("server-only")
	require.True(t, ok)
	assert.Contains(t, got.Content, "authoritative")
}

func TestCheckIntegrity_MatchingHashResetsCounterAndNeverRecovers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakeTransport{})

	for i := 0; i < 10; i++ {
		err := h.engine.checkIntegrity(context.Background(), computeIntegrityHash(h.payloads.All()))
		require.NoError(t, err)
	}

	assert.Equal(t, 0, h.engine.discordanceCount)
}
