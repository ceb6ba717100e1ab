package storage

import (
	"context"
	"testing"

	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(NewInMemoryDevice())
}

func TestSNJSVersion_RoundTrips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService()

	require.NoError(t, s.SetSNJSVersion(ctx, "004"))
	got, err := s.SNJSVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "004", got)
}

func TestLastSyncToken_RoundTrips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService()

	_, ok, err := s.LastSyncToken(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetLastSyncToken(ctx, "tok-1"))
	got, ok, err := s.LastSyncToken(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", got)
}

func TestPaginationToken_EmptyClearsRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService()

	require.NoError(t, s.SetPaginationToken(ctx, "cursor-1"))
	_, ok, err := s.PaginationToken(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.SetPaginationToken(ctx, ""))
	_, ok, err = s.PaginationToken(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserAndSession_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService()

	require.NoError(t, s.SetUser(ctx, User{UUID: "u1", Email: "a@b.com"}))
	u, ok, err := s.User(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a@b.com", u.Email)

	require.NoError(t, s.SetSession(ctx, Session{AccessToken: "tok"}))
	sess, ok, err := s.Session(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok", sess.AccessToken)

	require.NoError(t, s.ClearSession(ctx))
	_, ok, err = s.Session(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSavePayloads_UpsertsAndAllPayloadsReturnsThem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService()

	p1 := payload.NewBuilder().UUID("a").Content("1").Build()
	p2 := payload.NewBuilder().UUID("b").Content("1").Build()
	require.NoError(t, s.SavePayloads(ctx, []payload.Payload{p1, p2}))

	all, err := s.AllPayloads(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	updated := payload.NewBuilder().UUID("a").Content("2").Build()
	require.NoError(t, s.SavePayload(ctx, updated))
	all, err = s.AllPayloads(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestRemovePayload_DeletesOutright(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService()
	require.NoError(t, s.SavePayload(ctx, payload.NewBuilder().UUID("a").Build()))

	require.NoError(t, s.RemovePayload(ctx, "a"))

	all, err := s.AllPayloads(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReplaceAllPayloads_RemovesAnythingNotInReplacementSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService()
	require.NoError(t, s.SavePayloads(ctx, []payload.Payload{
		payload.NewBuilder().UUID("a").Build(),
		payload.NewBuilder().UUID("b").Build(),
	}))

	replacement := []payload.Payload{payload.NewBuilder().UUID("a").Content("fresh").Build()}
	require.NoError(t, s.ReplaceAllPayloads(ctx, replacement))

	all, err := s.AllPayloads(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].UUID)
	assert.Equal(t, "fresh", all[0].Content)
}

func TestKeyRecoveryUndecryptableItems_RoundTrips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService()

	empty, err := s.KeyRecoveryUndecryptableItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	items := map[string]payload.Payload{"a": payload.NewBuilder().UUID("a").Build()}
	require.NoError(t, s.SetKeyRecoveryUndecryptableItems(ctx, items))

	got, err := s.KeyRecoveryUndecryptableItems(ctx)
	require.NoError(t, err)
	require.Contains(t, got, "a")
}
