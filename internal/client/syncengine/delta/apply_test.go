package delta

import (
	"encoding/json"
	"testing"

	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_NewUUIDInserted(t *testing.T) {
	t.Parallel()
	base := payload.NewCollection()
	incoming := notePayload(t, "new", "hello")

	result := Apply(base, []payload.Payload{incoming})

	got, ok := result.Resulting.Find("new")
	require.True(t, ok)
	assert.Equal(t, incoming, got)
	assert.Empty(t, result.Duplicates)
}

func TestApply_KeepRightOnDeleted(t *testing.T) {
	t.Parallel()
	local := notePayload(t, "a", "local")
	base := payload.NewCollectionFrom([]payload.Payload{local})
	remote := notePayload(t, "a", "remote")
	remote.Deleted = true

	result := Apply(base, []payload.Payload{remote})

	got, ok := result.Resulting.Find("a")
	require.True(t, ok)
	assert.True(t, got.Deleted)
	assert.Empty(t, result.Duplicates)
}

func TestApply_DuplicatesOnGenuineConflict(t *testing.T) {
	t.Parallel()
	local := notePayload(t, "a", "local-edit")
	base := payload.NewCollectionFrom([]payload.Payload{local})
	remote := notePayload(t, "a", "remote-edit")

	result := Apply(base, []payload.Payload{remote})

	require.Len(t, result.Duplicates, 1)
	dup := result.Duplicates[0]
	assert.Equal(t, "a", dup.DuplicateOf)
	assert.NotEqual(t, "a", dup.UUID)
	assert.True(t, dup.Dirty)

	// The original uuid keeps local's content: a never-dropped local edit
	// (spec §4.4's general KeepLeftDuplicateRight case) wins its own slot,
	// and the conflicting remote content is what gets duplicated out.
	winner, ok := result.Resulting.Find("a")
	require.True(t, ok)
	assert.Equal(t, local.Content, winner.Content)
	assert.Equal(t, `{"conflict_of":"a","text":"remote-edit","title":"n"}`, dup.Content)

	// The duplicate itself is also reachable by its new uuid.
	stored, ok := result.Resulting.Find(dup.UUID)
	require.True(t, ok)
	assert.Equal(t, dup.UUID, stored.UUID)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(dup.Content), &m))
	assert.Equal(t, "a", m["conflict_of"])
}

func TestApply_RemoteErroredDuplicatesLocal(t *testing.T) {
	t.Parallel()
	local := notePayload(t, "a", "local-edit")
	base := payload.NewCollectionFrom([]payload.Payload{local})
	remote := notePayload(t, "a", "remote-edit")
	remote.ErrorDecrypting = true

	result := Apply(base, []payload.Payload{remote})

	require.Len(t, result.Duplicates, 1)
	dup := result.Duplicates[0]
	assert.Equal(t, "a", dup.DuplicateOf)

	// The errored remote placeholder takes the original uuid, so key
	// recovery can still find and retry it...
	winner, ok := result.Resulting.Find("a")
	require.True(t, ok)
	assert.True(t, winner.ErrorDecrypting)

	// ...and local's good edit survives under the duplicate's uuid.
	stored, ok := result.Resulting.Find(dup.UUID)
	require.True(t, ok)
	assert.Equal(t, `{"conflict_of":"a","text":"local-edit","title":"n"}`, stored.Content)
}

func TestApply_TagMergeRefsUnionsReferencesDeterministically(t *testing.T) {
	t.Parallel()
	local := payload.NewBuilder().UUID("a").ContentType(payload.ContentTypeTag).
		Content(`{"title":"t","references":[{"uuid":"n1","content_type":"Note"}]}`).Build()
	base := payload.NewCollectionFrom([]payload.Payload{local})
	remote := payload.NewBuilder().UUID("a").ContentType(payload.ContentTypeTag).
		Content(`{"title":"t","references":[{"uuid":"n1","content_type":"Note"},{"uuid":"n2","content_type":"Note"}]}`).Build()

	result := Apply(base, []payload.Payload{remote})

	merged, ok := result.Resulting.Find("a")
	require.True(t, ok)
	assert.Empty(t, result.Duplicates)
	assert.True(t, merged.Dirty)

	var content struct {
		References []struct {
			UUID string `json:"uuid"`
		} `json:"references"`
	}
	require.NoError(t, json.Unmarshal([]byte(merged.Content), &content))
	require.Len(t, content.References, 2)
	assert.Equal(t, "n1", content.References[0].UUID)
	assert.Equal(t, "n2", content.References[1].UUID)
}

func TestApply_MalformedTagFallsBackToDuplication(t *testing.T) {
	t.Parallel()
	local := payload.NewBuilder().UUID("a").ContentType(payload.ContentTypeTag).Content("not json").Build()
	base := payload.NewCollectionFrom([]payload.Payload{local})
	remote := payload.NewBuilder().UUID("a").ContentType(payload.ContentTypeTag).
		Content(`{"title":"t","references":[]}`).Build()

	result := Apply(base, []payload.Payload{remote})

	require.Len(t, result.Duplicates, 1)
	winner, ok := result.Resulting.Find("a")
	require.True(t, ok)
	assert.Equal(t, local.Content, winner.Content, "unparseable local content is never silently dropped")
	assert.Equal(t, `{"conflict_of":"a","references":[],"title":"t"}`, result.Duplicates[0].Content)
}

func TestApply_UnrelatedBasePayloadUntouched(t *testing.T) {
	t.Parallel()
	untouched := notePayload(t, "other", "stays")
	base := payload.NewCollectionFrom([]payload.Payload{untouched})

	result := Apply(base, nil)

	got, ok := result.Resulting.Find("other")
	require.True(t, ok)
	assert.Equal(t, untouched, got)
}
