package keys

import (
	"testing"

	"github.com/eidolon-labs/notesync/internal/client/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_AddingDefaultDemotesPrevious(t *testing.T) {
	t.Parallel()
	r := NewRing()
	r.Add(ItemsKey{UUID: "k1", Version: crypto.Version004, Default: true})
	r.Add(ItemsKey{UUID: "k2", Version: crypto.Version004, Default: true})

	def, ok := r.Default()
	require.True(t, ok)
	assert.Equal(t, "k2", def.UUID)

	k1, ok := r.Find("k1")
	require.True(t, ok)
	assert.False(t, k1.Default, "adding a new default must demote the old one")
}

func TestRing_NonDefaultAddDoesNotDisturbExistingDefault(t *testing.T) {
	t.Parallel()
	r := NewRing()
	r.Add(ItemsKey{UUID: "k1", Default: true})
	r.Add(ItemsKey{UUID: "k2", Default: false})

	def, ok := r.Default()
	require.True(t, ok)
	assert.Equal(t, "k1", def.UUID)
}

func TestRing_DefaultEmptyWhenNoneSet(t *testing.T) {
	t.Parallel()
	r := NewRing()
	r.Add(ItemsKey{UUID: "k1"})

	_, ok := r.Default()
	assert.False(t, ok)
}

func TestRing_FindUnknownReportsFalse(t *testing.T) {
	t.Parallel()
	r := NewRing()
	_, ok := r.Find("missing")
	assert.False(t, ok)
}

func TestRing_AllReturnsEveryKey(t *testing.T) {
	t.Parallel()
	r := NewRing()
	r.Add(ItemsKey{UUID: "k1"})
	r.Add(ItemsKey{UUID: "k2"})

	all := r.All()
	assert.Len(t, all, 2)
}
