package syncengine

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/stretchr/testify/assert"
)

func TestComputeIntegrityHash_MatchesManualDigest(t *testing.T) {
	t.Parallel()
	t1 := time.Unix(1700000000, 0)
	t2 := time.Unix(1700000100, 0)
	payloads := []payload.Payload{
		payload.NewBuilder().UUID("a").UpdatedAt(t1).Build(),
		payload.NewBuilder().UUID("b").UpdatedAt(t2).Build(),
	}

	got := computeIntegrityHash(payloads)

	sum := sha256.Sum256([]byte(strings.Join([]string{
		strconv.FormatInt(t2.UnixMicro(), 10),
		strconv.FormatInt(t1.UnixMicro(), 10),
	}, ",")))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestComputeIntegrityHash_ExcludesDeleted(t *testing.T) {
	t.Parallel()
	t1 := time.Unix(1700000000, 0)
	live := payload.NewBuilder().UUID("a").UpdatedAt(t1).Build()
	deleted := payload.NewBuilder().UUID("b").UpdatedAt(t1.Add(time.Hour)).Deleted(true).Build()

	withDeleted := computeIntegrityHash([]payload.Payload{live, deleted})
	withoutDeleted := computeIntegrityHash([]payload.Payload{live})

	assert.Equal(t, withoutDeleted, withDeleted)
}

func TestComputeIntegrityHash_OrderIndependentInput(t *testing.T) {
	t.Parallel()
	t1 := time.Unix(1700000000, 0)
	t2 := time.Unix(1700000100, 0)
	a := payload.NewBuilder().UUID("a").UpdatedAt(t1).Build()
	b := payload.NewBuilder().UUID("b").UpdatedAt(t2).Build()

	first := computeIntegrityHash([]payload.Payload{a, b})
	second := computeIntegrityHash([]payload.Payload{b, a})

	assert.Equal(t, first, second, "hash depends on sorted updated_at, not input order")
}

func TestComputeIntegrityHash_EmptyInput(t *testing.T) {
	t.Parallel()
	sum := sha256.Sum256([]byte(""))
	assert.Equal(t, hex.EncodeToString(sum[:]), computeIntegrityHash(nil))
}
