package syncengine

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/eidolon-labs/notesync/internal/client/payload"
)

// DefaultMaxDiscordance is the number of consecutive integrity mismatches
// tolerated before the engine declares itself out-of-sync (spec §4.3:
// "maxDiscordance (default 5)").
const DefaultMaxDiscordance = 5

// computeIntegrityHash reproduces the server's integrity digest: SHA-256 of
// the comma-joined updated_at microsecond timestamps of every non-deleted
// item, sorted by updated_at descending (spec §4.3).
func computeIntegrityHash(payloads []payload.Payload) string {
	live := make([]payload.Payload, 0, len(payloads))
	for _, p := range payloads {
		if !p.Deleted {
			live = append(live, p)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].UpdatedAt.After(live[j].UpdatedAt)
	})

	parts := make([]string, len(live))
	for i, p := range live {
		parts[i] = strconv.FormatInt(p.UpdatedAt.UnixMicro(), 10)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}
