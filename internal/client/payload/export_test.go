package payload

import (
	"testing"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/crypto"
	"github.com/eidolon-labs/notesync/internal/client/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExportThenParseExport_RoundTrips(t *testing.T) {
	t.Parallel()
	kp := keys.KeyParams{
		Version:    crypto.Version004,
		Identifier: "a@b.com",
		PwNonce:    "nonce",
	}
	now := time.Unix(1700000000, 0).UTC()
	items := []Payload{
		NewBuilder().UUID("item-1").ContentType(ContentTypeNote).
			Content("ciphertext").EncItemKey("wrapped-key").ItemsKeyID("key-1").
			CreatedAt(now).UpdatedAt(now).Build().Encrypted(),
	}

	exp := BuildExport(items, kp)
	raw, err := MarshalExport(exp)
	require.NoError(t, err)

	got, gotKP, err := ParseExport(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "item-1", got[0].UUID)
	assert.Equal(t, "ciphertext", got[0].Content)
	assert.Equal(t, "wrapped-key", got[0].EncItemKey)
	assert.Equal(t, "key-1", got[0].ItemsKeyID)
	assert.Equal(t, VariantEncrypted, got[0].Variant)
	assert.True(t, got[0].CreatedAt.Equal(now))
	assert.True(t, got[0].UpdatedAt.Equal(now))

	assert.Equal(t, kp.Identifier, gotKP.Identifier)
	assert.Equal(t, kp.Version, gotKP.Version)
	assert.Equal(t, kp.PwNonce, gotKP.PwNonce)
}

func TestParseExport_PreservesDuplicateOf(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"version": "004",
		"items": [
			{"uuid": "dup", "content": "c", "content_type": "SN|Note",
			 "enc_item_key": "k", "created_at": "2023-11-14T22:13:20Z",
			 "updated_at": "2023-11-14T22:13:20Z", "duplicate_of": "orig"}
		],
		"keyParams": {"identifier": "a@b.com", "version": "004"}
	}`)

	items, _, err := ParseExport(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "orig", items[0].DuplicateOf)
}

func TestParseExport_RejectsMalformedTimestamp(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"version": "004",
		"items": [{"uuid": "x", "content_type": "SN|Note", "created_at": "not-a-time", "updated_at": "2023-11-14T22:13:20Z"}],
		"keyParams": {"identifier": "a@b.com", "version": "004"}
	}`)

	_, _, err := ParseExport(raw)
	assert.Error(t, err)
}
