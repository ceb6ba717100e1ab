package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnencrypted_WrapUnwrapRoundTrips(t *testing.T) {
	t.Parallel()
	plaintext := `{"title":"n"}`
	wrapped := WrapUnencrypted(plaintext)

	assert.True(t, IsUnencrypted(wrapped))
	assert.Equal(t, plaintext, UnwrapUnencrypted(wrapped))
}

func TestUnencrypted_NonWrappedContentNotDetected(t *testing.T) {
	t.Parallel()
	assert.False(t, IsUnencrypted("004:nonce:ct:aad"))
}

func TestV004_EncryptDecryptRoundTrips(t *testing.T) {
	t.Parallel()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	plaintext := []byte(`{"title":"n","text":"hello"}`)

	ct, err := EncryptString004(plaintext, key, "item-uuid", "key-uuid")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ct, "004:"))

	got, err := DecryptString004(ct, key, "item-uuid", "key-uuid")
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestV004_WrongKeyFailsAuthentication(t *testing.T) {
	t.Parallel()
	key := make([]byte, 32)
	wrongKey := make([]byte, 32)
	wrongKey[0] = 0xFF
	ct, err := EncryptString004([]byte("secret"), key, "u", "k")
	require.NoError(t, err)

	_, err = DecryptString004(ct, wrongKey, "u", "k")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestV004_MismatchedUUIDFailsAADCheck(t *testing.T) {
	t.Parallel()
	key := make([]byte, 32)
	ct, err := EncryptString004([]byte("secret"), key, "u", "k")
	require.NoError(t, err)

	_, err = DecryptString004(ct, key, "different-uuid", "k")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestV004_MalformedFramingRejected(t *testing.T) {
	t.Parallel()
	_, err := DecryptString004("not-versioned-framing", make([]byte, 32), "u", "k")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestV003_EncryptDecryptRoundTrips(t *testing.T) {
	t.Parallel()
	encKey := make([]byte, 32)
	authKey := make([]byte, 32)
	for i := range authKey {
		authKey[i] = byte(i)
	}
	plaintext := []byte(`{"title":"n"}`)

	ct, err := EncryptString003(plaintext, encKey, authKey, "item-uuid")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ct, "003:"))

	got, err := DecryptString003(ct, encKey, authKey, "item-uuid")
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestV003_TamperedAuthHashRejected(t *testing.T) {
	t.Parallel()
	encKey := make([]byte, 32)
	authKey := make([]byte, 32)
	ct, err := EncryptString003([]byte("hello"), encKey, authKey, "u")
	require.NoError(t, err)

	parts := strings.Split(ct, ":")
	parts[1] = "0000000000000000000000000000000000000000000000000000000000000000"
	tampered := strings.Join(parts, ":")

	_, err = DecryptString003(tampered, encKey, authKey, "u")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestVersionOf_ExtractsThreeCharPrefix(t *testing.T) {
	t.Parallel()
	v, ok := VersionOf("004:abc:def:ghi")
	require.True(t, ok)
	assert.Equal(t, Version004, v)
}

func TestVersionOf_TooShortReportsFalse(t *testing.T) {
	t.Parallel()
	_, ok := VersionOf("00")
	assert.False(t, ok)
}

func TestCompare_OrdersNumericVersions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, -1, Compare(Version001, Version004))
	assert.Equal(t, 1, Compare(Version004, Version003))
	assert.Equal(t, 0, Compare(Version003, Version003))
}

func TestIsNewerThan(t *testing.T) {
	t.Parallel()
	assert.True(t, IsNewerThan(Version004, Version001))
	assert.False(t, IsNewerThan(Version001, Version004))
}

func TestSupportsPasswordDerivationCost_RejectsBelowMinimum(t *testing.T) {
	t.Parallel()
	assert.False(t, SupportsPasswordDerivationCost(Version003, 1000))
	assert.True(t, SupportsPasswordDerivationCost(Version003, 110000))
	assert.True(t, SupportsPasswordDerivationCost(Version004, 5))
}

func TestSupportsPasswordDerivationCost_UnknownVersionRejected(t *testing.T) {
	t.Parallel()
	assert.False(t, SupportsPasswordDerivationCost(Version("999"), 1000000))
}
