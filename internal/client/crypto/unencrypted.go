package crypto

import "strings"

// unencryptedPrefix is the spec §4.1 "000" wrapper: a content string whose
// first three characters are "000" carries its JSON content verbatim
// after that prefix, for intents that explicitly opt out of encryption
// (MFA secret at setup, decrypted local backups).
const unencryptedPrefix = "000"

// IsUnencrypted reports whether content uses the 000 wrapper.
func IsUnencrypted(content string) bool {
	return strings.HasPrefix(content, unencryptedPrefix)
}

// WrapUnencrypted frames plaintext JSON content with the 000 prefix.
func WrapUnencrypted(plaintextJSON string) string {
	return unencryptedPrefix + plaintextJSON
}

// UnwrapUnencrypted strips the 000 prefix, always succeeding per spec §4.1
// ("decrypting a 000 payload is always successful") and §8's testable
// property for 000 round-trips.
func UnwrapUnencrypted(content string) string {
	return strings.TrimPrefix(content, unencryptedPrefix)
}
