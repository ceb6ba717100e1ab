package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	v004ArgonMemoryKiB = 64 * 1024
	v004ArgonIterations = 5
	v004ArgonLanes      = 1
	v004KeyOutputBytes  = 64 // masterKey (32) || serverPassword (32)
)

// ErrMalformedCiphertext indicates a ciphertext string didn't match the
// version's expected colon-delimited framing.
var ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext framing")

// ErrAuthenticationFailed indicates the AEAD tag (or HMAC, for v003) did
// not verify — corrupt data or, more commonly, the wrong key.
var ErrAuthenticationFailed = errors.New("crypto: authentication failed")

// DeriveKeys004 runs the v004 KDF: Argon2id over password, salted with
// SHA-256(identifier:pwNonce), producing 64 bytes split into a 32-byte
// master key and a 32-byte server password (spec §4.1).
func DeriveKeys004(password, identifier, pwNonce string) (masterKey, serverPassword []byte, err error) {
	salt := sha256.Sum256([]byte(identifier + ":" + pwNonce))
	out := argon2.IDKey([]byte(password), salt[:], v004ArgonIterations, v004ArgonMemoryKiB, v004ArgonLanes, v004KeyOutputBytes)
	return out[:32], out[32:], nil
}

// aad004 builds the v004 additional authenticated data: "{uuid}:{itemsKeyID}:{version}"
// per spec §6. itemsKeyID is empty when encrypting an items key itself
// under the root key (there is no "items key of an items key").
func aad004(uuid, itemsKeyID string) []byte {
	return []byte(uuid + ":" + itemsKeyID + ":" + string(Version004))
}

// EncryptString004 encrypts plaintext under key (32 bytes) using
// XChaCha20-Poly1305 with a fresh random nonce, framing the result as
// "004:<nonce>:<ciphertext+tag>:<aad>" (all base64url, spec §6).
func EncryptString004(plaintext, key []byte, uuid, itemsKeyID string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("crypto: init xchacha20poly1305: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := randReader.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}
	aad := aad004(uuid, itemsKeyID)
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)

	return strings.Join([]string{
		string(Version004),
		base64.URLEncoding.EncodeToString(nonce),
		base64.URLEncoding.EncodeToString(ciphertext),
		base64.URLEncoding.EncodeToString(aad),
	}, ":"), nil
}

// DecryptString004 reverses EncryptString004, verifying the AAD embedded
// in the framing matches the caller-supplied uuid/itemsKeyID (a mismatch
// here indicates a payload that's been moved between items keys or
// tampered with) before attempting the AEAD open.
func DecryptString004(ciphertext string, key []byte, uuid, itemsKeyID string) ([]byte, error) {
	parts := strings.SplitN(ciphertext, ":", 4)
	if len(parts) != 4 || Version(parts[0]) != Version004 {
		return nil, ErrMalformedCiphertext
	}
	nonce, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrMalformedCiphertext, err)
	}
	ct, err := base64.URLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedCiphertext, err)
	}
	aad, err := base64.URLEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: aad: %v", ErrMalformedCiphertext, err)
	}
	expectedAAD := aad004(uuid, itemsKeyID)
	if string(aad) != string(expectedAAD) {
		return nil, ErrAuthenticationFailed
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: init xchacha20poly1305: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
