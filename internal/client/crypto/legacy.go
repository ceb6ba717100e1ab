package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Legacy KDF costs are deliberately weak (spec §4.1: "legacy variants with
// weaker KDF parameters"); this library never encrypts with them, only
// decrypts, so a sign-in against a v001/v002 account can still succeed
// before the host surfaces an "outdated protocol" warning per spec.
const (
	v002PBKDF2Iterations = 3000
	v001PBKDF2Iterations = 3000
	legacyKeyOutputBytes = 32
)

// DeriveKey002 derives the single legacy master key for v002: PBKDF2-SHA256
// over password, salted with SHA-256(identifier:pwSalt) (v002 embeds a
// random pw_salt in key params rather than deriving one from a nonce).
func DeriveKey002(password, identifier, pwSalt string) []byte {
	salt := sha256.Sum256([]byte(identifier + ":" + pwSalt))
	return pbkdf2.Key([]byte(password), salt[:], v002PBKDF2Iterations, legacyKeyOutputBytes, sha256.New)
}

// DeriveKey001 derives the v001 master key identically to v002 in KDF
// shape; v001's distinguishing weakness is unauthenticated encryption
// (no HMAC), not its key derivation.
func DeriveKey001(password, identifier, pwSalt string) []byte {
	salt := sha256.Sum256([]byte(identifier + ":" + pwSalt))
	return pbkdf2.Key([]byte(password), salt[:], v001PBKDF2Iterations, legacyKeyOutputBytes, sha256.New)
}

// DecryptString002 reverses a v002 ciphertext framed as
// "002:<uuid>:<iv>:<ciphertext>", AES-256-CBC with no authentication tag.
// Decrypt-only: this library never writes v002 ciphertext.
func DecryptString002(ciphertext string, key []byte, uuid string) ([]byte, error) {
	return decryptLegacyCBC(ciphertext, Version002, key, uuid)
}

// DecryptString001 reverses a v001 ciphertext, same unauthenticated
// AES-256-CBC framing as v002.
func DecryptString001(ciphertext string, key []byte, uuid string) ([]byte, error) {
	return decryptLegacyCBC(ciphertext, Version001, key, uuid)
}

func decryptLegacyCBC(ciphertext string, version Version, key []byte, uuid string) ([]byte, error) {
	parts := strings.SplitN(ciphertext, ":", 4)
	if len(parts) != 4 || Version(parts[0]) != version {
		return nil, ErrMalformedCiphertext
	}
	if parts[1] != uuid {
		return nil, ErrAuthenticationFailed
	}
	iv, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrMalformedCiphertext, err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedCiphertext, err)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: init aes cipher: %w", err)
	}
	padded := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ct)

	return pkcs7Unpad(padded)
}
