package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	v003PBKDF2Iterations = 110000
	v003KeyOutputBytes   = 96 // masterKey(32) || serverPassword(32) || authKey(32)
)

// DeriveKeys003 runs the v003 KDF: PBKDF2-SHA512 over password salted with
// SHA-256(identifier:pwNonce) (same salt construction as v004; spec §4.1
// names this the "pw_nonce" input for v003+), producing 96 bytes split
// into master key, server password, and a data authentication key used for
// the HMAC in EncryptString003/DecryptString003.
func DeriveKeys003(password, identifier, pwNonce string) (masterKey, serverPassword, authKey []byte) {
	salt := sha256.Sum256([]byte(identifier + ":" + pwNonce))
	out := pbkdf2.Key([]byte(password), salt[:], v003PBKDF2Iterations, v003KeyOutputBytes, sha512.New)
	return out[:32], out[32:64], out[64:96]
}

// EncryptString003 implements the v003 Encrypt-then-MAC construction:
// AES-256-CBC over PKCS#7-padded plaintext, then HMAC-SHA256 over the
// framing fields, producing "003:<auth_hash>:<uuid>:<iv>:<ciphertext>"
// (spec §4.1). This is a from-scratch AEAD built out of two stdlib
// primitives rather than a library-shaped authenticated cipher — there is
// no off-the-shelf "AES-CBC+HMAC" package in the examples pack or the wider
// ecosystem that matches this exact legacy framing, so stdlib crypto/aes
// and crypto/hmac are the right tool (see DESIGN.md).
func EncryptString003(plaintext, encKey, authKey []byte, uuid string) (string, error) {
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", fmt.Errorf("crypto: init aes cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := randReader.Read(iv); err != nil {
		return "", fmt.Errorf("crypto: generate iv: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	ivB64 := base64.StdEncoding.EncodeToString(iv)
	ctB64 := base64.StdEncoding.EncodeToString(ciphertext)
	authHash := computeV003AuthHash(authKey, uuid, ivB64, ctB64)

	return strings.Join([]string{string(Version003), authHash, uuid, ivB64, ctB64}, ":"), nil
}

// DecryptString003 reverses EncryptString003, verifying the auth hash
// before attempting CBC decryption.
func DecryptString003(ciphertext string, encKey, authKey []byte, uuid string) ([]byte, error) {
	parts := strings.SplitN(ciphertext, ":", 5)
	if len(parts) != 5 || Version(parts[0]) != Version003 {
		return nil, ErrMalformedCiphertext
	}
	authHash, itemUUID, ivB64, ctB64 := parts[1], parts[2], parts[3], parts[4]
	if itemUUID != uuid {
		return nil, ErrAuthenticationFailed
	}
	expected := computeV003AuthHash(authKey, itemUUID, ivB64, ctB64)
	if !hmac.Equal([]byte(expected), []byte(authHash)) {
		return nil, ErrAuthenticationFailed
	}

	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrMalformedCiphertext, err)
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedCiphertext, err)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: init aes cipher: %w", err)
	}
	padded := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ct)

	return pkcs7Unpad(padded)
}

func computeV003AuthHash(authKey []byte, fields ...string) string {
	mac := hmac.New(sha256.New, authKey)
	mac.Write([]byte(strings.Join(fields, ":")))
	return hex.EncodeToString(mac.Sum(nil))
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrMalformedCiphertext
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, ErrAuthenticationFailed
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrAuthenticationFailed
		}
	}
	return data[:len(data)-padLen], nil
}
