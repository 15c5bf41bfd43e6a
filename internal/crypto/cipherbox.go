// Package crypto provides the XChaCha20-Poly1305 primitive used to seal the
// secrets vault. Output framing is nonce + ciphertext + tag; the nonce is a
// fresh 24-byte CSPRNG value per call and is never reused for the same key.
package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length (256-bit).
const KeySize = chacha20poly1305.KeySize

// NonceSize is the XChaCha20-Poly1305 nonce length (192-bit).
const NonceSize = chacha20poly1305.NonceSizeX

// ErrAuthentication is returned when tag verification fails during Open.
// It signals tampering or a wrong key and must never be retried.
var ErrAuthentication = errors.New("crypto: message authentication failed")

// Seal encrypts plaintext with key and returns nonce + ciphertext + tag.
// aad is bound into the authentication tag but not encrypted.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, NonceSize+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open decrypts a blob produced by Seal. Returns ErrAuthentication when the
// tag does not verify (corrupted data, wrong key, or mismatched aad).
func Open(key, blob, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < NonceSize+aead.Overhead() {
		return nil, ErrAuthentication
	}

	nonce := blob[:NonceSize]
	plaintext, err := aead.Open(nil, nonce, blob[NonceSize:], aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
