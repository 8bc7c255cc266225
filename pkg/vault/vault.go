// Package vault encrypts and decrypts upstream source connection
// credentials with a single long-lived symmetric key, so plaintext
// credentials are never persisted or logged.
package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Vault seals and opens credential blobs with a single 32-byte key, loaded
// once at process start from configuration.
type Vault struct {
	aead chacha20poly1305.AEAD
}

// KeyFromHex decodes a 64-character hex string into the 32 raw key bytes
// chacha20poly1305 requires.
func KeyFromHex(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// New builds a Vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("constructing aead: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts plaintext into a self-contained ciphertext blob (nonce
// prefixed). The returned bytes are what gets persisted in the source
// registry's credential_blob column.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. Returns an error if the key has
// changed or the blob has been tampered with.
func (v *Vault) Open(blob []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("credential blob too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential blob: %w", err)
	}
	return plaintext, nil
}
