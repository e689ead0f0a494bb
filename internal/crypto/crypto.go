// Package crypto seals captured browser state before it reaches the
// store. Cookie snapshots carry live login sessions, so deployments
// that persist them to disk can opt into AES-256-GCM at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrKeySize     = errors.New("encryption key must be 32 bytes")
	ErrEmptySecret = errors.New("encryption secret is empty")
	ErrCiphertext  = errors.New("malformed ciphertext")
)

// Cipher seals and opens strings with AES-256-GCM. The zero value is
// unusable; construct with New or NewFromBase64.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewFromBase64 builds a Cipher from a standard-base64 encoded 32-byte
// key, the form the key takes in the environment.
func NewFromBase64(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	return New(key)
}

// hkdf domain separation; changing either orphans existing ciphertext.
var (
	hkdfSalt = []byte("powerbot-state-encryption-v1")
	hkdfInfo = []byte("aes-256-gcm")
)

// NewFromSecret derives the key from an arbitrary secret with
// HKDF-SHA256, for deployments that configure a passphrase instead of
// minting an exact key.
func NewFromSecret(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), hkdfSalt, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return New(key)
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext || tag).
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Tampered or truncated input fails verification.
func (c *Cipher) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertext
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
