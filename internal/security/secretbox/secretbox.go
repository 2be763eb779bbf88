// Package secretbox encrypts token material at rest with AES-256-GCM.
//
// The ciphertext format is base64(nonce)|base64(ciphertext). The key is
// injected at construction; nothing in this package reads process state, so a
// wrong or rotated key is observable in tests by just building two boxes.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nonceSizeGCM      = 12 // 96-bit GCM nonce
	requiredKeyLength = 32 // AES-256
	sep               = "|"
)

// ErrDecryptFailed is returned for any ciphertext this box cannot open:
// wrong key, tampered data, or structural corruption. Callers treat it as
// "stored credential cannot be trusted", never as a crash, and must never
// fall back to reading the ciphertext as plaintext.
var ErrDecryptFailed = errors.New("decryption failed")

// Box performs symmetric encryption with a single configured key.
type Box struct {
	aead cipher.AEAD
}

// New builds a Box from a raw 32-byte key.
func New(key []byte) (*Box, error) {
	if len(key) != requiredKeyLength {
		return nil, fmt.Errorf("secretbox: key must be %d bytes, got %d", requiredKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce)|base64(ciphertext).
func (b *Box) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt opens base64(nonce)|base64(ciphertext). Every failure mode maps to
// ErrDecryptFailed; the wrapped detail stays server-side.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, sep)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: bad format", ErrDecryptFailed)
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: decode nonce", ErrDecryptFailed)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext", ErrDecryptFailed)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("%w: bad nonce length %d", ErrDecryptFailed, len(nonce))
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: gcm auth", ErrDecryptFailed)
	}
	return string(pt), nil
}
