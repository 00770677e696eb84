// Package secret seals mailbox credentials before they reach storage.
package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealedPrefix marks values produced by Seal. It carries a version so the
// key derivation can change later.
const sealedPrefix = "v1:"

var (
	ErrKeyTooShort = errors.New("secret key must be at least 16 characters")
	ErrNotSealed   = errors.New("value is not a sealed secret")
	ErrCorrupted   = errors.New("sealed secret cannot be opened")
)

// Sealer encrypts short secrets with XChaCha20-Poly1305 under a key derived
// from the configured passphrase.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the encryption key from passphrase via HKDF-SHA256.
func NewSealer(passphrase string) (*Sealer, error) {
	if len(passphrase) < 16 {
		return nil, ErrKeyTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("assistant mailbox secret v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext. An empty plaintext seals to an empty string so
// "no secret" stays distinguishable in storage.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", ErrNotSealed
	}

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", ErrCorrupted
	}
	if len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrCorrupted
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCorrupted
	}
	return string(plaintext), nil
}
