package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Sealing errors.
var (
	ErrPassphraseTooShort = errors.New("storage: passphrase too short (minimum 8 characters)")
	ErrUnsealFailed       = errors.New("storage: unseal failed - wrong passphrase or corrupted value")
)

const (
	// MinPassphraseLength is the minimum accepted passphrase length.
	MinPassphraseLength = 8

	// SaltKey is the reserved key holding the base64 KDF salt.
	SaltKey = "__dinegate.salt"

	saltLength = 16

	// Argon2id parameters for the master key.
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32

	hkdfInfo = "dinegate local store v1"
)

// Sealed encrypts values with XChaCha20-Poly1305 before handing them to
// an inner LocalStore. The key name is bound as additional data, so a
// sealed value cannot be replayed under another key.
type Sealed struct {
	inner LocalStore
	aead  cipher.AEAD
}

// NewSealed wraps inner. The salt is read from inner, or generated and
// stored there on first use.
func NewSealed(ctx context.Context, inner LocalStore, passphrase []byte) (*Sealed, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooShort
	}

	salt, err := loadOrCreateSalt(ctx, inner)
	if err != nil {
		return nil, err
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("storage: create cipher: %w", err)
	}

	return &Sealed{inner: inner, aead: aead}, nil
}

func loadOrCreateSalt(ctx context.Context, inner LocalStore) ([]byte, error) {
	encoded, err := inner.GetItem(ctx, SaltKey)
	switch {
	case err == nil:
		salt, derr := base64.StdEncoding.DecodeString(encoded)
		if derr != nil || len(salt) != saltLength {
			return nil, fmt.Errorf("storage: stored salt is corrupt")
		}
		return salt, nil
	case errors.Is(err, ErrKeyNotFound):
		salt := make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("storage: generate salt: %w", err)
		}
		if err := inner.SetItem(ctx, SaltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
			return nil, fmt.Errorf("storage: persist salt: %w", err)
		}
		return salt, nil
	default:
		return nil, err
	}
}

// deriveKey stretches the passphrase with Argon2id, then expands a
// purpose-bound value key with HKDF-SHA256.
func deriveKey(passphrase, salt []byte) ([]byte, error) {
	master := argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	reader := hkdf.New(sha256.New, master, salt, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("storage: derive key: %w", err)
	}
	return key, nil
}

func (s *Sealed) seal(key, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("storage: generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Sealed) open(key, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < s.aead.NonceSize() {
		return "", ErrUnsealFailed
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", ErrUnsealFailed
	}
	return string(plain), nil
}

// GetItem returns the decrypted value.
func (s *Sealed) GetItem(ctx context.Context, key string) (string, error) {
	encoded, err := s.inner.GetItem(ctx, key)
	if err != nil {
		return "", err
	}
	return s.open(key, encoded)
}

// SetItem encrypts and stores a value.
func (s *Sealed) SetItem(ctx context.Context, key, value string) error {
	return s.SetItems(ctx, map[string]string{key: value})
}

// SetItems encrypts every value, then stores them atomically.
func (s *Sealed) SetItems(ctx context.Context, items map[string]string) error {
	sealed := make(map[string]string, len(items))
	for k, v := range items {
		if k == SaltKey {
			return fmt.Errorf("storage: key %q is reserved", SaltKey)
		}
		enc, err := s.seal(k, v)
		if err != nil {
			return err
		}
		sealed[k] = enc
	}
	return s.inner.SetItems(ctx, sealed)
}

// RemoveItem removes a key.
func (s *Sealed) RemoveItem(ctx context.Context, key string) error {
	return s.inner.RemoveItem(ctx, key)
}

// RemoveItems removes keys.
func (s *Sealed) RemoveItems(ctx context.Context, keys ...string) error {
	return s.inner.RemoveItems(ctx, keys...)
}

// Close closes the inner store.
func (s *Sealed) Close() error {
	return s.inner.Close()
}
