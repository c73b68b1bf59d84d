// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/markusbegerow/local-llm-chat/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// EncryptedPrefix marks an encrypted value: ENC:base64(nonce|ciphertext|tag).
const EncryptedPrefix = "ENC:"

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the PBKDF2 salt length in bytes.
	SaltSize = 32
	// PBKDF2Iterations follows the OWASP 2023 figure for PBKDF2-SHA-256.
	PBKDF2Iterations = 600000
)

var (
	// ErrInvalidCiphertext indicates a value that is not in ENC: format.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	// ErrDecryptionFailed indicates a wrong key or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// KEY MATERIAL
// =============================================================================

// DeriveKey derives an AES-256 key from a passphrase with PBKDF2-SHA-256.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// loadOrCreate reads path, or fills it with n random bytes (0600) when it
// does not exist yet.
func loadOrCreate(path string, n int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != n {
			return nil, fmt.Errorf("%s has %d bytes, want %d", path, len(data), n)
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data, err = randomBytes(n)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", filepath.Base(path), err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// MasterKey returns the key protecting the secret database in dir. With a
// passphrase the key is derived from it and a stored salt; otherwise a random
// key file is created on first use.
func MasterKey(dir, passphrase string) ([]byte, error) {
	if passphrase != "" {
		salt, err := loadOrCreate(filepath.Join(dir, "secrets.salt"), SaltSize)
		if err != nil {
			return nil, err
		}
		return DeriveKey(passphrase, salt), nil
	}
	return loadOrCreate(filepath.Join(dir, "secrets.key"), KeySize)
}

// ZeroBytes overwrites key material once it is no longer needed.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// =============================================================================
// CIPHER
// =============================================================================

// Cipher is AES-256-GCM with random nonces.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &Cipher{aead: gcm}, nil
}

// EncryptString seals plaintext bound to aad and returns it in ENC: form.
func (c *Cipher) EncryptString(plaintext, aad string) (string, error) {
	nonce, err := randomBytes(c.aead.NonceSize())
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(aad))
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a value produced by EncryptString with the same aad.
func (c *Cipher) DecryptString(value, aad string) (string, error) {
	if !strings.HasPrefix(value, EncryptedPrefix) {
		return "", ErrInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], []byte(aad))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
