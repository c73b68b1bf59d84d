// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS secrets (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps secrets encrypted in a SQLite database. Values are
// sealed with AES-256-GCM and bound to their key, so a ciphertext copied to
// another row does not decrypt.
type SQLiteStore struct {
	db     *sql.DB
	cipher *Cipher
}

// OpenSQLite opens (or creates) the database at path using key for
// encryption.
func OpenSQLite(path string, key []byte) (*SQLiteStore, error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create secrets directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	_ = os.Chmod(path, 0600)

	return &SQLiteStore{db: db, cipher: c}, nil
}

// OpenDefault opens secrets.db in dir with the key from MasterKey.
func OpenDefault(dir, passphrase string) (*SQLiteStore, error) {
	key, err := MasterKey(dir, passphrase)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key)
	return OpenSQLite(filepath.Join(dir, "secrets.db"), key)
}

// Get returns the decrypted value for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var sealed string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM secrets WHERE key = ?", key).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read secret %s: %w", key, err)
	}

	value, err := s.cipher.DecryptString(sealed, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt secret %s: %w", key, err)
	}
	return value, true, nil
}

// Set encrypts and stores value, or deletes key when value is empty.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if value == "" {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM secrets WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete secret %s: %w", key, err)
		}
		return nil
	}

	sealed, err := s.cipher.EncryptString(value, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secrets (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, sealed, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store secret %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
