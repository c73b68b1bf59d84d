// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secrets stores credentials such as the endpoint auth token outside
// the plain-text configuration file.
package secrets

import (
	"context"
	"sync"
)

// AuthTokenKey is the key under which the endpoint bearer token is kept.
const AuthTokenKey = "llmchat.authToken"

// Store is a key/value secret store. Setting an empty value deletes the key.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore keeps secrets in process memory. It is used when no persistent
// store is available and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key, or deletes key when value is empty.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		delete(m.values, key)
		return nil
	}
	m.values[key] = value
	return nil
}

