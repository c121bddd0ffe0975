// ABOUTME: In-memory KV implementation for tests and non-persistent sessions
// ABOUTME: Mirrors SQLiteStore semantics including expiry without touching disk

package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-memory KV implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Get retrieves an entry by key.
func (m *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Expired(m.now()) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}

	// Return a copy to avoid external modification
	cp := *e
	return &cp, nil
}

// Set creates or updates an entry.
func (m *MemoryStore) Set(ctx context.Context, entry *Entry) error {
	if entry.Key == "" {
		return errors.New("key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.entries[entry.Key]; ok {
		entry.CreatedAt = existing.CreatedAt
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	cp := *entry
	if entry.ExpiresAt != nil {
		t := *entry.ExpiresAt
		cp.ExpiresAt = &t
	}
	m.entries[entry.Key] = &cp
	return nil
}

// Delete removes an entry by key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
