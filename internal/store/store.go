// ABOUTME: Key-value persistence interface and entry type for coven-chat
// ABOUTME: Backs the identity store with a pluggable, expiring key-value layer

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired
var ErrNotFound = errors.New("not found")

// Entry is a single persisted value.
type Entry struct {
	Key       string
	Value     string
	ExpiresAt *time.Time // nil means the entry never expires
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// KV is the key-value store used for client-side persistence.
type KV interface {
	// Get returns the entry for key, or ErrNotFound if it is absent or expired.
	Get(ctx context.Context, key string) (*Entry, error)
	// Set creates or replaces the entry. CreatedAt is preserved on replace.
	Set(ctx context.Context, entry *Entry) error
	// Delete removes the entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}
