// ABOUTME: Identity store holding the single opaque user id of the current session
// ABOUTME: Optionally persists the id through a KV store with expiry and notifies subscribers on change

// Package identity tracks who the chat client is acting as.
//
// The id is opaque to this package. When remembered, it is written to a
// store.KV entry that expires after the configured TTL, so it survives a
// restart until then.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/broadcast"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/store"
)

const (
	// DefaultKey is the KV key the id is persisted under.
	DefaultKey = "ollama_user_id"
	// DefaultTTL is how long a remembered id survives.
	DefaultTTL = 30 * 24 * time.Hour
)

// ErrEmptyUserID is returned by Set for a blank id.
var ErrEmptyUserID = fmt.Errorf("%w: user id is empty", chat.ErrValidation)

// Change describes the identity after a Set or Clear.
type Change struct {
	UserID  string
	Present bool
}

// Store holds the current user id.
type Store struct {
	kv     store.KV // nil means memory only
	key    string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	userID  string
	present bool

	changes *broadcast.Broadcaster[Change]
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the KV key used for persistence.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithTTL sets how long a persisted id lives. Zero or negative means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used to compute expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an identity store and loads any persisted id from kv.
// A nil kv keeps the identity in memory only.
func New(kv store.KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		ttl:    DefaultTTL,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "identity")
	s.changes = broadcast.New[Change](s.logger)

	if kv == nil {
		return s, nil
	}

	entry, err := kv.Get(context.Background(), s.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("loading persisted identity: %w", err)
	}

	if id := strings.TrimSpace(entry.Value); id != "" {
		s.userID, s.present = id, true
		s.logger.Debug("restored persisted identity", "user_id", id)
	}
	return s, nil
}

// Get returns the current user id, if any.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.present
}

// UserID is Get under the name the conversation store expects of a session.
func (s *Store) UserID() (string, bool) {
	return s.Get()
}

// LoggedIn reports whether a user id is present.
func (s *Store) LoggedIn() bool {
	_, ok := s.Get()
	return ok
}

// Set makes id the current user. With persist the id is written to the KV
// store with the configured TTL; without it any previously persisted id is
// removed so the next start begins logged out.
func (s *Store) Set(ctx context.Context, id string, persist bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyUserID
	}

	if s.kv != nil {
		if persist {
			entry := &store.Entry{Key: s.key, Value: id}
			if s.ttl > 0 {
				expires := s.now().Add(s.ttl)
				entry.ExpiresAt = &expires
			}
			if err := s.kv.Set(ctx, entry); err != nil {
				return fmt.Errorf("persisting identity: %w", err)
			}
		} else if err := s.kv.Delete(ctx, s.key); err != nil {
			return fmt.Errorf("removing persisted identity: %w", err)
		}
	}

	s.mu.Lock()
	changed := !s.present || s.userID != id
	s.userID, s.present = id, true
	s.mu.Unlock()

	s.logger.Info("identity set", "user_id", id, "persisted", persist)
	if changed {
		s.changes.Publish(Change{UserID: id, Present: true})
	}
	return nil
}

// Clear forgets the current user, in memory and in the KV store.
func (s *Store) Clear(ctx context.Context) error {
	if s.kv != nil {
		if err := s.kv.Delete(ctx, s.key); err != nil {
			return fmt.Errorf("removing persisted identity: %w", err)
		}
	}

	s.mu.Lock()
	wasPresent := s.present
	s.userID, s.present = "", false
	s.mu.Unlock()

	if wasPresent {
		s.logger.Info("identity cleared")
		s.changes.Publish(Change{})
	}
	return nil
}

// Subscribe returns a channel of identity changes. It is closed when ctx is
// done or the store is closed.
func (s *Store) Subscribe(ctx context.Context) <-chan Change {
	ch, _ := s.changes.Subscribe(ctx)
	return ch
}

// Close stops change notifications. The KV store is owned by the caller.
func (s *Store) Close() {
	s.changes.Close()
}
