// ABOUTME: SQLite implementation of the KV interface using modernc.org/sqlite
// ABOUTME: Provides expiring key-value persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timestampLayout is fixed-width so stored timestamps compare correctly as text
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements KV using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps :memory: databases coherent across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv_entries(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Debug("closing SQLite store")
	return s.db.Close()
}

// Set creates or updates an entry.
func (s *SQLiteStore) Set(ctx context.Context, entry *Entry) error {
	if entry.Key == "" {
		return errors.New("key is required")
	}

	now := s.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	var expiresAt sql.NullString
	if entry.ExpiresAt != nil {
		expiresAt = sql.NullString{String: entry.ExpiresAt.UTC().Format(timestampLayout), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, entry.Key, entry.Value, expiresAt,
		entry.CreatedAt.UTC().Format(timestampLayout),
		entry.UpdatedAt.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("saving entry %q: %w", entry.Key, err)
	}
	return nil
}

// Get retrieves an entry by key. Expired entries are removed and reported as ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	var e Entry
	var expiresAt sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, expires_at, created_at, updated_at
		FROM kv_entries WHERE key = ?
	`, key).Scan(&e.Key, &e.Value, &expiresAt, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading entry %q: %w", key, err)
	}

	e.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
	e.UpdatedAt, _ = time.Parse(timestampLayout, updatedAt)
	if expiresAt.Valid {
		t, err := time.Parse(timestampLayout, expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing expiry of %q: %w", key, err)
		}
		e.ExpiresAt = &t
	}

	if e.Expired(s.now()) {
		s.logger.Debug("entry expired", "key", key)
		if err := s.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to remove expired entry", "key", key, "error", err)
		}
		return nil, ErrNotFound
	}

	return &e, nil
}

// Delete removes an entry by key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting entry %q: %w", key, err)
	}
	return nil
}

// PurgeExpired removes every expired entry and returns how many were deleted.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, s.now().UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("purging expired entries: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
