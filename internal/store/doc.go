// Package store provides small key/value persistence for client-side state.
//
// # Architecture
//
// KV is the single interface consumers depend on. Two implementations ship:
//
//   - SQLiteStore: durable, one row per key in a WAL-mode SQLite database
//   - MemoryStore: process-lifetime only, for tests and sessions that must
//     not touch disk
//
// Both honour Entry.ExpiresAt: an expired entry reads as ErrNotFound and is
// removed lazily. SQLiteStore.PurgeExpired sweeps the rest at startup.
//
// # Database Location
//
//   - Default: $XDG_DATA_HOME/coven/chat.db (~/.local/share/coven/chat.db)
//   - Testing: :memory: or a t.TempDir() path
//
// # Errors
//
//   - ErrNotFound: the key is absent or expired
//
// Delete of a missing key is not an error. All methods accept
// context.Context for cancellation support.
package store
