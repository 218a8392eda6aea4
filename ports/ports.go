// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/xbrlgate/domain/key"
	"github.com/artpar/xbrlgate/domain/ratelimit"
	"github.com/artpar/xbrlgate/domain/usage"
)

// Sentinel errors shared by every store implementation.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable wraps any I/O failure of an external store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Random abstracts randomness for testability.
type Random interface {
	// Bytes generates n random bytes.
	Bytes(n int) ([]byte, error)
	// String generates a random string of n characters.
	String(n int) (string, error)
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Hasher Ports
// -----------------------------------------------------------------------------

// KeyHasher maps a plaintext API key to its stored lookup hash.
// Implementations must be deterministic for a fixed server secret.
type KeyHasher interface {
	Hash(plaintext string) string
}

// Hasher provides password/token hashing.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// CredentialStore persists API keys.
// I/O failures are returned wrapped in ErrStoreUnavailable.
type CredentialStore interface {
	// FindByHash retrieves the key with the given hash, or ErrNotFound.
	FindByHash(ctx context.Context, hash string) (key.Key, error)

	// TouchLastUsed updates the last used timestamp.
	TouchLastUsed(ctx context.Context, id string, at time.Time) error

	// IncrementUsageCounters adds one to the key's request counter.
	IncrementUsageCounters(ctx context.Context, id string) error

	// MarkExpired sets the status of an active key to expired.
	MarkExpired(ctx context.Context, id string) error
}

// KeyStore is the management side of the credential store.
type KeyStore interface {
	CredentialStore

	// Create stores a new key.
	Create(ctx context.Context, k key.Key) error

	// GetByID retrieves a key by ID, or ErrNotFound.
	GetByID(ctx context.Context, id string) (key.Key, error)

	// ListByOwner returns all keys of an owner, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]key.Key, error)

	// List returns all keys, newest first.
	List(ctx context.Context) ([]key.Key, error)

	// Revoke marks a key as revoked, or returns ErrNotFound.
	Revoke(ctx context.Context, id string) error
}

// Ledger holds the fixed-window rate limit counters.
type Ledger interface {
	// TryConsume atomically checks every window of limits and, only when all
	// are under their limit, increments all of them.
	TryConsume(ctx context.Context, keyID string, limits ratelimit.Limits, now time.Time) (ratelimit.Result, error)

	// Counts returns the current window counts without consuming.
	Counts(ctx context.Context, keyID string, now time.Time) (ratelimit.Counts, error)

	// Reset drops every counter of a key.
	Reset(ctx context.Context, keyID string) error
}

// UsageSink persists usage records.
type UsageSink interface {
	// RecordBatch stores multiple usage records.
	RecordBatch(ctx context.Context, records []usage.Record) error
}

// UsageStore is a UsageSink that can also be queried.
type UsageStore interface {
	UsageSink

	// Recent returns the latest records, optionally for a single key.
	Recent(ctx context.Context, keyID string, limit int) ([]usage.Record, error)

	// Range returns records of a key in [start, end).
	Range(ctx context.Context, keyID string, start, end time.Time) ([]usage.Record, error)
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// UsageRecorder accepts usage records for async processing.
type UsageRecorder interface {
	// Record queues a usage record for processing.
	// This must be non-blocking and must never panic.
	Record(r usage.Record)

	// Flush forces immediate processing of queued records.
	Flush(ctx context.Context) error

	// Close stops the recorder and flushes remaining records.
	Close() error
}

// -----------------------------------------------------------------------------
// Metrics Ports
// -----------------------------------------------------------------------------

// AuthMetrics observes authorization outcomes.
type AuthMetrics interface {
	ObserveDecision(outcome, reason string, took time.Duration)
	StoreError(op string)
	LedgerError()
}

// UsageMetrics observes the usage pipeline.
type UsageMetrics interface {
	// UsageRecords counts records by result: written, dropped or failed.
	UsageRecords(result string, n int)
	UsageQueueDepth(n int)
}

// -----------------------------------------------------------------------------
// Health Port
// -----------------------------------------------------------------------------

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
