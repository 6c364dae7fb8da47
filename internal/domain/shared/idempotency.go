package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys for a bounded time so repeated work can be skipped
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL
	// Returns true if the key was newly marked, false if it was already processed
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// RunLocker provides a named mutual-exclusion lock with a lease.
// A holder that dies without unlocking loses the lock once the TTL elapses.
type RunLocker interface {
	// TryLock acquires the named lock without blocking.
	// Returns false if another holder owns it.
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Unlock releases the named lock if this locker holds it
	Unlock(ctx context.Context, name string) error
}
