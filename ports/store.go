package ports

import (
	"context"
	"time"

	"github.com/layer-3/remitgate/core"
)

// NonceStore issues and consumes one-time login challenges
type NonceStore interface {
	// Put stores a nonce, replacing any earlier one for the same identity
	Put(ctx context.Context, nonce core.Nonce) error
	// Consume atomically reads and removes the live nonce for identity.
	// Returns core.ErrNonceNotFound when absent or expired.
	Consume(ctx context.Context, identity string) (core.Nonce, error)
}

// IdempotencyStore caches responses for idempotent writes
type IdempotencyStore interface {
	// Reserve inserts a pending record unless a live record exists for key.
	// It returns the live record and false when one exists, or the new
	// pending record and true when the caller now owns the key.
	Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (core.IdempotencyRecord, bool, error)
	// Complete stores the final response for a reserved key
	Complete(ctx context.Context, record core.IdempotencyRecord) error
	// Release drops a pending reservation so the key can be retried
	Release(ctx context.Context, key string) error
}

// RateCounter counts requests in fixed windows
type RateCounter interface {
	// Increment bumps the counter for key, starting a new window when the
	// previous one has elapsed, and returns the post-increment count and
	// the end of the current window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

// Sweeper is implemented by stores that hold expired entries in memory
type Sweeper interface {
	Sweep(now time.Time) int
}

// TokenStore remembers invalidated session IDs until every token carrying
// them has expired
type TokenStore interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}
