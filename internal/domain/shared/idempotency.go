package shared

import (
	"context"
	"time"
)

// IdempotencyStore records keys that have already been claimed so that
// replayed requests, webhook deliveries and overlapping runs are detected.
type IdempotencyStore interface {
	// Claim marks key as taken for ttl.
	// Returns true if the key was newly claimed, false if it was already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees a claimed key so the work can be attempted again
	Release(ctx context.Context, key string) error

	// IsClaimed checks if a key is currently held
	IsClaimed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a claimed key is remembered.
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
