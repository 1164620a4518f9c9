package repository

import (
	"context"
	"time"

	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
)

// BucketStore defines the contract for the shared token bucket state following Dependency
// Inversion Principle. The gate depends on this abstraction; Redis and in-memory backends
// implement it.
type BucketStore interface {
	// Consume atomically refills the bucket identified by key and consumes cost tokens when
	// available. An absent bucket is treated as full. The updated state is written back with
	// an expiry of cfg.TTL().
	//
	// Any failure of the backend is returned wrapping entity.ErrStoreUnavailable.
	Consume(
		ctx context.Context,
		key entity.BucketKey,
		cfg entity.BucketConfig,
		now time.Time,
		cost int,
	) (*ConsumeResult, error)

	// Ping reports whether the backend is reachable. It never touches bucket state.
	Ping(ctx context.Context) error

	// Close releases connections or background workers held by the implementation.
	// Should be called during application shutdown for proper cleanup.
	Close() error
}

// ConsumeResult contains the outcome of a Consume operation
type ConsumeResult struct {
	Allowed    bool      // Whether cost tokens were taken
	TokensLeft float64   // Tokens in the bucket after the operation
	ResetAt    time.Time // When at least one token is available
}
