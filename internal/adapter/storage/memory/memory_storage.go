package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/repository"
)

type entry struct {
	bucket    entity.Bucket
	expiresAt time.Time
}

// MemoryStorage implements repository.BucketStore in process memory.
// Buckets are not shared between instances, so it is meant for a single node or local runs.
type MemoryStorage struct {
	mu      sync.Mutex
	buckets map[string]*entry
	closed  bool
	stop    chan struct{}
	once    sync.Once
	janitor sync.Once
}

var _ repository.BucketStore = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		buckets: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
}

// Consume implements repository.BucketStore. The whole sequence runs under one lock.
func (m *MemoryStorage) Consume(
	ctx context.Context,
	key entity.BucketKey,
	cfg entity.BucketConfig,
	now time.Time,
	cost int,
) (*repository.ConsumeResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cost < 0 {
		return nil, fmt.Errorf("%w: cost must not be negative, got: %d", entity.ErrInvalidCost, cost)
	}
	if !key.IsValid() {
		return nil, fmt.Errorf("invalid bucket key %q", key.String())
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrStoreUnavailable, err)
	}

	keyStr := key.String()
	nowSecs := entity.UnixSeconds(now)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("%w: memory store is closed", entity.ErrStoreUnavailable)
	}

	e, ok := m.buckets[keyStr]
	if !ok || !now.Before(e.expiresAt) {
		e = &entry{bucket: entity.NewFullBucket(cfg, nowSecs)}
		m.buckets[keyStr] = e
	}

	outcome := e.bucket.Consume(cfg, nowSecs, cost)
	e.expiresAt = now.Add(cfg.TTL())

	return &repository.ConsumeResult{
		Allowed:    outcome.Allowed,
		TokensLeft: outcome.TokensLeft,
		ResetAt:    entity.TimeFromUnixSeconds(outcome.ResetAt),
	}, nil
}

// Sweep drops every bucket whose expiry is not after now and returns how many were removed
func (m *MemoryStorage) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.buckets {
		if !now.Before(e.expiresAt) {
			delete(m.buckets, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of buckets held, expired or not
func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// StartJanitor sweeps expired buckets every interval until ctx is done or the store is closed.
// Only the first call starts a sweeper; it reports whether this call did.
func (m *MemoryStorage) StartJanitor(ctx context.Context, interval time.Duration) bool {
	started := false
	m.janitor.Do(func() {
		started = true
		go m.runJanitor(ctx, interval)
	})
	return started
}

func (m *MemoryStorage) runJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Ping reports the store as reachable until it is closed
func (m *MemoryStorage) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("%w: memory store is closed", entity.ErrStoreUnavailable)
	}
	return nil
}

// Close stops the janitor and drops all buckets
func (m *MemoryStorage) Close() error {
	m.once.Do(func() {
		close(m.stop)

		m.mu.Lock()
		m.closed = true
		m.buckets = make(map[string]*entry)
		m.mu.Unlock()
	})
	return nil
}
