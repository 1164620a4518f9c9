package check_rate_limit

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/repository"
)

// MockStore is a mock implementation of the BucketStore interface for testing purposes
type MockStore struct {
	mock.Mock
}

// Consume mocks the Consume method from BucketStore interface
func (m *MockStore) Consume(ctx context.Context, key entity.BucketKey, cfg entity.BucketConfig, now time.Time, cost int) (*repository.ConsumeResult, error) {
	args := m.Called(ctx, key, cfg, now, cost)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ConsumeResult), args.Error(1)
}

// Ping mocks the Ping method from BucketStore interface
func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks the Close method from BucketStore interface
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
