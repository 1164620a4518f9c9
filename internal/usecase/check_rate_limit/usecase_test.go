package check_rate_limit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/EuricoCruz/stream_rate_limiter/internal/adapter/storage/memory"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/repository"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return fixedNow }

func TestExecute_InvalidInput_ReturnsError(t *testing.T) {
	// Arrange
	mockStore := new(MockStore)
	useCase := NewUseCase(mockStore, WithClock(fixedClock))

	input := Input{
		Policy:     loginPolicy,
		Identifier: "", // Invalid identifier
	}

	// Act
	output, err := useCase.Execute(context.Background(), input)

	// Assert
	assert.Error(t, err)
	assert.Nil(t, output)
	assert.Contains(t, err.Error(), "identifier is required")
	mockStore.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_WhenAllowed_ReturnsAllowedDecision(t *testing.T) {
	// Arrange
	mockStore := new(MockStore)
	useCase := NewUseCase(mockStore, WithClock(fixedClock))

	input := Input{Policy: loginPolicy, Identifier: "ip:192.168.1.1"}

	consumeResult := &repository.ConsumeResult{
		Allowed:    true,
		TokensLeft: 3.7,
		ResetAt:    fixedNow,
	}

	mockStore.On("Consume", mock.Anything, input.Key(), loginPolicy.BucketConfig(), fixedNow, 1).Return(consumeResult, nil)

	// Act
	output, err := useCase.Execute(context.Background(), input)

	// Assert
	require.NoError(t, err)
	assert.True(t, output.Allowed)
	assert.Equal(t, 5, output.Limit)
	assert.Equal(t, 3, output.Remaining)
	assert.Equal(t, fixedNow, output.ResetAt)
	assert.Zero(t, output.RetryAfter)
	assert.Empty(t, output.Message)

	mockStore.AssertExpectations(t)
}

func TestExecute_PassesExplicitCost(t *testing.T) {
	mockStore := new(MockStore)
	useCase := NewUseCase(mockStore, WithClock(fixedClock))

	input := Input{Policy: loginPolicy, Identifier: "ip:192.168.1.1", Cost: 3}

	mockStore.On("Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, 3).
		Return(&repository.ConsumeResult{Allowed: true, TokensLeft: 2, ResetAt: fixedNow}, nil)

	_, err := useCase.Execute(context.Background(), input)

	require.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestExecute_WhenRateLimitExceeded_ReturnsRejection(t *testing.T) {
	// Arrange
	mockStore := new(MockStore)
	useCase := NewUseCase(mockStore, WithClock(fixedClock))

	input := Input{Policy: loginPolicy, Identifier: "ip:192.168.1.1"}

	consumeResult := &repository.ConsumeResult{
		Allowed:    false,
		TokensLeft: 0.4,
		ResetAt:    fixedNow.Add(7200 * time.Millisecond),
	}

	mockStore.On("Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(consumeResult, nil)

	// Act
	output, err := useCase.Execute(context.Background(), input)

	// Assert
	require.NoError(t, err)
	assert.False(t, output.Allowed)
	assert.Equal(t, 0, output.Remaining)
	assert.Equal(t, 7200*time.Millisecond, output.RetryAfter)
	assert.Equal(t, RateLimitExceededMessage, output.Message)
	assert.False(t, output.FailedOpen)
	assert.False(t, output.FailedClosed)
}

func TestExecute_ResetInThePast_ClampsRetryAfter(t *testing.T) {
	mockStore := new(MockStore)
	useCase := NewUseCase(mockStore, WithClock(fixedClock))

	mockStore.On("Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&repository.ConsumeResult{Allowed: false, TokensLeft: 0, ResetAt: fixedNow.Add(-time.Second)}, nil)

	output, err := useCase.Execute(context.Background(), Input{Policy: loginPolicy, Identifier: "ip:1.2.3.4"})

	require.NoError(t, err)
	assert.Zero(t, output.RetryAfter)
}

func TestExecute_StoreError_FailsOpen(t *testing.T) {
	// Arrange
	core, logs := observer.New(zapcore.WarnLevel)
	mockStore := new(MockStore)
	useCase := NewUseCase(mockStore, WithClock(fixedClock), WithLogger(zap.New(core)))

	input := Input{Policy: loginPolicy, Identifier: "ip:192.168.1.1"}
	storeErr := fmt.Errorf("%w: connection refused", entity.ErrStoreUnavailable)

	mockStore.On("Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, storeErr)

	// Act
	output, err := useCase.Execute(context.Background(), input)

	// Assert
	require.NoError(t, err)
	assert.True(t, output.Allowed)
	assert.True(t, output.FailedOpen)
	assert.Equal(t, output.Limit, output.Remaining)
	assert.Equal(t, fixedNow.Add(loginPolicy.BucketConfig().FullRefill()), output.ResetAt)

	entries := logs.FilterMessage("rate limit store unavailable").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "auth_login", entries[0].ContextMap()["policy"])
}

func TestExecute_StoreError_FailsClosedWhenPolicyRequiresIt(t *testing.T) {
	// Arrange
	mockStore := new(MockStore)
	useCase := NewUseCase(mockStore, WithClock(fixedClock), WithLogger(zaptest.NewLogger(t)))

	policy := loginPolicy
	policy.FailClosed = true
	input := Input{Policy: policy, Identifier: "ip:192.168.1.1"}

	mockStore.On("Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, entity.ErrStoreUnavailable)

	// Act
	output, err := useCase.Execute(context.Background(), input)

	// Assert
	require.NoError(t, err)
	assert.False(t, output.Allowed)
	assert.True(t, output.FailedClosed)
	assert.Equal(t, 0, output.Remaining)
	assert.InDelta(t, 1/0.083, output.RetryAfter.Seconds(), 0.001)
	assert.Equal(t, fixedNow.Add(output.RetryAfter), output.ResetAt)
	assert.Equal(t, RateLimitExceededMessage, output.Message)
}

func TestExecute_SlowStore_TimesOutAndFailsOpen(t *testing.T) {
	// Arrange
	mockStore := new(MockStore)
	useCase := NewUseCase(mockStore, WithStoreTimeout(20*time.Millisecond))

	mockStore.On("Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(nil, fmt.Errorf("%w: %w", entity.ErrStoreUnavailable, context.DeadlineExceeded))

	// Act
	start := time.Now()
	output, err := useCase.Execute(context.Background(), Input{Policy: loginPolicy, Identifier: "ip:192.168.1.1"})
	elapsed := time.Since(start)

	// Assert
	require.NoError(t, err)
	assert.True(t, output.Allowed)
	assert.True(t, output.FailedOpen)
	assert.Less(t, elapsed, time.Second)
}

func TestExecute_Disabled_BypassesStore(t *testing.T) {
	// Arrange
	mockStore := new(MockStore)
	useCase := NewUseCase(mockStore, WithDisabled(true))

	policy := entity.Policy{Name: "stream_create", Prefix: "stream_create:", Operation: "create", Capacity: 2, RefillRate: 0.033}

	// Act & Assert - 1000 requests, all allowed
	for i := 0; i < 1000; i++ {
		output, err := useCase.Execute(context.Background(), Input{Policy: policy, Identifier: "ip:192.168.1.1"})
		require.NoError(t, err)
		require.True(t, output.Allowed, "Request %d should be allowed", i+1)
		require.True(t, output.Bypassed)
		require.Equal(t, 2, output.Remaining)
	}

	assert.True(t, useCase.Disabled())
	mockStore.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_WithMemoryStore_LoginScenario(t *testing.T) {
	// Arrange
	store := memory.NewMemoryStorage()
	defer store.Close()

	now := fixedNow
	useCase := NewUseCase(store, WithClock(func() time.Time { return now }))
	input := Input{Policy: loginPolicy, Identifier: "ip:192.168.1.1"}
	ctx := context.Background()

	// Act & Assert - 5 allowed, 6th rejected
	for i := 0; i < 5; i++ {
		output, err := useCase.Execute(ctx, input)
		require.NoError(t, err)
		assert.True(t, output.Allowed, "Request %d should be allowed", i+1)
		assert.Equal(t, 4-i, output.Remaining)
	}

	output, err := useCase.Execute(ctx, input)
	require.NoError(t, err)
	assert.False(t, output.Allowed)
	assert.InDelta(t, 12.05, output.RetryAfter.Seconds(), 0.01)

	// 12.1s depois um token foi reposto
	now = fixedNow.Add(12100 * time.Millisecond)
	output, err = useCase.Execute(ctx, input)
	require.NoError(t, err)
	assert.True(t, output.Allowed)
}

func TestExecute_WithMemoryStore_CostAboveLeftoverRejectsWithZeroRemaining(t *testing.T) {
	// Arrange
	store := memory.NewMemoryStorage()
	defer store.Close()

	useCase := NewUseCase(store, WithClock(fixedClock))
	input := Input{Policy: loginPolicy, Identifier: "ip:192.168.1.1", Cost: 2}
	ctx := context.Background()

	// Act & Assert - 5 -> 3 -> 1, then 1 token cannot pay for 2
	for _, want := range []int{3, 1} {
		output, err := useCase.Execute(ctx, input)
		require.NoError(t, err)
		require.True(t, output.Allowed)
		assert.Equal(t, want, output.Remaining)
	}

	output, err := useCase.Execute(ctx, input)
	require.NoError(t, err)
	assert.False(t, output.Allowed)
	assert.Equal(t, 0, output.Remaining)
	assert.Equal(t, RateLimitExceededMessage, output.Message)
	assert.Greater(t, output.RetryAfter, time.Duration(0))
}

func TestExecute_WithMemoryStore_ConcurrentStreamCreate(t *testing.T) {
	store := memory.NewMemoryStorage()
	defer store.Close()

	useCase := NewUseCase(store, WithClock(fixedClock))
	policy := entity.Policy{Name: "stream_create", Prefix: "stream_create:", Operation: "create", Capacity: 2, RefillRate: 0.033}
	ctx := context.Background()

	// Distinct identifiers do not share a bucket
	for _, id := range []string{"ip:10.0.0.1", "ip:10.0.0.2"} {
		output, err := useCase.Execute(ctx, Input{Policy: policy, Identifier: id})
		require.NoError(t, err)
		assert.True(t, output.Allowed)
	}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			output, err := useCase.Execute(ctx, Input{Policy: policy, Identifier: "ip:10.0.0.3"})
			if assert.NoError(t, err) && output.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2), allowed.Load())
}
