package check_rate_limit

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/repository"
)

// RateLimitExceededMessage is the standardized message returned when rate limit is exceeded
const RateLimitExceededMessage = "you have reached the maximum number of requests or actions allowed within a certain time frame"

// DefaultStoreTimeout bounds a single store roundtrip
const DefaultStoreTimeout = 250 * time.Millisecond

// UseCase implements the business logic for rate limit checking
type UseCase struct {
	storage      repository.BucketStore
	logger       *zap.Logger
	now          func() time.Time
	storeTimeout time.Duration
	disabled     bool
}

// Option configures a UseCase
type Option func(*UseCase)

// WithClock replaces time.Now, used by tests to drive the bucket deterministically
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// WithStoreTimeout bounds each store call. Non-positive values keep the default.
func WithStoreTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		if d > 0 {
			uc.storeTimeout = d
		}
	}
}

// WithLogger sets the logger used for store failures and rejections
func WithLogger(logger *zap.Logger) Option {
	return func(uc *UseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

// WithDisabled turns every check into an allow without touching the store
func WithDisabled(disabled bool) Option {
	return func(uc *UseCase) {
		uc.disabled = disabled
	}
}

// NewUseCase creates a new instance using dependency injection
func NewUseCase(storage repository.BucketStore, opts ...Option) *UseCase {
	uc := &UseCase{
		storage:      storage,
		logger:       zap.NewNop(),
		now:          time.Now,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Disabled reports whether checks are bypassed
func (uc *UseCase) Disabled() bool {
	return uc.disabled
}

// Execute is the main command that decides whether a request may proceed.
//
// The execution flow:
// 1. Bypass when rate limiting is disabled
// 2. Validate input parameters
// 3. Consume from the caller's bucket with a bounded store call
// 4. On store failure, fail open unless the policy fails closed
// 5. Build the decision with limit, remaining and reset time
//
// Errors are only returned for invalid input. A store failure never surfaces as an error.
func (uc *UseCase) Execute(ctx context.Context, input Input) (*Decision, error) {
	// 1. Disabled (test environment or explicitly switched off)
	if uc.disabled {
		return uc.createBypassedDecision(input), nil
	}

	// 2. Validate input parameters (Single Responsibility Principle)
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := uc.now()
	cfg := input.Policy.BucketConfig()
	key := input.Key()

	// 3. Atomic refill-and-consume, bounded so a slow store cannot stall the request
	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	result, err := uc.storage.Consume(storeCtx, key, cfg, now, input.EffectiveCost())

	// 4. Store unavailable
	if err != nil {
		uc.logger.Warn("rate limit store unavailable",
			zap.String("policy", input.Policy.Name),
			zap.String("key", key.String()),
			zap.Bool("fail_closed", input.Policy.FailClosed),
			zap.Error(err),
		)

		if input.Policy.FailClosed {
			return uc.createFailedClosedDecision(cfg, now), nil
		}
		return uc.createFailedOpenDecision(cfg, now), nil
	}

	// 5. Decision from the bucket state
	if !result.Allowed {
		uc.logger.Debug("rate limit exceeded",
			zap.String("policy", input.Policy.Name),
			zap.String("key", key.String()),
			zap.Time("reset_at", result.ResetAt),
			zap.Error(entity.ErrQuotaExceeded),
		)
		return uc.createRateLimitExceededDecision(cfg, result, now), nil
	}

	return uc.createAllowedDecision(cfg, result), nil
}

// createBypassedDecision reports a full bucket without consulting the store
func (uc *UseCase) createBypassedDecision(input Input) *Decision {
	return &Decision{
		Allowed:   true,
		Limit:     input.Policy.Capacity,
		Remaining: input.Policy.Capacity,
		ResetAt:   uc.now(),
		Bypassed:  true,
	}
}

// createFailedOpenDecision lets the request through and reports a full bucket
func (uc *UseCase) createFailedOpenDecision(cfg entity.BucketConfig, now time.Time) *Decision {
	return &Decision{
		Allowed:    true,
		Limit:      cfg.Capacity,
		Remaining:  cfg.Capacity,
		ResetAt:    now.Add(cfg.FullRefill()),
		FailedOpen: true,
	}
}

// createFailedClosedDecision rejects as if the bucket was empty
func (uc *UseCase) createFailedClosedDecision(cfg entity.BucketConfig, now time.Time) *Decision {
	retryAfter := time.Duration(float64(time.Second) / cfg.RefillRate)

	return &Decision{
		Allowed:      false,
		Limit:        cfg.Capacity,
		Remaining:    0,
		ResetAt:      now.Add(retryAfter),
		RetryAfter:   retryAfter,
		FailedClosed: true,
		Message:      RateLimitExceededMessage,
	}
}

// createRateLimitExceededDecision creates a decision when the bucket has not enough tokens.
// Remaining is always 0: tokens short of the cost cannot be spent.
func (uc *UseCase) createRateLimitExceededDecision(cfg entity.BucketConfig, result *repository.ConsumeResult, now time.Time) *Decision {
	retryAfter := result.ResetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}

	return &Decision{
		Allowed:    false,
		Limit:      cfg.Capacity,
		Remaining:  0,
		ResetAt:    result.ResetAt,
		RetryAfter: retryAfter,
		Message:    RateLimitExceededMessage,
	}
}

// createAllowedDecision creates a decision when the request is allowed
func (uc *UseCase) createAllowedDecision(cfg entity.BucketConfig, result *repository.ConsumeResult) *Decision {
	return &Decision{
		Allowed:   true,
		Limit:     cfg.Capacity,
		Remaining: remaining(cfg, result.TokensLeft),
		ResetAt:   result.ResetAt,
	}
}

// remaining is the whole number of tokens left, within [0, capacity]
func remaining(cfg entity.BucketConfig, tokens float64) int {
	n := int(math.Floor(tokens))
	if n < 0 {
		return 0
	}
	if n > cfg.Capacity {
		return cfg.Capacity
	}
	return n
}
