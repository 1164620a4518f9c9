package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/repository"
)

// RedisStorage implements repository.BucketStore using Redis as the shared backend
type RedisStorage struct {
	client redis.UniversalClient
}

var _ repository.BucketStore = (*RedisStorage)(nil)

// NewRedisStorage creates a new RedisStorage using dependency injection
func NewRedisStorage(client redis.UniversalClient) *RedisStorage {
	return &RedisStorage{
		client: client,
	}
}

// LoadScripts registers the token bucket script on the server ahead of the first request.
// Optional: Consume falls back to EVAL when the script cache was flushed.
func (r *RedisStorage) LoadScripts(ctx context.Context) error {
	if err := tokenBucketScript.Load(ctx, r.client).Err(); err != nil {
		return fmt.Errorf("%w: failed to load token bucket script: %w", entity.ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks the connection with Redis
func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the connection with Redis
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// Consume implements repository.BucketStore.
// The refill, decrement and write-back run in a single Lua script.
func (r *RedisStorage) Consume(
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

	keyStr := key.String()

	result, err := r.executeTokenBucketScript(ctx, keyStr, cfg, entity.UnixSeconds(now), cost)
	if err != nil {
		return nil, fmt.Errorf("%w: key %s: %w", entity.ErrStoreUnavailable, keyStr, err)
	}

	// Lua reply: {allowed, tokens_left, reset_at}
	allowed, tokens, resetAt, err := r.parseScriptResult(result)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse script result for key %s: %w", entity.ErrStoreUnavailable, keyStr, err)
	}

	return &repository.ConsumeResult{
		Allowed:    allowed,
		TokensLeft: tokens,
		ResetAt:    entity.TimeFromUnixSeconds(resetAt),
	}, nil
}

// executeTokenBucketScript runs the token bucket script (EVALSHA, EVAL on NOSCRIPT)
func (r *RedisStorage) executeTokenBucketScript(
	ctx context.Context,
	key string,
	cfg entity.BucketConfig,
	now float64,
	cost int,
) (interface{}, error) {
	result, err := tokenBucketScript.Run(
		ctx,
		r.client,
		[]string{key}, // KEYS
		cfg.Capacity, cfg.RefillRate, now, cost, int64(cfg.TTL().Seconds()), // ARGV
	).Result()

	if err != nil {
		return nil, fmt.Errorf("redis script execution failed: %w", err)
	}

	return result, nil
}

// parseScriptResult parses the reply of the Lua script.
// Expected format: [allowed (int64), tokens_left (string), reset_at (string)]
func (r *RedisStorage) parseScriptResult(result interface{}) (allowed bool, tokens, resetAt float64, err error) {
	resultSlice, ok := result.([]interface{})
	if !ok {
		return false, 0, 0, fmt.Errorf("expected array result, got: %T", result)
	}

	if len(resultSlice) != 3 {
		return false, 0, 0, fmt.Errorf("expected 3 elements in result array, got: %d", len(resultSlice))
	}

	allowedValue, ok := resultSlice[0].(int64)
	if !ok {
		return false, 0, 0, fmt.Errorf("expected int64 for allowed flag, got: %T", resultSlice[0])
	}
	allowed = allowedValue == 1

	tokens, err = parseNumber(resultSlice[1])
	if err != nil {
		return false, 0, 0, fmt.Errorf("failed to parse tokens value: %w", err)
	}

	resetAt, err = parseNumber(resultSlice[2])
	if err != nil {
		return false, 0, 0, fmt.Errorf("failed to parse reset value: %w", err)
	}

	return allowed, tokens, resetAt, nil
}

// parseNumber parses a numeric reply that may come back as different Lua types
func parseNumber(value interface{}) (float64, error) {
	switch v := value.(type) {
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse string value '%s': %w", v, err)
		}
		return n, nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected value type %T with value %v", v, v)
	}
}
