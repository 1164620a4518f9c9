package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/EuricoCruz/stream_rate_limiter/internal/infrastructure/config"
)

// pingTimeout bounds each connection attempt
const pingTimeout = 5 * time.Second

// NewClient cria e testa conexão com Redis.
// The ping is retried with exponential backoff, RedisRetryAttempts times starting at RedisRetryInterval.
func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	// Socket deadlines follow the caller's context so the limiter's store timeout holds
	client := redis.NewClient(&redis.Options{
		Addr:                  cfg.RedisAddr(),
		Password:              cfg.RedisPassword,
		DB:                    cfg.RedisDB,
		DialTimeout:           5 * time.Second,
		ReadTimeout:           3 * time.Second,
		WriteTimeout:          3 * time.Second,
		PoolSize:              10,
		ContextTimeoutEnabled: true,
	})

	if err := Connect(ctx, client, cfg.RedisRetryAttempts, cfg.RedisRetryInterval, logger); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr(), err)
	}

	return client, nil
}

// Connect pings client until it answers or attempts run out
func Connect(ctx context.Context, client redis.UniversalClient, attempts int, interval time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts < 1 {
		attempts = 1
	}

	backoff := retry.NewExponential(interval)
	backoff = retry.WithCappedDuration(10*interval, backoff)
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		// Testa conexão com timeout
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}
