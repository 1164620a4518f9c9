package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EuricoCruz/stream_rate_limiter/internal/adapter/http/middleware"
	"github.com/EuricoCruz/stream_rate_limiter/internal/adapter/http/router"
	"github.com/EuricoCruz/stream_rate_limiter/internal/adapter/http/upstream"
	"github.com/EuricoCruz/stream_rate_limiter/internal/adapter/storage/memory"
	redisAdapter "github.com/EuricoCruz/stream_rate_limiter/internal/adapter/storage/redis"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/repository"
	"github.com/EuricoCruz/stream_rate_limiter/internal/infrastructure/config"
	"github.com/EuricoCruz/stream_rate_limiter/internal/infrastructure/logger"
	infraRedis "github.com/EuricoCruz/stream_rate_limiter/internal/infrastructure/redis"
	"github.com/EuricoCruz/stream_rate_limiter/internal/usecase/check_rate_limit"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rate limiter: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Carrega configuração
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Setup logger
	log, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("configuration loaded",
		zap.Int("port", cfg.ServerPort),
		zap.String("environment", cfg.Environment),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("store_timeout", cfg.StoreTimeout),
		zap.Bool("rate_limit_disabled", cfg.RateLimitDisabled()),
		zap.Int("policies", len(cfg.Policies)),
	)
	if cfg.RateLimitDisabled() {
		log.Warn("rate limiting is disabled, every request is allowed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Conecta ao store
	store, err := newStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	// 4. Monta camadas (Dependency Injection)
	checkRateLimitUC := check_rate_limit.NewUseCase(store,
		check_rate_limit.WithStoreTimeout(cfg.StoreTimeout),
		check_rate_limit.WithDisabled(cfg.RateLimitDisabled()),
		check_rate_limit.WithLogger(log),
	)

	upstreamHandler, err := upstream.New(cfg.UpstreamURL, log)
	if err != nil {
		return err
	}

	// 5. Setup HTTP Router
	handler, err := router.New(router.Dependencies{
		RateLimiter: middleware.NewRateLimiterMiddleware(checkRateLimitUC, log),
		Policies:    cfg.Policies,
		Store:       store,
		Upstream:    upstreamHandler,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	// 6. HTTP Server
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.ServerPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 7. Server e graceful shutdown no mesmo errgroup
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("rate limiter stopped with error", zap.Error(err))
		return err
	}

	log.Info("rate limiter stopped")
	return nil
}

// newStore escolhe o backend configurado
func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.BucketStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		store := memory.NewMemoryStorage()
		store.StartJanitor(ctx, janitorInterval)
		log.Warn("using in-memory store, limits are not shared between instances")
		return store, nil

	default:
		client, err := infraRedis.NewClient(ctx, cfg, log)
		if err != nil {
			return nil, err
		}

		store := redisAdapter.NewRedisStorage(client)
		if err := store.LoadScripts(ctx); err != nil {
			// EVALSHA falls back to EVAL, so this is not fatal
			log.Warn("failed to preload token bucket script", zap.Error(err))
		}
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr()))
		return store, nil
	}
}
