package ginadapter

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/EuricoCruz/stream_rate_limiter/internal/adapter/http/middleware"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
	"github.com/EuricoCruz/stream_rate_limiter/internal/usecase/check_rate_limit"
)

// Option customizes the gin handler
type Option func(*options)

type options struct {
	identify middleware.IdentifierFunc
	cost     int
	logger   *zap.Logger
}

// WithIdentifier replaces middleware.BearerOrIPIdentifier
func WithIdentifier(fn middleware.IdentifierFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.identify = fn
		}
	}
}

// WithCost makes each request consume cost tokens
func WithCost(cost int) Option {
	return func(o *options) {
		o.cost = cost
	}
}

// WithLogger sets the logger for request-time errors
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// RateLimiter creates a Gin handler enforcing policy with the same headers and
// error body as middleware.RateLimiterMiddleware.
//
// Example:
//
//	guard, err := ginadapter.RateLimiter(useCase, policy)
//	if err != nil {
//		return err
//	}
//	router.POST("/api/v1/auth/login", guard, loginHandler)
func RateLimiter(useCase middleware.UseCase, policy entity.Policy, opts ...Option) (gin.HandlerFunc, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	o := options{identify: middleware.BearerOrIPIdentifier, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cost < 0 {
		return nil, fmt.Errorf("policy %s: %w: got %d", policy.Name, entity.ErrInvalidCost, o.cost)
	}

	return func(c *gin.Context) {
		identifier := o.identify(c.Request)
		if identifier == "" {
			identifier = middleware.UnknownIdentifier
		}

		decision, err := useCase.Execute(c.Request.Context(), check_rate_limit.Input{
			Policy:     policy,
			Identifier: identifier,
			Cost:       o.cost,
		})
		if err != nil {
			o.logger.Error("rate limiter error", zap.String("policy", policy.Name), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, middleware.NewInternalErrorResponse(c.Request))
			return
		}

		middleware.SetRateLimitHeaders(c.Writer.Header(), decision)

		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, middleware.NewRateLimitExceededResponse(c.Request, decision))
			return
		}

		c.Next()
	}, nil
}
