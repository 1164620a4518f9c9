package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
	"github.com/EuricoCruz/stream_rate_limiter/internal/usecase/check_rate_limit"
)

// UseCase interface para permitir mock em testes
type UseCase interface {
	Execute(ctx context.Context, input check_rate_limit.Input) (*check_rate_limit.Decision, error)
}

// RateLimiterMiddleware builds per-operation guards around a shared use case
type RateLimiterMiddleware struct {
	useCase UseCase
	logger  *zap.Logger
}

func NewRateLimiterMiddleware(useCase UseCase, logger *zap.Logger) *RateLimiterMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiterMiddleware{
		useCase: useCase,
		logger:  logger,
	}
}

// GuardOption customizes a single guard
type GuardOption func(*guardOptions)

type guardOptions struct {
	identify IdentifierFunc
	cost     int
}

// WithIdentifier replaces BearerOrIPIdentifier for this guard
func WithIdentifier(fn IdentifierFunc) GuardOption {
	return func(o *guardOptions) {
		if fn != nil {
			o.identify = fn
		}
	}
}

// WithCost makes each request consume cost tokens
func WithCost(cost int) GuardOption {
	return func(o *guardOptions) {
		o.cost = cost
	}
}

// Guard returns a middleware enforcing policy. The policy is validated here so a
// misconfigured bucket fails at route registration, not on the first request.
func (m *RateLimiterMiddleware) Guard(policy entity.Policy, opts ...GuardOption) (func(http.Handler) http.Handler, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	o := guardOptions{identify: BearerOrIPIdentifier}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cost < 0 {
		return nil, fmt.Errorf("policy %s: %w: got %d", policy.Name, entity.ErrInvalidCost, o.cost)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Identifica o cliente (token > IP > "unknown")
			identifier := o.identify(r)
			if identifier == "" {
				identifier = UnknownIdentifier
			}

			input := check_rate_limit.Input{
				Policy:     policy,
				Identifier: identifier,
				Cost:       o.cost,
			}

			// 2. Executa use case
			decision, err := m.useCase.Execute(r.Context(), input)
			if err != nil {
				m.logger.Error("rate limiter error",
					zap.String("policy", policy.Name),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err),
				)
				m.sendInternalServerError(w, r)
				return
			}

			// 3. Headers de quota em toda requisição verificada
			SetRateLimitHeaders(w.Header(), decision)

			// 4. Se não permitido, rejeita com 429
			if !decision.Allowed {
				m.sendRateLimitExceeded(w, r, decision)
				return
			}

			// 5. Permitido - continua para próximo handler
			next.ServeHTTP(w, r)
		})
	}, nil
}

// sendInternalServerError envia resposta de erro interno 500
func (m *RateLimiterMiddleware) sendInternalServerError(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, http.StatusInternalServerError, NewInternalErrorResponse(r))
}

// sendRateLimitExceeded envia resposta de rate limit exceeded 429
func (m *RateLimiterMiddleware) sendRateLimitExceeded(w http.ResponseWriter, r *http.Request, decision *check_rate_limit.Decision) {
	m.writeJSON(w, http.StatusTooManyRequests, NewRateLimitExceededResponse(r, decision))
}

func (m *RateLimiterMiddleware) writeJSON(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		m.logger.Warn("failed to encode JSON error response", zap.Error(err))
	}
}
