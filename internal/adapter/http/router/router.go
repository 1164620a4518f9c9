package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/EuricoCruz/stream_rate_limiter/internal/adapter/http/middleware"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
)

// APIPrefix is where the guarded API is mounted
const APIPrefix = "/api/v1"

const readyTimeout = time.Second

// Route binds a method and pattern under APIPrefix to the policy guarding it
type Route struct {
	Method  string
	Pattern string
	Policy  string
}

// GlobalPolicy guards every route under APIPrefix ahead of the per-route policy
const GlobalPolicy = "api_global"

// Routes returns the guarded API surface
func Routes() []Route {
	return []Route{
		{http.MethodPost, "/auth/register", "auth_register"},
		{http.MethodPost, "/auth/login", "auth_login"},
		{http.MethodGet, "/auth/activate", "auth_activate"},
		{http.MethodPost, "/auth/logout", "auth_logout"},
		{http.MethodPost, "/auth/forgot-password", "auth_forgot_password"},
		{http.MethodPost, "/auth/reset-password", "auth_reset_password"},
		{http.MethodPost, "/auth/change-password", "auth_change_password"},

		{http.MethodPost, "/streams", "stream_create"},
		{http.MethodGet, "/streams/live", "stream_live"},
		{http.MethodGet, "/streams/{id}", "stream_get"},
		{http.MethodPut, "/streams/{id}", "stream_update"},
		{http.MethodDelete, "/streams/{id}", "stream_delete"},
		{http.MethodPost, "/streams/{id}/start", "stream_start"},
		{http.MethodPost, "/streams/{id}/stop", "stream_stop"},
	}
}

// Pinger is the readiness probe of the bucket store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the router wires together
type Dependencies struct {
	RateLimiter *middleware.RateLimiterMiddleware
	Policies    map[string]entity.Policy
	Store       Pinger
	Upstream    http.Handler
	Logger      *zap.Logger
}

// New builds the HTTP handler. Every policy referenced by Routes is resolved and
// validated here, so a missing or misconfigured policy fails at startup.
func New(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	global, err := guardFor(deps, GlobalPolicy)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(accessLog(deps.Logger))

	r.Get("/health", health)
	r.Get("/ready", ready(deps.Store, deps.Logger))

	var routeErr error
	r.Route(APIPrefix, func(api chi.Router) {
		api.Use(global)

		for _, route := range Routes() {
			guard, err := guardFor(deps, route.Policy)
			if err != nil {
				routeErr = err
				return
			}
			api.With(guard).Method(route.Method, route.Pattern, deps.Upstream)
		}
	})
	if routeErr != nil {
		return nil, routeErr
	}

	return r, nil
}

func guardFor(deps Dependencies, name string) (func(http.Handler) http.Handler, error) {
	policy, ok := deps.Policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: policy %s is not configured", entity.ErrMisconfiguredBucket, name)
	}
	return deps.RateLimiter.Guard(policy)
}

// health é o liveness probe: não depende do Redis
func health(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

// ready reporta se o store responde
func ready(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// accessLog logs one line per request at DEBUG, rejected ones included
func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetRequestID(r.Context())),
			)
		})
	}
}
