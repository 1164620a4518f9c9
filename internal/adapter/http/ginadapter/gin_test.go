package ginadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EuricoCruz/stream_rate_limiter/internal/adapter/http/middleware"
	"github.com/EuricoCruz/stream_rate_limiter/internal/adapter/storage/memory"
	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
	"github.com/EuricoCruz/stream_rate_limiter/internal/usecase/check_rate_limit"
)

var createPolicy = entity.Policy{
	Name:       "stream_create",
	Prefix:     "stream_create:",
	Operation:  "create",
	Capacity:   2,
	RefillRate: 0.033,
}

func setupRouter(t *testing.T, opts ...Option) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewMemoryStorage()
	t.Cleanup(func() { store.Close() })

	now := time.Unix(1_700_000_000, 0)
	useCase := check_rate_limit.NewUseCase(store, check_rate_limit.WithClock(func() time.Time { return now }))

	guard, err := RateLimiter(useCase, createPolicy, opts...)
	require.NoError(t, err)

	router := gin.New()
	router.POST("/api/v1/streams", guard, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"id": "stream-1"})
	})
	return router
}

func post(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/streams", nil)
	req.RemoteAddr = ip + ":4321"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsUpToCapacityThenRejects(t *testing.T) {
	router := setupRouter(t)

	for i := 0; i < 2; i++ {
		w := post(router, "10.0.0.1")
		require.Equal(t, http.StatusCreated, w.Code, "Request %d should be allowed", i+1)
		assert.Equal(t, "2", w.Header().Get(middleware.HeaderLimit))
	}

	w := post(router, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "31", w.Header().Get(middleware.HeaderRetryAfter))

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, middleware.CodeRateLimitExceeded, body.Error.Code)
	assert.Equal(t, "/api/v1/streams", body.Error.Path)

	// Outro IP tem seu próprio bucket
	assert.Equal(t, http.StatusCreated, post(router, "10.0.0.2").Code)
}

func TestRateLimiter_CustomIdentifier(t *testing.T) {
	router := setupRouter(t, WithIdentifier(func(r *http.Request) string { return "tenant:acme" }))

	assert.Equal(t, http.StatusCreated, post(router, "10.0.0.1").Code)
	assert.Equal(t, http.StatusCreated, post(router, "10.0.0.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(router, "10.0.0.3").Code, "all callers share the tenant bucket")
}

func TestRateLimiter_RejectsMisconfiguredPolicy(t *testing.T) {
	policy := createPolicy
	policy.RefillRate = 0

	_, err := RateLimiter(check_rate_limit.NewUseCase(memory.NewMemoryStorage()), policy)
	assert.True(t, errors.Is(err, entity.ErrMisconfiguredBucket))

	_, err = RateLimiter(check_rate_limit.NewUseCase(memory.NewMemoryStorage()), createPolicy, WithCost(-1))
	assert.True(t, errors.Is(err, entity.ErrInvalidCost))
}
