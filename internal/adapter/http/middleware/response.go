package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/EuricoCruz/stream_rate_limiter/internal/usecase/check_rate_limit"
)

// Response headers describing the caller's quota
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Error codes used in JSON error bodies
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON envelope of every error produced by the rate limiter
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error details
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Status    int            `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	Path      string         `json:"path"`
	Method    string         `json:"method"`
	RequestID string         `json:"request_id,omitempty"`
}

// SetRateLimitHeaders writes the quota headers for decision. Retry-After is only set on rejection.
func SetRateLimitHeaders(h http.Header, decision *check_rate_limit.Decision) {
	h.Set(HeaderLimit, strconv.Itoa(decision.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(decision.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(ResetUnix(decision.ResetAt), 10))

	if !decision.Allowed {
		h.Set(HeaderRetryAfter, strconv.FormatInt(RetryAfterSeconds(decision.RetryAfter), 10))
	}
}

// ResetUnix rounds the reset time up to whole unix seconds
func ResetUnix(t time.Time) int64 {
	secs := t.Unix()
	if t.Nanosecond() > 0 {
		secs++
	}
	return secs
}

// RetryAfterSeconds rounds d up to whole seconds, never negative
func RetryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// NewRateLimitExceededResponse builds the 429 body for a rejected request
func NewRateLimitExceededResponse(r *http.Request, decision *check_rate_limit.Decision) ErrorResponse {
	message := decision.Message
	if message == "" {
		message = check_rate_limit.RateLimitExceededMessage
	}

	return ErrorResponse{
		Error: ErrorBody{
			Code:    CodeRateLimitExceeded,
			Message: message,
			Status:  http.StatusTooManyRequests,
			Details: map[string]any{
				"retry_after": RetryAfterSeconds(decision.RetryAfter),
			},
			Path:      r.URL.Path,
			Method:    r.Method,
			RequestID: GetRequestID(r.Context()),
		},
	}
}

// NewInternalErrorResponse builds the 500 body
func NewInternalErrorResponse(r *http.Request) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:      CodeInternalError,
			Message:   "Internal Server Error",
			Status:    http.StatusInternalServerError,
			Path:      r.URL.Path,
			Method:    r.Method,
			RequestID: GetRequestID(r.Context()),
		},
	}
}
