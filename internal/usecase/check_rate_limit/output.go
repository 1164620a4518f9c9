package check_rate_limit

import "time"

// Decision represents the result of a rate limit check operation
type Decision struct {
	// Allowed indicates whether the request should be permitted to proceed.
	Allowed bool

	// Limit is the bucket capacity of the policy. Reported as X-RateLimit-Limit.
	Limit int

	// Remaining is the whole number of tokens left after the check, never negative.
	Remaining int

	// ResetAt is when at least one token is available again.
	ResetAt time.Time

	// RetryAfter is how long a rejected caller should wait. Zero when allowed.
	RetryAfter time.Duration

	// Bypassed is set when rate limiting is disabled and the store was not consulted.
	Bypassed bool

	// FailedOpen is set when the store failed and the request was allowed anyway.
	FailedOpen bool

	// FailedClosed is set when the store failed and the policy rejects on failure.
	FailedClosed bool

	// Message contains a human-readable explanation when the request is rejected:
	// "you have reached the maximum number of requests or actions allowed within a certain time frame"
	Message string
}
