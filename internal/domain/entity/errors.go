package entity

import "errors"

var (
	// ErrQuotaExceeded marks a routine rejection: the bucket had fewer tokens than the request cost.
	ErrQuotaExceeded = errors.New("rate limit exceeded")

	// ErrStoreUnavailable wraps every failure of the shared bucket store
	// (network error, script error, timeout, malformed reply).
	ErrStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrMisconfiguredBucket is returned for capacity <= 0 or refill rate <= 0.
	ErrMisconfiguredBucket = errors.New("misconfigured bucket")

	// ErrInvalidCost is returned when a consume is attempted with a negative cost.
	ErrInvalidCost = errors.New("invalid token cost")
)
