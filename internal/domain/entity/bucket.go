package entity

import (
	"fmt"
	"math"
	"time"
)

// BucketConfig is the static configuration of a token bucket. It is chosen per guarded
// operation and never persisted with the bucket state.
type BucketConfig struct {
	Capacity   int     // Maximum tokens (burst size)
	RefillRate float64 // Tokens added per second
}

// maxTTLSeconds is the longest expiry a time.Duration can hold in whole seconds
var maxTTLSeconds = float64(math.MaxInt64 / int64(time.Second))

// Validate rejects degenerate configurations (always reject / never refill) and
// buckets whose refill period does not fit a time.Duration.
func (c BucketConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrMisconfiguredBucket, c.Capacity)
	}
	if c.RefillRate <= 0 || math.IsNaN(c.RefillRate) || math.IsInf(c.RefillRate, 0) {
		return fmt.Errorf("%w: refill rate must be a positive number, got %v", ErrMisconfiguredBucket, c.RefillRate)
	}
	if 2*float64(c.Capacity)/c.RefillRate > maxTTLSeconds {
		return fmt.Errorf("%w: capacity %d at refill rate %v takes too long to refill", ErrMisconfiguredBucket, c.Capacity, c.RefillRate)
	}
	return nil
}

// FullRefill is the time an empty bucket needs to become full again.
func (c BucketConfig) FullRefill() time.Duration {
	return secondsToDuration(float64(c.Capacity) / c.RefillRate)
}

// TTL is the store expiry applied on every write: twice the full refill time, rounded up
// to whole seconds. A bucket idle for that long is full anyway, so dropping it is safe.
func (c BucketConfig) TTL() time.Duration {
	secs := math.Ceil(2 * float64(c.Capacity) / c.RefillRate)
	if secs < 1 {
		secs = 1
	}
	if secs > maxTTLSeconds || math.IsNaN(secs) {
		secs = maxTTLSeconds
	}
	return time.Duration(secs) * time.Second
}

// Bucket is the persisted token bucket state. Timestamps are unix seconds with a
// fractional part, the same representation the Redis script uses.
type Bucket struct {
	Tokens     float64
	LastRefill float64
}

// ConsumeOutcome is the result of one refill-and-consume step.
type ConsumeOutcome struct {
	Allowed    bool
	TokensLeft float64
	ResetAt    float64
}

// NewFullBucket is the implicit state of a bucket that does not exist yet.
func NewFullBucket(cfg BucketConfig, now float64) Bucket {
	return Bucket{Tokens: float64(cfg.Capacity), LastRefill: now}
}

// Refill tops the bucket up for the time elapsed since LastRefill.
//
// Example:
//
//	Bucket{Tokens: 0, LastRefill: now - 12} with RefillRate 0.083
//	Refill(cfg, now) leaves Tokens = 0.996
//
// A clock that moved backwards (elapsed <= 0) adds nothing and keeps LastRefill.
func (b *Bucket) Refill(cfg BucketConfig, now float64) {
	elapsed := now - b.LastRefill
	if elapsed > 0 {
		b.Tokens += elapsed * cfg.RefillRate
		b.LastRefill = now
	}
	b.Tokens = clamp(b.Tokens, 0, float64(cfg.Capacity))
}

// TryConsume removes cost tokens when enough are available. The bucket is left
// untouched otherwise.
func (b *Bucket) TryConsume(cost int) bool {
	if b.Tokens >= float64(cost) {
		b.Tokens -= float64(cost)
		return true
	}
	return false
}

// ResetAt is the moment at least one token is available.
func (b Bucket) ResetAt(cfg BucketConfig, now float64) float64 {
	if b.Tokens >= 1 {
		return now
	}
	return now + (1-b.Tokens)/cfg.RefillRate
}

// Consume runs the full sequence: refill, conditionally decrement, compute the reset time.
// Callers are responsible for running it atomically with respect to other consumers of
// the same bucket.
func (b *Bucket) Consume(cfg BucketConfig, now float64, cost int) ConsumeOutcome {
	b.Refill(cfg, now)
	allowed := b.TryConsume(cost)

	return ConsumeOutcome{
		Allowed:    allowed,
		TokensLeft: b.Tokens,
		ResetAt:    b.ResetAt(cfg, now),
	}
}

// UnixSeconds converts t to fractional unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// TimeFromUnixSeconds is the inverse of UnixSeconds.
func TimeFromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
