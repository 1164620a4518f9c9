package entity

import (
	"errors"
	"fmt"
)

// Policy is the static rate-limit configuration of one guarded operation.
// It is built at route-registration time and is not mutated afterwards.
type Policy struct {
	Name       string  // Config/route identifier (ex: "auth_login")
	Prefix     string  // Store key namespace (ex: "auth_login:")
	Operation  string  // Operation segment of the bucket key (ex: "login")
	Capacity   int     // Maximum tokens
	RefillRate float64 // Tokens per second
	FailClosed bool    // Reject instead of admitting when the store is unavailable
}

// Validate checks the policy as a whole; bucket errors wrap ErrMisconfiguredBucket.
func (p Policy) Validate() error {
	if p.Name == "" {
		return errors.New("policy name is required")
	}
	if p.Operation == "" {
		return fmt.Errorf("policy %s: operation is required", p.Name)
	}
	if err := p.BucketConfig().Validate(); err != nil {
		return fmt.Errorf("policy %s: %w", p.Name, err)
	}
	return nil
}

// BucketConfig returns the bucket parameters of the policy
func (p Policy) BucketConfig() BucketConfig {
	return BucketConfig{Capacity: p.Capacity, RefillRate: p.RefillRate}
}

// Key returns the bucket key of identifier under this policy
func (p Policy) Key(identifier string) BucketKey {
	return NewBucketKey(p.Prefix, p.Operation, identifier)
}
