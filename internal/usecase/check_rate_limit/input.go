package check_rate_limit

import (
	"errors"
	"fmt"

	"github.com/EuricoCruz/stream_rate_limiter/internal/domain/entity"
)

// DefaultCost is the number of tokens a request consumes when Input.Cost is zero
const DefaultCost = 1

// Input represents the input data for rate limit checking (DTO - Data Transfer Object)
type Input struct {
	Policy     entity.Policy
	Identifier string // Caller identity, ex: "ip:10.0.0.1" or "bearer:<hash>"
	Cost       int    // Tokens to consume, 0 means DefaultCost
}

// Validate validates the input data following Single Responsibility Principle
func (i Input) Validate() error {
	if err := i.Policy.Validate(); err != nil {
		return err
	}
	if i.Identifier == "" {
		return errors.New("identifier is required")
	}
	if i.Cost < 0 {
		return fmt.Errorf("%w: got %d", entity.ErrInvalidCost, i.Cost)
	}
	return nil
}

// EffectiveCost returns the cost applied to the bucket
func (i Input) EffectiveCost() int {
	if i.Cost == 0 {
		return DefaultCost
	}
	return i.Cost
}

// Key returns the bucket key for this input
func (i Input) Key() entity.BucketKey {
	return i.Policy.Key(i.Identifier)
}
