package retry

import (
	"errors"
	"fmt"
	"time"
)

// ErrMaxRetriesExceeded wraps the last error once a policy gives up.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy describes how many times and how fast an operation is retried.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is the fraction of each backoff that is randomised, 0.0 to 1.0.
	Jitter float64
	// RetryableFunc overrides the default transient/terminal classification.
	RetryableFunc func(error) bool
}

// DefaultPolicy suits short HTTP calls against public indexers.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// NoRetry runs the operation exactly once.
func NoRetry() Policy {
	return Policy{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
}

func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.InitialBackoff <= 0 {
		return fmt.Errorf("initial backoff must be positive")
	}
	if p.MaxBackoff < p.InitialBackoff {
		return fmt.Errorf("max backoff %s is below initial backoff %s", p.MaxBackoff, p.InitialBackoff)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %.2f", p.Multiplier)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("jitter must be within [0,1], got %.2f", p.Jitter)
	}
	return nil
}
