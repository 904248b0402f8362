package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential delays with optional jitter.
type Backoff struct {
	policy Policy
	rand   func() float64
}

func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy, rand: rand.Float64}
}

// Calculate returns the delay before the given attempt (1-based).
func (b *Backoff) Calculate(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.policy.InitialBackoff) * math.Pow(b.policy.Multiplier, float64(attempt-1))
	if delay > float64(b.policy.MaxBackoff) {
		delay = float64(b.policy.MaxBackoff)
	}
	if b.policy.Jitter > 0 {
		spread := delay * b.policy.Jitter
		delay = delay - spread + 2*spread*b.rand()
	}
	return time.Duration(delay)
}
