package retry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff defines the interface for backoff strategies.
type Backoff interface {
	// Next returns the duration to wait before the next retry attempt.
	// attempt is zero-based: Next(0) is the delay before the first retry.
	Next(attempt int) time.Duration

	// Reset resets the backoff state.
	Reset()
}

// ExponentialBackoff implements exponential backoff with optional jitter.
type ExponentialBackoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	jitter  float64

	mu sync.Mutex
}

// NewExponentialBackoff creates a new exponential backoff. With a jitter of
// zero the sequence is deterministic: initial × factor^attempt, capped at max.
func NewExponentialBackoff(initial, max time.Duration, factor, jitter float64) *ExponentialBackoff {
	if factor <= 1 {
		factor = 2.0
	}
	return &ExponentialBackoff{
		initial: initial,
		max:     max,
		factor:  factor,
		jitter:  jitter,
	}
}

// Next implements Backoff.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoff := float64(b.initial) * math.Pow(b.factor, float64(attempt))

	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	if b.jitter > 0 {
		b.mu.Lock()
		// math/rand suffices: retry timing is not security-sensitive.
		//nolint:gosec // G404
		backoff += backoff * b.jitter * rand.Float64()
		b.mu.Unlock()
	}

	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}
	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// Reset implements Backoff. ExponentialBackoff is stateless.
func (b *ExponentialBackoff) Reset() {}

// ConstantBackoff implements constant backoff.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff creates a new constant backoff.
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	return &ConstantBackoff{interval: interval}
}

// Next implements Backoff.
func (b *ConstantBackoff) Next(_ int) time.Duration {
	return b.interval
}

// Reset implements Backoff. ConstantBackoff is stateless.
func (b *ConstantBackoff) Reset() {}
