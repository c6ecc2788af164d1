// Package retry provides bounded retry with exponential backoff.
package retry

import (
	"context"
	"time"
)

// Default retry configuration constants.
const (
	// DefaultMaxRetries is the default maximum number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultInitialDelay is the default delay before the first retry.
	DefaultInitialDelay = 100 * time.Millisecond

	// DefaultMaxDelay is the default ceiling for a single backoff delay.
	DefaultMaxDelay = 30 * time.Second
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (not counting the
	// initial attempt). Default is 3.
	MaxRetries int

	// InitialDelay is the delay before the first retry. Default is 100ms.
	InitialDelay time.Duration

	// MaxDelay caps a single backoff delay. Default is 30s.
	MaxDelay time.Duration

	// JitterFactor adds up to the given fraction of random jitter to each
	// delay (0.0 to 1.0). Zero disables jitter, making delays exactly
	// initialDelay × 2^(n−1) for retry n.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// GetMaxRetries returns the effective max retries.
func (c *Config) GetMaxRetries() int {
	if c == nil || c.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// GetInitialDelay returns the effective initial delay.
func (c *Config) GetInitialDelay() time.Duration {
	if c == nil || c.InitialDelay <= 0 {
		return DefaultInitialDelay
	}
	return c.InitialDelay
}

// GetMaxDelay returns the effective max delay.
func (c *Config) GetMaxDelay() time.Duration {
	if c == nil || c.MaxDelay <= 0 {
		return DefaultMaxDelay
	}
	return c.MaxDelay
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// ShouldRetryFunc determines if an error should trigger a retry.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error, delay time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// ShouldRetry determines if an error should trigger a retry.
	// If nil, all errors are retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do executes fn with retry logic. Non-retryable errors (per
// opts.ShouldRetry) are returned immediately; after exhausting retries the
// last error is returned. The context is checked before each attempt and
// while sleeping between attempts.
func Do(ctx context.Context, cfg *Config, fn RetryableFunc, opts *Options) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	maxRetries := cfg.GetMaxRetries()
	backoff := NewExponentialBackoff(cfg.GetInitialDelay(), cfg.GetMaxDelay(), 2.0, cfg.JitterFactor)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		// No sleep after the last attempt.
		if attempt < maxRetries {
			delay := backoff.Next(attempt)

			if opts != nil && opts.OnRetry != nil {
				opts.OnRetry(attempt+1, lastErr, delay)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return lastErr
}
