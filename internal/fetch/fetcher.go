// Package fetch performs outbound HTTP calls to the origin with per-attempt
// timeouts, circuit breaking, and transient-failure classification.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/retry"
)

// ErrAttemptTimeout indicates a single attempt exceeded its timeout ceiling.
var ErrAttemptTimeout = errors.New("attempt timed out")

// maxResponseBodySize caps buffered response bodies. Larger responses fail
// the fetch rather than exhausting memory.
const maxResponseBodySize = 10 << 20 // 10MB

// StatusError reports a non-success upstream status.
type StatusError struct {
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// IsTransient reports whether an error is expected to resolve on retry:
// upstream rate limiting (429), temporary unavailability (503), attempt
// timeouts, and network-level errors. Any other upstream status is
// permanent and must not be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode == http.StatusServiceUnavailable
	}

	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// The breaker rejecting calls is not improved by immediate retry.
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Remaining errors from http.Client are transport-level.
	return true
}

// Fetcher issues outbound HTTP requests.
type Fetcher struct {
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker
	logger         observability.Logger
	attemptTimeout time.Duration
	retryCfg       *retry.Config
}

// Option is a functional option for configuring the Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher from retry configuration.
func New(cfg *config.RetryConfig, opts ...Option) *Fetcher {
	attemptTimeout := cfg.AttemptTimeout.Duration()
	if attemptTimeout <= 0 {
		attemptTimeout = config.DefaultAttemptTimeout
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	initialDelay := cfg.InitialDelay.Duration()
	if initialDelay <= 0 {
		initialDelay = config.DefaultInitialDelay
	}

	f := &Fetcher{
		client:         &http.Client{},
		logger:         observability.NopLogger(),
		attemptTimeout: attemptTimeout,
		retryCfg: &retry.Config{
			MaxRetries:   maxRetries,
			InitialDelay: initialDelay,
		},
	}

	for _, opt := range opts {
		opt(f)
	}

	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "origin",
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			f.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Permanent upstream statuses are valid answers, not breaker
			// failures; only transport trouble should trip the breaker.
			if err == nil {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < http.StatusInternalServerError
			}
			return false
		},
	})

	return f
}

// Do performs a single fetch attempt bounded by the attempt timeout.
// A non-2xx status is returned as a response together with a *StatusError
// so callers can both classify the failure and inspect the payload.
// Network errors and timeouts return a nil response.
func (f *Fetcher) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*cache.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	var resp *cache.Response

	_, err := f.breaker.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if len(body) > 0 {
			reqBody = bytes.NewReader(body)
		}

		req, reqErr := http.NewRequestWithContext(attemptCtx, method, url, reqBody)
		if reqErr != nil {
			return nil, reqErr
		}
		for k, vals := range header {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}

		httpResp, doErr := f.client.Do(req)
		if doErr != nil {
			if attemptCtx.Err() == context.DeadlineExceeded {
				return nil, ErrAttemptTimeout
			}
			return nil, doErr
		}
		defer func() { _ = httpResp.Body.Close() }()

		respBody, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize+1))
		if readErr != nil {
			return nil, readErr
		}
		if len(respBody) > maxResponseBodySize {
			return nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBodySize)
		}

		resp = &cache.Response{
			StatusCode: httpResp.StatusCode,
			Headers:    cache.CloneHeaders(httpResp.Header),
			Body:       respBody,
		}

		if !resp.IsSuccess() {
			return nil, &StatusError{StatusCode: httpResp.StatusCode}
		}
		return nil, nil
	})

	GetMetrics().attemptsTotal.WithLabelValues(outcomeLabel(err)).Inc()

	if err != nil {
		return resp, err
	}
	return resp, nil
}

// CallWithRetry performs a fetch with bounded retries and exponential
// backoff. Only transient failures are retried; the delay before retry n
// is initialDelay × 2^(n−1). After exhausting retries the last failure is
// surfaced as a terminal error alongside the last response, if any.
func (f *Fetcher) CallWithRetry(ctx context.Context, method, url string, header http.Header, body []byte) (*cache.Response, error) {
	var lastResp *cache.Response

	err := retry.Do(ctx, f.retryCfg, func() error {
		resp, doErr := f.Do(ctx, method, url, header, body)
		if resp != nil {
			lastResp = resp
		}
		return doErr
	}, &retry.Options{
		ShouldRetry: IsTransient,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			GetMetrics().retriesTotal.Inc()
			f.logger.Warn("retrying origin call",
				observability.String("url", url),
				observability.Int("attempt", attempt),
				observability.Duration("delay", delay),
				observability.Error(err),
			)
		},
	})

	if err != nil {
		f.logger.Error("origin call failed",
			observability.String("url", url),
			observability.Error(err),
		)
		return lastResp, err
	}
	return lastResp, nil
}

// outcomeLabel maps an attempt result to a metrics label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAttemptTimeout):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return "upstream_error"
		}
		return "network_error"
	}
}
