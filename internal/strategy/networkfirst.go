package strategy

import (
	"context"
	"net/http"
	"time"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/fetch"
	"github.com/edgegate/edgegate/internal/observability"
)

// NetworkFirst prefers a live origin response and falls back through the
// runtime store, then the offline document, then the 503 placeholder.
type NetworkFirst struct {
	runtime     cache.Store
	primary     cache.Store
	fetcher     *fetch.Fetcher
	origin      string
	offlinePath string
	logger      observability.Logger
	ttl         time.Duration
}

// NewNetworkFirst creates a network-first strategy. runtime receives
// copies of successful responses; primary holds the installed offline
// fallback document under offlinePath.
func NewNetworkFirst(
	runtime, primary cache.Store,
	fetcher *fetch.Fetcher,
	origin, offlinePath string,
	ttl time.Duration,
	logger observability.Logger,
) *NetworkFirst {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &NetworkFirst{
		runtime:     runtime,
		primary:     primary,
		fetcher:     fetcher,
		origin:      origin,
		offlinePath: offlinePath,
		logger:      logger,
		ttl:         ttl,
	}
}

// Serve returns a response for the request, walking the fallback ladder:
// network, runtime store, offline document (for document requests), 503
// placeholder. A non-success status from the origin counts as a failure,
// consistently with the cache-first strategy.
func (s *NetworkFirst) Serve(ctx context.Context, r *http.Request) *cache.Response {
	key := cache.RequestKey(r)
	url := s.origin + r.URL.RequestURI()

	resp, err := s.fetcher.Do(ctx, http.MethodGet, url, r.Header, nil)
	if err == nil && resp != nil && resp.IsSuccess() {
		if putErr := s.runtime.Put(ctx, key, resp, s.ttl); putErr != nil {
			s.logger.Warn("failed to store network response",
				observability.String("key", key),
				observability.Error(putErr),
			)
		}
		GetMetrics().servedTotal.WithLabelValues("network_first", outcomeNetwork).Inc()
		return resp
	}

	s.logger.Debug("network-first fetch failed, consulting cache",
		observability.String("key", key),
		observability.Error(err),
	)

	if cached, matchErr := s.runtime.Match(ctx, key); matchErr == nil {
		GetMetrics().servedTotal.WithLabelValues("network_first", outcomeCached).Inc()
		return cached
	}

	if ExpectsDocument(r) {
		if offline, offErr := s.primary.Match(ctx, cache.PathKey(s.offlinePath)); offErr == nil {
			GetMetrics().servedTotal.WithLabelValues("network_first", outcomeOffline).Inc()
			return offline
		}
	}

	GetMetrics().servedTotal.WithLabelValues("network_first", outcomeSynth).Inc()
	return SynthesizeUnavailable()
}
