package strategy

import (
	"context"
	"net/http"
	"time"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/fetch"
	"github.com/edgegate/edgegate/internal/observability"
)

// revalidateTimeout bounds a detached background refresh.
const revalidateTimeout = 30 * time.Second

// CacheFirst serves from the store immediately when possible and refreshes
// the entry from the network in the background (stale-while-revalidate).
type CacheFirst struct {
	store   cache.Store
	fetcher *fetch.Fetcher
	origin  string
	logger  observability.Logger
	ttl     time.Duration
}

// NewCacheFirst creates a cache-first strategy over the given store.
// origin is the base URL requests are refetched from.
func NewCacheFirst(store cache.Store, fetcher *fetch.Fetcher, origin string, ttl time.Duration, logger observability.Logger) *CacheFirst {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CacheFirst{
		store:   store,
		fetcher: fetcher,
		origin:  origin,
		logger:  logger,
		ttl:     ttl,
	}
}

// Serve returns a response for the request. The caller always receives
// either a real response or the well-formed 503 placeholder, never an
// unhandled failure.
func (s *CacheFirst) Serve(ctx context.Context, r *http.Request) *cache.Response {
	key := cache.RequestKey(r)
	url := s.origin + r.URL.RequestURI()

	cached, err := s.store.Match(ctx, key)
	if err == nil {
		// Serve the hit immediately; refresh without blocking the caller.
		go s.revalidate(key, url, r.Header.Clone())

		GetMetrics().servedTotal.WithLabelValues("cache_first", outcomeCacheHit).Inc()
		return cached
	}

	resp, fetchErr := s.fetcher.Do(ctx, http.MethodGet, url, r.Header, nil)
	if fetchErr != nil || resp == nil || !resp.IsSuccess() {
		s.logger.Warn("cache-first miss with failed fetch",
			observability.String("key", key),
			observability.Error(fetchErr),
		)
		GetMetrics().servedTotal.WithLabelValues("cache_first", outcomeSynth).Inc()
		return SynthesizeUnavailable()
	}

	if putErr := s.store.Put(ctx, key, resp, s.ttl); putErr != nil {
		s.logger.Warn("failed to store fetched response",
			observability.String("key", key),
			observability.Error(putErr),
		)
	}

	GetMetrics().servedTotal.WithLabelValues("cache_first", outcomeNetwork).Inc()
	return resp
}

// revalidate refreshes a cache entry from the network. It runs detached
// from the request that triggered it: failures are deliberately ignored,
// because the caller has already been answered from cache. The write is
// last-write-wins with no ordering guarantee against concurrent refreshes.
func (s *CacheFirst) revalidate(key, url string, header http.Header) {
	ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
	defer cancel()

	resp, err := s.fetcher.Do(ctx, http.MethodGet, url, header, nil)
	if err != nil || resp == nil || !resp.IsSuccess() {
		// Deliberate no-op: background refresh failure must not disturb
		// the already-served cached response.
		return
	}

	if err := s.store.Put(ctx, key, resp, s.ttl); err != nil {
		s.logger.Debug("background refresh store failed",
			observability.String("key", key),
			observability.Error(err),
		)
	}
}
