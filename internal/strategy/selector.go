package strategy

import (
	"context"
	"net/http"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/fetch"
	"github.com/edgegate/edgegate/internal/observability"
)

// Strategy serves an intercepted request from cache, network, or a
// fallback. Implementations never return an unhandled failure.
type Strategy interface {
	Serve(ctx context.Context, r *http.Request) *cache.Response
}

// Selector classifies requests and dispatches them to a strategy bound to
// the appropriate store. Bypass requests get no strategy and are expected
// to be proxied untouched by the caller.
type Selector struct {
	classifier *Classifier

	static   *CacheFirst
	image    *CacheFirst
	api      *NetworkFirst
	fallback *NetworkFirst
}

// NewSelector wires the strategy dispatch table from configuration and the
// registry's open stores.
func NewSelector(
	ctx context.Context,
	cfg *config.Config,
	registry cache.Registry,
	fetcher *fetch.Fetcher,
	logger observability.Logger,
) (*Selector, error) {
	classifier, err := NewClassifier(cfg.Origin, cfg.Assets)
	if err != nil {
		return nil, err
	}

	primaryName, runtimeName, imageName := cfg.Cache.StoreNames()

	primary, err := registry.Open(ctx, primaryName)
	if err != nil {
		return nil, err
	}
	runtime, err := registry.Open(ctx, runtimeName)
	if err != nil {
		return nil, err
	}
	image, err := registry.Open(ctx, imageName)
	if err != nil {
		return nil, err
	}

	origin := cfg.Origin.URL
	ttl := cfg.Cache.TTL.Duration()

	return &Selector{
		classifier: classifier,
		static:     NewCacheFirst(primary, fetcher, origin, ttl, logger),
		image:      NewCacheFirst(image, fetcher, origin, ttl, logger),
		api:        NewNetworkFirst(runtime, primary, fetcher, origin, cfg.Assets.OfflinePath, ttl, logger),
		fallback:   NewNetworkFirst(runtime, primary, fetcher, origin, cfg.Assets.OfflinePath, ttl, logger),
	}, nil
}

// Select returns the classification of a request together with the
// strategy that should serve it. A nil strategy means the request is not
// intercepted.
func (s *Selector) Select(r *http.Request) (Classification, Strategy) {
	class := s.classifier.Classify(r)

	switch class {
	case ClassAPI:
		return class, s.api
	case ClassImage:
		return class, s.image
	case ClassStaticAsset:
		return class, s.static
	case ClassOther:
		return class, s.fallback
	default:
		return class, nil
	}
}
