// Package cache provides named, versioned response stores for edgegate.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the store.
	ErrCacheMiss = errors.New("cache miss")

	// ErrStoreNotFound indicates that the named store does not exist.
	ErrStoreNotFound = errors.New("store not found")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrConnectionFailed indicates that the cache connection failed.
	ErrConnectionFailed = errors.New("cache connection failed")
)

// Store is a single named collection of cached request→response pairs.
// At most one response is stored per key; Put overwrites.
type Store interface {
	// Match retrieves the stored response for a key.
	// Returns ErrCacheMiss if the key is not present.
	Match(ctx context.Context, key string) (*Response, error)

	// Put stores a response under the key, replacing any existing entry.
	// A TTL of 0 means the entry never expires.
	Put(ctx context.Context, key string, resp *Response, ttl time.Duration) error

	// Delete removes the entry for a key.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys currently present in the store.
	Keys(ctx context.Context) ([]string, error)

	// Len returns the number of entries in the store.
	Len(ctx context.Context) (int, error)
}

// Registry manages named stores. Stores are created on first open and
// reclaimed by whole-store deletion during activation.
type Registry interface {
	// Open returns the store with the given name, creating it if absent.
	Open(ctx context.Context, name string) (Store, error)

	// Names returns the names of all existing stores.
	Names(ctx context.Context) ([]string, error)

	// Drop deletes an entire store and all of its entries.
	Drop(ctx context.Context, name string) error

	// Close releases backend resources.
	Close() error
}

// StatsProvider is implemented by registries that track hit statistics.
type StatsProvider interface {
	// Stats returns aggregate statistics across all stores.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	// Hits is the number of cache hits.
	Hits int64

	// Misses is the number of cache misses.
	Misses int64

	// Entries is the current number of entries across all stores.
	Entries int64
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// NewRegistry creates a store registry based on the configuration.
func NewRegistry(cfg *config.CacheConfig, logger observability.Logger) (Registry, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Backend {
	case config.BackendMemory, "":
		return newMemoryRegistry(cfg, logger), nil
	case config.BackendRedis:
		return newRedisRegistry(cfg, logger)
	default:
		return nil, errors.New("unknown cache backend: " + cfg.Backend)
	}
}
