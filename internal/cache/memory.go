package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/observability"
)

// tracerName is the OpenTelemetry tracer name for store operations.
const tracerName = "edgegate/cache"

// memoryRegistry holds in-memory stores keyed by name.
type memoryRegistry struct {
	logger     observability.Logger
	maxEntries int
	defaultTTL time.Duration

	mu     sync.RWMutex
	stores map[string]*memoryStore

	hits   int64
	misses int64

	stopCh chan struct{}
}

// memoryStore is a single in-memory LRU store.
type memoryStore struct {
	registry *memoryRegistry
	name     string

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
}

// memoryEntry represents an entry in a memory store.
type memoryEntry struct {
	key       string
	resp      *Response
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// newMemoryRegistry creates a registry of in-memory stores.
func newMemoryRegistry(cfg *config.CacheConfig, logger observability.Logger) *memoryRegistry {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultMaxEntries
	}

	r := &memoryRegistry{
		logger:     logger,
		maxEntries: maxEntries,
		defaultTTL: cfg.TTL.Duration(),
		stores:     make(map[string]*memoryStore),
		stopCh:     make(chan struct{}),
	}

	go r.cleanupLoop()

	logger.Info("memory store registry initialized",
		observability.Int("maxEntries", maxEntries),
		observability.Duration("defaultTTL", r.defaultTTL))

	return r
}

// Open returns the named store, creating it on first open.
func (r *memoryRegistry) Open(_ context.Context, name string) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[name]; ok {
		return s, nil
	}

	s := &memoryStore{
		registry: r,
		name:     name,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
	r.stores[name] = s

	r.logger.Debug("store opened",
		observability.String("store", name))

	return s, nil
}

// Names returns the names of all existing stores.
func (r *memoryRegistry) Names(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	return names, nil
}

// Drop deletes an entire store.
func (r *memoryRegistry) Drop(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stores[name]; !ok {
		return nil
	}

	delete(r.stores, name)
	GetMetrics().storeDropsTotal.WithLabelValues("memory").Inc()
	GetMetrics().entriesGauge.DeleteLabelValues("memory", name)

	r.logger.Info("store dropped",
		observability.String("store", name))

	return nil
}

// Close stops the cleanup goroutine and releases all stores.
func (r *memoryRegistry) Close() error {
	close(r.stopCh)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = make(map[string]*memoryStore)

	r.logger.Info("memory store registry closed")
	return nil
}

// Stats returns aggregate statistics across all stores.
func (r *memoryRegistry) Stats() Stats {
	r.mu.RLock()
	var entries int64
	for _, s := range r.stores {
		s.mu.Lock()
		entries += int64(s.eviction.Len())
		s.mu.Unlock()
	}
	r.mu.RUnlock()

	return Stats{
		Hits:    atomic.LoadInt64(&r.hits),
		Misses:  atomic.LoadInt64(&r.misses),
		Entries: entries,
	}
}

// cleanupLoop periodically removes expired entries from all stores.
func (r *memoryRegistry) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.RLock()
			stores := make([]*memoryStore, 0, len(r.stores))
			for _, s := range r.stores {
				stores = append(stores, s)
			}
			r.mu.RUnlock()

			for _, s := range stores {
				s.cleanup()
			}
		case <-r.stopCh:
			return
		}
	}
}

// Match retrieves the stored response for a key.
func (s *memoryStore) Match(ctx context.Context, key string) (*Response, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Match",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.store", s.name),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"memory", "match",
		).Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[key]
	if !exists {
		atomic.AddInt64(&s.registry.misses, 1)
		GetMetrics().missesTotal.WithLabelValues("memory").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)

	if entry.expired(time.Now()) {
		s.removeElement(elem)
		atomic.AddInt64(&s.registry.misses, 1)
		GetMetrics().missesTotal.WithLabelValues("memory").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	s.eviction.MoveToFront(elem)

	atomic.AddInt64(&s.registry.hits, 1)
	GetMetrics().hitsTotal.WithLabelValues("memory").Inc()
	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(entry.resp.Body)),
	)

	return entry.resp, nil
}

// Put stores a response, replacing any existing entry for the key.
func (s *memoryStore) Put(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Put",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.store", s.name),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"memory", "put",
		).Observe(time.Since(start).Seconds())
	}()

	if ttl == 0 {
		ttl = s.registry.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	entry := &memoryEntry{
		key:       key,
		resp:      resp,
		expiresAt: expiresAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[key]; exists {
		s.eviction.MoveToFront(elem)
		elem.Value = entry
		return nil
	}

	elem := s.eviction.PushFront(entry)
	s.items[key] = elem

	for s.eviction.Len() > s.registry.maxEntries {
		s.evictOldest()
	}

	GetMetrics().entriesGauge.WithLabelValues(
		"memory", s.name,
	).Set(float64(s.eviction.Len()))

	s.registry.logger.Debug("store put",
		observability.String("store", s.name),
		observability.String("key", key),
		observability.Duration("ttl", ttl))

	return nil
}

// Delete removes the entry for a key.
func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[key]; exists {
		s.removeElement(elem)
	}
	return nil
}

// Keys returns all non-expired keys in the store.
func (s *memoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(s.items))
	for elem := s.eviction.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*memoryEntry)
		if entry.expired(now) {
			continue
		}
		keys = append(keys, entry.key)
	}
	return keys, nil
}

// Len returns the number of entries in the store.
func (s *memoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eviction.Len(), nil
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (s *memoryStore) evictOldest() {
	elem := s.eviction.Back()
	if elem != nil {
		s.removeElement(elem)
		GetMetrics().evictionsTotal.WithLabelValues("memory").Inc()
	}
}

// removeElement removes an element from the store.
// Must be called with lock held.
func (s *memoryStore) removeElement(elem *list.Element) {
	s.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(s.items, entry.key)
}

// cleanup removes expired entries under a single write lock so entries
// cannot change between identification and removal.
func (s *memoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := s.eviction.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*memoryEntry)
		if entry.expired(now) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		s.removeElement(elem)
	}
}
