package cache

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/retry"
)

// scanBatchSize is the COUNT hint for SCAN iterations.
const scanBatchSize = 256

// redisRetryConfig returns the retry configuration for Redis operations.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		JitterFactor: 0.25,
	}
}

// isRetryableRedisError checks if the error is retryable (network or
// connection errors). Cache misses and context errors are not.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// redisRegistry implements Registry on a shared Redis client. Each store
// occupies its own key namespace; the set of store names is tracked in a
// dedicated Redis set so Names works without scanning the whole keyspace.
type redisRegistry struct {
	logger     observability.Logger
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration

	hits   int64
	misses int64
}

// redisStore is a view over the registry's client scoped to one store name.
type redisStore struct {
	registry *redisRegistry
	name     string
}

// newRedisRegistry creates a Redis-backed store registry.
func newRedisRegistry(cfg *config.CacheConfig, logger observability.Logger) (*redisRegistry, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		return nil, errors.New("redis configuration is required")
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, errors.New("invalid redis URL: " + err.Error())
	}

	if cfg.Redis.PoolSize > 0 {
		opts.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.Redis.ConnectTimeout.Duration()
	}
	if cfg.Redis.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.Redis.ReadTimeout.Duration()
	}
	if cfg.Redis.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.Redis.WriteTimeout.Duration()
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.New("redis connection failed: " + err.Error())
	}

	keyPrefix := cfg.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "edgegate:"
	}

	r := &redisRegistry{
		logger:     logger,
		client:     client,
		keyPrefix:  keyPrefix,
		defaultTTL: cfg.TTL.Duration(),
	}

	logger.Info("redis store registry initialized",
		observability.String("keyPrefix", keyPrefix),
		observability.Duration("defaultTTL", r.defaultTTL))

	return r, nil
}

// namesKey is the Redis set holding all store names.
func (r *redisRegistry) namesKey() string {
	return r.keyPrefix + "stores"
}

// storePrefix is the key namespace for one store.
func (r *redisRegistry) storePrefix(name string) string {
	return r.keyPrefix + name + ":"
}

// Open returns the named store, registering the name on first open.
func (r *redisRegistry) Open(ctx context.Context, name string) (Store, error) {
	err := retry.Do(ctx, redisRetryConfig(), func() error {
		return r.client.SAdd(ctx, r.namesKey(), name).Err()
	}, &retry.Options{ShouldRetry: isRetryableRedisError})
	if err != nil {
		return nil, err
	}

	return &redisStore{registry: r, name: name}, nil
}

// Names returns the names of all existing stores.
func (r *redisRegistry) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := retry.Do(ctx, redisRetryConfig(), func() error {
		var smErr error
		names, smErr = r.client.SMembers(ctx, r.namesKey()).Result()
		return smErr
	}, &retry.Options{ShouldRetry: isRetryableRedisError})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Drop deletes an entire store: every key in its namespace plus its entry
// in the store name set.
func (r *redisRegistry) Drop(ctx context.Context, name string) error {
	prefix := r.storePrefix(name)

	iter := r.client.Scan(ctx, 0, prefix+"*", scanBatchSize).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= scanBatchSize {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}

	if err := r.client.SRem(ctx, r.namesKey(), name).Err(); err != nil {
		return err
	}

	GetMetrics().storeDropsTotal.WithLabelValues("redis").Inc()
	r.logger.Info("store dropped",
		observability.String("store", name))

	return nil
}

// Close closes the Redis connection.
func (r *redisRegistry) Close() error {
	r.logger.Info("redis store registry closing")
	return r.client.Close()
}

// Stats returns aggregate statistics.
func (r *redisRegistry) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&r.hits),
		Misses: atomic.LoadInt64(&r.misses),
	}
}

// Match retrieves the stored response for a key with retry.
func (s *redisStore) Match(ctx context.Context, key string) (*Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Match",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.store", s.name),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"redis", "match",
		).Observe(time.Since(start).Seconds())
	}()

	fullKey := s.registry.storePrefix(s.name) + key

	var data []byte
	err := retry.Do(ctx, redisRetryConfig(), func() error {
		val, getErr := s.registry.client.Get(ctx, fullKey).Bytes()
		if getErr != nil {
			return getErr
		}
		data = val
		return nil
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.registry.logger.Debug("retrying redis match",
				observability.String("key", key),
				observability.Int("attempt", attempt))
		},
	})

	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&s.registry.misses, 1)
		GetMetrics().missesTotal.WithLabelValues("redis").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}
	if err != nil {
		GetMetrics().errorsTotal.WithLabelValues("redis", "match").Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		s.registry.logger.Error("redis match failed",
			observability.String("key", key),
			observability.Error(err))
		return nil, err
	}

	resp, err := DecodeResponse(data)
	if err != nil {
		// A corrupt entry is treated as a miss and removed.
		_ = s.registry.client.Del(ctx, fullKey).Err()
		atomic.AddInt64(&s.registry.misses, 1)
		GetMetrics().missesTotal.WithLabelValues("redis").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	atomic.AddInt64(&s.registry.hits, 1)
	GetMetrics().hitsTotal.WithLabelValues("redis").Inc()
	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(resp.Body)),
	)

	return resp, nil
}

// Put stores a response with retry, replacing any existing entry.
func (s *redisStore) Put(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Put",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.store", s.name),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"redis", "put",
		).Observe(time.Since(start).Seconds())
	}()

	if ttl == 0 {
		ttl = s.registry.defaultTTL
	}

	data, err := resp.Encode()
	if err != nil {
		return err
	}

	fullKey := s.registry.storePrefix(s.name) + key

	err = retry.Do(ctx, redisRetryConfig(), func() error {
		return s.registry.client.Set(ctx, fullKey, data, ttl).Err()
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.registry.logger.Debug("retrying redis put",
				observability.String("key", key),
				observability.Int("attempt", attempt))
		},
	})

	if err != nil {
		GetMetrics().errorsTotal.WithLabelValues("redis", "put").Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		s.registry.logger.Error("redis put failed",
			observability.String("key", key),
			observability.Error(err))
		return err
	}

	s.registry.logger.Debug("store put",
		observability.String("store", s.name),
		observability.String("key", key),
		observability.Duration("ttl", ttl))

	return nil
}

// Delete removes the entry for a key.
func (s *redisStore) Delete(ctx context.Context, key string) error {
	fullKey := s.registry.storePrefix(s.name) + key

	return retry.Do(ctx, redisRetryConfig(), func() error {
		return s.registry.client.Del(ctx, fullKey).Err()
	}, &retry.Options{ShouldRetry: isRetryableRedisError})
}

// Keys returns all keys currently present in the store.
func (s *redisStore) Keys(ctx context.Context) ([]string, error) {
	prefix := s.registry.storePrefix(s.name)

	var keys []string
	iter := s.registry.client.Scan(ctx, 0, prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Len returns the number of entries in the store.
func (s *redisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
