// Package config provides configuration types and loading for edgegate.
package config

import "time"

// Config is the root configuration for the edgegate service.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server" json:"server"`

	// Origin contains upstream origin configuration.
	Origin OriginConfig `yaml:"origin" json:"origin"`

	// Cache contains response store configuration.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Assets contains the static asset manifest and offline fallback.
	Assets AssetsConfig `yaml:"assets" json:"assets"`

	// Retry contains outbound retry configuration.
	Retry RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty"`

	// Pending contains deferred submission configuration.
	Pending PendingConfig `yaml:"pending,omitempty" json:"pending,omitempty"`

	// Observability contains logging, metrics, and tracing configuration.
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Address is the listen address (host part). Empty means all interfaces.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// Port is the listen port.
	Port int `yaml:"port" json:"port"`

	// ReadTimeout is the maximum duration for reading the full request.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the maximum duration before timing out response writes.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// IdleTimeout is the maximum duration to wait for the next request.
	IdleTimeout Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`

	// RateLimit contains per-client rate limiting configuration.
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

// RateLimitConfig holds token-bucket rate limiting configuration.
type RateLimitConfig struct {
	// Enabled indicates whether rate limiting is enabled.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// RequestsPerSecond is the steady-state request rate per client.
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty" json:"requestsPerSecond,omitempty"`

	// Burst is the maximum burst size per client.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// OriginConfig describes the upstream origin the gateway fronts.
type OriginConfig struct {
	// URL is the base URL of the origin, e.g. "http://localhost:3000".
	// Requests for any other host are passed through untouched.
	URL string `yaml:"url" json:"url"`

	// APIPrefix is the path prefix identifying API requests.
	APIPrefix string `yaml:"apiPrefix,omitempty" json:"apiPrefix,omitempty"`
}

// CacheConfig represents response store configuration.
type CacheConfig struct {
	// Backend is the store backend type: "memory" or "redis".
	Backend string `yaml:"backend" json:"backend"`

	// Version is the deploy-time cache version, e.g. "v3". Store names are
	// derived from it; activation drops every store from other versions.
	Version string `yaml:"version" json:"version"`

	// TTL is the default time-to-live for runtime store entries.
	// Zero means entries never expire.
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// MaxEntries is the maximum number of entries per memory store.
	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// Redis contains Redis-specific configuration.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig contains Redis-specific store configuration.
type RedisConfig struct {
	// URL is the Redis connection URL.
	// Format: redis://[user:password@]host:port[/db]
	URL string `yaml:"url" json:"url"`

	// PoolSize is the maximum number of connections in the pool.
	PoolSize int `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`

	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`

	// ReadTimeout is the timeout for read operations.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the timeout for write operations.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// KeyPrefix is a prefix added to all store keys.
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// AssetsConfig holds the static asset manifest and the offline fallback.
type AssetsConfig struct {
	// Manifest is the explicit list of asset paths that must be present in
	// the primary store after install. It is a fixed contract, not
	// discovered dynamically.
	Manifest []string `yaml:"manifest" json:"manifest"`

	// OfflinePath is the path of the offline fallback document. It must be
	// part of the manifest so it is available without network.
	OfflinePath string `yaml:"offlinePath,omitempty" json:"offlinePath,omitempty"`
}

// RetryConfig contains outbound retry configuration.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`

	// InitialDelay is the delay before the first retry; it doubles on each
	// subsequent retry.
	InitialDelay Duration `yaml:"initialDelay,omitempty" json:"initialDelay,omitempty"`

	// AttemptTimeout is the per-attempt timeout ceiling.
	AttemptTimeout Duration `yaml:"attemptTimeout,omitempty" json:"attemptTimeout,omitempty"`
}

// PendingConfig contains deferred-submission configuration.
type PendingConfig struct {
	// Enabled indicates whether write requests that cannot reach the origin
	// are queued for later replay.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the SQLite database file holding queued submissions.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// ReplaySchedule is a cron expression for periodic replay attempts.
	ReplaySchedule string `yaml:"replaySchedule,omitempty" json:"replaySchedule,omitempty"`
}

// ObservabilityConfig contains logging, metrics, and tracing configuration.
type ObservabilityConfig struct {
	// Logging contains logging configuration.
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`

	// Metrics contains metrics configuration.
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	// Tracing contains tracing configuration.
	Tracing *TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port,omitempty" json:"port,omitempty"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// TracingConfig contains tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// Store backend types.
const (
	// BackendMemory uses in-memory stores.
	BackendMemory = "memory"

	// BackendRedis uses Redis-backed stores.
	BackendRedis = "redis"
)

// Default values.
const (
	DefaultPort           = 8080
	DefaultAPIPrefix      = "/api/"
	DefaultOfflinePath    = "/offline.html"
	DefaultCacheVersion   = "v1"
	DefaultMaxEntries     = 10000
	DefaultMaxRetries     = 3
	DefaultInitialDelay   = 1 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
	DefaultReplaySchedule = "@every 1m"
	DefaultPendingPath    = "pending.db"
)

// StoreNames returns the versioned names of the three recognized stores:
// primary (static), runtime, and image.
func (c *CacheConfig) StoreNames() (primary, runtime, image string) {
	version := c.Version
	if version == "" {
		version = DefaultCacheVersion
	}
	return version + "-static", version + "-runtime", version + "-image"
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
		},
		Origin: OriginConfig{
			APIPrefix: DefaultAPIPrefix,
		},
		Cache: CacheConfig{
			Backend:    BackendMemory,
			Version:    DefaultCacheVersion,
			MaxEntries: DefaultMaxEntries,
		},
		Assets: AssetsConfig{
			OfflinePath: DefaultOfflinePath,
		},
		Retry: RetryConfig{
			MaxRetries:     DefaultMaxRetries,
			InitialDelay:   Duration(DefaultInitialDelay),
			AttemptTimeout: Duration(DefaultAttemptTimeout),
		},
		Pending: PendingConfig{
			Path:           DefaultPendingPath,
			ReplaySchedule: DefaultReplaySchedule,
		},
	}
}

// applyDefaults fills zero-value fields with defaults.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Origin.APIPrefix == "" {
		c.Origin.APIPrefix = DefaultAPIPrefix
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.Version == "" {
		c.Cache.Version = DefaultCacheVersion
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = DefaultMaxEntries
	}
	if c.Assets.OfflinePath == "" {
		c.Assets.OfflinePath = DefaultOfflinePath
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = Duration(DefaultInitialDelay)
	}
	if c.Retry.AttemptTimeout == 0 {
		c.Retry.AttemptTimeout = Duration(DefaultAttemptTimeout)
	}
	if c.Pending.Path == "" {
		c.Pending.Path = DefaultPendingPath
	}
	if c.Pending.ReplaySchedule == "" {
		c.Pending.ReplaySchedule = DefaultReplaySchedule
	}
}
