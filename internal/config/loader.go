package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, parses, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator-controlled flag
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Parse parses configuration from raw YAML bytes, applies defaults, and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks a configuration for consistency.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Origin.URL == "" {
		return fmt.Errorf("origin URL is required")
	}
	parsed, err := url.Parse(cfg.Origin.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid origin URL %q", cfg.Origin.URL)
	}

	if !strings.HasPrefix(cfg.Origin.APIPrefix, "/") {
		return fmt.Errorf("api prefix must start with /: %q", cfg.Origin.APIPrefix)
	}

	switch cfg.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if cfg.Cache.Redis == nil || cfg.Cache.Redis.URL == "" {
			return fmt.Errorf("redis backend requires a redis URL")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	if strings.ContainsAny(cfg.Cache.Version, " :/") {
		return fmt.Errorf("invalid cache version %q", cfg.Cache.Version)
	}

	for _, asset := range cfg.Assets.Manifest {
		if !strings.HasPrefix(asset, "/") {
			return fmt.Errorf("manifest asset must be an absolute path: %q", asset)
		}
	}

	if !strings.HasPrefix(cfg.Assets.OfflinePath, "/") {
		return fmt.Errorf("offline path must be an absolute path: %q", cfg.Assets.OfflinePath)
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must be non-negative")
	}

	return nil
}
