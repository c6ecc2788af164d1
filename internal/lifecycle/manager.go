// Package lifecycle manages cache version transitions: installing a new
// version's assets and activating it by evicting every other version's
// stores.
package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/fetch"
	"github.com/edgegate/edgegate/internal/observability"
)

// State is the lifecycle state of a cache version.
type State int

const (
	// StateInstalling means asset pre-population is in progress or has
	// not completed successfully.
	StateInstalling State = iota

	// StateActive means this version serves requests and all other
	// versions' stores have been dropped.
	StateActive

	// StateSuperseded means a newer version has been activated.
	StateSuperseded
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Manager drives install and activate transitions for the configured
// cache version.
type Manager struct {
	registry cache.Registry
	fetcher  *fetch.Fetcher
	cfg      *config.Config
	logger   observability.Logger

	mu    sync.RWMutex
	state State
}

// NewManager creates a lifecycle manager for the configured version.
func NewManager(cfg *config.Config, registry cache.Registry, fetcher *fetch.Fetcher, logger observability.Logger) *Manager {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Manager{
		registry: registry,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   logger,
		state:    StateInstalling,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	GetMetrics().stateGauge.Set(float64(s))
}

// Install pre-populates the primary store with every manifest asset.
// The operation is all-or-nothing: if any asset cannot be fetched, no
// entry is committed and the previous version keeps serving. Re-running
// Install for an already populated version refreshes the same entries
// and is safe.
func (m *Manager) Install(ctx context.Context) error {
	primaryName, _, _ := m.cfg.Cache.StoreNames()

	primary, err := m.registry.Open(ctx, primaryName)
	if err != nil {
		return fmt.Errorf("open primary store: %w", err)
	}

	// Fetch every asset before committing anything, so a partial
	// manifest never becomes visible.
	fetched := make(map[string]*cache.Response, len(m.cfg.Assets.Manifest))
	for _, assetPath := range m.cfg.Assets.Manifest {
		url := m.cfg.Origin.URL + assetPath

		resp, err := m.fetcher.CallWithRetry(ctx, http.MethodGet, url, nil, nil)
		if err != nil {
			GetMetrics().installsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("install asset %s: %w", assetPath, err)
		}
		if !resp.IsSuccess() {
			GetMetrics().installsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("install asset %s: unexpected status %d", assetPath, resp.StatusCode)
		}

		fetched[cache.PathKey(assetPath)] = resp
	}

	for key, resp := range fetched {
		// Manifest entries never expire; they are reclaimed by
		// whole-store deletion at activation.
		if err := primary.Put(ctx, key, resp, 0); err != nil {
			GetMetrics().installsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("store asset %s: %w", key, err)
		}
	}

	m.logger.Info("install complete",
		observability.String("store", primaryName),
		observability.Int("assets", len(fetched)),
	)
	GetMetrics().installsTotal.WithLabelValues("success").Inc()
	return nil
}

// Activate makes the configured version the serving one by dropping every
// store whose name does not belong to it. Activation is idempotent:
// re-activating the current version finds nothing to drop.
func (m *Manager) Activate(ctx context.Context) error {
	primaryName, runtimeName, imageName := m.cfg.Cache.StoreNames()
	current := map[string]struct{}{
		primaryName: {},
		runtimeName: {},
		imageName:   {},
	}

	names, err := m.registry.Names(ctx)
	if err != nil {
		return fmt.Errorf("list stores: %w", err)
	}

	for _, name := range names {
		if _, ok := current[name]; ok {
			continue
		}
		if err := m.registry.Drop(ctx, name); err != nil {
			return fmt.Errorf("drop store %s: %w", name, err)
		}
		m.logger.Info("dropped superseded store", observability.String("store", name))
		GetMetrics().storesDroppedTotal.Inc()
	}

	// Make sure the runtime and image stores for this version exist
	// before traffic arrives.
	if _, err := m.registry.Open(ctx, runtimeName); err != nil {
		return fmt.Errorf("open runtime store: %w", err)
	}
	if _, err := m.registry.Open(ctx, imageName); err != nil {
		return fmt.Errorf("open image store: %w", err)
	}

	m.setState(StateActive)
	m.logger.Info("version activated", observability.String("version", m.cfg.Cache.Version))
	return nil
}

// Supersede marks the version as replaced by a newer one. It does not
// touch stores; the newer version's activation drops them.
func (m *Manager) Supersede() {
	m.setState(StateSuperseded)
}
