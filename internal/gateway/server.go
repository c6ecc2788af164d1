// Package gateway provides the HTTP front end: it intercepts requests,
// dispatches them to caching strategies, and queues failed writes.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/fetch"
	"github.com/edgegate/edgegate/internal/lifecycle"
	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/pending"
	"github.com/edgegate/edgegate/internal/strategy"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Server is the gateway HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	cfg       *config.Config
	selector  *strategy.Selector
	fetcher   *fetch.Fetcher
	registry  cache.Registry
	manager   *lifecycle.Manager
	pending   *pending.Store
	replayer  *pending.Replayer
	logger    observability.Logger
	bypassRT  http.RoundTripper

	mu      sync.RWMutex
	running bool
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithPending enables deferred write submissions.
func WithPending(store *pending.Store, replayer *pending.Replayer) Option {
	return func(s *Server) {
		s.pending = store
		s.replayer = replayer
	}
}

// WithBypassTransport overrides the transport used for pass-through
// requests. Used by tests.
func WithBypassTransport(rt http.RoundTripper) Option {
	return func(s *Server) {
		s.bypassRT = rt
	}
}

// New creates the gateway server and wires its routes and middleware.
func New(
	cfg *config.Config,
	selector *strategy.Selector,
	fetcher *fetch.Fetcher,
	registry cache.Registry,
	manager *lifecycle.Manager,
	logger observability.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()

	s := &Server{
		engine:   engine,
		cfg:      cfg,
		selector: selector,
		fetcher:  fetcher,
		registry: registry,
		manager:  manager,
		logger:   logger,
		bypassRT: http.DefaultTransport,
	}

	for _, opt := range opts {
		opt(s)
	}

	engine.Use(Recovery(logger))
	engine.Use(RequestID())
	engine.Use(Logging(logger))
	if rl := cfg.Server.RateLimit; rl != nil && rl.Enabled {
		engine.Use(RateLimit(rl, logger))
	}

	engine.GET("/healthz", s.handleHealth)
	engine.NoRoute(s.handleRequest)

	return s
}

// Engine returns the underlying gin engine. Used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Address, s.cfg.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  s.cfg.Server.IdleTimeout.Duration(),
	}

	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting gateway server",
		observability.String("address", addr),
		observability.String("origin", s.cfg.Origin.URL),
		observability.String("cacheVersion", s.cfg.Cache.Version),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping gateway server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// IsRunning reports whether the server is accepting requests.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// handleHealth answers liveness probes with the lifecycle state and, when
// available, aggregate cache statistics.
func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":       "ok",
		"state":        s.manager.State().String(),
		"cacheVersion": s.cfg.Cache.Version,
	}

	if provider, ok := s.registry.(cache.StatsProvider); ok {
		stats := provider.Stats()
		body["cache"] = gin.H{
			"hits":    stats.Hits,
			"misses":  stats.Misses,
			"entries": stats.Entries,
			"hitRate": stats.HitRate(),
		}
	}

	if s.pending != nil {
		if n, err := s.pending.Count(c.Request.Context()); err == nil {
			body["pendingSubmissions"] = n
		}
	}

	c.JSON(http.StatusOK, body)
}
