package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServerConfig holds configuration for the metrics endpoint.
type MetricsServerConfig struct {
	// Port is the port to listen on.
	Port int

	// Path is the path to serve metrics on.
	Path string

	// ReadTimeout is the read timeout for the server.
	ReadTimeout time.Duration

	// WriteTimeout is the write timeout for the server.
	WriteTimeout time.Duration
}

// DefaultMetricsServerConfig returns a MetricsServerConfig with defaults.
func DefaultMetricsServerConfig() *MetricsServerConfig {
	return &MetricsServerConfig{
		Port:         9091,
		Path:         "/metrics",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// MetricsServer exposes Prometheus metrics on a dedicated listener, kept
// off the main serving port.
type MetricsServer struct {
	config *MetricsServerConfig
	server *http.Server
	logger Logger
}

// NewMetricsServer creates a metrics server.
func NewMetricsServer(config *MetricsServerConfig, logger Logger) *MetricsServer {
	if config == nil {
		config = DefaultMetricsServerConfig()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &MetricsServer{
		config: config,
		logger: logger,
	}
}

// Start starts the metrics server and blocks until it stops.
func (s *MetricsServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle(s.config.Path, promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{
			ErrorHandling:     promhttp.ContinueOnError,
			Timeout:           s.config.WriteTimeout,
			EnableOpenMetrics: true,
		},
	))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting metrics server",
		String("address", addr),
		String("path", s.config.Path),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}

// Stop shuts the metrics server down gracefully.
func (s *MetricsServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
