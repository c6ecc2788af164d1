package strategy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for strategy outcomes.
type Metrics struct {
	servedTotal *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton strategy metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers strategy metric collectors with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.servedTotal)
}

// Outcome labels for servedTotal.
const (
	outcomeCacheHit = "cache_hit"
	outcomeNetwork  = "network"
	outcomeCached   = "cached_fallback"
	outcomeOffline  = "offline_fallback"
	outcomeSynth    = "synthetic"
)

func newMetrics() *Metrics {
	return &Metrics{
		servedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "strategy",
				Name:      "served_total",
				Help:      "Responses served by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
	}
}
