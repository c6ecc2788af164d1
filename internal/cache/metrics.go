package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for store operations.
type Metrics struct {
	hitsTotal         *prometheus.CounterVec
	missesTotal       *prometheus.CounterVec
	evictionsTotal    *prometheus.CounterVec
	entriesGauge      *prometheus.GaugeVec
	storeDropsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton cache metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers all cache metric collectors with the given
// Prometheus registry. promauto registers metrics with the default global
// registry, but the gateway serves /metrics from a custom registry;
// MustRegister bridges the two.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.hitsTotal,
		m.missesTotal,
		m.evictionsTotal,
		m.entriesGauge,
		m.storeDropsTotal,
		m.operationDuration,
		m.errorsTotal,
	)
}

func newMetrics() *Metrics {
	return &Metrics{
		hitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of store hits",
			},
			[]string{"backend"},
		),
		missesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of store misses",
			},
			[]string{"backend"},
		),
		evictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total number of entry evictions",
			},
			[]string{"backend"},
		),
		entriesGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "edgegate",
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of entries per store",
			},
			[]string{"backend", "store"},
		),
		storeDropsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "cache",
				Name:      "store_drops_total",
				Help:      "Total number of whole-store deletions",
			},
			[]string{"backend"},
		),
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edgegate",
				Subsystem: "cache",
				Name:      "operation_duration_seconds",
				Help:      "Duration of store operations",
				Buckets: []float64{
					.0001, .0005, .001, .005,
					.01, .025, .05, .1,
				},
			},
			[]string{"backend", "operation"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of store errors",
			},
			[]string{"backend", "operation"},
		),
	}
}
