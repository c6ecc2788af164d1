package fetch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for outbound fetches.
type Metrics struct {
	attemptsTotal *prometheus.CounterVec
	retriesTotal  prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton fetch metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers fetch metric collectors with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.attemptsTotal, m.retriesTotal)
}

func newMetrics() *Metrics {
	return &Metrics{
		attemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "fetch",
				Name:      "attempts_total",
				Help:      "Total number of origin fetch attempts by outcome",
			},
			[]string{"outcome"},
		),
		retriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "fetch",
				Name:      "retries_total",
				Help:      "Total number of origin fetch retries",
			},
		),
	}
}
