package pending

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the pending submission queue.
type Metrics struct {
	queuedTotal  prometheus.Counter
	replaysTotal *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton pending metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers pending metric collectors with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.queuedTotal, m.replaysTotal)
}

func newMetrics() *Metrics {
	return &Metrics{
		queuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "pending",
			Name:      "queued_total",
			Help:      "Write submissions queued for replay",
		}),
		replaysTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "pending",
				Name:      "replays_total",
				Help:      "Replay attempts by result",
			},
			[]string{"result"},
		),
	}
}
