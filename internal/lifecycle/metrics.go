package lifecycle

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for lifecycle transitions.
type Metrics struct {
	stateGauge         prometheus.Gauge
	installsTotal      *prometheus.CounterVec
	storesDroppedTotal prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton lifecycle metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers lifecycle metric collectors with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.stateGauge, m.installsTotal, m.storesDroppedTotal)
}

func newMetrics() *Metrics {
	return &Metrics{
		stateGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgegate",
			Subsystem: "lifecycle",
			Name:      "state",
			Help:      "Current lifecycle state (0=installing, 1=active, 2=superseded)",
		}),
		installsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgegate",
				Subsystem: "lifecycle",
				Name:      "installs_total",
				Help:      "Install attempts by result",
			},
			[]string{"result"},
		),
		storesDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "lifecycle",
			Name:      "stores_dropped_total",
			Help:      "Stores dropped during activation",
		}),
	}
}
