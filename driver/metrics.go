package driver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the driver's Prometheus collectors.
type Metrics struct {
	trials  *prometheus.CounterVec
	phase   *prometheus.HistogramVec
	drained *prometheus.CounterVec
}

// NewMetrics registers the driver collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		trials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbench_trials_total",
			Help: "Benchmark phases run, by engine and outcome.",
		}, []string{"engine", "outcome"}),
		phase: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowbench_phase_duration_seconds",
			Help:    "Timed duration of successful benchmark phases.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
		}, []string{"engine", "phase"}),
		drained: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowbench_drained_items_total",
			Help: "Output items observed by drains.",
		}, []string{"engine"}),
	}
}

func (m *Metrics) observe(engine string, phase Phase, outcome string, seconds float64, drained int) {
	if m == nil {
		return
	}

	m.trials.WithLabelValues(engine, outcome).Inc()

	if outcome == outcomeOK {
		m.phase.WithLabelValues(engine, string(phase)).Observe(seconds)
		m.drained.WithLabelValues(engine).Add(float64(drained))
	}
}
