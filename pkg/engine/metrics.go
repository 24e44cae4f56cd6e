package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the engine with Prometheus collectors.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the engine collectors. reg may be
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Action executions by action and terminal status.",
		}, []string{"action", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "engine",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of action executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"action"}),
	}
	reg.MustRegister(m.executions, m.duration)
	return m
}

func (m *Metrics) observe(action string, status Status, d time.Duration) {
	m.executions.WithLabelValues(action, string(status)).Inc()
	if d > 0 {
		m.duration.WithLabelValues(action).Observe(d.Seconds())
	}
}
