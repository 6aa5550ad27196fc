// Package metrics exposes Prometheus collectors for the journey engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "journey"

// Metrics groups the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	steps         *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	pendingTimers prometheus.Gauge
	stepDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of nodes interpreted, by node type",
			},
			[]string{"node_type"},
		),
		runsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_finished_total",
				Help:      "Total number of runs that reached a terminal status",
			},
			[]string{"status"},
		),
		pendingTimers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_timers",
				Help:      "Number of delay timers currently armed",
			},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time spent interpreting and persisting one node",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node_type"},
		),
	}

	for _, collector := range []prometheus.Collector{m.steps, m.runsFinished, m.pendingTimers, m.stepDuration} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) StepExecuted(nodeType string, seconds float64) {
	if m == nil {
		return
	}

	m.steps.WithLabelValues(nodeType).Inc()
	m.stepDuration.WithLabelValues(nodeType).Observe(seconds)
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}

	m.runsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) SetPendingTimers(count int) {
	if m == nil {
		return
	}

	m.pendingTimers.Set(float64(count))
}
