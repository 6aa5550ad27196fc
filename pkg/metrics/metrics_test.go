package metrics_test

import (
	"testing"

	"github.com/dukex/journey/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()

	m, err := metrics.New(registry)
	require.NoError(t, err)

	m.StepExecuted("MESSAGE", 0.01)
	m.StepExecuted("MESSAGE", 0.02)
	m.RunFinished("completed")
	m.SetPendingTimers(3)

	families, err := registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	assert.InDelta(t, 2, values["journey_steps_total"], 0)
	assert.InDelta(t, 1, values["journey_runs_finished_total"], 0)
	assert.InDelta(t, 3, values["journey_pending_timers"], 0)

	count, err := testutil.GatherAndCount(registry, "journey_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()

	_, err := metrics.New(registry)
	require.NoError(t, err)

	_, err = metrics.New(registry)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.StepExecuted("DELAY", 1)
		m.RunFinished("failed")
		m.SetPendingTimers(1)
	})
}
