package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPollsterMetricsRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newPollsterMetrics(registry)

	m.IncRun()
	m.ObservePhase("instance", PhaseExtract, 2*time.Second)
	m.AddRowsLoaded("instance", 42)
	m.IncEntityError("image")
	m.ObserveRunDuration(10 * time.Second)

	assert.Equal(t, float64(42), testutil.ToFloat64(
		m.rowsLoaded.WithLabelValues("instance")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.entityErrors.WithLabelValues("image")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs))
}

func TestPollsterMetricsIgnoresNonPositiveRowCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newPollsterMetrics(registry)

	m.AddRowsLoaded("instance", 0)
	m.AddRowsLoaded("instance", -5)
	assert.Equal(t, float64(0), testutil.ToFloat64(
		m.rowsLoaded.WithLabelValues("instance")))
}

func TestPollsterMetricsNilSafe(t *testing.T) {
	var m *PollsterMetrics
	m.IncRun()
	m.ObservePhase("instance", PhaseLoad, time.Second)
	m.AddRowsLoaded("instance", 1)
	m.IncEntityError("instance")
	m.ObserveRunDuration(time.Second)
}

func TestPollsterSingleton(t *testing.T) {
	// registering against the default registerer twice would panic
	assert.Same(t, Pollster(), Pollster())
}
