package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PhaseExtract   = "extract"
	PhaseTransform = "transform"
	PhaseLoad      = "load"
)

// PollsterMetrics captures per-run sync health signals: phase latency per
// entity, rows written and entity failures.
type PollsterMetrics struct {
	phaseDuration *prometheus.HistogramVec
	rowsLoaded    *prometheus.CounterVec
	entityErrors  *prometheus.CounterVec
	runs          prometheus.Counter
	runDuration   prometheus.Observer
}

var (
	pollsterMetricsOnce sync.Once
	pollsterMetrics     *PollsterMetrics
)

// Pollster returns the singleton pollster metrics registry.
func Pollster() *PollsterMetrics {
	pollsterMetricsOnce.Do(func() {
		pollsterMetrics = newPollsterMetrics(prometheus.DefaultRegisterer)
	})
	return pollsterMetrics
}

// ResetPollsterMetricsForTest resets the metrics singleton for tests.
func ResetPollsterMetricsForTest() {
	pollsterMetricsOnce = sync.Once{}
	pollsterMetrics = nil
}

func newPollsterMetrics(registerer prometheus.Registerer) *PollsterMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	phaseDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pollster_phase_duration_seconds",
		Help:    "Entity pipeline phase latency per table.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"table", "phase"})
	rowsLoaded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pollster_rows_loaded_total",
		Help: "Rows written to the reporting database per table.",
	}, []string{"table"})
	entityErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pollster_entity_errors_total",
		Help: "Entity pipeline failures per table.",
	}, []string{"table"})
	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pollster_runs_total",
		Help: "Update runs started.",
	})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pollster_run_duration_seconds",
		Help:    "Wall time of a full update run.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	registerer.MustRegister(
		phaseDuration,
		rowsLoaded,
		entityErrors,
		runs,
		runDuration,
	)

	return &PollsterMetrics{
		phaseDuration: phaseDuration,
		rowsLoaded:    rowsLoaded,
		entityErrors:  entityErrors,
		runs:          runs,
		runDuration:   runDuration,
	}
}

// IncRun counts an update run start.
func (m *PollsterMetrics) IncRun() {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.Inc()
}

// ObserveRunDuration records the wall time of a completed run.
func (m *PollsterMetrics) ObserveRunDuration(duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.Observe(duration.Seconds())
}

// ObservePhase records one pipeline phase's latency for a table.
func (m *PollsterMetrics) ObservePhase(table, phase string, duration time.Duration) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(table, phase).Observe(duration.Seconds())
}

// AddRowsLoaded counts rows written for a table.
func (m *PollsterMetrics) AddRowsLoaded(table string, count int) {
	if m == nil || m.rowsLoaded == nil || count <= 0 {
		return
	}
	m.rowsLoaded.WithLabelValues(table).Add(float64(count))
}

// IncEntityError counts a failed entity pipeline.
func (m *PollsterMetrics) IncEntityError(table string) {
	if m == nil || m.entityErrors == nil {
		return
	}
	m.entityErrors.WithLabelValues(table).Inc()
}
