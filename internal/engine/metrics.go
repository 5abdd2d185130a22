package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/marketsync/internal/canon"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	records  *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	deletes  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// records counts processed records by kind and outcome
		// (created, updated, mapping, limit, transaction).
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsync_records_total",
			Help: "Records processed by entity kind and outcome",
		}, []string{"kind", "outcome"}),

		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsync_runs_total",
			Help: "Finished sync runs by entity kind and status",
		}, []string{"kind", "status"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketsync_run_duration_seconds",
			Help:    "Sync run wall time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		}, []string{"kind"}),

		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsync_snapshot_deletes_total",
			Help: "Roots removed by full-snapshot reconciliation",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.records, m.runs, m.duration, m.deletes)
	}
	return m
}

func (m *Metrics) record(kind canon.Kind, outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) finished(run *canon.SyncRun) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(run.Kind), string(run.Status)).Inc()
	m.duration.WithLabelValues(string(run.Kind)).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
}

func (m *Metrics) deleted(kind canon.Kind, n int) {
	if m == nil || n == 0 {
		return
	}
	m.deletes.WithLabelValues(string(kind)).Add(float64(n))
}
