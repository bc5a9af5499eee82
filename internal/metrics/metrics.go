// Package metrics exposes Prometheus instrumentation around the command
// pipeline: the ambient observability layer carried alongside the core
// per SPEC_FULL.md's ambient stack, never gating correctness.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters and histograms the Command Consumer and WAL
// update as they process each command.
type Metrics struct {
	CommandsProcessed *prometheus.CounterVec
	TradesExecuted    prometheus.Counter
	WALAppendSeconds  prometheus.Histogram
	CommandSeconds    *prometheus.HistogramVec
}

// New registers and returns a fresh Metrics set against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obm_commands_processed_total",
			Help: "Commands processed by the command consumer, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obm_trades_executed_total",
			Help: "Trades emitted by the matching engine.",
		}),
		WALAppendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "obm_wal_append_seconds",
			Help:    "Latency of a single WAL append, including fsync.",
			Buckets: prometheus.DefBuckets,
		}),
		CommandSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "obm_command_seconds",
			Help:    "End-to-end latency of a command pipeline, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.CommandsProcessed, m.TradesExecuted, m.WALAppendSeconds, m.CommandSeconds)
	return m
}

// ObserveCommand records the duration of a command's full pipeline run
// since start, and increments its outcome counter.
func (m *Metrics) ObserveCommand(operation, outcome string, start time.Time) {
	m.CommandsProcessed.WithLabelValues(operation, outcome).Inc()
	m.CommandSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveWALAppend records how long a single WAL append (including
// fsync) took.
func (m *Metrics) ObserveWALAppend(start time.Time) {
	m.WALAppendSeconds.Observe(time.Since(start).Seconds())
}
