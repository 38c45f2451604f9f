// Package metrics exposes Prometheus counters for session persistence.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters shared by the backend and the services. Every
// counter is labelled with the session type ("session" or "tab_restore").
type Metrics struct {
	CommandsAppended *prometheus.CounterVec
	BytesWritten     *prometheus.CounterVec
	FileResets       *prometheus.CounterVec
	WriteFailures    *prometheus.CounterVec
	CommandsRead     *prometheus.CounterVec
	TruncatedReads   *prometheus.CounterVec
	Saves            *prometheus.CounterVec
	ScheduledResets  *prometheus.CounterVec
	RestoreEntries   prometheus.Gauge
}

// New registers the counters with reg. A nil reg uses a private registry so
// tests and multiple instances never collide.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	labels := []string{"type"}
	return &Metrics{
		CommandsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsession_commands_appended_total",
			Help: "Commands appended to the current session file",
		}, labels),
		BytesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsession_bytes_written_total",
			Help: "Bytes of command records written",
		}, labels),
		FileResets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsession_file_resets_total",
			Help: "Times the current session file was truncated or recreated",
		}, labels),
		WriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsession_write_failures_total",
			Help: "Append or header writes that failed",
		}, labels),
		CommandsRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsession_commands_read_total",
			Help: "Commands read back from the last session file",
		}, labels),
		TruncatedReads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsession_truncated_reads_total",
			Help: "Reads that stopped at a malformed record",
		}, labels),
		Saves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsession_saves_total",
			Help: "Batches of pending commands handed to the backend",
		}, labels),
		ScheduledResets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsession_scheduled_resets_total",
			Help: "Full log rewrites scheduled by the services",
		}, labels),
		RestoreEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabsession_tab_restore_entries",
			Help: "Entries currently in the recently closed list",
		}),
	}
}

// OrNew returns m, or a fresh unregistered set when m is nil.
func OrNew(m *Metrics) *Metrics {
	if m == nil {
		return New(nil)
	}
	return m
}
