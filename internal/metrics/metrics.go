// Package metrics holds the Prometheus metrics of the import pipeline.
//
// All Record methods are safe to call on a nil *ImportMetrics so components
// can run without metrics in tests and one-off CLI runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ImportMetrics holds all Prometheus metrics for imports.
type ImportMetrics struct {
	// Run metrics
	RunsTotal     *prometheus.CounterVec
	RunSeconds    *prometheus.HistogramVec
	ActiveImports prometheus.Gauge

	// Record metrics
	RecordsTotal *prometheus.CounterVec

	// Processor metrics
	SubItemsTotal  *prometheus.CounterVec
	TypeFlushTotal *prometheus.CounterVec
	TypesCreated   *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	QueueMessages  *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *ImportMetrics {
	factory := promauto.With(reg)

	return &ImportMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopimport_runs_total",
				Help: "Total import runs by domain, format and final status",
			},
			[]string{"domain", "format", "status"},
		),
		RunSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shopimport_run_seconds",
				Help:    "Duration of import runs",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
			},
			[]string{"domain", "format"},
		),
		ActiveImports: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shopimport_active_imports",
				Help: "Imports currently running",
			},
		),
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopimport_records_total",
				Help: "Records processed by domain and status",
			},
			[]string{"domain", "status"},
		),
		SubItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopimport_subitems_total",
				Help: "Sub-items reconciled by processor and action",
			},
			[]string{"processor", "action"},
		),
		TypeFlushTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopimport_type_flush_total",
				Help: "Type registry flushes by path and status",
			},
			[]string{"path", "status"},
		),
		TypesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopimport_types_created_total",
				Help: "Type records created by path",
			},
			[]string{"path"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopimport_cache_lookups_total",
				Help: "Lookup cache requests by resource and result",
			},
			[]string{"resource", "result"},
		),
		QueueMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopimport_queue_messages_total",
				Help: "Messages read from import queues",
			},
			[]string{"queue"},
		),
	}
}

// RecordRun records a finished import run.
func (m *ImportMetrics) RecordRun(domain, format, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(domain, format, status).Inc()
	m.RunSeconds.WithLabelValues(domain, format).Observe(seconds)
}

// RunStarted increments the active import gauge.
func (m *ImportMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveImports.Inc()
}

// RunFinished decrements the active import gauge.
func (m *ImportMetrics) RunFinished() {
	if m == nil {
		return
	}
	m.ActiveImports.Dec()
}

// RecordRecord records one processed record.
func (m *ImportMetrics) RecordRecord(domain, status string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(domain, status).Inc()
}

// RecordSubItems records reconciled sub-items of one action
// ("kept", "created", "removed").
func (m *ImportMetrics) RecordSubItems(processor, action string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.SubItemsTotal.WithLabelValues(processor, action).Add(float64(count))
}

// RecordTypeFlush records a type registry flush of one path.
func (m *ImportMetrics) RecordTypeFlush(path, status string, created int) {
	if m == nil {
		return
	}
	m.TypeFlushTotal.WithLabelValues(path, status).Inc()
	if created > 0 {
		m.TypesCreated.WithLabelValues(path).Add(float64(created))
	}
}

// RecordCacheLookup records a lookup cache request ("hit", "miss", "found").
func (m *ImportMetrics) RecordCacheLookup(resource, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(resource, result).Inc()
}

// RecordQueueMessage records a message taken from a queue.
func (m *ImportMetrics) RecordQueueMessage(queue string) {
	if m == nil {
		return
	}
	m.QueueMessages.WithLabelValues(queue).Inc()
}
