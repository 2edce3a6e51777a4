// Package metrics exposes sync counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomePartial = "partial"
	OutcomeError   = "error"
	// OutcomeConflict is an apply rejected because the outline changed
	// since the caller read it.
	OutcomeConflict = "conflict"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	syncs       *prometheus.CounterVec
	syncSeconds prometheus.Histogram
	rows        *prometheus.CounterVec
	rowErrors   prometheus.Counter
	cacheHits   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "craftwiki",
			Name:      "outline_syncs_total",
			Help:      "Outline apply calls by outcome.",
		}, []string{"outcome"}),
		syncSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "craftwiki",
			Name:      "outline_sync_duration_seconds",
			Help:      "Duration of outline apply calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "craftwiki",
			Name:      "reconciled_rows_total",
			Help:      "Rows written by the reconciler by kind and action.",
		}, []string{"kind", "action"}),
		rowErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "craftwiki",
			Name:      "reconcile_row_errors_total",
			Help:      "Row mutations that failed during reconciliation.",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "craftwiki",
			Name:      "outline_cache_requests_total",
			Help:      "Outline cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncs, m.syncSeconds, m.rows, m.rowErrors, m.cacheHits,
	)
	return m
}

// ObserveSync records one apply call.
func (m *Metrics) ObserveSync(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(outcome).Inc()
	m.syncSeconds.Observe(d.Seconds())
}

// AddRows records n rows of kind that received action (created, updated,
// hidden).
func (m *Metrics) AddRows(kind, action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(kind, action).Add(float64(n))
}

// AddRowErrors records failed row mutations.
func (m *Metrics) AddRowErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowErrors.Add(float64(n))
}

// CacheLookup records an outline cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.WithLabelValues("hit").Inc()
	} else {
		m.cacheHits.WithLabelValues("miss").Inc()
	}
}

// WatchSSEClients exports fn as the number of connected SSE clients. It is
// read on every scrape.
func (m *Metrics) WatchSSEClients(fn func() int) {
	if m == nil || fn == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "craftwiki",
		Name:      "sse_clients",
		Help:      "Connected SSE clients.",
	}, func() float64 { return float64(fn()) }))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
