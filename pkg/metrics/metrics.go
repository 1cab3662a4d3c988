// Package metrics defines the Prometheus metric collectors used by the index
// controller and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the indexer. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	UpdatesEnqueuedTotal  *prometheus.CounterVec
	UpdatesProcessedTotal *prometheus.CounterVec
	UpdateDuration        *prometheus.HistogramVec
	UpdatesInFlight       prometheus.Gauge
	GenerationsCommitted  *prometheus.CounterVec
	PostingsStoreBytes    *prometheus.GaugeVec
	IndexDocuments        *prometheus.GaugeVec
	Indexes               prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates all collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them on Handler().
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpdatesEnqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_updates_enqueued_total",
				Help: "Total updates enqueued by kind.",
			},
			[]string{"kind"},
		),
		UpdatesProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_updates_processed_total",
				Help: "Total updates that reached a terminal state, by kind and status (processed, failed).",
			},
			[]string{"kind", "status"},
		),
		UpdateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_update_duration_seconds",
				Help:    "Time spent applying an update, from processing start to terminal state.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
		UpdatesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_updates_in_flight",
				Help: "Number of updates currently in the processing state.",
			},
		),
		GenerationsCommitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_generations_committed_total",
				Help: "Total committed index generations.",
			},
			[]string{"index"},
		),
		PostingsStoreBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_postings_store_bytes",
				Help: "Size of the current generation's posting-list store.",
			},
			[]string{"index"},
		),
		IndexDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Number of live documents in the current generation.",
			},
			[]string{"index"},
		),
		Indexes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexes",
				Help: "Number of known indexes.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ops_http_requests_total",
				Help: "Requests served by the operational HTTP server.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ops_http_request_duration_seconds",
				Help:    "Latency of operational HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ops_http_requests_in_flight",
				Help: "Operational HTTP requests being served.",
			},
		),
	}

	reg.MustRegister(
		m.UpdatesEnqueuedTotal,
		m.UpdatesProcessedTotal,
		m.UpdateDuration,
		m.UpdatesInFlight,
		m.GenerationsCommitted,
		m.PostingsStoreBytes,
		m.IndexDocuments,
		m.Indexes,
		m.CircuitBreakerState,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) UpdateEnqueued(kind string) {
	if m == nil {
		return
	}
	m.UpdatesEnqueuedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) UpdateStarted() {
	if m == nil {
		return
	}
	m.UpdatesInFlight.Inc()
}

// UpdateFinished records a terminal transition and its duration.
func (m *Metrics) UpdateFinished(kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpdatesInFlight.Dec()
	m.UpdatesProcessedTotal.WithLabelValues(kind, status).Inc()
	m.UpdateDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// GenerationCommitted records a new committed generation and its sizes.
func (m *Metrics) GenerationCommitted(index string, storeBytes int, documents uint64) {
	if m == nil {
		return
	}
	m.GenerationsCommitted.WithLabelValues(index).Inc()
	m.PostingsStoreBytes.WithLabelValues(index).Set(float64(storeBytes))
	m.IndexDocuments.WithLabelValues(index).Set(float64(documents))
}

// IndexRemoved drops the per-index series of a deleted index.
func (m *Metrics) IndexRemoved(index string) {
	if m == nil {
		return
	}
	m.GenerationsCommitted.DeleteLabelValues(index)
	m.PostingsStoreBytes.DeleteLabelValues(index)
	m.IndexDocuments.DeleteLabelValues(index)
}

func (m *Metrics) SetIndexes(n int) {
	if m == nil {
		return
	}
	m.Indexes.Set(float64(n))
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
