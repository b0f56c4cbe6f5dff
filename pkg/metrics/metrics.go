// Package metrics exposes Prometheus instrumentation for the large-object
// runtime. A Registry implements the session's Metrics hooks and serves the
// standard /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for one process.
type Registry struct {
	registry *prometheus.Registry

	OpenHandles           prometheus.Gauge
	HandleOpensTotal      *prometheus.CounterVec
	TransactionEndsTotal  *prometheus.CounterVec
	TransactionHandles    prometheus.Histogram
	TransfersTotal        *prometheus.CounterVec
	TransferBytesTotal    *prometheus.CounterVec
	SessionsActive        prometheus.Gauge
}

// NewRegistry creates a registry with all metrics registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.init()
	return r
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// SetOpenHandles records current handle-table occupancy.
func (r *Registry) SetOpenHandles(n int) {
	r.OpenHandles.Set(float64(n))
}

// RecordOpen records one handle-producing open with its status
// (ok, error, exhausted).
func (r *Registry) RecordOpen(status string) {
	r.HandleOpensTotal.WithLabelValues(status).Inc()
}

// RecordTransactionEnd records one transaction end with its outcome
// (commit, abort) and the number of handles torn down.
func (r *Registry) RecordTransactionEnd(outcome string, handlesClosed int) {
	r.TransactionEndsTotal.WithLabelValues(outcome).Inc()
	r.TransactionHandles.Observe(float64(handlesClosed))
}

// RecordTransfer records one bulk transfer (direction: import, export).
func (r *Registry) RecordTransfer(direction string, bytes int64, status string) {
	r.TransfersTotal.WithLabelValues(direction, status).Inc()
	if bytes > 0 {
		r.TransferBytesTotal.WithLabelValues(direction).Add(float64(bytes))
	}
}

// SessionOpened / SessionClosed track live sessions on the server surface.
func (r *Registry) SessionOpened() { r.SessionsActive.Inc() }
func (r *Registry) SessionClosed() { r.SessionsActive.Dec() }
