package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) init() {
	r.OpenHandles = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lobstore_open_handles",
			Help: "Currently occupied handle-table slots",
		},
	)

	r.HandleOpensTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lobstore_handle_opens_total",
			Help: "Handle-producing opens by status",
		},
		[]string{"status"},
	)

	r.TransactionEndsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lobstore_transaction_ends_total",
			Help: "Transaction ends by outcome",
		},
		[]string{"outcome"},
	)

	r.TransactionHandles = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lobstore_transaction_handles_closed",
			Help:    "Handles torn down per transaction end",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)

	r.TransfersTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lobstore_transfers_total",
			Help: "Bulk imports/exports by direction and status",
		},
		[]string{"direction", "status"},
	)

	r.TransferBytesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lobstore_transfer_bytes_total",
			Help: "Bytes moved by bulk imports/exports",
		},
		[]string{"direction"},
	)

	r.SessionsActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lobstore_sessions_active",
			Help: "Sessions currently open on the server",
		},
	)
}
