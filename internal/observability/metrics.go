package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_requests_total",
			Help: "Total number of daemon API requests",
		},
		[]string{"route", "code", "method"},
	)

	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_sync_runs_total",
			Help: "Total reconciliation runs by result",
		},
		[]string{"result"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wallet_sync_seconds",
			Help:    "Duration of reconciliation runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallet_queue_pending",
			Help: "Verification attempts waiting to be drained",
		},
	)

	QueueDrainedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_queue_drained_total",
			Help: "Verification attempts drained by result",
		},
		[]string{"result"},
	)

	StorageBytesUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallet_storage_bytes_used",
			Help: "Bytes used by the wallet database file",
		},
	)

	StorageNearLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallet_storage_near_limit",
			Help: "1 when storage usage has crossed the warning threshold",
		},
	)
)
