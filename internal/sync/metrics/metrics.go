package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the synchronization engine.
type Metrics struct {
	SyncsTotal          *prometheus.CounterVec
	AttributesSynced    prometheus.Counter
	AttributesConflicts prometheus.Counter
	AttributesFailed    prometheus.Counter
	ApprovalsTotal      *prometheus.CounterVec
	SyncDuration        prometheus.Histogram
}

// New creates and registers all synchronization metrics.
func New() *Metrics {
	return &Metrics{
		SyncsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crosslink_syncs_total",
			Help: "Synchronization runs by resulting ledger status",
		}, []string{"status"}),
		AttributesSynced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosslink_sync_attributes_synced_total",
			Help: "Attributes applied automatically during synchronization",
		}),
		AttributesConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosslink_sync_attributes_conflicted_total",
			Help: "Attributes withheld for human approval",
		}),
		AttributesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosslink_sync_attributes_failed_total",
			Help: "Attributes that failed to apply during synchronization",
		}),
		ApprovalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crosslink_sync_approvals_total",
			Help: "Approval resolutions by outcome",
		}, []string{"outcome"}),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "crosslink_sync_duration_seconds",
			Help:    "Wall time of synchronize() calls including lock wait",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
