package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the trust authority.
type Metrics struct {
	VerificationTransitions *prometheus.CounterVec
	LevelUpdates            prometheus.Counter
	TrustScoreUpdates       prometheus.Counter
}

// New creates and registers all trust metrics.
func New() *Metrics {
	return &Metrics{
		VerificationTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crosslink_verification_transitions_total",
			Help: "Attribute verification state transitions by resulting status",
		}, []string{"status"}),
		LevelUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosslink_verification_level_updates_total",
			Help: "Context verification level updates",
		}),
		TrustScoreUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosslink_trust_score_updates_total",
			Help: "Context trust score updates",
		}),
	}
}
