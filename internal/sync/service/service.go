// Package service orchestrates attribute synchronization between linked
// identity contexts: the engine runs synchronize() passes and the approval
// coordinator resolves withheld conflicts. Both serialize per integration
// through the lease lock so concurrent calls always observe fully committed
// state.
package service

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"crosslink/internal/audit"
	"crosslink/internal/authz"
	identitystore "crosslink/internal/identity/store"
	integrationstore "crosslink/internal/integration/store"
	"crosslink/internal/sync/lock"
	syncmetrics "crosslink/internal/sync/metrics"
	syncstore "crosslink/internal/sync/store"
)

// Defaults bound every synchronize()/approveSync() call; a stalled store can
// not hold the integration lock indefinitely.
const (
	DefaultLockTTL     = 30 * time.Second
	DefaultSyncTimeout = 15 * time.Second
)

// Service is the synchronization engine plus the approval coordinator.
type Service struct {
	integrations integrationstore.IntegrationStore
	mappings     integrationstore.MappingStore
	attributes   identitystore.AttributeStore
	history      identitystore.HistoryStore
	ledger       syncstore.LedgerStore
	locker       lock.Locker
	gate         *authz.Gate
	audit        *audit.Publisher
	metrics      *syncmetrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer

	lockTTL time.Duration
	timeout time.Duration
}

// Option customizes service construction.
type Option func(*Service)

// WithLockTTL overrides the lease TTL on the per-integration lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) { s.lockTTL = ttl }
}

// WithTimeout bounds one synchronize()/approveSync() call end to end.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.timeout = timeout }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *syncmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(
	integrations integrationstore.IntegrationStore,
	mappings integrationstore.MappingStore,
	attributes identitystore.AttributeStore,
	history identitystore.HistoryStore,
	ledger syncstore.LedgerStore,
	locker lock.Locker,
	gate *authz.Gate,
	auditPublisher *audit.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		integrations: integrations,
		mappings:     mappings,
		attributes:   attributes,
		history:      history,
		ledger:       ledger,
		locker:       locker,
		gate:         gate,
		audit:        auditPublisher,
		logger:       logger,
		tracer:       otel.Tracer("crosslink/sync"),
		lockTTL:      DefaultLockTTL,
		timeout:      DefaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
