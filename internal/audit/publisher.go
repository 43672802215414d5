package audit

import (
	"context"
	"log/slog"
	"time"
)

// Store is the audit sink. The postgres implementation writes to the outbox
// table; the worker ships outbox rows to Kafka.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. Emission is fire-and-forget
// from the caller's perspective: a failed append is logged, never propagated,
// because the local history trail is the authoritative record and the audit
// stream is supplementary.
type Publisher struct {
	store  Store
	logger *slog.Logger
}

func NewPublisher(store Store, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
}
