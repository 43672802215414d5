// Package store defines the sync-ledger persistence port.
package store

import (
	"context"

	"crosslink/internal/sync/models"
	id "crosslink/pkg/domain"
)

// LedgerStore persists sync operations. Terminal operations are immutable;
// the only permitted update is the atomic PENDING_APPROVAL → terminal
// transition driven by the approval coordinator.
type LedgerStore interface {
	Create(ctx context.Context, op *models.Operation) error

	FindByID(ctx context.Context, syncID id.SyncID) (*models.Operation, error)

	ListByIntegration(ctx context.Context, integrationID id.IntegrationID) ([]*models.Operation, error)

	// TransitionFromPending writes op atomically, but only while the stored
	// operation is still PENDING_APPROVAL. Returns sentinel.ErrInvalidState
	// when the operation already reached a terminal status, which is how a
	// second concurrent approval loses the race instead of double-applying.
	TransitionFromPending(ctx context.Context, op *models.Operation) error
}
