// Package store defines the persistence ports for identity contexts,
// attributes, and the per-context history trail. Implementations live in
// subpackages (memory for unit tests, postgres for production) and return
// sentinel errors; services translate those into domain errors.
package store

import (
	"context"
	"time"

	"crosslink/internal/identity/models"
	id "crosslink/pkg/domain"
)

// ContextStore persists identity contexts.
type ContextStore interface {
	// Create inserts a context. Returns sentinel.ErrConflict when the
	// (tenant, identity, context type) tuple already exists.
	Create(ctx context.Context, ic *models.IdentityContext) error

	// FindByID returns sentinel.ErrNotFound for unknown IDs.
	FindByID(ctx context.Context, contextID id.ContextID) (*models.IdentityContext, error)

	// Execute atomically loads, validates, and mutates one context. The
	// callback runs under the store's lock (mutex or FOR UPDATE); returning an
	// error aborts the mutation.
	Execute(ctx context.Context, contextID id.ContextID, fn func(ic *models.IdentityContext) error) (*models.IdentityContext, error)
}

// AttributeStore persists context attributes.
type AttributeStore interface {
	// Create inserts an attribute. Returns sentinel.ErrConflict when an active
	// attribute with the same (context, key) already exists.
	Create(ctx context.Context, attr *models.ContextAttribute) error

	// Update rewrites an existing attribute by ID. Returns sentinel.ErrNotFound
	// for unknown IDs.
	Update(ctx context.Context, attr *models.ContextAttribute) error

	FindByID(ctx context.Context, attributeID id.AttributeID) (*models.ContextAttribute, error)

	// FindByKey returns the active attribute for (context, key), or
	// sentinel.ErrNotFound.
	FindByKey(ctx context.Context, contextID id.ContextID, key string) (*models.ContextAttribute, error)

	// Snapshot returns all active attributes of a context keyed by attribute
	// key. The engine resolves conflicts against this snapshot.
	Snapshot(ctx context.Context, contextID id.ContextID) (map[string]*models.ContextAttribute, error)

	// SetValue applies a synchronized value: updates the active attribute's
	// value when present, otherwise creates a new active attribute with the
	// given sensitivity.
	SetValue(ctx context.Context, contextID id.ContextID, key, value string, sensitivity models.SensitivityLevel, now time.Time) error

	// Deactivate soft-deletes the active attribute for (context, key),
	// freeing the key for reuse. Returns sentinel.ErrNotFound when absent.
	Deactivate(ctx context.Context, contextID id.ContextID, key string, now time.Time) error
}

// HistoryStore is the append-only per-context audit trail.
type HistoryStore interface {
	Append(ctx context.Context, entry *models.HistoryEntry) error
	ListByContext(ctx context.Context, contextID id.ContextID) ([]*models.HistoryEntry, error)
}
