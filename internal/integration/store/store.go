// Package store defines the persistence ports for integrations and attribute
// mappings. Implementations return sentinel errors; services translate them.
package store

import (
	"context"

	"crosslink/internal/integration/models"
	id "crosslink/pkg/domain"
)

// IntegrationStore persists cross-context integrations.
type IntegrationStore interface {
	// Create inserts an integration. Returns sentinel.ErrConflict when the
	// unordered context pair is already linked.
	Create(ctx context.Context, integration *models.Integration) error

	FindByID(ctx context.Context, integrationID id.IntegrationID) (*models.Integration, error)

	// Update rewrites an existing integration. Returns sentinel.ErrNotFound
	// for unknown IDs.
	Update(ctx context.Context, integration *models.Integration) error

	// Delete removes the integration, freeing its context pair.
	Delete(ctx context.Context, integrationID id.IntegrationID) error
}

// MappingStore persists attribute mappings.
type MappingStore interface {
	// Create inserts a mapping. Returns sentinel.ErrConflict when an active
	// mapping for the same (source, target, source key) already exists.
	Create(ctx context.Context, mapping *models.AttributeMapping) error

	FindByID(ctx context.Context, mappingID id.MappingID) (*models.AttributeMapping, error)

	Delete(ctx context.Context, mappingID id.MappingID) error

	// ListActiveForPass returns active mappings routing source → target,
	// ordered by ascending mapping ID so resolver output is reproducible.
	ListActiveForPass(ctx context.Context, source, target id.ContextID) ([]*models.AttributeMapping, error)
}
