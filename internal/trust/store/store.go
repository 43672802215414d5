// Package store defines the verification-trail persistence port.
package store

import (
	"context"

	"crosslink/internal/trust/models"
	id "crosslink/pkg/domain"
)

// VerificationLogStore is the first-class, append-only verification trail
// keyed by attribute. The store assigns each record the next sequence number
// for its attribute; records are never updated or removed.
type VerificationLogStore interface {
	Append(ctx context.Context, record *models.VerificationRecord) error
	ListByAttribute(ctx context.Context, attributeID id.AttributeID) ([]*models.VerificationRecord, error)
}
