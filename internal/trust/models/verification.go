package models

import (
	"time"

	id "crosslink/pkg/domain"
)

// VerificationRecord is one immutable entry in an attribute's verification
// trail. Records are append-only and ordered by Sequence; prior entries are
// never mutated when the state machine moves again.
type VerificationRecord struct {
	ID          id.HistoryID      `json:"id"`
	AttributeID id.AttributeID    `json:"attribute_id"`
	Sequence    int               `json:"sequence"`
	Status      string            `json:"status"`
	Source      string            `json:"source,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	RequestedBy id.UserID         `json:"requested_by"`
	Evidence    map[string]string `json:"evidence,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// ProviderResult is what the external identity-verification provider returns.
// The trust authority persists it; it never computes scores itself.
type ProviderResult struct {
	VerificationStatus string  `json:"verification_status"`
	TrustScore         float64 `json:"trust_score"`
}
