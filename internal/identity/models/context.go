package models

import (
	"time"

	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
)

// ContextStatus is the lifecycle state of an identity context.
type ContextStatus string

const (
	ContextStatusActive   ContextStatus = "active"
	ContextStatusInactive ContextStatus = "inactive"
)

// VerificationLevel is an ordered assurance tier assigned to a context.
// Higher ranks mean stronger identity proofing.
type VerificationLevel string

const (
	VerificationLevelNone     VerificationLevel = "NONE"
	VerificationLevelBasic    VerificationLevel = "BASIC"
	VerificationLevelStandard VerificationLevel = "STANDARD"
	VerificationLevelEnhanced VerificationLevel = "ENHANCED"
	VerificationLevelFull     VerificationLevel = "FULL"
)

var verificationLevelRank = map[VerificationLevel]int{
	VerificationLevelNone:     0,
	VerificationLevelBasic:    1,
	VerificationLevelStandard: 2,
	VerificationLevelEnhanced: 3,
	VerificationLevelFull:     4,
}

// Rank returns the ordering position of the level, -1 for unknown values.
func (l VerificationLevel) Rank() int {
	rank, ok := verificationLevelRank[l]
	if !ok {
		return -1
	}
	return rank
}

func (l VerificationLevel) IsValid() bool {
	_, ok := verificationLevelRank[l]
	return ok
}

// IdentityContext is a tenant- and module-scoped view of one identity's
// attributes and trust state.
//
// Invariants:
//   - (IdentityID, ContextType) is unique within a tenant
//   - TrustScore, when set, is within [0, 1]
//   - CreatedAt is immutable after construction
//
// Contexts are owned by the module that created them; integrations reference
// contexts but never mutate them directly. All mutations flow through the
// engine, coordinator, or trust authority so each produces a history entry.
type IdentityContext struct {
	ID                id.ContextID      `json:"id"`
	IdentityID        id.IdentityID     `json:"identity_id"`
	TenantID          id.TenantID       `json:"tenant_id"`
	ContextType       string            `json:"context_type"`
	VerificationLevel VerificationLevel `json:"verification_level"`
	TrustScore        *float64          `json:"trust_score,omitempty"`
	Status            ContextStatus     `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CreatedBy         id.UserID         `json:"created_by"`
	UpdatedBy         id.UserID         `json:"updated_by"`
}

func (c *IdentityContext) IsActive() bool {
	return c.Status == ContextStatusActive
}

// NewIdentityContext constructs an active context at level NONE with no trust
// score. The score stays nil until the first assessment.
func NewIdentityContext(contextID id.ContextID, identityID id.IdentityID, tenantID id.TenantID, contextType string, createdBy id.UserID, now time.Time) (*IdentityContext, error) {
	if contextType == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "context type cannot be empty")
	}
	if identityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity id is required")
	}
	return &IdentityContext{
		ID:                contextID,
		IdentityID:        identityID,
		TenantID:          tenantID,
		ContextType:       contextType,
		VerificationLevel: VerificationLevelNone,
		Status:            ContextStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
		CreatedBy:         createdBy,
		UpdatedBy:         createdBy,
	}, nil
}

// ValidTrustScore reports whether a score is inside the normalized range.
func ValidTrustScore(score float64) bool {
	return score >= 0 && score <= 1
}
