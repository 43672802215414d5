package models

import (
	"strings"
	"time"

	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
)

// SyncDirection declares which way an integration propagates attribute changes.
type SyncDirection string

const (
	DirectionSourceToTarget SyncDirection = "SOURCE_TO_TARGET"
	DirectionTargetToSource SyncDirection = "TARGET_TO_SOURCE"
	DirectionBidirectional  SyncDirection = "BIDIRECTIONAL"
)

func (d SyncDirection) IsValid() bool {
	switch d {
	case DirectionSourceToTarget, DirectionTargetToSource, DirectionBidirectional:
		return true
	}
	return false
}

// SyncMode declares whether conflicting changes apply automatically or wait
// for human approval.
type SyncMode string

const (
	SyncModeAutomatic        SyncMode = "AUTOMATIC"
	SyncModeRequiresApproval SyncMode = "REQUIRES_APPROVAL"
)

func (m SyncMode) IsValid() bool {
	return m == SyncModeAutomatic || m == SyncModeRequiresApproval
}

// Integration links two identity contexts for attribute synchronization.
//
// Invariants:
//   - the unordered (SourceContextID, TargetContextID) pair is unique
//   - SourceContextID != TargetContextID
type Integration struct {
	ID              id.IntegrationID `json:"id"`
	SourceContextID id.ContextID     `json:"source_context_id"`
	TargetContextID id.ContextID     `json:"target_context_id"`
	IntegrationType string           `json:"integration_type"`
	SyncDirection   SyncDirection    `json:"sync_direction"`
	SyncMode        SyncMode         `json:"sync_mode"`
	IsActive        bool             `json:"is_active"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CreatedBy       id.UserID        `json:"created_by"`
}

// NewIntegration validates the self-link and enum invariants. Pair uniqueness
// is enforced at the store, where the check and insert share a lock.
func NewIntegration(integrationID id.IntegrationID, source, target id.ContextID, integrationType string, direction SyncDirection, mode SyncMode, createdBy id.UserID, now time.Time) (*Integration, error) {
	if source == target {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "integration cannot link a context to itself")
	}
	if !direction.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown sync direction %q", direction)
	}
	if !mode.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown sync mode %q", mode)
	}
	return &Integration{
		ID:              integrationID,
		SourceContextID: source,
		TargetContextID: target,
		IntegrationType: integrationType,
		SyncDirection:   direction,
		SyncMode:        mode,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       createdBy,
	}, nil
}

// PairKey canonicalizes the context pair so the unordered-uniqueness invariant
// can be checked with a single lookup.
func PairKey(a, b id.ContextID) string {
	first, second := a.String(), b.String()
	if strings.Compare(first, second) > 0 {
		first, second = second, first
	}
	return first + ":" + second
}

// Pass is one directed synchronization sweep from a source context to a
// target context. BIDIRECTIONAL integrations expand to two passes.
type Pass struct {
	SourceContextID id.ContextID
	TargetContextID id.ContextID
}

// Passes expands the integration's direction into ordered sweeps.
func (i *Integration) Passes() []Pass {
	forward := Pass{SourceContextID: i.SourceContextID, TargetContextID: i.TargetContextID}
	reverse := Pass{SourceContextID: i.TargetContextID, TargetContextID: i.SourceContextID}
	switch i.SyncDirection {
	case DirectionSourceToTarget:
		return []Pass{forward}
	case DirectionTargetToSource:
		return []Pass{reverse}
	default:
		return []Pass{forward, reverse}
	}
}
