package models

import (
	"time"

	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
)

// SensitivityLevel classifies how much scrutiny an attribute change needs.
// HIGH and CRITICAL values are never overwritten automatically during
// synchronization; they always go through the approval workflow.
type SensitivityLevel string

const (
	SensitivityLow      SensitivityLevel = "LOW"
	SensitivityMedium   SensitivityLevel = "MEDIUM"
	SensitivityHigh     SensitivityLevel = "HIGH"
	SensitivityCritical SensitivityLevel = "CRITICAL"
)

func (s SensitivityLevel) IsValid() bool {
	switch s {
	case SensitivityLow, SensitivityMedium, SensitivityHigh, SensitivityCritical:
		return true
	}
	return false
}

// RequiresApproval reports whether conflicting changes to this sensitivity
// must be held for human approval regardless of the integration's sync mode.
func (s SensitivityLevel) RequiresApproval() bool {
	return s == SensitivityHigh || s == SensitivityCritical
}

// VerificationStatus is the per-attribute verification state machine position.
//
// Transitions: UNVERIFIED → PENDING → VERIFIED | REJECTED. VERIFIED and
// REJECTED are re-openable: a new verification request moves either back to
// PENDING. Every transition appends an immutable verification record.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationPending    VerificationStatus = "PENDING"
	VerificationVerified   VerificationStatus = "VERIFIED"
	VerificationRejected   VerificationStatus = "REJECTED"
)

func (v VerificationStatus) IsValid() bool {
	switch v {
	case VerificationUnverified, VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (v VerificationStatus) CanTransitionTo(next VerificationStatus) bool {
	switch next {
	case VerificationPending:
		// Any state can (re)enter PENDING via a new verification request.
		return v != VerificationPending
	case VerificationVerified, VerificationRejected:
		return v == VerificationPending
	}
	return false
}

// ContextAttribute is one key/value pair owned by an identity context.
//
// Invariants:
//   - (ContextID, Key) is unique among active attributes
//   - Verification records referencing the attribute are append-only
type ContextAttribute struct {
	ID                 id.AttributeID     `json:"id"`
	ContextID          id.ContextID       `json:"context_id"`
	Key                string             `json:"key"`
	Value              string             `json:"value"`
	Sensitivity        SensitivityLevel   `json:"sensitivity_level"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	VerificationSource string             `json:"verification_source,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	Active             bool               `json:"active"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewContextAttribute constructs an active, unverified attribute.
func NewContextAttribute(attributeID id.AttributeID, contextID id.ContextID, key, value string, sensitivity SensitivityLevel, now time.Time) (*ContextAttribute, error) {
	if key == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "attribute key cannot be empty")
	}
	if !sensitivity.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown sensitivity level %q", sensitivity)
	}
	return &ContextAttribute{
		ID:                 attributeID,
		ContextID:          contextID,
		Key:                key,
		Value:              value,
		Sensitivity:        sensitivity,
		VerificationStatus: VerificationUnverified,
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}
