package models

import (
	"time"

	id "crosslink/pkg/domain"
)

// SyncStatus is the ledger-entry lifecycle state. COMPLETED, PARTIAL and
// REJECTED are terminal; a terminal operation is never revisited for the same
// sync ID.
type SyncStatus string

const (
	SyncPendingApproval SyncStatus = "PENDING_APPROVAL"
	SyncCompleted       SyncStatus = "COMPLETED"
	SyncPartial         SyncStatus = "PARTIAL"
	SyncRejected        SyncStatus = "REJECTED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s SyncStatus) IsTerminal() bool {
	return s == SyncCompleted || s == SyncPartial || s == SyncRejected
}

// Conflict captures the two sides of a withheld attribute change. SourceValue
// is the transformed candidate, TargetValue the value currently stored.
// TargetContextID and Sensitivity travel with the conflict so the approval
// coordinator can apply the candidate without recomputing the pass.
type Conflict struct {
	SourceValue     string       `json:"source_value"`
	TargetValue     string       `json:"target_value"`
	TargetContextID id.ContextID `json:"target_context_id"`
	Sensitivity     string       `json:"sensitivity_level"`
}

// Operation is one ledger entry recording a synchronize() run.
//
// Lifecycle: created when synchronize() starts; becomes COMPLETED or PARTIAL
// immediately when no conflicts exist, otherwise PENDING_APPROVAL until
// approveSync() moves it to COMPLETED or REJECTED.
type Operation struct {
	ID                   id.SyncID           `json:"sync_id"`
	IntegrationID        id.IntegrationID    `json:"integration_id"`
	InitiatedBy          id.UserID           `json:"initiated_by"`
	StartedAt            time.Time           `json:"started_at"`
	CompletedAt          *time.Time          `json:"completed_at,omitempty"`
	Status               SyncStatus          `json:"status"`
	SyncedAttributes     []string            `json:"synced_attributes"`
	FailedAttributes     []string            `json:"failed_attributes,omitempty"`
	ConflictedAttributes map[string]Conflict `json:"conflicted_attributes,omitempty"`
	ApprovedBy           *id.UserID          `json:"approved_by,omitempty"`
	ApprovedAt           *time.Time          `json:"approved_at,omitempty"`
}

// Clone returns a deep copy so callers can hand operations across goroutines
// without aliasing the store's slices and maps.
func (o *Operation) Clone() *Operation {
	clone := *o
	clone.SyncedAttributes = append([]string(nil), o.SyncedAttributes...)
	clone.FailedAttributes = append([]string(nil), o.FailedAttributes...)
	if o.ConflictedAttributes != nil {
		clone.ConflictedAttributes = make(map[string]Conflict, len(o.ConflictedAttributes))
		for k, v := range o.ConflictedAttributes {
			clone.ConflictedAttributes[k] = v
		}
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		clone.CompletedAt = &t
	}
	if o.ApprovedAt != nil {
		t := *o.ApprovedAt
		clone.ApprovedAt = &t
	}
	if o.ApprovedBy != nil {
		u := *o.ApprovedBy
		clone.ApprovedBy = &u
	}
	return &clone
}
