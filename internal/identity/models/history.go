package models

import (
	"time"

	id "crosslink/pkg/domain"
)

// ChangeType labels what kind of mutation produced a history entry.
type ChangeType string

const (
	ChangeContextCreated     ChangeType = "CONTEXT_CREATED"
	ChangeContextUpdated     ChangeType = "CONTEXT_UPDATED"
	ChangeAttributeSet       ChangeType = "ATTRIBUTE_SET"
	ChangeAttributeRemoved   ChangeType = "ATTRIBUTE_REMOVED"
	ChangeIntegrationCreated ChangeType = "INTEGRATION_CREATED"
	ChangeIntegrationUpdated ChangeType = "INTEGRATION_UPDATED"
	ChangeIntegrationRemoved ChangeType = "INTEGRATION_REMOVED"
	ChangeMappingCreated     ChangeType = "MAPPING_CREATED"
	ChangeMappingRemoved     ChangeType = "MAPPING_REMOVED"
	ChangeSync               ChangeType = "SYNC"
	ChangeSyncApproval       ChangeType = "SYNC_APPROVAL"
	ChangeVerification       ChangeType = "VERIFICATION"
	ChangeTrustScore         ChangeType = "TRUST_SCORE"
)

// HistoryEntry is one append-only audit record for a context. Entries are
// immutable once written; every successful mutation in this subsystem produces
// exactly one. This trail is local and queryable, distinct from the
// fire-and-forget platform audit stream.
type HistoryEntry struct {
	ID             id.HistoryID      `json:"id"`
	ContextID      id.ContextID      `json:"context_id"`
	ChangeType     ChangeType        `json:"change_type"`
	ChangedFields  []string          `json:"changed_fields"`
	PreviousValues map[string]string `json:"previous_values,omitempty"`
	NewValues      map[string]string `json:"new_values,omitempty"`
	ChangedBy      id.UserID         `json:"changed_by"`
	Timestamp      time.Time         `json:"timestamp"`
	Reason         string            `json:"reason,omitempty"`
}
