package audit

import (
	"time"

	id "crosslink/pkg/domain"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Events flow through the
// outbox at least once; consumers must tolerate duplicates.
type Event struct {
	Timestamp time.Time
	ActorID   id.UserID
	TenantID  id.TenantID
	// Subject is the primary resource the action touched (context ID,
	// integration ID, sync ID).
	Subject   string
	Action    Action
	Decision  string
	Reason    string
	RequestID string
}

// Action names are stable contract values consumed downstream.
type Action string

const (
	ActionContextCreated     Action = "context_created"
	ActionAttributeSet       Action = "attribute_set"
	ActionAttributeRemoved   Action = "attribute_removed"
	ActionIntegrationCreated Action = "integration_created"
	ActionIntegrationUpdated Action = "integration_updated"
	ActionIntegrationRemoved Action = "integration_removed"
	ActionMappingCreated     Action = "mapping_created"
	ActionMappingRemoved     Action = "mapping_removed"
	ActionSyncExecuted       Action = "sync_executed"
	ActionSyncApproved       Action = "sync_approved"
	ActionVerificationMoved  Action = "verification_status_changed"
	ActionLevelUpdated       Action = "verification_level_updated"
	ActionTrustScoreUpdated  Action = "trust_score_updated"
)
