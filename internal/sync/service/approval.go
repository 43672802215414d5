package service

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"crosslink/internal/audit"
	"crosslink/internal/authz"
	identitymodels "crosslink/internal/identity/models"
	syncmodels "crosslink/internal/sync/models"
	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/platform/sentinel"
	"crosslink/pkg/requestcontext"
)

// ApproveSync resolves a PENDING_APPROVAL ledger entry. Every key in the
// approved set that was originally conflicted gets its stored candidate value
// applied to the target attribute; conflicted keys left out of the approved
// set are discarded without retry. Approved keys that were never conflicted
// are ignored. After the call every original conflicted key is accounted for,
// applied or discarded, and the operation is terminal.
//
// A sync ID is approved at most once: a second call, concurrent or later,
// fails with an invariant violation instead of double-applying.
func (s *Service) ApproveSync(ctx context.Context, syncID id.SyncID, approvedKeys []string, approvedBy id.UserID) (*syncmodels.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "sync.approve")
	defer span.End()
	span.SetAttributes(attribute.String("sync_id", syncID.String()))

	op, err := s.ledger.FindByID(ctx, syncID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "sync operation %s not found", syncID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sync operation")
	}
	if op.Status != syncmodels.SyncPendingApproval {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "sync operation %s is already resolved (%s)", syncID, op.Status)
	}

	integration, err := s.integrations.FindByID(ctx, op.IntegrationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load integration for approval")
	}
	if err := s.gate.CheckContext(ctx, approvedBy, authz.PermissionSyncApprove, integration.TargetContextID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Same lease as synchronize(): approvals join the integration's total
	// order and never race a concurrent pass.
	lease, err := s.locker.Acquire(ctx, lockKey(op.IntegrationID), s.lockTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "could not acquire integration lock")
	}
	defer func() {
		if releaseErr := s.locker.Release(context.WithoutCancel(ctx), lease); releaseErr != nil {
			s.logger.ErrorContext(ctx, "failed to release sync lock",
				"integration_id", op.IntegrationID,
				"error", releaseErr,
			)
		}
	}()

	// Re-read under the lock; a sibling approval may have won the race
	// between the precondition check and lock acquisition.
	op, err = s.ledger.FindByID(ctx, syncID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload sync operation")
	}
	if op.Status != syncmodels.SyncPendingApproval {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "sync operation %s is already resolved (%s)", syncID, op.Status)
	}

	now := requestcontext.Now(ctx)
	approved := make(map[string]struct{}, len(approvedKeys))
	for _, key := range approvedKeys {
		approved[key] = struct{}{}
	}

	applied := make(map[string]string)
	conflictKeys := make([]string, 0, len(op.ConflictedAttributes))
	for key := range op.ConflictedAttributes {
		conflictKeys = append(conflictKeys, key)
	}
	sort.Strings(conflictKeys)

	appliedCount := 0
	for _, key := range conflictKeys {
		conflict := op.ConflictedAttributes[key]
		if _, ok := approved[key]; !ok {
			continue // discarded, no retry
		}
		if err := s.attributes.SetValue(ctx, conflict.TargetContextID, key, conflict.SourceValue, identitymodels.SensitivityLevel(conflict.Sensitivity), now); err != nil {
			// Per-attribute resilience, matching synchronize(): record the
			// failure against this key only and keep going.
			s.logger.WarnContext(ctx, "approved attribute apply failed",
				"sync_id", syncID,
				"key", key,
				"error", err,
			)
			op.FailedAttributes = append(op.FailedAttributes, key)
			continue
		}
		op.SyncedAttributes = append(op.SyncedAttributes, key)
		applied[key] = conflict.SourceValue
		appliedCount++
	}

	op.ConflictedAttributes = map[string]syncmodels.Conflict{}
	if appliedCount > 0 {
		op.Status = syncmodels.SyncCompleted
	} else {
		op.Status = syncmodels.SyncRejected
	}
	op.ApprovedBy = &approvedBy
	op.ApprovedAt = &now
	completed := now
	op.CompletedAt = &completed

	if err := s.ledger.TransitionFromPending(ctx, op); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "sync operation %s was resolved concurrently", syncID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to close sync operation")
	}

	if len(applied) > 0 {
		entry := &identitymodels.HistoryEntry{
			ID:            id.HistoryID(uuid.New()),
			ContextID:     integration.TargetContextID,
			ChangeType:    identitymodels.ChangeSyncApproval,
			ChangedFields: sortedKeys(applied),
			NewValues:     applied,
			ChangedBy:     approvedBy,
			Timestamp:     now,
			Reason:        "sync approval " + syncID.String(),
		}
		if err := s.history.Append(ctx, entry); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history entry")
		}
	}

	s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		ActorID:   approvedBy,
		Subject:   syncID.String(),
		Action:    audit.ActionSyncApproved,
		Decision:  string(op.Status),
		RequestID: requestcontext.RequestID(ctx),
	})
	if s.metrics != nil {
		s.metrics.ApprovalsTotal.WithLabelValues(string(op.Status)).Inc()
	}

	s.logger.InfoContext(ctx, "sync approval resolved",
		"sync_id", syncID,
		"status", op.Status,
		"applied", appliedCount,
	)
	return op.Clone(), nil
}

// GetOperation returns one ledger entry.
func (s *Service) GetOperation(ctx context.Context, syncID id.SyncID) (*syncmodels.Operation, error) {
	op, err := s.ledger.FindByID(ctx, syncID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "sync operation %s not found", syncID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sync operation")
	}
	return op, nil
}

// ListOperations returns the ledger entries for one integration, oldest first.
func (s *Service) ListOperations(ctx context.Context, integrationID id.IntegrationID) ([]*syncmodels.Operation, error) {
	ops, err := s.ledger.ListByIntegration(ctx, integrationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sync operations")
	}
	return ops, nil
}
