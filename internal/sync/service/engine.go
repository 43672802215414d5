package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"crosslink/internal/audit"
	"crosslink/internal/authz"
	identitymodels "crosslink/internal/identity/models"
	integrationmodels "crosslink/internal/integration/models"
	syncmodels "crosslink/internal/sync/models"
	"crosslink/internal/sync/resolver"
	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/platform/sentinel"
	"crosslink/pkg/requestcontext"
)

// Synchronize runs one reconciliation pass over an integration and returns
// the resulting ledger entry.
//
// Non-conflicting changes apply immediately, per attribute and best effort: a
// single store failure lands in FailedAttributes without aborting the batch.
// Conflicting changes are withheld on a PENDING_APPROVAL ledger entry until
// ApproveSync resolves them. Re-running with no intervening attribute change
// yields an empty SyncedAttributes list.
func (s *Service) Synchronize(ctx context.Context, integrationID id.IntegrationID, initiatedBy id.UserID) (*syncmodels.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "sync.synchronize")
	defer span.End()
	span.SetAttributes(attribute.String("integration_id", integrationID.String()))

	start := time.Now()

	integration, err := s.integrations.FindByID(ctx, integrationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "integration %s not found", integrationID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load integration")
	}
	if !integration.IsActive {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "integration %s is not active", integrationID)
	}

	// Both contexts must pass before any state is written.
	if err := s.gate.CheckContexts(ctx, initiatedBy, authz.PermissionSyncExecute,
		integration.SourceContextID, integration.TargetContextID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lease, err := s.locker.Acquire(ctx, lockKey(integrationID), s.lockTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "could not acquire integration lock")
	}
	defer func() {
		if releaseErr := s.locker.Release(context.WithoutCancel(ctx), lease); releaseErr != nil {
			s.logger.ErrorContext(ctx, "failed to release sync lock",
				"integration_id", integrationID,
				"error", releaseErr,
			)
		}
	}()

	op, err := s.runLocked(ctx, integration, initiatedBy)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SyncsTotal.WithLabelValues(string(op.Status)).Inc()
		s.metrics.AttributesSynced.Add(float64(len(op.SyncedAttributes)))
		s.metrics.AttributesConflicts.Add(float64(len(op.ConflictedAttributes)))
		s.metrics.AttributesFailed.Add(float64(len(op.FailedAttributes)))
		s.metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}

	s.logger.InfoContext(ctx, "synchronization finished",
		"integration_id", integrationID,
		"sync_id", op.ID,
		"status", op.Status,
		"synced", len(op.SyncedAttributes),
		"conflicted", len(op.ConflictedAttributes),
		"failed", len(op.FailedAttributes),
	)
	return op, nil
}

// runLocked performs steps 2-6 of the synchronization algorithm while the
// per-integration lease is held: snapshot, resolve, apply, persist ledger,
// write history.
func (s *Service) runLocked(ctx context.Context, integration *integrationmodels.Integration, initiatedBy id.UserID) (*syncmodels.Operation, error) {
	now := requestcontext.Now(ctx)

	// One snapshot per context at lock acquisition. BIDIRECTIONAL passes both
	// resolve against these same snapshots, so a value applied by the forward
	// pass cannot ping-pong back through the reverse pass.
	snapshots := make(map[id.ContextID]map[string]*identitymodels.ContextAttribute, 2)
	for _, contextID := range []id.ContextID{integration.SourceContextID, integration.TargetContextID} {
		snapshot, err := s.attributes.Snapshot(ctx, contextID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot attributes")
		}
		snapshots[contextID] = snapshot
	}

	op := &syncmodels.Operation{
		ID:                   id.SyncID(uuid.New()),
		IntegrationID:        integration.ID,
		InitiatedBy:          initiatedBy,
		StartedAt:            now,
		SyncedAttributes:     []string{},
		ConflictedAttributes: make(map[string]syncmodels.Conflict),
	}
	applied := make(map[id.ContextID]map[string]string)

	for _, pass := range integration.Passes() {
		mappings, err := s.mappings.ListActiveForPass(ctx, pass.SourceContextID, pass.TargetContextID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attribute mappings")
		}

		plan := resolver.Resolve(mappings, snapshots[pass.SourceContextID], snapshots[pass.TargetContextID], integration.SyncMode)

		for _, change := range plan.ToApply {
			if err := s.attributes.SetValue(ctx, change.TargetContextID, change.TargetKey, change.Value, change.Sensitivity, now); err != nil {
				s.logger.WarnContext(ctx, "attribute apply failed",
					"sync_id", op.ID,
					"target_context_id", change.TargetContextID,
					"key", change.TargetKey,
					"error", err,
				)
				op.FailedAttributes = append(op.FailedAttributes, change.TargetKey)
				continue
			}
			op.SyncedAttributes = append(op.SyncedAttributes, change.TargetKey)
			if applied[change.TargetContextID] == nil {
				applied[change.TargetContextID] = make(map[string]string)
			}
			applied[change.TargetContextID][change.TargetKey] = change.Value
		}

		for _, failure := range plan.Failed {
			op.FailedAttributes = append(op.FailedAttributes, failure.TargetKey)
		}
		for key, conflict := range plan.Conflicts {
			op.ConflictedAttributes[key] = conflict
		}
	}

	switch {
	case len(op.ConflictedAttributes) > 0:
		op.Status = syncmodels.SyncPendingApproval
	case len(op.FailedAttributes) > 0:
		op.Status = syncmodels.SyncPartial
		completed := now
		op.CompletedAt = &completed
	default:
		op.Status = syncmodels.SyncCompleted
		completed := now
		op.CompletedAt = &completed
	}

	if err := s.ledger.Create(ctx, op); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist sync operation")
	}

	for contextID, values := range applied {
		entry := &identitymodels.HistoryEntry{
			ID:            id.HistoryID(uuid.New()),
			ContextID:     contextID,
			ChangeType:    identitymodels.ChangeSync,
			ChangedFields: sortedKeys(values),
			NewValues:     values,
			ChangedBy:     initiatedBy,
			Timestamp:     now,
			Reason:        "synchronization " + op.ID.String(),
		}
		if err := s.history.Append(ctx, entry); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history entry")
		}
	}

	s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		ActorID:   initiatedBy,
		Subject:   op.ID.String(),
		Action:    audit.ActionSyncExecuted,
		Decision:  string(op.Status),
		RequestID: requestcontext.RequestID(ctx),
	})

	return op.Clone(), nil
}

func lockKey(integrationID id.IntegrationID) string {
	return "integration:" + integrationID.String()
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
