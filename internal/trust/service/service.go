// Package service is the trust and verification authority: the per-attribute
// verification state machine, context verification levels, and trust scores.
// Verification (identity proofing) and trust scoring (behavioral assessment)
// are gated by separate roles and audited separately.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"crosslink/internal/audit"
	"crosslink/internal/authz"
	identitymodels "crosslink/internal/identity/models"
	identitystore "crosslink/internal/identity/store"
	trustmetrics "crosslink/internal/trust/metrics"
	trustmodels "crosslink/internal/trust/models"
	"crosslink/internal/trust/provider"
	truststore "crosslink/internal/trust/store"
	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/platform/sentinel"
	"crosslink/pkg/requestcontext"
)

// Service is the trust and verification authority.
type Service struct {
	contexts   identitystore.ContextStore
	attributes identitystore.AttributeStore
	history    identitystore.HistoryStore
	trail      truststore.VerificationLogStore
	provider   provider.Client
	gate       *authz.Gate
	audit      *audit.Publisher
	metrics    *trustmetrics.Metrics
	logger     *slog.Logger
}

func New(contexts identitystore.ContextStore, attributes identitystore.AttributeStore, history identitystore.HistoryStore, trail truststore.VerificationLogStore, providerClient provider.Client, gate *authz.Gate, auditPublisher *audit.Publisher, metrics *trustmetrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		contexts:   contexts,
		attributes: attributes,
		history:    history,
		trail:      trail,
		provider:   providerClient,
		gate:       gate,
		audit:      auditPublisher,
		metrics:    metrics,
		logger:     logger,
	}
}

// VerifyAttributeCommand is the typed input for VerifyAttribute.
type VerifyAttributeCommand struct {
	AttributeID id.AttributeID
	Status      identitymodels.VerificationStatus
	Source      string
	Notes       string
	Evidence    map[string]string
}

// VerifyAttribute records a verifier decision, moving a PENDING attribute to
// VERIFIED or REJECTED. Requires the "verifier" role. The transition appends
// an immutable record to the attribute's verification trail; prior records
// are never touched.
func (s *Service) VerifyAttribute(ctx context.Context, cmd VerifyAttributeCommand) (*identitymodels.ContextAttribute, error) {
	if err := s.gate.RequireRole(ctx, authz.RoleVerifier); err != nil {
		return nil, err
	}
	if cmd.Status != identitymodels.VerificationVerified && cmd.Status != identitymodels.VerificationRejected {
		return nil, dErrors.Newf(dErrors.CodeValidation, "verifier decision must be VERIFIED or REJECTED, got %q", cmd.Status)
	}
	return s.transition(ctx, cmd.AttributeID, cmd.Status, cmd.Source, cmd.Notes, cmd.Evidence)
}

// RequestVerification submits evidence for an attribute, moving it (back) to
// PENDING. VERIFIED and REJECTED are re-openable; the trail keeps every
// transition.
func (s *Service) RequestVerification(ctx context.Context, attributeID id.AttributeID, source, notes string, evidence map[string]string) (*identitymodels.ContextAttribute, error) {
	attr, err := s.loadAttribute(ctx, attributeID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckContext(ctx, requestcontext.UserID(ctx), authz.PermissionContextWrite, attr.ContextID); err != nil {
		return nil, err
	}
	return s.transition(ctx, attributeID, identitymodels.VerificationPending, source, notes, evidence)
}

func (s *Service) transition(ctx context.Context, attributeID id.AttributeID, next identitymodels.VerificationStatus, source, notes string, evidence map[string]string) (*identitymodels.ContextAttribute, error) {
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	attr, err := s.loadAttribute(ctx, attributeID)
	if err != nil {
		return nil, err
	}
	if !attr.VerificationStatus.CanTransitionTo(next) {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "attribute %s cannot move from %s to %s", attributeID, attr.VerificationStatus, next)
	}

	previous := attr.VerificationStatus
	attr.VerificationStatus = next
	attr.VerificationSource = source
	attr.UpdatedAt = now
	if err := s.attributes.Update(ctx, attr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update attribute")
	}

	record := &trustmodels.VerificationRecord{
		ID:          id.HistoryID(uuid.New()),
		AttributeID: attributeID,
		Status:      string(next),
		Source:      source,
		Notes:       notes,
		RequestedBy: actor,
		Evidence:    evidence,
		Timestamp:   now,
	}
	if err := s.trail.Append(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append verification record")
	}

	entry := &identitymodels.HistoryEntry{
		ID:             id.HistoryID(uuid.New()),
		ContextID:      attr.ContextID,
		ChangeType:     identitymodels.ChangeVerification,
		ChangedFields:  []string{"verification_status"},
		PreviousValues: map[string]string{"verification_status": string(previous)},
		NewValues:      map[string]string{"verification_status": string(next)},
		ChangedBy:      actor,
		Timestamp:      now,
		Reason:         fmt.Sprintf("attribute %s: %s", attr.Key, notes),
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history entry")
	}

	s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		ActorID:   actor,
		Subject:   attributeID.String(),
		Action:    audit.ActionVerificationMoved,
		Decision:  string(next),
		Reason:    source,
		RequestID: requestcontext.RequestID(ctx),
	})
	if s.metrics != nil {
		s.metrics.VerificationTransitions.WithLabelValues(string(next)).Inc()
	}
	return attr, nil
}

// UpdateVerificationLevel writes a new assurance tier on a context. Requires
// the "verifier" role.
func (s *Service) UpdateVerificationLevel(ctx context.Context, contextID id.ContextID, level identitymodels.VerificationLevel, reason, source string) (*identitymodels.IdentityContext, error) {
	if err := s.gate.RequireRole(ctx, authz.RoleVerifier); err != nil {
		return nil, err
	}
	if !level.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown verification level %q", level)
	}
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	var previous identitymodels.VerificationLevel
	updated, err := s.contexts.Execute(ctx, contextID, func(ic *identitymodels.IdentityContext) error {
		previous = ic.VerificationLevel
		ic.VerificationLevel = level
		ic.UpdatedAt = now
		ic.UpdatedBy = actor
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "context %s not found", contextID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification level")
	}

	entry := &identitymodels.HistoryEntry{
		ID:             id.HistoryID(uuid.New()),
		ContextID:      contextID,
		ChangeType:     identitymodels.ChangeVerification,
		ChangedFields:  []string{"verification_level"},
		PreviousValues: map[string]string{"verification_level": string(previous)},
		NewValues:      map[string]string{"verification_level": string(level)},
		ChangedBy:      actor,
		Timestamp:      now,
		Reason:         reason,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history entry")
	}

	s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		ActorID:   actor,
		Subject:   contextID.String(),
		Action:    audit.ActionLevelUpdated,
		Decision:  string(level),
		Reason:    reason + " (" + source + ")",
		RequestID: requestcontext.RequestID(ctx),
	})
	if s.metrics != nil {
		s.metrics.LevelUpdates.Inc()
	}
	return updated, nil
}

// UpdateTrustScore writes a new trust score on a context. Requires the
// "trust_evaluator" role. Scores outside [0, 1] are rejected before any
// write, leaving the stored score unchanged.
func (s *Service) UpdateTrustScore(ctx context.Context, contextID id.ContextID, score float64, reason, source string) (*identitymodels.IdentityContext, error) {
	if err := s.gate.RequireRole(ctx, authz.RoleTrustEvaluator); err != nil {
		return nil, err
	}
	if !identitymodels.ValidTrustScore(score) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "trust score %v is outside [0, 1]", score)
	}
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	var previous *float64
	updated, err := s.contexts.Execute(ctx, contextID, func(ic *identitymodels.IdentityContext) error {
		previous = ic.TrustScore
		ic.TrustScore = &score
		ic.UpdatedAt = now
		ic.UpdatedBy = actor
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "context %s not found", contextID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update trust score")
	}

	previousValues := map[string]string{}
	if previous != nil {
		previousValues["trust_score"] = formatScore(*previous)
	}
	entry := &identitymodels.HistoryEntry{
		ID:             id.HistoryID(uuid.New()),
		ContextID:      contextID,
		ChangeType:     identitymodels.ChangeTrustScore,
		ChangedFields:  []string{"trust_score"},
		PreviousValues: previousValues,
		NewValues:      map[string]string{"trust_score": formatScore(score)},
		ChangedBy:      actor,
		Timestamp:      now,
		Reason:         reason,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history entry")
	}

	s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		ActorID:   actor,
		Subject:   contextID.String(),
		Action:    audit.ActionTrustScoreUpdated,
		Decision:  formatScore(score),
		Reason:    reason + " (" + source + ")",
		RequestID: requestcontext.RequestID(ctx),
	})
	if s.metrics != nil {
		s.metrics.TrustScoreUpdates.Inc()
	}
	return updated, nil
}

// VerifyIdentity runs external identity proofing for a context and persists
// the provider's result: the trust score always, the requested level only
// when the provider verified it. Requires the "verifier" role.
func (s *Service) VerifyIdentity(ctx context.Context, contextID id.ContextID, level identitymodels.VerificationLevel) (*identitymodels.IdentityContext, error) {
	if err := s.gate.RequireRole(ctx, authz.RoleVerifier); err != nil {
		return nil, err
	}
	if !level.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown verification level %q", level)
	}
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	ic, err := s.contexts.FindByID(ctx, contextID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "context %s not found", contextID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context")
	}

	result, err := s.provider.VerifyIdentity(ctx, ic.IdentityID, contextID, level)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "identity verification provider failed")
	}
	if !identitymodels.ValidTrustScore(result.TrustScore) {
		return nil, dErrors.Newf(dErrors.CodeInternal, "provider returned trust score %v outside [0, 1]", result.TrustScore)
	}

	verified := result.VerificationStatus == string(identitymodels.VerificationVerified)
	updated, err := s.contexts.Execute(ctx, contextID, func(ic *identitymodels.IdentityContext) error {
		ic.TrustScore = &result.TrustScore
		if verified {
			ic.VerificationLevel = level
		}
		ic.UpdatedAt = now
		ic.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist provider result")
	}

	entry := &identitymodels.HistoryEntry{
		ID:            id.HistoryID(uuid.New()),
		ContextID:     contextID,
		ChangeType:    identitymodels.ChangeVerification,
		ChangedFields: []string{"verification_level", "trust_score"},
		NewValues: map[string]string{
			"verification_level": string(updated.VerificationLevel),
			"trust_score":        formatScore(result.TrustScore),
		},
		ChangedBy: actor,
		Timestamp: now,
		Reason:    "external identity verification: " + result.VerificationStatus,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history entry")
	}

	s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		ActorID:   actor,
		Subject:   contextID.String(),
		Action:    audit.ActionLevelUpdated,
		Decision:  result.VerificationStatus,
		Reason:    "external provider",
		RequestID: requestcontext.RequestID(ctx),
	})
	return updated, nil
}

// GetVerificationTrail returns the append-only verification records of one
// attribute, oldest first.
func (s *Service) GetVerificationTrail(ctx context.Context, attributeID id.AttributeID) ([]*trustmodels.VerificationRecord, error) {
	attr, err := s.loadAttribute(ctx, attributeID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckContext(ctx, requestcontext.UserID(ctx), authz.PermissionContextRead, attr.ContextID); err != nil {
		return nil, err
	}
	records, err := s.trail.ListByAttribute(ctx, attributeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification trail")
	}
	return records, nil
}

func (s *Service) loadAttribute(ctx context.Context, attributeID id.AttributeID) (*identitymodels.ContextAttribute, error) {
	attr, err := s.attributes.FindByID(ctx, attributeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "attribute %s not found", attributeID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attribute")
	}
	return attr, nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
