// Package service manages identity-context and attribute lifecycle. Every
// mutation flows through here so each one produces a history entry; transport
// handlers never touch the stores directly.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"crosslink/internal/audit"
	"crosslink/internal/authz"
	"crosslink/internal/identity/models"
	"crosslink/internal/identity/store"
	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/platform/sentinel"
	"crosslink/pkg/requestcontext"
)

// Service orchestrates identity-context lifecycle operations.
type Service struct {
	contexts   store.ContextStore
	attributes store.AttributeStore
	history    store.HistoryStore
	gate       *authz.Gate
	audit      *audit.Publisher
	logger     *slog.Logger
}

func New(contexts store.ContextStore, attributes store.AttributeStore, history store.HistoryStore, gate *authz.Gate, auditPublisher *audit.Publisher, logger *slog.Logger) *Service {
	return &Service{
		contexts:   contexts,
		attributes: attributes,
		history:    history,
		gate:       gate,
		audit:      auditPublisher,
		logger:     logger,
	}
}

// CreateContextCommand is the typed input for CreateContext.
type CreateContextCommand struct {
	IdentityID  id.IdentityID
	ContextType string
}

// CreateContext registers a new identity context for the caller's tenant.
func (s *Service) CreateContext(ctx context.Context, cmd CreateContextCommand) (*models.IdentityContext, error) {
	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx)

	ic, err := models.NewIdentityContext(id.ContextID(uuid.New()), cmd.IdentityID, requestcontext.TenantID(ctx), cmd.ContextType, actor, now)
	if err != nil {
		return nil, err
	}

	if err := s.contexts.Create(ctx, ic); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "context for identity %s with type %q already exists", cmd.IdentityID, cmd.ContextType)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create context")
	}

	if err := s.appendHistory(ctx, &models.HistoryEntry{
		ID:            id.HistoryID(uuid.New()),
		ContextID:     ic.ID,
		ChangeType:    models.ChangeContextCreated,
		ChangedFields: []string{"identity_id", "context_type", "status"},
		NewValues: map[string]string{
			"identity_id":  ic.IdentityID.String(),
			"context_type": ic.ContextType,
			"status":       string(ic.Status),
		},
		ChangedBy: actor,
		Timestamp: now,
	}); err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		ActorID:   actor,
		TenantID:  ic.TenantID,
		Subject:   ic.ID.String(),
		Action:    audit.ActionContextCreated,
		RequestID: requestcontext.RequestID(ctx),
	})
	return ic, nil
}

// GetContext loads one context after a read-permission check.
func (s *Service) GetContext(ctx context.Context, contextID id.ContextID) (*models.IdentityContext, error) {
	if err := s.gate.CheckContext(ctx, requestcontext.UserID(ctx), authz.PermissionContextRead, contextID); err != nil {
		return nil, err
	}
	ic, err := s.contexts.FindByID(ctx, contextID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "context %s not found", contextID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context")
	}
	return ic, nil
}

// SetAttributeCommand is the typed input for SetAttribute.
type SetAttributeCommand struct {
	ContextID   id.ContextID
	Key         string
	Value       string
	Sensitivity models.SensitivityLevel
	Metadata    map[string]string
}

// SetAttribute creates or updates one attribute. The (context, key) pair is
// unique among active attributes; an update keeps the attribute's identity
// and appends a history entry carrying the previous value.
func (s *Service) SetAttribute(ctx context.Context, cmd SetAttributeCommand) (*models.ContextAttribute, error) {
	actor := requestcontext.UserID(ctx)
	if err := s.gate.CheckContext(ctx, actor, authz.PermissionContextWrite, cmd.ContextID); err != nil {
		return nil, err
	}
	if _, err := s.contexts.FindByID(ctx, cmd.ContextID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "context %s not found", cmd.ContextID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context")
	}
	now := requestcontext.Now(ctx)

	existing, err := s.attributes.FindByKey(ctx, cmd.ContextID, cmd.Key)
	switch {
	case err == nil:
		previous := existing.Value
		existing.Value = cmd.Value
		if cmd.Sensitivity != "" {
			if !cmd.Sensitivity.IsValid() {
				return nil, dErrors.Newf(dErrors.CodeValidation, "unknown sensitivity level %q", cmd.Sensitivity)
			}
			existing.Sensitivity = cmd.Sensitivity
		}
		if cmd.Metadata != nil {
			existing.Metadata = cmd.Metadata
		}
		existing.UpdatedAt = now
		if err := s.attributes.Update(ctx, existing); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update attribute")
		}
		if err := s.appendHistory(ctx, &models.HistoryEntry{
			ID:             id.HistoryID(uuid.New()),
			ContextID:      cmd.ContextID,
			ChangeType:     models.ChangeAttributeSet,
			ChangedFields:  []string{cmd.Key},
			PreviousValues: map[string]string{cmd.Key: previous},
			NewValues:      map[string]string{cmd.Key: cmd.Value},
			ChangedBy:      actor,
			Timestamp:      now,
		}); err != nil {
			return nil, err
		}
		s.emitAttributeAudit(ctx, cmd.ContextID, cmd.Key, audit.ActionAttributeSet)
		return existing, nil

	case errors.Is(err, sentinel.ErrNotFound):
		sensitivity := cmd.Sensitivity
		if sensitivity == "" {
			sensitivity = models.SensitivityLow
		}
		attr, err := models.NewContextAttribute(id.AttributeID(uuid.New()), cmd.ContextID, cmd.Key, cmd.Value, sensitivity, now)
		if err != nil {
			return nil, err
		}
		attr.Metadata = cmd.Metadata
		if err := s.attributes.Create(ctx, attr); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return nil, dErrors.Newf(dErrors.CodeConflict, "attribute %q already exists on context %s", cmd.Key, cmd.ContextID)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create attribute")
		}
		if err := s.appendHistory(ctx, &models.HistoryEntry{
			ID:            id.HistoryID(uuid.New()),
			ContextID:     cmd.ContextID,
			ChangeType:    models.ChangeAttributeSet,
			ChangedFields: []string{cmd.Key},
			NewValues:     map[string]string{cmd.Key: cmd.Value},
			ChangedBy:     actor,
			Timestamp:     now,
		}); err != nil {
			return nil, err
		}
		s.emitAttributeAudit(ctx, cmd.ContextID, cmd.Key, audit.ActionAttributeSet)
		return attr, nil

	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attribute")
	}
}

// RemoveAttribute soft-deletes the active attribute for (context, key).
func (s *Service) RemoveAttribute(ctx context.Context, contextID id.ContextID, key string) error {
	actor := requestcontext.UserID(ctx)
	if err := s.gate.CheckContext(ctx, actor, authz.PermissionContextWrite, contextID); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	existing, err := s.attributes.FindByKey(ctx, contextID, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "attribute %q not found on context %s", key, contextID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attribute")
	}
	if err := s.attributes.Deactivate(ctx, contextID, key, now); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove attribute")
	}
	if err := s.appendHistory(ctx, &models.HistoryEntry{
		ID:             id.HistoryID(uuid.New()),
		ContextID:      contextID,
		ChangeType:     models.ChangeAttributeRemoved,
		ChangedFields:  []string{key},
		PreviousValues: map[string]string{key: existing.Value},
		ChangedBy:      actor,
		Timestamp:      now,
	}); err != nil {
		return err
	}
	s.emitAttributeAudit(ctx, contextID, key, audit.ActionAttributeRemoved)
	return nil
}

// ListAttributes returns the active attributes of one context.
func (s *Service) ListAttributes(ctx context.Context, contextID id.ContextID) ([]*models.ContextAttribute, error) {
	if err := s.gate.CheckContext(ctx, requestcontext.UserID(ctx), authz.PermissionContextRead, contextID); err != nil {
		return nil, err
	}
	snapshot, err := s.attributes.Snapshot(ctx, contextID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attributes")
	}
	out := make([]*models.ContextAttribute, 0, len(snapshot))
	for _, attr := range snapshot {
		out = append(out, attr)
	}
	return out, nil
}

// GetHistory returns the context's append-only history trail.
func (s *Service) GetHistory(ctx context.Context, contextID id.ContextID) ([]*models.HistoryEntry, error) {
	if err := s.gate.CheckContext(ctx, requestcontext.UserID(ctx), authz.PermissionContextRead, contextID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByContext(ctx, contextID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context history")
	}
	return entries, nil
}

func (s *Service) appendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	if err := s.history.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write history entry")
	}
	return nil
}

func (s *Service) emitAttributeAudit(ctx context.Context, contextID id.ContextID, key string, action audit.Action) {
	s.audit.Emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		ActorID:   requestcontext.UserID(ctx),
		TenantID:  requestcontext.TenantID(ctx),
		Subject:   contextID.String(),
		Action:    action,
		Reason:    key,
		RequestID: requestcontext.RequestID(ctx),
	})
}
