// Package service manages cross-context integrations and attribute mappings.
// Creating, updating, or removing either requires write capability on both
// involved contexts; both checks pass before any state is written.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"crosslink/internal/audit"
	"crosslink/internal/authz"
	identitymodels "crosslink/internal/identity/models"
	identitystore "crosslink/internal/identity/store"
	"crosslink/internal/integration/models"
	"crosslink/internal/integration/store"
	"crosslink/internal/sync/resolver"
	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/platform/sentinel"
	"crosslink/pkg/requestcontext"
)

// Service orchestrates integration and mapping lifecycle.
type Service struct {
	integrations store.IntegrationStore
	mappings     store.MappingStore
	contexts     identitystore.ContextStore
	history      identitystore.HistoryStore
	gate         *authz.Gate
	audit        *audit.Publisher
	logger       *slog.Logger
}

func New(integrations store.IntegrationStore, mappings store.MappingStore, contexts identitystore.ContextStore, history identitystore.HistoryStore, gate *authz.Gate, auditPublisher *audit.Publisher, logger *slog.Logger) *Service {
	return &Service{
		integrations: integrations,
		mappings:     mappings,
		contexts:     contexts,
		history:      history,
		gate:         gate,
		audit:        auditPublisher,
		logger:       logger,
	}
}

// CreateIntegrationCommand is the typed input for CreateIntegration.
type CreateIntegrationCommand struct {
	SourceContextID id.ContextID
	TargetContextID id.ContextID
	IntegrationType string
	SyncDirection   models.SyncDirection
	SyncMode        models.SyncMode
}

// CreateIntegration links two contexts. The unordered pair is unique; a second
// integration over the same contexts fails with a conflict.
func (s *Service) CreateIntegration(ctx context.Context, cmd CreateIntegrationCommand) (*models.Integration, error) {
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	integration, err := models.NewIntegration(id.IntegrationID(uuid.New()), cmd.SourceContextID, cmd.TargetContextID, cmd.IntegrationType, cmd.SyncDirection, cmd.SyncMode, actor, now)
	if err != nil {
		return nil, err
	}

	if err := s.requireContexts(ctx, cmd.SourceContextID, cmd.TargetContextID); err != nil {
		return nil, err
	}
	if err := s.gate.CheckContexts(ctx, actor, authz.PermissionIntegrationWrite, cmd.SourceContextID, cmd.TargetContextID); err != nil {
		return nil, err
	}

	if err := s.integrations.Create(ctx, integration); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "contexts are already linked by another integration")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create integration")
	}

	s.recordIntegrationChange(ctx, integration, identitymodels.ChangeIntegrationCreated, audit.ActionIntegrationCreated, nil)
	return integration, nil
}

// UpdateIntegrationCommand carries the mutable integration fields. Nil
// pointers leave the current value untouched.
type UpdateIntegrationCommand struct {
	IntegrationID id.IntegrationID
	SyncDirection *models.SyncDirection
	SyncMode      *models.SyncMode
	IsActive      *bool
}

// UpdateIntegration changes direction, mode, or active flag.
func (s *Service) UpdateIntegration(ctx context.Context, cmd UpdateIntegrationCommand) (*models.Integration, error) {
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	integration, err := s.loadIntegration(ctx, cmd.IntegrationID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckContexts(ctx, actor, authz.PermissionIntegrationWrite, integration.SourceContextID, integration.TargetContextID); err != nil {
		return nil, err
	}

	previous := map[string]string{
		"sync_direction": string(integration.SyncDirection),
		"sync_mode":      string(integration.SyncMode),
	}
	if cmd.SyncDirection != nil {
		if !cmd.SyncDirection.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown sync direction %q", *cmd.SyncDirection)
		}
		integration.SyncDirection = *cmd.SyncDirection
	}
	if cmd.SyncMode != nil {
		if !cmd.SyncMode.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown sync mode %q", *cmd.SyncMode)
		}
		integration.SyncMode = *cmd.SyncMode
	}
	if cmd.IsActive != nil {
		integration.IsActive = *cmd.IsActive
	}
	integration.UpdatedAt = now

	if err := s.integrations.Update(ctx, integration); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update integration")
	}

	s.recordIntegrationChange(ctx, integration, identitymodels.ChangeIntegrationUpdated, audit.ActionIntegrationUpdated, previous)
	return integration, nil
}

// RemoveIntegration unlinks the contexts and frees the pair.
func (s *Service) RemoveIntegration(ctx context.Context, integrationID id.IntegrationID) error {
	actor := requestcontext.UserID(ctx)

	integration, err := s.loadIntegration(ctx, integrationID)
	if err != nil {
		return err
	}
	if err := s.gate.CheckContexts(ctx, actor, authz.PermissionIntegrationWrite, integration.SourceContextID, integration.TargetContextID); err != nil {
		return err
	}

	if err := s.integrations.Delete(ctx, integrationID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove integration")
	}

	s.recordIntegrationChange(ctx, integration, identitymodels.ChangeIntegrationRemoved, audit.ActionIntegrationRemoved, nil)
	return nil
}

// GetIntegration loads one integration.
func (s *Service) GetIntegration(ctx context.Context, integrationID id.IntegrationID) (*models.Integration, error) {
	integration, err := s.loadIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckContexts(ctx, requestcontext.UserID(ctx), authz.PermissionContextRead, integration.SourceContextID, integration.TargetContextID); err != nil {
		return nil, err
	}
	return integration, nil
}

// CreateMappingCommand is the typed input for CreateAttributeMapping.
type CreateMappingCommand struct {
	IntegrationID      id.IntegrationID
	SourceContextID    id.ContextID
	TargetContextID    id.ContextID
	SourceAttributeKey string
	TargetAttributeKey string
	MappingType        models.MappingType
	TransformationRule string
}

// CreateAttributeMapping routes a source key to a target key for one
// direction. The mapping's contexts must belong to the integration, and a
// TRANSFORM rule must be registered so passes only fail on data, never on
// configuration.
func (s *Service) CreateAttributeMapping(ctx context.Context, cmd CreateMappingCommand) (*models.AttributeMapping, error) {
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	integration, err := s.loadIntegration(ctx, cmd.IntegrationID)
	if err != nil {
		return nil, err
	}
	if !sameUnorderedPair(integration, cmd.SourceContextID, cmd.TargetContextID) {
		return nil, dErrors.New(dErrors.CodeValidation, "mapping contexts do not match the integration")
	}
	if cmd.MappingType == models.MappingTransform && !resolver.KnownRule(cmd.TransformationRule) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown transformation rule %q", cmd.TransformationRule)
	}

	mapping, err := models.NewAttributeMapping(id.MappingID(uuid.New()), cmd.SourceContextID, cmd.TargetContextID, cmd.SourceAttributeKey, cmd.TargetAttributeKey, cmd.MappingType, cmd.TransformationRule, actor, now)
	if err != nil {
		return nil, err
	}

	if err := s.gate.CheckContexts(ctx, actor, authz.PermissionIntegrationWrite, cmd.SourceContextID, cmd.TargetContextID); err != nil {
		return nil, err
	}

	if err := s.mappings.Create(ctx, mapping); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "source key %q is already mapped for this direction", cmd.SourceAttributeKey)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create mapping")
	}

	s.recordMappingChange(ctx, integration, mapping, identitymodels.ChangeMappingCreated, audit.ActionMappingCreated)
	return mapping, nil
}

// RemoveAttributeMapping deletes a mapping.
func (s *Service) RemoveAttributeMapping(ctx context.Context, integrationID id.IntegrationID, mappingID id.MappingID) error {
	actor := requestcontext.UserID(ctx)

	integration, err := s.loadIntegration(ctx, integrationID)
	if err != nil {
		return err
	}
	mapping, err := s.mappings.FindByID(ctx, mappingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "mapping %s not found", mappingID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load mapping")
	}
	if !sameUnorderedPair(integration, mapping.SourceContextID, mapping.TargetContextID) {
		return dErrors.New(dErrors.CodeValidation, "mapping does not belong to the integration")
	}
	if err := s.gate.CheckContexts(ctx, actor, authz.PermissionIntegrationWrite, mapping.SourceContextID, mapping.TargetContextID); err != nil {
		return err
	}

	if err := s.mappings.Delete(ctx, mappingID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove mapping")
	}

	s.recordMappingChange(ctx, integration, mapping, identitymodels.ChangeMappingRemoved, audit.ActionMappingRemoved)
	return nil
}

func (s *Service) loadIntegration(ctx context.Context, integrationID id.IntegrationID) (*models.Integration, error) {
	integration, err := s.integrations.FindByID(ctx, integrationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "integration %s not found", integrationID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load integration")
	}
	return integration, nil
}

func (s *Service) requireContexts(ctx context.Context, contextIDs ...id.ContextID) error {
	for _, contextID := range contextIDs {
		if _, err := s.contexts.FindByID(ctx, contextID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "context %s not found", contextID)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context")
		}
	}
	return nil
}

func sameUnorderedPair(integration *models.Integration, a, b id.ContextID) bool {
	return models.PairKey(integration.SourceContextID, integration.TargetContextID) == models.PairKey(a, b)
}

// recordIntegrationChange writes one history entry per involved context plus
// an audit event.
func (s *Service) recordIntegrationChange(ctx context.Context, integration *models.Integration, change identitymodels.ChangeType, action audit.Action, previous map[string]string) {
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	newValues := map[string]string{
		"integration_id": integration.ID.String(),
		"sync_direction": string(integration.SyncDirection),
		"sync_mode":      string(integration.SyncMode),
	}
	for _, contextID := range []id.ContextID{integration.SourceContextID, integration.TargetContextID} {
		entry := &identitymodels.HistoryEntry{
			ID:             id.HistoryID(uuid.New()),
			ContextID:      contextID,
			ChangeType:     change,
			ChangedFields:  []string{"integration"},
			PreviousValues: previous,
			NewValues:      newValues,
			ChangedBy:      actor,
			Timestamp:      now,
		}
		if err := s.history.Append(ctx, entry); err != nil {
			s.logger.ErrorContext(ctx, "failed to write integration history entry",
				"integration_id", integration.ID,
				"context_id", contextID,
				"error", err,
			)
		}
	}
	s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		ActorID:   actor,
		TenantID:  requestcontext.TenantID(ctx),
		Subject:   integration.ID.String(),
		Action:    action,
		RequestID: requestcontext.RequestID(ctx),
	})
}

func (s *Service) recordMappingChange(ctx context.Context, integration *models.Integration, mapping *models.AttributeMapping, change identitymodels.ChangeType, action audit.Action) {
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	values := map[string]string{
		"mapping_id": mapping.ID.String(),
		"source_key": mapping.SourceAttributeKey,
		"target_key": mapping.TargetAttributeKey,
	}
	for _, contextID := range []id.ContextID{mapping.SourceContextID, mapping.TargetContextID} {
		entry := &identitymodels.HistoryEntry{
			ID:            id.HistoryID(uuid.New()),
			ContextID:     contextID,
			ChangeType:    change,
			ChangedFields: []string{"mapping"},
			NewValues:     values,
			ChangedBy:     actor,
			Timestamp:     now,
		}
		if err := s.history.Append(ctx, entry); err != nil {
			s.logger.ErrorContext(ctx, "failed to write mapping history entry",
				"mapping_id", mapping.ID,
				"context_id", contextID,
				"error", err,
			)
		}
	}
	s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		ActorID:   actor,
		TenantID:  requestcontext.TenantID(ctx),
		Subject:   integration.ID.String(),
		Action:    action,
		Reason:    mapping.SourceAttributeKey + "->" + mapping.TargetAttributeKey,
		RequestID: requestcontext.RequestID(ctx),
	})
}
