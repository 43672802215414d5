package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"crosslink/internal/audit"
	"crosslink/internal/authz"
	identitymodels "crosslink/internal/identity/models"
	identitycontext "crosslink/internal/identity/store/context"
	historystore "crosslink/internal/identity/store/history"
	"crosslink/internal/integration/models"
	integrationstore "crosslink/internal/integration/store/integration"
	mappingstore "crosslink/internal/integration/store/mapping"
	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/requestcontext"
	"crosslink/pkg/testutil"
)

// =============================================================================
// Integration Service Test Suite
// =============================================================================

type IntegrationSuite struct {
	suite.Suite
	integrations *integrationstore.InMemoryStore
	mappings     *mappingstore.InMemoryStore
	contexts     *identitycontext.InMemoryStore
	history      *historystore.InMemoryStore
	permissions  *authz.StaticPermissions
	service      *Service

	actor  id.UserID
	source id.ContextID
	target id.ContextID
	now    time.Time
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.integrations = integrationstore.NewMemory()
	s.mappings = mappingstore.NewMemory()
	s.contexts = identitycontext.NewMemory()
	s.history = historystore.NewMemory()
	s.permissions = authz.NewStaticPermissions()
	s.permissions.AllowAll = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(
		s.integrations, s.mappings, s.contexts, s.history,
		authz.NewGate(s.permissions),
		audit.NewPublisher(audit.NewMemoryStore(), logger),
		logger,
	)

	s.actor = id.UserID(uuid.New())
	s.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.source = s.seedContext("healthcare")
	s.target = s.seedContext("banking")
}

func (s *IntegrationSuite) ctx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return testutil.AuthedContext(ctx, s.actor)
}

func (s *IntegrationSuite) seedContext(contextType string) id.ContextID {
	ic, err := identitymodels.NewIdentityContext(
		id.ContextID(uuid.New()), id.IdentityID(uuid.New()), id.TenantID(uuid.New()),
		contextType, s.actor, s.now,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.contexts.Create(context.Background(), ic))
	return ic.ID
}

func (s *IntegrationSuite) createIntegration() *models.Integration {
	integration, err := s.service.CreateIntegration(s.ctx(), CreateIntegrationCommand{
		SourceContextID: s.source,
		TargetContextID: s.target,
		IntegrationType: "data_sharing",
		SyncDirection:   models.DirectionSourceToTarget,
		SyncMode:        models.SyncModeAutomatic,
	})
	s.Require().NoError(err)
	return integration
}

// =============================================================================
// Integration Lifecycle Tests
// =============================================================================

func (s *IntegrationSuite) TestCreateIntegration() {
	integration := s.createIntegration()

	s.True(integration.IsActive)
	s.Equal(models.DirectionSourceToTarget, integration.SyncDirection)

	// One history entry lands on each involved context.
	for _, contextID := range []id.ContextID{s.source, s.target} {
		entries, err := s.history.ListByContext(context.Background(), contextID)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(identitymodels.ChangeIntegrationCreated, entries[0].ChangeType)
	}
}

func (s *IntegrationSuite) TestCreateIntegrationRejectsSelfLink() {
	_, err := s.service.CreateIntegration(s.ctx(), CreateIntegrationCommand{
		SourceContextID: s.source,
		TargetContextID: s.source,
		IntegrationType: "data_sharing",
		SyncDirection:   models.DirectionSourceToTarget,
		SyncMode:        models.SyncModeAutomatic,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *IntegrationSuite) TestCreateIntegrationPairIsUniqueUnordered() {
	s.createIntegration()

	// Same pair in reverse order is still the same link.
	_, err := s.service.CreateIntegration(s.ctx(), CreateIntegrationCommand{
		SourceContextID: s.target,
		TargetContextID: s.source,
		IntegrationType: "data_sharing",
		SyncDirection:   models.DirectionTargetToSource,
		SyncMode:        models.SyncModeAutomatic,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *IntegrationSuite) TestCreateIntegrationUnknownContext() {
	_, err := s.service.CreateIntegration(s.ctx(), CreateIntegrationCommand{
		SourceContextID: s.source,
		TargetContextID: id.ContextID(uuid.New()),
		IntegrationType: "data_sharing",
		SyncDirection:   models.DirectionSourceToTarget,
		SyncMode:        models.SyncModeAutomatic,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IntegrationSuite) TestCreateIntegrationRequiresBothContexts() {
	s.permissions.AllowAll = false
	s.permissions.Grant(s.actor, authz.PermissionIntegrationWrite, s.source.String())

	_, err := s.service.CreateIntegration(s.ctx(), CreateIntegrationCommand{
		SourceContextID: s.source,
		TargetContextID: s.target,
		IntegrationType: "data_sharing",
		SyncDirection:   models.DirectionSourceToTarget,
		SyncMode:        models.SyncModeAutomatic,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *IntegrationSuite) TestUpdateIntegration() {
	integration := s.createIntegration()

	direction := models.DirectionBidirectional
	mode := models.SyncModeRequiresApproval
	inactive := false
	updated, err := s.service.UpdateIntegration(s.ctx(), UpdateIntegrationCommand{
		IntegrationID: integration.ID,
		SyncDirection: &direction,
		SyncMode:      &mode,
		IsActive:      &inactive,
	})
	s.Require().NoError(err)
	s.Equal(models.DirectionBidirectional, updated.SyncDirection)
	s.Equal(models.SyncModeRequiresApproval, updated.SyncMode)
	s.False(updated.IsActive)
}

func (s *IntegrationSuite) TestUpdateIntegrationRejectsUnknownEnums() {
	integration := s.createIntegration()

	bad := models.SyncDirection("SIDEWAYS")
	_, err := s.service.UpdateIntegration(s.ctx(), UpdateIntegrationCommand{
		IntegrationID: integration.ID,
		SyncDirection: &bad,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *IntegrationSuite) TestRemoveIntegrationFreesThePair() {
	integration := s.createIntegration()
	s.Require().NoError(s.service.RemoveIntegration(s.ctx(), integration.ID))

	_, err := s.service.GetIntegration(s.ctx(), integration.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	// The same contexts can be linked again.
	s.createIntegration()
}

// =============================================================================
// Attribute Mapping Tests
// =============================================================================

func (s *IntegrationSuite) TestCreateMapping() {
	integration := s.createIntegration()

	mapping, err := s.service.CreateAttributeMapping(s.ctx(), CreateMappingCommand{
		IntegrationID:      integration.ID,
		SourceContextID:    s.source,
		TargetContextID:    s.target,
		SourceAttributeKey: "cpf",
		TargetAttributeKey: "documento",
		MappingType:        models.MappingTransform,
		TransformationRule: "digits",
	})
	s.Require().NoError(err)
	s.True(mapping.IsActive)
	s.Equal("documento", mapping.TargetAttributeKey)
}

func (s *IntegrationSuite) TestCreateMappingRejectsUnknownRule() {
	integration := s.createIntegration()

	_, err := s.service.CreateAttributeMapping(s.ctx(), CreateMappingCommand{
		IntegrationID:      integration.ID,
		SourceContextID:    s.source,
		TargetContextID:    s.target,
		SourceAttributeKey: "cpf",
		TargetAttributeKey: "documento",
		MappingType:        models.MappingTransform,
		TransformationRule: "rot13",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *IntegrationSuite) TestCreateMappingContextsMustMatchIntegration() {
	integration := s.createIntegration()
	other := s.seedContext("government")

	_, err := s.service.CreateAttributeMapping(s.ctx(), CreateMappingCommand{
		IntegrationID:      integration.ID,
		SourceContextID:    s.source,
		TargetContextID:    other,
		SourceAttributeKey: "cpf",
		TargetAttributeKey: "documento",
		MappingType:        models.MappingDirect,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *IntegrationSuite) TestCreateMappingSourceKeyUniquePerDirection() {
	integration := s.createIntegration()
	cmd := CreateMappingCommand{
		IntegrationID:      integration.ID,
		SourceContextID:    s.source,
		TargetContextID:    s.target,
		SourceAttributeKey: "cpf",
		TargetAttributeKey: "documento",
		MappingType:        models.MappingDirect,
	}
	_, err := s.service.CreateAttributeMapping(s.ctx(), cmd)
	s.Require().NoError(err)

	cmd.TargetAttributeKey = "document_number"
	_, err = s.service.CreateAttributeMapping(s.ctx(), cmd)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	// The reverse direction is independent.
	reverse := CreateMappingCommand{
		IntegrationID:      integration.ID,
		SourceContextID:    s.target,
		TargetContextID:    s.source,
		SourceAttributeKey: "cpf",
		TargetAttributeKey: "cpf",
		MappingType:        models.MappingDirect,
	}
	_, err = s.service.CreateAttributeMapping(s.ctx(), reverse)
	s.NoError(err)
}

func (s *IntegrationSuite) TestRemoveMapping() {
	integration := s.createIntegration()
	mapping, err := s.service.CreateAttributeMapping(s.ctx(), CreateMappingCommand{
		IntegrationID:      integration.ID,
		SourceContextID:    s.source,
		TargetContextID:    s.target,
		SourceAttributeKey: "cpf",
		TargetAttributeKey: "documento",
		MappingType:        models.MappingDirect,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.service.RemoveAttributeMapping(s.ctx(), integration.ID, mapping.ID))

	active, err := s.mappings.ListActiveForPass(context.Background(), s.source, s.target)
	s.Require().NoError(err)
	s.Empty(active)
}
