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
	attributestore "crosslink/internal/identity/store/attribute"
	historystore "crosslink/internal/identity/store/history"
	integrationmodels "crosslink/internal/integration/models"
	integrationstores "crosslink/internal/integration/store/integration"
	mappingstore "crosslink/internal/integration/store/mapping"
	"crosslink/internal/sync/lock"
	syncmodels "crosslink/internal/sync/models"
	ledgerstore "crosslink/internal/sync/store/ledger"
	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/requestcontext"
)

// =============================================================================
// Synchronization Engine Test Suite
// =============================================================================
// Justification for unit tests: the engine's locking, snapshot, per-attribute
// apply, and ledger semantics are concurrency-sensitive and cannot be
// exercised precisely through HTTP-level tests.

type EngineSuite struct {
	suite.Suite
	attributes   *attributestore.InMemoryStore
	history      *historystore.InMemoryStore
	integrations *integrationstores.InMemoryStore
	mappings     *mappingstore.InMemoryStore
	ledger       *ledgerstore.InMemoryStore
	locker       *lock.InMemoryLocker
	permissions  *authz.StaticPermissions
	service      *Service

	sourceCtx id.ContextID
	targetCtx id.ContextID
	actor     id.UserID
	now       time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.attributes = attributestore.NewMemory()
	s.history = historystore.NewMemory()
	s.integrations = integrationstores.NewMemory()
	s.mappings = mappingstore.NewMemory()
	s.ledger = ledgerstore.NewMemory()
	s.locker = lock.NewMemory()
	s.permissions = authz.NewStaticPermissions()
	s.permissions.AllowAll = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(
		s.integrations, s.mappings, s.attributes, s.history, s.ledger,
		s.locker, authz.NewGate(s.permissions),
		audit.NewPublisher(audit.NewMemoryStore(), logger), logger,
		WithTimeout(2*time.Second),
	)

	s.sourceCtx = id.ContextID(uuid.New())
	s.targetCtx = id.ContextID(uuid.New())
	s.actor = id.UserID(uuid.New())
	s.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func (s *EngineSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *EngineSuite) integration(direction integrationmodels.SyncDirection, mode integrationmodels.SyncMode) *integrationmodels.Integration {
	integration, err := integrationmodels.NewIntegration(
		id.IntegrationID(uuid.New()), s.sourceCtx, s.targetCtx,
		"sso", direction, mode, s.actor, s.now,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.integrations.Create(s.ctx(), integration))
	return integration
}

func (s *EngineSuite) addMapping(source, target id.ContextID, sourceKey, targetKey string) {
	m, err := integrationmodels.NewAttributeMapping(
		id.MappingID(uuid.New()), source, target, sourceKey, targetKey,
		integrationmodels.MappingDirect, "", s.actor, s.now,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.mappings.Create(s.ctx(), m))
}

func (s *EngineSuite) setAttr(contextID id.ContextID, key, value string, sensitivity identitymodels.SensitivityLevel) {
	a, err := identitymodels.NewContextAttribute(id.AttributeID(uuid.New()), contextID, key, value, sensitivity, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.attributes.Create(s.ctx(), a))
}

func (s *EngineSuite) attrValue(contextID id.ContextID, key string) string {
	a, err := s.attributes.FindByKey(s.ctx(), contextID, key)
	s.Require().NoError(err)
	return a.Value
}

// =============================================================================
// Synchronize Tests
// =============================================================================

func (s *EngineSuite) TestSynchronizeAppliesNonConflictingChanges() {
	integration := s.integration(integrationmodels.DirectionSourceToTarget, integrationmodels.SyncModeAutomatic)
	s.addMapping(s.sourceCtx, s.targetCtx, "email", "email")
	s.addMapping(s.sourceCtx, s.targetCtx, "city", "city")
	s.setAttr(s.sourceCtx, "email", "a@example.com", identitymodels.SensitivityLow)
	s.setAttr(s.sourceCtx, "city", "Recife", identitymodels.SensitivityLow)
	s.setAttr(s.targetCtx, "city", "Olinda", identitymodels.SensitivityMedium)

	op, err := s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.Require().NoError(err)

	s.Equal(syncmodels.SyncCompleted, op.Status)
	s.ElementsMatch([]string{"email", "city"}, op.SyncedAttributes)
	s.Empty(op.ConflictedAttributes)
	s.Empty(op.FailedAttributes)
	s.NotNil(op.CompletedAt)
	s.Equal("a@example.com", s.attrValue(s.targetCtx, "email"))
	s.Equal("Recife", s.attrValue(s.targetCtx, "city"))

	entries, err := s.history.ListByContext(s.ctx(), s.targetCtx)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(identitymodels.ChangeSync, entries[0].ChangeType)
	s.ElementsMatch([]string{"email", "city"}, entries[0].ChangedFields)
}

func (s *EngineSuite) TestSynchronizeWithholdsConflicts() {
	integration := s.integration(integrationmodels.DirectionSourceToTarget, integrationmodels.SyncModeAutomatic)
	s.addMapping(s.sourceCtx, s.targetCtx, "cpf", "documento")
	s.setAttr(s.sourceCtx, "cpf", "123.456.789-00", identitymodels.SensitivityLow)
	s.setAttr(s.targetCtx, "documento", "987.654.321-00", identitymodels.SensitivityCritical)

	op, err := s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.Require().NoError(err)

	s.Equal(syncmodels.SyncPendingApproval, op.Status)
	s.Nil(op.CompletedAt)
	s.Require().Contains(op.ConflictedAttributes, "documento")
	conflict := op.ConflictedAttributes["documento"]
	s.Equal("123.456.789-00", conflict.SourceValue)
	s.Equal("987.654.321-00", conflict.TargetValue)
	s.Equal(s.targetCtx, conflict.TargetContextID)
	s.Equal("987.654.321-00", s.attrValue(s.targetCtx, "documento"), "conflicted value stays untouched")

	entries, err := s.history.ListByContext(s.ctx(), s.targetCtx)
	s.Require().NoError(err)
	s.Empty(entries, "no history entry when nothing applied")
}

func (s *EngineSuite) TestSynchronizeIsIdempotent() {
	integration := s.integration(integrationmodels.DirectionSourceToTarget, integrationmodels.SyncModeAutomatic)
	s.addMapping(s.sourceCtx, s.targetCtx, "email", "email")
	s.setAttr(s.sourceCtx, "email", "a@example.com", identitymodels.SensitivityLow)

	first, err := s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.Require().NoError(err)
	s.Len(first.SyncedAttributes, 1)

	second, err := s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.Require().NoError(err)
	s.Equal(syncmodels.SyncCompleted, second.Status)
	s.Empty(second.SyncedAttributes, "nothing changed between runs")
	s.NotEqual(first.ID, second.ID, "each run gets its own ledger entry")
}

func (s *EngineSuite) TestSynchronizeBidirectionalDoesNotPingPong() {
	integration := s.integration(integrationmodels.DirectionBidirectional, integrationmodels.SyncModeAutomatic)
	s.addMapping(s.sourceCtx, s.targetCtx, "nickname", "nickname")
	s.addMapping(s.targetCtx, s.sourceCtx, "nickname", "nickname")
	s.setAttr(s.sourceCtx, "nickname", "ana", identitymodels.SensitivityLow)

	op, err := s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.Require().NoError(err)

	// Forward pass creates the target attribute; reverse pass resolves
	// against the snapshot taken before it, so nothing flows back.
	s.Equal(syncmodels.SyncCompleted, op.Status)
	s.Equal([]string{"nickname"}, op.SyncedAttributes)
	s.Equal("ana", s.attrValue(s.targetCtx, "nickname"))
	s.Equal("ana", s.attrValue(s.sourceCtx, "nickname"))
}

func (s *EngineSuite) TestSynchronizeUnknownIntegration() {
	_, err := s.service.Synchronize(s.ctx(), id.IntegrationID(uuid.New()), s.actor)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestSynchronizeInactiveIntegration() {
	integration := s.integration(integrationmodels.DirectionSourceToTarget, integrationmodels.SyncModeAutomatic)
	integration.IsActive = false
	s.Require().NoError(s.integrations.Update(s.ctx(), integration))

	_, err := s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *EngineSuite) TestSynchronizeRequiresPermissionOnBothContexts() {
	s.permissions.AllowAll = false
	integration := s.integration(integrationmodels.DirectionSourceToTarget, integrationmodels.SyncModeAutomatic)
	// Grant only the source side.
	s.permissions.Grant(s.actor, authz.PermissionSyncExecute, s.sourceCtx.String())

	_, err := s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.permissions.Grant(s.actor, authz.PermissionSyncExecute, s.targetCtx.String())
	_, err = s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.NoError(err)
}

func (s *EngineSuite) TestSynchronizeTimesOutWhenLockHeld() {
	integration := s.integration(integrationmodels.DirectionSourceToTarget, integrationmodels.SyncModeAutomatic)

	lease, err := s.locker.Acquire(s.ctx(), "integration:"+integration.ID.String(), time.Minute)
	s.Require().NoError(err)
	defer func() { _ = s.locker.Release(s.ctx(), lease) }()

	short := New(
		s.integrations, s.mappings, s.attributes, s.history, s.ledger,
		s.locker, authz.NewGate(s.permissions),
		audit.NewPublisher(audit.NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil))),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithTimeout(60*time.Millisecond),
	)

	_, err = short.Synchronize(s.ctx(), integration.ID, s.actor)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *EngineSuite) TestSynchronizeRechecksRejectedSources() {
	integration := s.integration(integrationmodels.DirectionSourceToTarget, integrationmodels.SyncModeAutomatic)
	s.addMapping(s.sourceCtx, s.targetCtx, "email", "email")
	s.setAttr(s.sourceCtx, "email", "a@example.com", identitymodels.SensitivityLow)

	attr, err := s.attributes.FindByKey(s.ctx(), s.sourceCtx, "email")
	s.Require().NoError(err)
	attr.VerificationStatus = identitymodels.VerificationRejected
	s.Require().NoError(s.attributes.Update(s.ctx(), attr))

	op, err := s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.Require().NoError(err)
	s.Empty(op.SyncedAttributes, "rejected source attributes never propagate")
}
