package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
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
// Approval Coordinator Test Suite
// =============================================================================

type ApprovalSuite struct {
	suite.Suite
	attributes   *attributestore.InMemoryStore
	history      *historystore.InMemoryStore
	integrations *integrationstores.InMemoryStore
	mappings     *mappingstore.InMemoryStore
	ledger       *ledgerstore.InMemoryStore
	service      *Service

	sourceCtx id.ContextID
	targetCtx id.ContextID
	actor     id.UserID
	approver  id.UserID
	now       time.Time
}

func TestApprovalSuite(t *testing.T) {
	suite.Run(t, new(ApprovalSuite))
}

func (s *ApprovalSuite) SetupTest() {
	s.attributes = attributestore.NewMemory()
	s.history = historystore.NewMemory()
	s.integrations = integrationstores.NewMemory()
	s.mappings = mappingstore.NewMemory()
	s.ledger = ledgerstore.NewMemory()

	permissions := authz.NewStaticPermissions()
	permissions.AllowAll = true
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(
		s.integrations, s.mappings, s.attributes, s.history, s.ledger,
		lock.NewMemory(), authz.NewGate(permissions),
		audit.NewPublisher(audit.NewMemoryStore(), logger), logger,
		WithTimeout(2*time.Second),
	)

	s.sourceCtx = id.ContextID(uuid.New())
	s.targetCtx = id.ContextID(uuid.New())
	s.actor = id.UserID(uuid.New())
	s.approver = id.UserID(uuid.New())
	s.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func (s *ApprovalSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

// pendingSync seeds two conflicted keys ("documento" and "telefone") through a
// real synchronize() run and returns the PENDING_APPROVAL operation.
func (s *ApprovalSuite) pendingSync() *syncmodels.Operation {
	integration, err := integrationmodels.NewIntegration(
		id.IntegrationID(uuid.New()), s.sourceCtx, s.targetCtx,
		"sso", integrationmodels.DirectionSourceToTarget, integrationmodels.SyncModeAutomatic,
		s.actor, s.now,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.integrations.Create(s.ctx(), integration))

	for _, keys := range [][2]string{{"cpf", "documento"}, {"phone", "telefone"}} {
		m, err := integrationmodels.NewAttributeMapping(
			id.MappingID(uuid.New()), s.sourceCtx, s.targetCtx, keys[0], keys[1],
			integrationmodels.MappingDirect, "", s.actor, s.now,
		)
		s.Require().NoError(err)
		s.Require().NoError(s.mappings.Create(s.ctx(), m))
	}
	s.seedAttr(s.sourceCtx, "cpf", "111", identitymodels.SensitivityLow)
	s.seedAttr(s.sourceCtx, "phone", "222", identitymodels.SensitivityLow)
	s.seedAttr(s.targetCtx, "documento", "old-doc", identitymodels.SensitivityCritical)
	s.seedAttr(s.targetCtx, "telefone", "old-phone", identitymodels.SensitivityHigh)

	op, err := s.service.Synchronize(s.ctx(), integration.ID, s.actor)
	s.Require().NoError(err)
	s.Require().Equal(syncmodels.SyncPendingApproval, op.Status)
	s.Require().Len(op.ConflictedAttributes, 2)
	return op
}

func (s *ApprovalSuite) seedAttr(contextID id.ContextID, key, value string, sensitivity identitymodels.SensitivityLevel) {
	a, err := identitymodels.NewContextAttribute(id.AttributeID(uuid.New()), contextID, key, value, sensitivity, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.attributes.Create(s.ctx(), a))
}

func (s *ApprovalSuite) attrValue(contextID id.ContextID, key string) string {
	a, err := s.attributes.FindByKey(s.ctx(), contextID, key)
	s.Require().NoError(err)
	return a.Value
}

// =============================================================================
// ApproveSync Tests
// =============================================================================

func (s *ApprovalSuite) TestApproveSubsetAppliesAndDiscards() {
	pending := s.pendingSync()

	op, err := s.service.ApproveSync(s.ctx(), pending.ID, []string{"documento"}, s.approver)
	s.Require().NoError(err)

	s.Equal(syncmodels.SyncCompleted, op.Status)
	s.Contains(op.SyncedAttributes, "documento")
	s.Empty(op.ConflictedAttributes, "every conflicted key is accounted for")
	s.Require().NotNil(op.ApprovedBy)
	s.Equal(s.approver, *op.ApprovedBy)
	s.NotNil(op.ApprovedAt)
	s.NotNil(op.CompletedAt)

	s.Equal("111", s.attrValue(s.targetCtx, "documento"), "approved candidate applied")
	s.Equal("old-phone", s.attrValue(s.targetCtx, "telefone"), "discarded key untouched")

	entries, err := s.history.ListByContext(s.ctx(), s.targetCtx)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(identitymodels.ChangeSyncApproval, entries[0].ChangeType)
	s.Equal([]string{"documento"}, entries[0].ChangedFields)
}

func (s *ApprovalSuite) TestApproveNothingRejects() {
	pending := s.pendingSync()

	op, err := s.service.ApproveSync(s.ctx(), pending.ID, nil, s.approver)
	s.Require().NoError(err)

	s.Equal(syncmodels.SyncRejected, op.Status)
	s.Empty(op.SyncedAttributes)
	s.Equal("old-doc", s.attrValue(s.targetCtx, "documento"))
	s.Equal("old-phone", s.attrValue(s.targetCtx, "telefone"))
}

func (s *ApprovalSuite) TestApproveIgnoresUnknownKeys() {
	pending := s.pendingSync()

	op, err := s.service.ApproveSync(s.ctx(), pending.ID, []string{"documento", "never-conflicted"}, s.approver)
	s.Require().NoError(err)

	s.Equal(syncmodels.SyncCompleted, op.Status)
	s.Equal([]string{"documento"}, op.SyncedAttributes)
	s.NotContains(op.SyncedAttributes, "never-conflicted")
}

func (s *ApprovalSuite) TestApproveTwiceFails() {
	pending := s.pendingSync()

	_, err := s.service.ApproveSync(s.ctx(), pending.ID, []string{"documento"}, s.approver)
	s.Require().NoError(err)

	_, err = s.service.ApproveSync(s.ctx(), pending.ID, []string{"telefone"}, s.approver)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Equal("old-phone", s.attrValue(s.targetCtx, "telefone"), "second approval applies nothing")
}

func (s *ApprovalSuite) TestApproveUnknownSync() {
	_, err := s.service.ApproveSync(s.ctx(), id.SyncID(uuid.New()), nil, s.approver)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ApprovalSuite) TestConcurrentApprovalsResolveExactlyOnce() {
	pending := s.pendingSync()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = s.service.ApproveSync(s.ctx(), pending.ID, []string{"documento"}, s.approver)
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
			failed++
		}
	}
	s.Equal(1, succeeded, "exactly one approval wins")
	s.Equal(1, failed)
	s.Equal("111", s.attrValue(s.targetCtx, "documento"))
}

// =============================================================================
// Ledger Read Tests
// =============================================================================

func (s *ApprovalSuite) TestGetOperation() {
	pending := s.pendingSync()

	op, err := s.service.GetOperation(s.ctx(), pending.ID)
	s.Require().NoError(err)
	s.Equal(pending.ID, op.ID)

	_, err = s.service.GetOperation(s.ctx(), id.SyncID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ApprovalSuite) TestListOperations() {
	pending := s.pendingSync()

	ops, err := s.service.ListOperations(s.ctx(), pending.IntegrationID)
	s.Require().NoError(err)
	s.Require().Len(ops, 1)
	s.Equal(pending.ID, ops[0].ID)
}
