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
	"crosslink/internal/identity/models"
	attributestore "crosslink/internal/identity/store/attribute"
	identitycontext "crosslink/internal/identity/store/context"
	historystore "crosslink/internal/identity/store/history"
	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
	"crosslink/pkg/requestcontext"
	"crosslink/pkg/testutil"
)

// =============================================================================
// Identity Context Service Test Suite
// =============================================================================

type IdentitySuite struct {
	suite.Suite
	contexts   *identitycontext.InMemoryStore
	attributes *attributestore.InMemoryStore
	history    *historystore.InMemoryStore
	service    *Service

	actor    id.UserID
	tenantID id.TenantID
	now      time.Time
}

func TestIdentitySuite(t *testing.T) {
	suite.Run(t, new(IdentitySuite))
}

func (s *IdentitySuite) SetupTest() {
	s.contexts = identitycontext.NewMemory()
	s.attributes = attributestore.NewMemory()
	s.history = historystore.NewMemory()

	permissions := authz.NewStaticPermissions()
	permissions.AllowAll = true
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(
		s.contexts, s.attributes, s.history,
		authz.NewGate(permissions),
		audit.NewPublisher(audit.NewMemoryStore(), logger),
		logger,
	)

	s.actor = id.UserID(uuid.New())
	s.tenantID = id.TenantID(uuid.New())
	s.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func (s *IdentitySuite) ctx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = testutil.TenantContext(ctx, s.tenantID)
	return testutil.AuthedContext(ctx, s.actor)
}

func (s *IdentitySuite) createContext(contextType string) *models.IdentityContext {
	ic, err := s.service.CreateContext(s.ctx(), CreateContextCommand{
		IdentityID:  id.IdentityID(uuid.New()),
		ContextType: contextType,
	})
	s.Require().NoError(err)
	return ic
}

// =============================================================================
// Context Lifecycle Tests
// =============================================================================

func (s *IdentitySuite) TestCreateContext() {
	ic := s.createContext("healthcare")

	s.Equal("healthcare", ic.ContextType)
	s.Equal(s.tenantID, ic.TenantID)
	s.Equal(models.ContextStatusActive, ic.Status)
	s.Equal(models.VerificationLevelNone, ic.VerificationLevel)
	s.Nil(ic.TrustScore)

	entries, err := s.history.ListByContext(context.Background(), ic.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(models.ChangeContextCreated, entries[0].ChangeType)
}

func (s *IdentitySuite) TestCreateContextDuplicate() {
	identityID := id.IdentityID(uuid.New())
	_, err := s.service.CreateContext(s.ctx(), CreateContextCommand{IdentityID: identityID, ContextType: "banking"})
	s.Require().NoError(err)

	_, err = s.service.CreateContext(s.ctx(), CreateContextCommand{IdentityID: identityID, ContextType: "banking"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *IdentitySuite) TestCreateContextRequiresAuthentication() {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	_, err := s.service.CreateContext(ctx, CreateContextCommand{
		IdentityID:  id.IdentityID(uuid.New()),
		ContextType: "healthcare",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *IdentitySuite) TestGetContext() {
	ic := s.createContext("healthcare")

	found, err := s.service.GetContext(s.ctx(), ic.ID)
	s.Require().NoError(err)
	s.Equal(ic.ID, found.ID)

	_, err = s.service.GetContext(s.ctx(), id.ContextID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Attribute Tests
// =============================================================================

func (s *IdentitySuite) TestSetAttributeCreates() {
	ic := s.createContext("healthcare")

	attr, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{
		ContextID:   ic.ID,
		Key:         "blood_type",
		Value:       "O+",
		Sensitivity: models.SensitivityHigh,
	})
	s.Require().NoError(err)
	s.Equal(models.SensitivityHigh, attr.Sensitivity)
	s.Equal(models.VerificationUnverified, attr.VerificationStatus)
	s.True(attr.Active)
}

func (s *IdentitySuite) TestSetAttributeDefaultsSensitivity() {
	ic := s.createContext("healthcare")

	attr, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{
		ContextID: ic.ID,
		Key:       "nickname",
		Value:     "Alex",
	})
	s.Require().NoError(err)
	s.Equal(models.SensitivityLow, attr.Sensitivity)
}

func (s *IdentitySuite) TestSetAttributeUpdatesInPlace() {
	ic := s.createContext("healthcare")
	created, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{
		ContextID: ic.ID, Key: "phone", Value: "11-1111",
	})
	s.Require().NoError(err)

	updated, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{
		ContextID: ic.ID, Key: "phone", Value: "22-2222",
	})
	s.Require().NoError(err)
	s.Equal(created.ID, updated.ID, "updates keep the attribute's identity")
	s.Equal("22-2222", updated.Value)

	entries, err := s.history.ListByContext(context.Background(), ic.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	last := entries[2]
	s.Equal(models.ChangeAttributeSet, last.ChangeType)
	s.Equal("11-1111", last.PreviousValues["phone"])
	s.Equal("22-2222", last.NewValues["phone"])
}

func (s *IdentitySuite) TestSetAttributeRejectsUnknownSensitivity() {
	ic := s.createContext("healthcare")
	_, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{
		ContextID: ic.ID, Key: "phone", Value: "11-1111",
	})
	s.Require().NoError(err)

	_, err = s.service.SetAttribute(s.ctx(), SetAttributeCommand{
		ContextID: ic.ID, Key: "phone", Value: "22-2222", Sensitivity: "EXTREME",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *IdentitySuite) TestSetAttributeUnknownContext() {
	_, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{
		ContextID: id.ContextID(uuid.New()), Key: "phone", Value: "11-1111",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IdentitySuite) TestRemoveAttributeAllowsKeyReuse() {
	ic := s.createContext("healthcare")
	first, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{
		ContextID: ic.ID, Key: "phone", Value: "11-1111",
	})
	s.Require().NoError(err)

	s.Require().NoError(s.service.RemoveAttribute(s.ctx(), ic.ID, "phone"))

	// The key is free again; a new set produces a fresh attribute.
	second, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{
		ContextID: ic.ID, Key: "phone", Value: "33-3333",
	})
	s.Require().NoError(err)
	s.NotEqual(first.ID, second.ID)

	// The deactivated row survives for its verification trail.
	old, err := s.attributes.FindByID(context.Background(), first.ID)
	s.Require().NoError(err)
	s.False(old.Active)
}

func (s *IdentitySuite) TestRemoveAttributeNotFound() {
	ic := s.createContext("healthcare")
	err := s.service.RemoveAttribute(s.ctx(), ic.ID, "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IdentitySuite) TestListAttributesReturnsOnlyActive() {
	ic := s.createContext("healthcare")
	for _, key := range []string{"phone", "email", "nickname"} {
		_, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{
			ContextID: ic.ID, Key: key, Value: "v",
		})
		s.Require().NoError(err)
	}
	s.Require().NoError(s.service.RemoveAttribute(s.ctx(), ic.ID, "nickname"))

	attrs, err := s.service.ListAttributes(s.ctx(), ic.ID)
	s.Require().NoError(err)
	s.Len(attrs, 2)
}

func (s *IdentitySuite) TestGetHistoryIsChronological() {
	ic := s.createContext("healthcare")
	_, err := s.service.SetAttribute(s.ctx(), SetAttributeCommand{ContextID: ic.ID, Key: "phone", Value: "1"})
	s.Require().NoError(err)
	s.Require().NoError(s.service.RemoveAttribute(s.ctx(), ic.ID, "phone"))

	entries, err := s.service.GetHistory(s.ctx(), ic.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal(models.ChangeContextCreated, entries[0].ChangeType)
	s.Equal(models.ChangeAttributeSet, entries[1].ChangeType)
	s.Equal(models.ChangeAttributeRemoved, entries[2].ChangeType)
}
