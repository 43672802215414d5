package resolver

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	identitymodels "crosslink/internal/identity/models"
	integrationmodels "crosslink/internal/integration/models"
	id "crosslink/pkg/domain"
)

// =============================================================================
// Conflict Resolver Test Suite
// =============================================================================
// The resolver is pure, so every rule of the decision table is exercised here
// without stores or locks. The engine and approval tests only cover the
// orchestration around it.

type ResolverSuite struct {
	suite.Suite
	sourceCtx id.ContextID
	targetCtx id.ContextID
	now       time.Time
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.sourceCtx = id.ContextID(uuid.New())
	s.targetCtx = id.ContextID(uuid.New())
	s.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func (s *ResolverSuite) mapping(sourceKey, targetKey string) *integrationmodels.AttributeMapping {
	m, err := integrationmodels.NewAttributeMapping(
		id.MappingID(uuid.New()), s.sourceCtx, s.targetCtx,
		sourceKey, targetKey, integrationmodels.MappingDirect, "",
		id.UserID(uuid.New()), s.now,
	)
	s.Require().NoError(err)
	return m
}

func (s *ResolverSuite) transformMapping(sourceKey, targetKey, rule string) *integrationmodels.AttributeMapping {
	m, err := integrationmodels.NewAttributeMapping(
		id.MappingID(uuid.New()), s.sourceCtx, s.targetCtx,
		sourceKey, targetKey, integrationmodels.MappingTransform, rule,
		id.UserID(uuid.New()), s.now,
	)
	s.Require().NoError(err)
	return m
}

func (s *ResolverSuite) attr(contextID id.ContextID, key, value string, sensitivity identitymodels.SensitivityLevel) *identitymodels.ContextAttribute {
	a, err := identitymodels.NewContextAttribute(id.AttributeID(uuid.New()), contextID, key, value, sensitivity, s.now)
	s.Require().NoError(err)
	return a
}

func (s *ResolverSuite) snapshot(attrs ...*identitymodels.ContextAttribute) map[string]*identitymodels.ContextAttribute {
	snapshot := make(map[string]*identitymodels.ContextAttribute, len(attrs))
	for _, a := range attrs {
		snapshot[a.Key] = a
	}
	return snapshot
}

// =============================================================================
// Skip Rules
// =============================================================================

func (s *ResolverSuite) TestSkipsAbsentAndRejectedSources() {
	mappings := []*integrationmodels.AttributeMapping{
		s.mapping("missing", "missing"),
		s.mapping("rejected", "rejected"),
	}
	rejected := s.attr(s.sourceCtx, "rejected", "tainted", identitymodels.SensitivityLow)
	rejected.VerificationStatus = identitymodels.VerificationRejected

	plan := Resolve(mappings, s.snapshot(rejected), s.snapshot(), integrationmodels.SyncModeAutomatic)

	s.Empty(plan.ToApply)
	s.Empty(plan.Conflicts)
	s.Empty(plan.Failed)
}

func (s *ResolverSuite) TestEqualValuesAreNoOps() {
	mappings := []*integrationmodels.AttributeMapping{s.mapping("email", "email")}
	source := s.snapshot(s.attr(s.sourceCtx, "email", "a@example.com", identitymodels.SensitivityLow))
	target := s.snapshot(s.attr(s.targetCtx, "email", "a@example.com", identitymodels.SensitivityCritical))

	plan := Resolve(mappings, source, target, integrationmodels.SyncModeRequiresApproval)

	s.Empty(plan.ToApply, "equal values never apply, regardless of sensitivity or mode")
	s.Empty(plan.Conflicts)
}

// =============================================================================
// Apply Rules
// =============================================================================

func (s *ResolverSuite) TestCreatesAbsentTargetAttributes() {
	mappings := []*integrationmodels.AttributeMapping{s.mapping("phone", "mobile")}
	source := s.snapshot(s.attr(s.sourceCtx, "phone", "+5511999999999", identitymodels.SensitivityCritical))

	plan := Resolve(mappings, source, s.snapshot(), integrationmodels.SyncModeRequiresApproval)

	s.Require().Len(plan.ToApply, 1)
	change := plan.ToApply[0]
	s.True(change.Create, "absent target is a create, not a conflict, even for CRITICAL data")
	s.Equal("mobile", change.TargetKey)
	s.Equal("+5511999999999", change.Value)
	s.Equal(identitymodels.SensitivityCritical, change.Sensitivity)
	s.Equal(s.targetCtx, change.TargetContextID)
}

func (s *ResolverSuite) TestOverwritesLowSensitivityAutomatically() {
	mappings := []*integrationmodels.AttributeMapping{s.mapping("city", "city")}
	source := s.snapshot(s.attr(s.sourceCtx, "city", "Recife", identitymodels.SensitivityLow))
	target := s.snapshot(s.attr(s.targetCtx, "city", "Olinda", identitymodels.SensitivityMedium))

	plan := Resolve(mappings, source, target, integrationmodels.SyncModeAutomatic)

	s.Require().Len(plan.ToApply, 1)
	s.False(plan.ToApply[0].Create)
	s.Equal("Recife", plan.ToApply[0].Value)
	s.Equal(identitymodels.SensitivityMedium, plan.ToApply[0].Sensitivity, "existing attribute keeps its own level")
	s.Empty(plan.Conflicts)
}

// =============================================================================
// Conflict Rules
// =============================================================================

func (s *ResolverSuite) TestConflictDecisionTable() {
	cases := []struct {
		name        string
		sensitivity identitymodels.SensitivityLevel
		mode        integrationmodels.SyncMode
		conflict    bool
	}{
		{"low automatic applies", identitymodels.SensitivityLow, integrationmodels.SyncModeAutomatic, false},
		{"medium automatic applies", identitymodels.SensitivityMedium, integrationmodels.SyncModeAutomatic, false},
		{"high automatic conflicts", identitymodels.SensitivityHigh, integrationmodels.SyncModeAutomatic, true},
		{"critical automatic conflicts", identitymodels.SensitivityCritical, integrationmodels.SyncModeAutomatic, true},
		{"low requires-approval conflicts", identitymodels.SensitivityLow, integrationmodels.SyncModeRequiresApproval, true},
		{"high requires-approval conflicts", identitymodels.SensitivityHigh, integrationmodels.SyncModeRequiresApproval, true},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			mappings := []*integrationmodels.AttributeMapping{s.mapping("doc", "doc")}
			source := s.snapshot(s.attr(s.sourceCtx, "doc", "new-value", identitymodels.SensitivityLow))
			target := s.snapshot(s.attr(s.targetCtx, "doc", "old-value", tc.sensitivity))

			plan := Resolve(mappings, source, target, tc.mode)

			if tc.conflict {
				s.Empty(plan.ToApply)
				s.Require().Contains(plan.Conflicts, "doc")
				conflict := plan.Conflicts["doc"]
				s.Equal("new-value", conflict.SourceValue)
				s.Equal("old-value", conflict.TargetValue)
				s.Equal(s.targetCtx, conflict.TargetContextID)
				s.Equal(string(tc.sensitivity), conflict.Sensitivity)
			} else {
				s.Require().Len(plan.ToApply, 1)
				s.Empty(plan.Conflicts)
			}
		})
	}
}

func (s *ResolverSuite) TestConflictKeysAreTargetKeys() {
	// The cross-system rename case: the source holds "cpf" and the target
	// holds "documento". The conflict must surface under the target's key.
	mappings := []*integrationmodels.AttributeMapping{s.mapping("cpf", "documento")}
	source := s.snapshot(s.attr(s.sourceCtx, "cpf", "123.456.789-00", identitymodels.SensitivityLow))
	target := s.snapshot(s.attr(s.targetCtx, "documento", "987.654.321-00", identitymodels.SensitivityCritical))

	plan := Resolve(mappings, source, target, integrationmodels.SyncModeAutomatic)

	s.Contains(plan.Conflicts, "documento")
	s.NotContains(plan.Conflicts, "cpf")
}

// =============================================================================
// Transform Rules
// =============================================================================

func (s *ResolverSuite) TestTransformAppliesBeforeComparison() {
	mappings := []*integrationmodels.AttributeMapping{s.transformMapping("name", "name", "uppercase")}
	source := s.snapshot(s.attr(s.sourceCtx, "name", "maria silva", identitymodels.SensitivityLow))
	target := s.snapshot(s.attr(s.targetCtx, "name", "MARIA SILVA", identitymodels.SensitivityLow))

	plan := Resolve(mappings, source, target, integrationmodels.SyncModeAutomatic)

	s.Empty(plan.ToApply, "transformed value equals target, so nothing applies")
	s.Empty(plan.Conflicts)
}

func (s *ResolverSuite) TestUnknownTransformRuleFailsMapping() {
	mappings := []*integrationmodels.AttributeMapping{
		s.transformMapping("a", "a", "no-such-rule"),
		s.mapping("b", "b"),
	}
	source := s.snapshot(
		s.attr(s.sourceCtx, "a", "x", identitymodels.SensitivityLow),
		s.attr(s.sourceCtx, "b", "y", identitymodels.SensitivityLow),
	)

	plan := Resolve(mappings, source, s.snapshot(), integrationmodels.SyncModeAutomatic)

	s.Require().Len(plan.Failed, 1, "one bad mapping never blocks the rest of the pass")
	s.Equal("a", plan.Failed[0].TargetKey)
	s.Require().Len(plan.ToApply, 1)
	s.Equal("b", plan.ToApply[0].TargetKey)
}

func (s *ResolverSuite) TestPartitionIsComplete() {
	// Each evaluated mapping lands in exactly one of ToApply, Conflicts, or
	// Failed; skips and no-ops land in none.
	mappings := []*integrationmodels.AttributeMapping{
		s.mapping("applies", "applies"),
		s.mapping("conflicts", "conflicts"),
		s.transformMapping("fails", "fails", "bogus"),
		s.mapping("noop", "noop"),
		s.mapping("skipped", "skipped"),
	}
	source := s.snapshot(
		s.attr(s.sourceCtx, "applies", "new", identitymodels.SensitivityLow),
		s.attr(s.sourceCtx, "conflicts", "new", identitymodels.SensitivityLow),
		s.attr(s.sourceCtx, "fails", "x", identitymodels.SensitivityLow),
		s.attr(s.sourceCtx, "noop", "same", identitymodels.SensitivityLow),
	)
	target := s.snapshot(
		s.attr(s.targetCtx, "applies", "old", identitymodels.SensitivityLow),
		s.attr(s.targetCtx, "conflicts", "old", identitymodels.SensitivityHigh),
		s.attr(s.targetCtx, "noop", "same", identitymodels.SensitivityLow),
	)

	plan := Resolve(mappings, source, target, integrationmodels.SyncModeAutomatic)

	s.Len(plan.ToApply, 1)
	s.Len(plan.Conflicts, 1)
	s.Len(plan.Failed, 1)
}

// =============================================================================
// Transform Function Tests
// =============================================================================

func TestTransform(t *testing.T) {
	cases := []struct {
		rule  string
		in    string
		out   string
		fails bool
	}{
		{"", "As-Is", "As-Is", false},
		{"uppercase", "abc", "ABC", false},
		{"lowercase", "AbC", "abc", false},
		{"trim", "  x  ", "x", false},
		{"digits", "123.456-78", "12345678", false},
		{"unknown", "x", "", true},
	}
	for _, tc := range cases {
		got, err := Transform(tc.in, tc.rule)
		if tc.fails {
			if err == nil {
				t.Errorf("Transform(%q, %q): expected error", tc.in, tc.rule)
			}
			continue
		}
		if err != nil {
			t.Errorf("Transform(%q, %q): unexpected error %v", tc.in, tc.rule, err)
			continue
		}
		if got != tc.out {
			t.Errorf("Transform(%q, %q) = %q, want %q", tc.in, tc.rule, got, tc.out)
		}
	}
}
