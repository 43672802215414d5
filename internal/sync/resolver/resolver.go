// Package resolver decides, per attribute mapping, whether a source value
// applies to the target automatically, raises a conflict for human approval,
// or is skipped. It is pure and performs no I/O: the same mappings and
// snapshots always produce the same plan, so a retried synchronization
// recomputes identical results.
package resolver

import (
	identitymodels "crosslink/internal/identity/models"
	integrationmodels "crosslink/internal/integration/models"
	syncmodels "crosslink/internal/sync/models"
	id "crosslink/pkg/domain"
)

// Change is one non-conflicting application the engine should perform.
type Change struct {
	TargetContextID id.ContextID
	TargetKey       string
	Value           string
	// Sensitivity seeds newly created target attributes; existing attributes
	// keep their own level.
	Sensitivity identitymodels.SensitivityLevel
	Create      bool
}

// Failure is a mapping that could not be evaluated (bad transform input).
type Failure struct {
	TargetKey string
	Reason    string
}

// Plan is the resolver's verdict for one directed pass.
type Plan struct {
	ToApply   []Change
	Conflicts map[string]syncmodels.Conflict
	Failed    []Failure
}

// Resolve evaluates mappings, already ordered by ascending mapping ID,
// against source and target attribute snapshots.
//
// Rules per mapping:
//   - source attribute absent or REJECTED: skipped entirely
//   - target absent: apply (create)
//   - values equal after transform: no-op, excluded from every result set
//   - values differ, sensitivity LOW/MEDIUM and mode AUTOMATIC: apply
//   - values differ otherwise (HIGH/CRITICAL or REQUIRES_APPROVAL): conflict
func Resolve(
	mappings []*integrationmodels.AttributeMapping,
	source map[string]*identitymodels.ContextAttribute,
	target map[string]*identitymodels.ContextAttribute,
	mode integrationmodels.SyncMode,
) Plan {
	plan := Plan{Conflicts: make(map[string]syncmodels.Conflict)}

	for _, m := range mappings {
		sourceAttr, ok := source[m.SourceAttributeKey]
		if !ok || sourceAttr.VerificationStatus == identitymodels.VerificationRejected {
			continue
		}

		candidate, err := Transform(sourceAttr.Value, m.TransformationRule)
		if err != nil {
			plan.Failed = append(plan.Failed, Failure{TargetKey: m.TargetAttributeKey, Reason: err.Error()})
			continue
		}

		targetAttr, exists := target[m.TargetAttributeKey]
		if !exists {
			plan.ToApply = append(plan.ToApply, Change{
				TargetContextID: m.TargetContextID,
				TargetKey:       m.TargetAttributeKey,
				Value:           candidate,
				Sensitivity:     sourceAttr.Sensitivity,
				Create:          true,
			})
			continue
		}

		if targetAttr.Value == candidate {
			continue
		}

		if targetAttr.Sensitivity.RequiresApproval() || mode == integrationmodels.SyncModeRequiresApproval {
			plan.Conflicts[m.TargetAttributeKey] = syncmodels.Conflict{
				SourceValue:     candidate,
				TargetValue:     targetAttr.Value,
				TargetContextID: m.TargetContextID,
				Sensitivity:     string(targetAttr.Sensitivity),
			}
			continue
		}

		plan.ToApply = append(plan.ToApply, Change{
			TargetContextID: m.TargetContextID,
			TargetKey:       m.TargetAttributeKey,
			Value:           candidate,
			Sensitivity:     targetAttr.Sensitivity,
		})
	}

	return plan
}
