package models

import (
	"time"

	id "crosslink/pkg/domain"
	dErrors "crosslink/pkg/domain-errors"
)

// MappingType declares whether the source value copies through untouched or
// passes through a named transformation rule first.
type MappingType string

const (
	MappingDirect    MappingType = "DIRECT"
	MappingTransform MappingType = "TRANSFORM"
)

func (m MappingType) IsValid() bool {
	return m == MappingDirect || m == MappingTransform
}

// AttributeMapping routes one source attribute key to one target attribute key
// for a specific direction of an integration.
//
// Invariant: among active mappings for one (source, target) context pair, a
// source key appears at most once, so each pass applies a source value to
// exactly one target key.
type AttributeMapping struct {
	ID                 id.MappingID `json:"id"`
	SourceContextID    id.ContextID `json:"source_context_id"`
	TargetContextID    id.ContextID `json:"target_context_id"`
	SourceAttributeKey string       `json:"source_attribute_key"`
	TargetAttributeKey string       `json:"target_attribute_key"`
	MappingType        MappingType  `json:"mapping_type"`
	TransformationRule string       `json:"transformation_rule,omitempty"`
	IsActive           bool         `json:"is_active"`
	CreatedAt          time.Time    `json:"created_at"`
	CreatedBy          id.UserID    `json:"created_by"`
}

// NewAttributeMapping validates field invariants. Per-direction source-key
// uniqueness is enforced at the store.
func NewAttributeMapping(mappingID id.MappingID, source, target id.ContextID, sourceKey, targetKey string, mappingType MappingType, rule string, createdBy id.UserID, now time.Time) (*AttributeMapping, error) {
	if source == target {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "mapping cannot route a context to itself")
	}
	if sourceKey == "" || targetKey == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "source and target attribute keys are required")
	}
	if !mappingType.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown mapping type %q", mappingType)
	}
	if mappingType == MappingTransform && rule == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "transformation rule is required for TRANSFORM mappings")
	}
	if mappingType == MappingDirect && rule != "" {
		return nil, dErrors.New(dErrors.CodeValidation, "transformation rule must be empty for DIRECT mappings")
	}
	return &AttributeMapping{
		ID:                 mappingID,
		SourceContextID:    source,
		TargetContextID:    target,
		SourceAttributeKey: sourceKey,
		TargetAttributeKey: targetKey,
		MappingType:        mappingType,
		TransformationRule: rule,
		IsActive:           true,
		CreatedAt:          now,
		CreatedBy:          createdBy,
	}, nil
}
