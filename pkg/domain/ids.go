// Package domain defines typed identifiers shared across modules.
//
// Each entity gets its own UUID-backed type so the compiler rejects
// cross-entity assignment (a ContextID can never be passed where a SyncID is
// expected). Parse helpers enforce the invariant that IDs are valid, non-empty,
// non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "crosslink/pkg/domain-errors"
)

type (
	TenantID      uuid.UUID
	UserID        uuid.UUID
	IdentityID    uuid.UUID
	ContextID     uuid.UUID
	AttributeID   uuid.UUID
	IntegrationID uuid.UUID
	MappingID     uuid.UUID
	SyncID        uuid.UUID
	HistoryID     uuid.UUID
)

func (id TenantID) String() string      { return uuid.UUID(id).String() }
func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id IdentityID) String() string    { return uuid.UUID(id).String() }
func (id ContextID) String() string     { return uuid.UUID(id).String() }
func (id AttributeID) String() string   { return uuid.UUID(id).String() }
func (id IntegrationID) String() string { return uuid.UUID(id).String() }
func (id MappingID) String() string     { return uuid.UUID(id).String() }
func (id SyncID) String() string        { return uuid.UUID(id).String() }
func (id HistoryID) String() string     { return uuid.UUID(id).String() }

// The JSON and text representations are the canonical UUID string. Named
// types do not inherit uuid.UUID's marshaling methods, so each type carries
// its own.

func (id TenantID) MarshalText() ([]byte, error)      { return []byte(uuid.UUID(id).String()), nil }
func (id UserID) MarshalText() ([]byte, error)        { return []byte(uuid.UUID(id).String()), nil }
func (id IdentityID) MarshalText() ([]byte, error)    { return []byte(uuid.UUID(id).String()), nil }
func (id ContextID) MarshalText() ([]byte, error)     { return []byte(uuid.UUID(id).String()), nil }
func (id AttributeID) MarshalText() ([]byte, error)   { return []byte(uuid.UUID(id).String()), nil }
func (id IntegrationID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(id).String()), nil }
func (id MappingID) MarshalText() ([]byte, error)     { return []byte(uuid.UUID(id).String()), nil }
func (id SyncID) MarshalText() ([]byte, error)        { return []byte(uuid.UUID(id).String()), nil }
func (id HistoryID) MarshalText() ([]byte, error)     { return []byte(uuid.UUID(id).String()), nil }

func unmarshalUUID(raw []byte) (uuid.UUID, error) {
	return uuid.Parse(string(raw))
}

func (id *TenantID) UnmarshalText(raw []byte) error {
	parsed, err := unmarshalUUID(raw)
	*id = TenantID(parsed)
	return err
}

func (id *UserID) UnmarshalText(raw []byte) error {
	parsed, err := unmarshalUUID(raw)
	*id = UserID(parsed)
	return err
}

func (id *IdentityID) UnmarshalText(raw []byte) error {
	parsed, err := unmarshalUUID(raw)
	*id = IdentityID(parsed)
	return err
}

func (id *ContextID) UnmarshalText(raw []byte) error {
	parsed, err := unmarshalUUID(raw)
	*id = ContextID(parsed)
	return err
}

func (id *AttributeID) UnmarshalText(raw []byte) error {
	parsed, err := unmarshalUUID(raw)
	*id = AttributeID(parsed)
	return err
}

func (id *IntegrationID) UnmarshalText(raw []byte) error {
	parsed, err := unmarshalUUID(raw)
	*id = IntegrationID(parsed)
	return err
}

func (id *MappingID) UnmarshalText(raw []byte) error {
	parsed, err := unmarshalUUID(raw)
	*id = MappingID(parsed)
	return err
}

func (id *SyncID) UnmarshalText(raw []byte) error {
	parsed, err := unmarshalUUID(raw)
	*id = SyncID(parsed)
	return err
}

func (id *HistoryID) UnmarshalText(raw []byte) error {
	parsed, err := unmarshalUUID(raw)
	*id = HistoryID(parsed)
	return err
}

func (id TenantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id IdentityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ContextID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AttributeID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id IntegrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MappingID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id SyncID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is required", kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is not a valid uuid", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be the nil uuid", kind)
	}
	return parsed, nil
}

func ParseTenantID(raw string) (TenantID, error) {
	parsed, err := parseUUID(raw, "tenant")
	return TenantID(parsed), err
}

func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user")
	return UserID(parsed), err
}

func ParseIdentityID(raw string) (IdentityID, error) {
	parsed, err := parseUUID(raw, "identity")
	return IdentityID(parsed), err
}

func ParseContextID(raw string) (ContextID, error) {
	parsed, err := parseUUID(raw, "context")
	return ContextID(parsed), err
}

func ParseAttributeID(raw string) (AttributeID, error) {
	parsed, err := parseUUID(raw, "attribute")
	return AttributeID(parsed), err
}

func ParseIntegrationID(raw string) (IntegrationID, error) {
	parsed, err := parseUUID(raw, "integration")
	return IntegrationID(parsed), err
}

func ParseMappingID(raw string) (MappingID, error) {
	parsed, err := parseUUID(raw, "mapping")
	return MappingID(parsed), err
}

func ParseSyncID(raw string) (SyncID, error) {
	parsed, err := parseUUID(raw, "sync")
	return SyncID(parsed), err
}
