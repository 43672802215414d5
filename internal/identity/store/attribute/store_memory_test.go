package attribute

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosslink/internal/identity/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newAttr(t *testing.T, contextID id.ContextID, key, value string) *models.ContextAttribute {
	t.Helper()
	attr, err := models.NewContextAttribute(id.AttributeID(uuid.New()), contextID, key, value, models.SensitivityLow, fixedNow)
	require.NoError(t, err)
	return attr
}

func TestActiveKeyIsUnique(t *testing.T) {
	store := NewMemory()
	contextID := id.ContextID(uuid.New())

	require.NoError(t, store.Create(context.Background(), newAttr(t, contextID, "phone", "111")))

	err := store.Create(context.Background(), newAttr(t, contextID, "phone", "222"))
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	// The same key on another context is independent.
	err = store.Create(context.Background(), newAttr(t, id.ContextID(uuid.New()), "phone", "222"))
	assert.NoError(t, err)
}

func TestDeactivateFreesTheKey(t *testing.T) {
	store := NewMemory()
	contextID := id.ContextID(uuid.New())
	first := newAttr(t, contextID, "phone", "111")
	require.NoError(t, store.Create(context.Background(), first))

	require.NoError(t, store.Deactivate(context.Background(), contextID, "phone", fixedNow))
	_, err := store.FindByKey(context.Background(), contextID, "phone")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// The key can be taken again; the old row stays reachable by ID.
	require.NoError(t, store.Create(context.Background(), newAttr(t, contextID, "phone", "222")))
	old, err := store.FindByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)
}

func TestSetValueUpserts(t *testing.T) {
	store := NewMemory()
	contextID := id.ContextID(uuid.New())

	// Absent key: a fresh attribute appears with the given sensitivity.
	require.NoError(t, store.SetValue(context.Background(), contextID, "documento", "111", models.SensitivityCritical, fixedNow))
	created, err := store.FindByKey(context.Background(), contextID, "documento")
	require.NoError(t, err)
	assert.Equal(t, models.SensitivityCritical, created.Sensitivity)

	// Present key: only the value moves, identity and sensitivity stay.
	later := fixedNow.Add(time.Minute)
	require.NoError(t, store.SetValue(context.Background(), contextID, "documento", "222", models.SensitivityLow, later))
	updated, err := store.FindByKey(context.Background(), contextID, "documento")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "222", updated.Value)
	assert.Equal(t, models.SensitivityCritical, updated.Sensitivity)
	assert.Equal(t, later, updated.UpdatedAt)
}

func TestSnapshotReturnsActiveCopies(t *testing.T) {
	store := NewMemory()
	contextID := id.ContextID(uuid.New())
	require.NoError(t, store.Create(context.Background(), newAttr(t, contextID, "phone", "111")))
	require.NoError(t, store.Create(context.Background(), newAttr(t, contextID, "email", "a@b")))
	require.NoError(t, store.Deactivate(context.Background(), contextID, "email", fixedNow))

	snapshot, err := store.Snapshot(context.Background(), contextID)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	// Mutating the snapshot never leaks into the store.
	snapshot["phone"].Value = "tampered"
	stored, err := store.FindByKey(context.Background(), contextID, "phone")
	require.NoError(t, err)
	assert.Equal(t, "111", stored.Value)
}
