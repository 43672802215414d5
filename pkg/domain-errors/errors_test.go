package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "failed to load context")

	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeInternal))
	assert.Contains(t, err.Error(), "failed to load context")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHasCodeSeesThroughWrapping(t *testing.T) {
	inner := New(CodeNotFound, "context not found")
	outer := fmt.Errorf("loading snapshot: %w", inner)

	assert.True(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(outer, CodeConflict))
	assert.False(t, HasCode(nil, CodeNotFound))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(New(CodeValidation, "bad score")))

	// Untagged errors default to internal.
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestNewf(t *testing.T) {
	err := Newf(CodeForbidden, "missing %s on context %s", "sync:execute", "abc")
	assert.True(t, HasCode(err, CodeForbidden))
	assert.Contains(t, err.Error(), "missing sync:execute on context abc")
}
