package testutil

import "testing"

// Given, When, and Then name nested subtests after the scenario step they
// cover, so failure output reads as a sentence. They are plain t.Run wrappers,
// not a framework.

func Given(t *testing.T, step string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+step, fn)
}

func When(t *testing.T, step string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+step, fn)
}

func Then(t *testing.T, step string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+step, fn)
}
