package resolver

import (
	"strings"
	"unicode"

	dErrors "crosslink/pkg/domain-errors"
)

// transformFuncs are the named rules TRANSFORM mappings may reference. All
// rules are pure so resolution stays deterministic.
var transformFuncs = map[string]func(string) string{
	"uppercase": strings.ToUpper,
	"lowercase": strings.ToLower,
	"trim":      strings.TrimSpace,
	"digits":    keepDigits,
}

func keepDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Transform applies a named rule to a source value. An empty rule is the
// identity (DIRECT mappings).
func Transform(value, rule string) (string, error) {
	if rule == "" {
		return value, nil
	}
	fn, ok := transformFuncs[rule]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown transformation rule %q", rule)
	}
	return fn(value), nil
}

// KnownRule reports whether a transformation rule name is registered. Mapping
// creation validates rules up front so sync passes only fail on data, not
// configuration.
func KnownRule(rule string) bool {
	_, ok := transformFuncs[rule]
	return ok
}
