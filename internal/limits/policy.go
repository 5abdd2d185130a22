package limits

import (
	"fmt"
	"strings"
)

// Policy selects what a run does when the gate rejects a creation. There is
// no default: a run must name its policy.
type Policy int

const (
	policyUnset Policy = iota

	// SkipAndContinue records the rejected record as a failure and goes on
	// with the rest of the page and run.
	SkipAndContinue

	// AbortOnLimit stops the run at the first rejection. Nothing further is
	// processed or fetched; earlier commits stay.
	AbortOnLimit
)

// Valid reports whether p is one of the named policies.
func (p Policy) Valid() bool {
	return p == SkipAndContinue || p == AbortOnLimit
}

// String returns the configuration name of p.
func (p Policy) String() string {
	switch p {
	case SkipAndContinue:
		return "skip"
	case AbortOnLimit:
		return "abort"
	default:
		return "unset"
	}
}

// ParsePolicy accepts "skip" / "skip-and-continue" and "abort" /
// "abort-on-limit".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip", "skip-and-continue":
		return SkipAndContinue, nil
	case "abort", "abort-on-limit":
		return AbortOnLimit, nil
	case "":
		return policyUnset, fmt.Errorf("limit policy is required (skip or abort)")
	default:
		return policyUnset, fmt.Errorf("unknown limit policy %q (want skip or abort)", s)
	}
}
