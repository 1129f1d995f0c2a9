// Package scoring implements the rule engine layered on internal/lang: a
// configured list of boolean predicates evaluated across rolling windows,
// producing a per-bar score series and a per-rule breakdown.
package scoring

import (
	"fmt"

	"github.com/quantkit/scoreengine/internal/lang"
)

// ScopeWay selects how a rule's boolean truth over its rolling window
// aggregates into a per-bar score.
type ScopeWay int

const (
	// ScopeLast scores the current bar only: points if when[i], else 0.
	ScopeLast ScopeWay = iota
	// ScopeAny scores points if when is true anywhere in the window.
	ScopeAny
	// ScopeConsec scores points if the longest run of consecutive trues in
	// the window is >= ConsecK.
	ScopeConsec
	// ScopeEach scores count(true in window) * points.
	ScopeEach
	// ScopeRecent scores by the recency gap to the most recent true bar.
	ScopeRecent
)

func (s ScopeWay) String() string {
	switch s {
	case ScopeLast:
		return "LAST"
	case ScopeAny:
		return "ANY"
	case ScopeConsec:
		return "CONSEC"
	case ScopeEach:
		return "EACH"
	case ScopeRecent:
		return "RECENT"
	}
	return "UNKNOWN"
}

// DistPoint is one bucket of a Recent-scope distribution table: recency
// values d with Min <= d <= Max score Points.
type DistPoint struct {
	Min    float64
	Max    float64
	Points float64
}

// Rule is a single configured scoring predicate.
type Rule struct {
	Name         string
	ScopeWindows int
	ScopeWay     ScopeWay
	ConsecK      int // only meaningful when ScopeWay == ScopeConsec
	When         string
	Points       float64
	DistPoints   []DistPoint
	Tag          string
	Explain      string

	prog *lang.Program // compiled by NewEngine
}

// validate checks the structural invariants spec.md §4.4 places on a rule
// definition (the loader's stricter checks live in internal/config; this is
// the core's own minimal sanity check, run once at engine construction).
func (r Rule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule has empty name")
	}
	if r.When == "" {
		return fmt.Errorf("rule %q: empty when expression", r.Name)
	}
	if r.ScopeWindows < 1 {
		return fmt.Errorf("rule %q: scope_windows must be >= 1, got %d", r.Name, r.ScopeWindows)
	}
	if len(r.DistPoints) == 0 && r.Points == 0 {
		return fmt.Errorf("rule %q: points is 0 with no dist_points", r.Name)
	}
	return nil
}
