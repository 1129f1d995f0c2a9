package scoring

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/quantkit/scoreengine/internal/lang"
)

// Engine holds a compiled, immutable rule set. Safe to share read-only
// across goroutines — Score never mutates the Engine, only the Environment
// passed to it (per spec.md §5, an Environment is not itself shareable).
type Engine struct {
	rules []Rule
}

// NewEngine compiles every rule's When expression up front, so a malformed
// rule fails at construction time rather than mid-run.
func NewEngine(rules []Rule) (*Engine, error) {
	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		prog, err := lang.ParseProgram(r.When)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.prog = prog
		compiled[i] = r
	}
	return &Engine{rules: compiled}, nil
}

// Run bundles the result of one scoring pass: the per-bar total and the
// per-rule detail series that sum to it, keyed by instrument and run.
type Run struct {
	ID         uuid.UUID
	TsCode     string
	TradeDates []string
	Total      []float64
	Details    map[string][]float64
}

// Score evaluates every rule's When expression against env, applies each
// rule's scope over its rolling window, and sums the per-bar scores into a
// Run. env's bound series determine the bar count N (env.Len()).
func (e *Engine) Score(tsCode string, tradeDates []string, env *lang.Environment) (*Run, error) {
	n := env.Len()
	run := &Run{
		ID:         uuid.New(),
		TsCode:     tsCode,
		TradeDates: tradeDates,
		Total:      make([]float64, n),
		Details:    make(map[string][]float64, len(e.rules)),
	}

	for _, r := range e.rules {
		v, err := lang.Eval(r.prog, env)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		bs, err := lang.AsBoolSeries(v, n)
		if err != nil {
			return nil, fmt.Errorf("rule %q: when must be boolean: %w", r.Name, err)
		}

		score := scoreSeries(bs, r)
		run.Details[r.Name] = score
		for i := 0; i < n; i++ {
			run.Total[i] += score[i]
		}
	}

	return run, nil
}

// scoreSeries applies rule r's scope over its rolling window [max(0,
// i+1-W), i] to boolean series bs, per spec.md §4.4.
func scoreSeries(bs lang.BoolSeries, r Rule) []float64 {
	n := len(bs)
	w := r.ScopeWindows
	out := make([]float64, n)

	for i := 0; i < n; i++ {
		start := i + 1 - w
		if start < 0 {
			start = 0
		}
		window := bs[start : i+1]

		switch r.ScopeWay {
		case ScopeLast:
			if bs[i] {
				out[i] = r.Points
			}
		case ScopeAny:
			if anyTrue(window) {
				out[i] = r.Points
			}
		case ScopeConsec:
			if longestRun(window) >= r.ConsecK {
				out[i] = r.Points
			}
		case ScopeEach:
			out[i] = float64(countTrue(window)) * r.Points
		case ScopeRecent:
			out[i] = scoreRecent(window, i-start, r)
		}
	}
	return out
}

func anyTrue(window []bool) bool {
	for _, b := range window {
		if b {
			return true
		}
	}
	return false
}

func countTrue(window []bool) int {
	n := 0
	for _, b := range window {
		if b {
			n++
		}
	}
	return n
}

// longestRun returns the length of the longest run of consecutive trues in
// window.
func longestRun(window []bool) int {
	best, cur := 0, 0
	for _, b := range window {
		if b {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}

// scoreRecent finds j* — the window-local index of the most recent true —
// and scores the recency gap d = localI - j*, where localI is i's offset
// within window.
func scoreRecent(window []bool, localI int, r Rule) float64 {
	jStar := -1
	for j := len(window) - 1; j >= 0; j-- {
		if window[j] {
			jStar = j
			break
		}
	}
	if jStar < 0 {
		return 0
	}
	d := float64(localI - jStar)

	if len(r.DistPoints) == 0 {
		return r.Points
	}
	for _, bucket := range r.DistPoints {
		if d >= bucket.Min && d <= bucket.Max {
			return bucket.Points
		}
	}
	return 0
}
