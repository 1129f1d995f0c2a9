// Package config loads rule and indicator definitions from YAML files and
// validates them before they reach the scoring engine.
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/quantkit/scoreengine/internal/lang"
	"github.com/quantkit/scoreengine/internal/scoring"
	"gopkg.in/yaml.v3"
)

// DistPointDef is one bucket of a rule's recency-to-points table.
type DistPointDef struct {
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Points float64 `yaml:"points"`
}

// RuleDef is the on-disk shape of a scoring rule, before ScopeWay parsing.
type RuleDef struct {
	Name         string         `yaml:"name"`
	ScopeWindows int            `yaml:"scope_windows"`
	ScopeWay     string         `yaml:"scope_way"`
	When         string         `yaml:"when"`
	Points       float64        `yaml:"points"`
	DistPoints   []DistPointDef `yaml:"dist_points,omitempty"`
	Tag          string         `yaml:"tag,omitempty"`
	Explain      string         `yaml:"explain,omitempty"`
}

// RuleFile is the top-level shape of a rule configuration document.
type RuleFile struct {
	Version int       `yaml:"version"`
	Rules   []RuleDef `yaml:"rules"`
}

// IndicatorDef is one precomputed named indicator, evaluated once and bound
// into the environment before rule evaluation.
type IndicatorDef struct {
	OutputName string `yaml:"output_name"`
	Expr       string `yaml:"expr"`
	Prec       int    `yaml:"prec"`
}

// IndicatorFile is the top-level shape of an indicator configuration
// document.
type IndicatorFile struct {
	Version    int            `yaml:"version"`
	Indicators []IndicatorDef `yaml:"indicators"`
}

// LoadRuleFile reads and validates a rule configuration file from path.
func LoadRuleFile(path string) (*RuleFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rule file unreadable: %w", err)
	}
	var rf RuleFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("rule file malformed: %w", err)
	}
	if err := validateRules(rf.Rules); err != nil {
		return nil, err
	}
	return &rf, nil
}

// LoadIndicatorFile reads and validates an indicator configuration file
// from path.
func LoadIndicatorFile(path string) (*IndicatorFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("indicator file unreadable: %w", err)
	}
	var inf IndicatorFile
	if err := yaml.Unmarshal(raw, &inf); err != nil {
		return nil, fmt.Errorf("indicator file malformed: %w", err)
	}
	if err := validateIndicators(inf.Indicators); err != nil {
		return nil, err
	}
	return &inf, nil
}

func validateRules(rules []RuleDef) error {
	for i, r := range rules {
		n := i + 1
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("rule %d: empty name", n)
		}
		if strings.TrimSpace(r.When) == "" {
			return fmt.Errorf("rule %d (%s): empty when expression", n, r.Name)
		}
		if r.ScopeWindows < 1 {
			return fmt.Errorf("rule %d (%s): scope_windows must be >= 1", n, r.Name)
		}
		if _, _, err := ParseScopeWay(r.ScopeWay); err != nil {
			return fmt.Errorf("rule %d (%s): %w", n, r.Name, err)
		}

		hasPoints := !math.IsNaN(r.Points) && !math.IsInf(r.Points, 0) && r.Points != 0
		hasDist := len(r.DistPoints) > 0
		if !hasPoints && !hasDist {
			return fmt.Errorf("rule %d (%s): points and dist_points cannot both be empty", n, r.Name)
		}

		if err := validateDistPoints(r.DistPoints); err != nil {
			return fmt.Errorf("rule %d (%s): %w", n, r.Name, err)
		}
	}
	return nil
}

func validateDistPoints(dist []DistPointDef) error {
	if len(dist) == 0 {
		return nil
	}
	for j, d := range dist {
		if d.Min > d.Max {
			return fmt.Errorf("dist_points bucket %d: min > max", j+1)
		}
		if math.IsNaN(d.Points) || math.IsInf(d.Points, 0) {
			return fmt.Errorf("dist_points bucket %d: points not finite", j+1)
		}
	}
	sorted := append([]DistPointDef(nil), dist...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
	for k := 1; k < len(sorted); k++ {
		prev, curr := sorted[k-1], sorted[k]
		if prev.Max >= curr.Min {
			return fmt.Errorf("dist_points buckets overlap: [%v-%v] and [%v-%v]", prev.Min, prev.Max, curr.Min, curr.Max)
		}
	}
	return nil
}

func validateIndicators(inds []IndicatorDef) error {
	for i, x := range inds {
		n := i + 1
		if strings.TrimSpace(x.OutputName) == "" {
			return fmt.Errorf("indicator %d: empty output_name", n)
		}
		if strings.TrimSpace(x.Expr) == "" {
			return fmt.Errorf("indicator %d (%s): empty expr", n, x.OutputName)
		}
	}
	return nil
}

// ParseScopeWay parses the case-insensitive scope_way spelling
// ("ANY"/"LAST"/"EACH"/"RECENT"/"CONSEC>=K") into a scoring.ScopeWay and,
// for CONSEC>=K, its K. CONSEC>=0 is rejected here even though the core
// itself treats Consec(0) as always-hit — the loader enforces the
// stricter K>=1 rule.
func ParseScopeWay(raw string) (scoring.ScopeWay, int, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "ANY":
		return scoring.ScopeAny, 0, nil
	case "LAST":
		return scoring.ScopeLast, 0, nil
	case "EACH":
		return scoring.ScopeEach, 0, nil
	case "RECENT":
		return scoring.ScopeRecent, 0, nil
	}
	if rest, ok := strings.CutPrefix(s, "CONSEC>="); ok {
		k, err := strconv.Atoi(rest)
		if err != nil {
			return 0, 0, fmt.Errorf("CONSEC>= must be followed by an integer, got %q", rest)
		}
		if k < 1 {
			return 0, 0, fmt.Errorf("CONSEC>=%d invalid, must be >= 1", k)
		}
		return scoring.ScopeConsec, k, nil
	}
	return 0, 0, fmt.Errorf("scope_way %q: must be ANY, LAST, EACH, RECENT, or CONSEC>=N", raw)
}

// ApplyIndicators evaluates each indicator's expression against env in
// order and binds the (rounded) result back into env under its
// output_name, so later indicators and rules can reference earlier ones.
// Prec is read by the original loader this is grounded on but left
// unused there; here it actually rounds the bound value.
func ApplyIndicators(defs []IndicatorDef, env *lang.Environment) error {
	for _, d := range defs {
		v, err := lang.EvalSource(d.Expr, env)
		if err != nil {
			return fmt.Errorf("indicator %q: %w", d.OutputName, err)
		}
		env.Set(d.OutputName, roundValue(v, d.Prec))
	}
	return nil
}

func roundValue(v lang.Value, prec int) lang.Value {
	switch x := v.(type) {
	case lang.Num:
		return lang.Num(roundTo(float64(x), prec))
	case lang.NumSeries:
		out := make(lang.NumSeries, len(x))
		for i, p := range x {
			if p == nil {
				continue
			}
			r := roundTo(*p, prec)
			out[i] = &r
		}
		return out
	default:
		return v
	}
}

func roundTo(f float64, prec int) float64 {
	if prec < 0 {
		return f
	}
	scale := math.Pow(10, float64(prec))
	return math.Round(f*scale) / scale
}

// ToRules converts validated RuleDefs into scoring.Rule values ready for
// scoring.NewEngine.
func ToRules(defs []RuleDef) ([]scoring.Rule, error) {
	out := make([]scoring.Rule, 0, len(defs))
	for _, d := range defs {
		way, k, err := ParseScopeWay(d.ScopeWay)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", d.Name, err)
		}
		dist := make([]scoring.DistPoint, 0, len(d.DistPoints))
		for _, dp := range d.DistPoints {
			dist = append(dist, scoring.DistPoint{Min: dp.Min, Max: dp.Max, Points: dp.Points})
		}
		out = append(out, scoring.Rule{
			Name:         d.Name,
			ScopeWindows: d.ScopeWindows,
			ScopeWay:     way,
			ConsecK:      k,
			When:         d.When,
			Points:       d.Points,
			DistPoints:   dist,
			Tag:          d.Tag,
			Explain:      d.Explain,
		})
	}
	return out, nil
}
