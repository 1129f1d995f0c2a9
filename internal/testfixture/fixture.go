// Package testfixture loads YAML fixtures of {env, program, want} triples
// for data-driven testing of internal/lang, the same pattern the teacher
// uses for its SQL fixtures (internal/testhelper/examples_test.go), applied
// to DSL programs instead of SQL statements.
package testfixture

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantkit/scoreengine/internal/lang"
)

// Fixture is one {env, program, want} test case.
type Fixture struct {
	ID          string         `yaml:"id"`
	Description string         `yaml:"description,omitempty"`
	Env         map[string]any `yaml:"env"`
	Program     string         `yaml:"program"`
	Want        any            `yaml:"want"`
}

// File is the top-level shape of a fixture document.
type File struct {
	Fixtures []Fixture `yaml:"fixtures"`
}

// Load reads and parses a fixture file from path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture file unreadable: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("fixture file malformed: %w", err)
	}
	return &f, nil
}

// Environment converts a fixture's env map (as decoded by yaml.v3: float64
// scalars, bool scalars, or []any series with nil/float64/bool elements)
// into a lang.Environment.
func Environment(env map[string]any) (*lang.Environment, error) {
	out := lang.NewEnvironment()
	for name, raw := range env {
		v, err := valueFromYAML(raw)
		if err != nil {
			return nil, fmt.Errorf("env[%s]: %w", name, err)
		}
		out.Set(name, v)
	}
	return out, nil
}

func valueFromYAML(raw any) (lang.Value, error) {
	switch x := raw.(type) {
	case float64:
		return lang.Num(x), nil
	case int:
		return lang.Num(float64(x)), nil
	case bool:
		return lang.Bool(x), nil
	case []any:
		out := make(lang.NumSeries, len(x))
		for i, elem := range x {
			switch e := elem.(type) {
			case nil:
				out[i] = nil
			case float64:
				v := e
				out[i] = &v
			case int:
				v := float64(e)
				out[i] = &v
			case bool:
				v := 0.0
				if e {
					v = 1.0
				}
				out[i] = &v
			default:
				return nil, fmt.Errorf("unsupported series element type %T", elem)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported env value type %T", raw)
	}
}

// Matches reports whether got equals want, where want is shaped the same
// way a fixture's `want` field is: a scalar number/bool, or a []any series
// (nil elements mean missing, compared with an epsilon for floats).
func Matches(got lang.Value, want any) (bool, string) {
	switch w := want.(type) {
	case float64:
		n, err := lang.AsNum(got)
		if err != nil {
			return false, err.Error()
		}
		if math.Abs(n-w) > 1e-9 {
			return false, fmt.Sprintf("got %v, want %v", n, w)
		}
		return true, ""
	case int:
		return Matches(got, float64(w))
	case bool:
		b, err := scalarBool(got)
		if err != nil {
			return false, err.Error()
		}
		if b != w {
			return false, fmt.Sprintf("got %v, want %v", b, w)
		}
		return true, ""
	case []any:
		return matchesSeries(got, w)
	default:
		return false, fmt.Sprintf("unsupported want type %T", want)
	}
}

func matchesSeries(got lang.Value, want []any) (bool, string) {
	n := len(want)
	switch x := got.(type) {
	case lang.NumSeries:
		if len(x) != n {
			return false, fmt.Sprintf("length mismatch: got %d, want %d", len(x), n)
		}
		for i, w := range want {
			if w == nil {
				if x[i] != nil {
					return false, fmt.Sprintf("index %d: got %v, want missing", i, *x[i])
				}
				continue
			}
			if s, ok := w.(string); ok && s == "NaN" {
				if x[i] == nil || !math.IsNaN(*x[i]) {
					return false, fmt.Sprintf("index %d: got %v, want NaN", i, x[i])
				}
				continue
			}
			wf, ok := toFloat(w)
			if !ok {
				return false, fmt.Sprintf("index %d: unsupported want element type %T", i, w)
			}
			if x[i] == nil {
				return false, fmt.Sprintf("index %d: got missing, want %v", i, wf)
			}
			if math.Abs(*x[i]-wf) > 1e-9 {
				return false, fmt.Sprintf("index %d: got %v, want %v", i, *x[i], wf)
			}
		}
		return true, ""
	case lang.BoolSeries:
		if len(x) != n {
			return false, fmt.Sprintf("length mismatch: got %d, want %d", len(x), n)
		}
		for i, w := range want {
			wb, ok := w.(bool)
			if !ok {
				return false, fmt.Sprintf("index %d: unsupported want element type %T", i, w)
			}
			if x[i] != wb {
				return false, fmt.Sprintf("index %d: got %v, want %v", i, x[i], wb)
			}
		}
		return true, ""
	default:
		return false, fmt.Sprintf("got non-series value %T for a series want", got)
	}
}

// scalarBool accepts a scalar Bool/Num, or a length-1 series, since a
// comparison between two scalar operands still evaluates to a
// length-1 BoolSeries rather than a bare Bool.
func scalarBool(v lang.Value) (bool, error) {
	switch x := v.(type) {
	case lang.BoolSeries:
		if len(x) == 1 {
			return x[0], nil
		}
	case lang.NumSeries:
		if len(x) == 1 {
			return x[0] != nil && *x[0] != 0, nil
		}
	}
	return lang.AsBool(v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
