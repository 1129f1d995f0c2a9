package testfixture

import (
	"testing"

	"github.com/quantkit/scoreengine/internal/lang"
)

// TestDSLFixtures runs every {env, program, want} triple in
// testdata/dsl_fixtures.yaml end to end, the fixture-driven analogue of the
// teacher's TestExamplesYAML.
func TestDSLFixtures(t *testing.T) {
	file, err := Load("testdata/dsl_fixtures.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(file.Fixtures) == 0 {
		t.Fatal("expected at least one fixture")
	}

	for _, fx := range file.Fixtures {
		fx := fx
		t.Run(fx.ID, func(t *testing.T) {
			env, err := Environment(fx.Env)
			if err != nil {
				t.Fatalf("Environment: %v", err)
			}
			got, err := lang.EvalSource(fx.Program, env)
			if err != nil {
				t.Fatalf("EvalSource(%q): %v", fx.Program, err)
			}
			if ok, msg := Matches(got, fx.Want); !ok {
				t.Errorf("fixture %s: %s", fx.ID, msg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("testdata/does-not-exist.yaml"); err == nil {
		t.Fatal("expected an error for a missing fixture file")
	}
}

func TestEnvironmentRejectsUnsupportedShape(t *testing.T) {
	_, err := Environment(map[string]any{"X": map[string]any{"nope": true}})
	if err == nil {
		t.Fatal("expected an error for an unsupported env value shape")
	}
}

func TestMatchesReportsLengthMismatch(t *testing.T) {
	got := lang.NumSeries{f64ptr(1), f64ptr(2)}
	ok, msg := Matches(got, []any{1.0, 2.0, 3.0})
	if ok {
		t.Fatal("expected a length mismatch to fail")
	}
	if msg == "" {
		t.Fatal("expected a non-empty mismatch message")
	}
}

func f64ptr(v float64) *float64 { return &v }
