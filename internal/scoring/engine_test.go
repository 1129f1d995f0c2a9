package scoring

import (
	"math"
	"testing"

	"github.com/quantkit/scoreengine/internal/lang"
)

func seriesOf(vals ...float64) lang.NumSeries {
	out := make(lang.NumSeries, len(vals))
	for i := range vals {
		v := vals[i]
		out[i] = &v
	}
	return out
}

func approxSlice(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

// exampleEngine builds the "C > REF(C,1)" rule from spec.md's worked
// example, varying only scope_way/dist_points per test.
func exampleEngine(t *testing.T, way ScopeWay, consecK int, dist []DistPoint) *Engine {
	t.Helper()
	e, err := NewEngine([]Rule{{
		Name:         "r1",
		ScopeWindows: 3,
		ScopeWay:     way,
		ConsecK:      consecK,
		When:         "C > REF(C,1)",
		Points:       1.0,
		DistPoints:   dist,
	}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func exampleEnv() *lang.Environment {
	env := lang.NewEnvironment()
	env.Set("C", seriesOf(10, 11, 10, 12, 13))
	return env
}

func TestScopeAny(t *testing.T) {
	e := exampleEngine(t, ScopeAny, 0, nil)
	run, err := e.Score("000001.SZ", nil, exampleEnv())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	approxSlice(t, run.Total, []float64{0, 1, 1, 1, 1})
}

func TestScopeConsec(t *testing.T) {
	e := exampleEngine(t, ScopeConsec, 2, nil)
	run, err := e.Score("000001.SZ", nil, exampleEnv())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	approxSlice(t, run.Total, []float64{0, 0, 0, 0, 1})
}

func TestScopeEach(t *testing.T) {
	e := exampleEngine(t, ScopeEach, 0, nil)
	run, err := e.Score("000001.SZ", nil, exampleEnv())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	approxSlice(t, run.Total, []float64{0, 1, 1, 2, 2})
}

func TestScopeRecentNoDistPoints(t *testing.T) {
	e := exampleEngine(t, ScopeRecent, 0, nil)
	run, err := e.Score("000001.SZ", nil, exampleEnv())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	approxSlice(t, run.Total, []float64{0, 1, 1, 1, 1})
}

func TestScopeRecentWithDistPoints(t *testing.T) {
	dist := []DistPoint{{Min: 0, Max: 0, Points: 2}, {Min: 1, Max: 2, Points: 1}}
	e := exampleEngine(t, ScopeRecent, 0, dist)
	run, err := e.Score("000001.SZ", nil, exampleEnv())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	approxSlice(t, run.Total, []float64{0, 2, 1, 2, 2})
}

func TestScopeLastReducesToWhen(t *testing.T) {
	e, err := NewEngine([]Rule{{
		Name:         "r1",
		ScopeWindows: 1,
		ScopeWay:     ScopeLast,
		When:         "C > REF(C,1)",
		Points:       1.0,
	}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	run, err := e.Score("000001.SZ", nil, exampleEnv())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	approxSlice(t, run.Total, []float64{0, 1, 0, 1, 1})
}

func TestEngineAdditivity(t *testing.T) {
	rules := []Rule{
		{Name: "r1", ScopeWindows: 1, ScopeWay: ScopeLast, When: "C > REF(C,1)", Points: 1},
		{Name: "r2", ScopeWindows: 3, ScopeWay: ScopeEach, When: "C > REF(C,1)", Points: 1},
	}
	e, err := NewEngine(rules)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	run, err := e.Score("000001.SZ", nil, exampleEnv())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i := range run.Total {
		sum := run.Details["r1"][i] + run.Details["r2"][i]
		if math.Abs(sum-run.Total[i]) > 1e-9 {
			t.Errorf("index %d: total %v != sum of details %v", i, run.Total[i], sum)
		}
	}
}

func TestEngineRejectsInvalidRule(t *testing.T) {
	_, err := NewEngine([]Rule{{Name: "bad", ScopeWindows: 0, When: "C > 0", Points: 1}})
	if err == nil {
		t.Fatal("expected error for scope_windows < 1")
	}
}

func TestEngineRejectsBadWhen(t *testing.T) {
	_, err := NewEngine([]Rule{{Name: "bad", ScopeWindows: 1, When: "C >", Points: 1}})
	if err == nil {
		t.Fatal("expected parse error to surface from NewEngine")
	}
}
