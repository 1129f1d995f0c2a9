package lang

import (
	"math"
	"testing"
)

func seriesOf(vals ...float64) NumSeries {
	out := make(NumSeries, len(vals))
	for i, v := range vals {
		out[i] = f64(v)
	}
	return out
}

func seriesWithGap(gapIdx int, vals ...float64) NumSeries {
	out := seriesOf(vals...)
	out[gapIdx] = nil
	return out
}

func mustNums(t *testing.T, v Value) []float64 {
	t.Helper()
	s, ok := v.(NumSeries)
	if !ok {
		t.Fatalf("not a NumSeries: %T", v)
	}
	out := make([]float64, len(s))
	for i, p := range s {
		if p == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *p
		}
	}
	return out
}

func approxEq(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) < 1e-9
}

func TestEvalAssignmentThenReference(t *testing.T) {
	env := NewEnvironment()
	env.Set("C", seriesOf(1, 2, 3))
	v, err := EvalSource("N := 2; N + 1", env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Binary operators lift both operands to the longer length, so two
	// scalar operands yield a length-1 series rather than a bare scalar.
	got := mustNums(t, v)
	if len(got) != 1 {
		t.Fatalf("result length = %d, want 1", len(got))
	}
	if got[0] != 3 {
		t.Fatalf("got %v, want 3", got[0])
	}
	if bound, ok := env.Get("N"); !ok || mustScalar(t, bound) != 2 {
		t.Fatalf("N not bound to 2 in environment")
	}
}

func mustScalar(t *testing.T, v Value) float64 {
	t.Helper()
	n, err := AsNum(v)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestEvalUnaryNegOnBoolSeries(t *testing.T) {
	env := NewEnvironment()
	env.Set("B", BoolSeries{true, false, true})
	v, err := EvalSource("-B", env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mustNums(t, v)
	want := []float64{-1, 0, -1}
	for i := range want {
		if !approxEq(got[i], want[i]) {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEvalDivisionByNearZero(t *testing.T) {
	env := NewEnvironment()
	env.Set("A", seriesOf(10))
	env.Set("B", seriesOf(0))
	v, err := EvalSource("A / B", env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mustNums(t, v)
	if got[0] != 0 {
		t.Fatalf("division by near-zero should yield 0, got %v", got[0])
	}
}

func TestEvalComparisonEpsilon(t *testing.T) {
	env := NewEnvironment()
	env.Set("A", seriesOf(1.0))
	env.Set("B", seriesOf(1.0+5e-13))
	v, err := EvalSource("A = B", env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bs, ok := v.(BoolSeries)
	if !ok || !bs[0] {
		t.Fatalf("values within epsilon should compare equal, got %#v", v)
	}
}

func TestEvalMissingPropagation(t *testing.T) {
	env := NewEnvironment()
	env.Set("A", seriesWithGap(1, 1, 2, 3))
	env.Set("B", seriesOf(1, 1, 1))
	v, err := EvalSource("A + B", env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mustNums(t, v)
	if !math.IsNaN(got[1]) {
		t.Fatalf("missing operand should propagate as missing, got %v", got[1])
	}
	if !approxEq(got[0], 2) || !approxEq(got[2], 4) {
		t.Fatalf("got %v", got)
	}
}

func TestEvalUnresolvedIdentifier(t *testing.T) {
	env := NewEnvironment()
	if _, err := EvalSource("UNDEFINED_NAME", env); err == nil {
		t.Fatal("expected error for unresolved identifier")
	}
}
