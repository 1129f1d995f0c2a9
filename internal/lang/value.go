package lang

// Value is the runtime algebra: a closed, four-case tagged union. Matched
// with type switches rather than an open interface hierarchy, per the
// owned-tree/tagged-sum design in spec.md's Design Notes.
type Value interface {
	valueNode()
	// Len returns the series length, or 1 for scalars.
	Len() int
}

// Num is a scalar number.
type Num float64

// Bool is a scalar truth value.
type Bool bool

// NumSeries is a numeric column; a nil element means missing.
type NumSeries []*float64

// BoolSeries is a boolean column with no missing marker.
type BoolSeries []bool

func (Num) valueNode()       {}
func (Bool) valueNode()      {}
func (NumSeries) valueNode() {}
func (BoolSeries) valueNode() {}

func (Num) Len() int          { return 1 }
func (Bool) Len() int         { return 1 }
func (s NumSeries) Len() int  { return len(s) }
func (s BoolSeries) Len() int { return len(s) }

// f64 boxes a value as a *float64, the NumSeries "present" representation.
func f64(v float64) *float64 {
	return &v
}

// AsNum coerces v to a bare scalar float64; series values are a type error.
func AsNum(v Value) (float64, error) {
	switch x := v.(type) {
	case Num:
		return float64(x), nil
	case Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, evalErrf("scalar required, got series")
	}
}

// AsBool coerces v to a bare scalar bool; series values are a type error.
func AsBool(v Value) (bool, error) {
	switch x := v.(type) {
	case Num:
		return float64(x) != 0, nil
	case Bool:
		return bool(x), nil
	default:
		return false, evalErrf("scalar bool required, got series")
	}
}

// AsNumSeries lifts v to a NumSeries of the given length: scalars are
// broadcast, series of the wrong length are a type error.
func AsNumSeries(v Value, n int) (NumSeries, error) {
	switch x := v.(type) {
	case Num:
		out := make(NumSeries, n)
		val := float64(x)
		for i := range out {
			out[i] = f64(val)
		}
		return out, nil
	case Bool:
		out := make(NumSeries, n)
		val := 0.0
		if x {
			val = 1.0
		}
		for i := range out {
			out[i] = f64(val)
		}
		return out, nil
	case NumSeries:
		if len(x) != n {
			return nil, evalErrf("numeric series length mismatch: have %d, want %d", len(x), n)
		}
		return x, nil
	case BoolSeries:
		if len(x) != n {
			return nil, evalErrf("boolean series length mismatch: have %d, want %d", len(x), n)
		}
		out := make(NumSeries, n)
		for i, b := range x {
			if b {
				out[i] = f64(1)
			} else {
				out[i] = f64(0)
			}
		}
		return out, nil
	}
	return nil, evalErrf("unsupported value type")
}

// AsBoolSeries lifts v to a BoolSeries of the given length; a missing
// NumSeries entry coerces to false.
func AsBoolSeries(v Value, n int) (BoolSeries, error) {
	switch x := v.(type) {
	case Num:
		out := make(BoolSeries, n)
		b := float64(x) != 0
		for i := range out {
			out[i] = b
		}
		return out, nil
	case Bool:
		out := make(BoolSeries, n)
		for i := range out {
			out[i] = bool(x)
		}
		return out, nil
	case NumSeries:
		if len(x) != n {
			return nil, evalErrf("numeric series length mismatch: have %d, want %d", len(x), n)
		}
		out := make(BoolSeries, n)
		for i, p := range x {
			out[i] = p != nil && *p != 0
		}
		return out, nil
	case BoolSeries:
		if len(x) != n {
			return nil, evalErrf("boolean series length mismatch: have %d, want %d", len(x), n)
		}
		return x, nil
	}
	return nil, evalErrf("unsupported value type")
}

func maxLen(vs ...Value) int {
	m := 0
	for _, v := range vs {
		if l := v.Len(); l > m {
			m = l
		}
	}
	return m
}
