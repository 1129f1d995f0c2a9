package lang

import "math"

// evalCall dispatches a function call by case-insensitive name. Arity and
// per-function semantics mirror spec.md §4.3 exactly, including warm-up,
// clamping, and missing-propagation rules.
func evalCall(name string, args []Expr, env *Environment) (Value, error) {
	switch upperASCII(name) {
	case "ABS":
		return builtinAbs(args, env)
	case "MAX":
		return builtinMaxMin(args, env, math.Max)
	case "MIN":
		return builtinMaxMin(args, env, math.Min)
	case "REF":
		return builtinRef(args, env)
	case "MA":
		return builtinMA(args, env)
	case "SUM":
		return builtinSum(args, env)
	case "STD":
		return builtinStd(args, env)
	case "HHV":
		return builtinHHVLLV(args, env, true)
	case "LLV":
		return builtinHHVLLV(args, env, false)
	case "COUNT":
		return builtinCount(args, env)
	case "IF":
		return builtinIf(args, env)
	case "CROSS":
		return builtinCross(args, env)
	case "EMA":
		return builtinEMA(args, env)
	case "SMA":
		return builtinSMA(args, env)
	case "BARSLAST":
		return builtinBarsLast(args, env)
	case "RSV":
		return builtinRSV(args, env)
	case "GRANK":
		return builtinRank(args, env, true)
	case "LRANK":
		return builtinRank(args, env, false)
	case "GET":
		return builtinGet(args, env)
	}
	return nil, evalErrf("undefined function: %s", name)
}

func requireArity(name string, args []Expr, n int) error {
	if len(args) != n {
		return evalErrf("%s requires %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

// windowN clamps a raw float window argument to >= 1.
func windowN(raw float64) int {
	if raw <= 0 {
		return 1
	}
	return int(raw)
}

func evalArgNum(args []Expr, i int, env *Environment) (float64, error) {
	v, err := evalExpr(args[i], env)
	if err != nil {
		return 0, err
	}
	return AsNum(v)
}

func builtinAbs(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("ABS", args, 1); err != nil {
		return nil, err
	}
	v, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	n := v.Len()
	s, err := AsNumSeries(v, n)
	if err != nil {
		return nil, err
	}
	out := make(NumSeries, n)
	for i, p := range s {
		if p != nil {
			out[i] = f64(math.Abs(*p))
		}
	}
	return out, nil
}

func builtinMaxMin(args []Expr, env *Environment, pick func(a, b float64) float64) (Value, error) {
	if len(args) != 2 {
		return nil, evalErrf("MAX/MIN requires 2 arguments, got %d", len(args))
	}
	a, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	b, err := evalExpr(args[1], env)
	if err != nil {
		return nil, err
	}
	n := maxLen(a, b)
	as, err := AsNumSeries(a, n)
	if err != nil {
		return nil, err
	}
	bs, err := AsNumSeries(b, n)
	if err != nil {
		return nil, err
	}
	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if as[i] != nil && bs[i] != nil {
			out[i] = f64(pick(*as[i], *bs[i]))
		}
	}
	return out, nil
}

func builtinRef(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("REF", args, 2); err != nil {
		return nil, err
	}
	v, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	n := v.Len()
	s, err := AsNumSeries(v, n)
	if err != nil {
		return nil, err
	}
	raw, err := evalArgNum(args, 1, env)
	if err != nil {
		return nil, err
	}
	shift := 0
	if raw > 0 {
		shift = int(raw)
	}
	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if i < shift {
			continue
		}
		out[i] = s[i-shift]
	}
	return out, nil
}

func builtinMA(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("MA", args, 2); err != nil {
		return nil, err
	}
	s, n, win, err := windowedInput(args, env)
	if err != nil {
		return nil, err
	}
	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if i+1 < win {
			continue
		}
		start := i + 1 - win
		sum, ok := sumWindow(s, start, i)
		if ok {
			out[i] = f64(sum / float64(win))
		}
	}
	return out, nil
}

func builtinSum(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("SUM", args, 2); err != nil {
		return nil, err
	}
	s, n, win, err := windowedInput(args, env)
	if err != nil {
		return nil, err
	}
	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if i+1 < win {
			continue
		}
		start := i + 1 - win
		sum, ok := sumWindow(s, start, i)
		if ok {
			out[i] = f64(sum)
		}
	}
	return out, nil
}

func builtinStd(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("STD", args, 2); err != nil {
		return nil, err
	}
	s, n, win, err := windowedInput(args, env)
	if err != nil {
		return nil, err
	}
	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if i+1 < win {
			continue
		}
		start := i + 1 - win
		sum, ok := sumWindow(s, start, i)
		if !ok {
			continue
		}
		mean := sum / float64(win)
		var sumSq float64
		for j := start; j <= i; j++ {
			d := *s[j] - mean
			sumSq += d * d
		}
		out[i] = f64(math.Sqrt(sumSq / float64(win)))
	}
	return out, nil
}

// windowedInput evaluates args[0] as a NumSeries and args[1] as the clamped
// window size, the shape shared by MA/SUM/STD/HHV/LLV/GRANK/LRANK.
func windowedInput(args []Expr, env *Environment) (NumSeries, int, int, error) {
	v, err := evalExpr(args[0], env)
	if err != nil {
		return nil, 0, 0, err
	}
	n := v.Len()
	s, err := AsNumSeries(v, n)
	if err != nil {
		return nil, 0, 0, err
	}
	raw, err := evalArgNum(args, 1, env)
	if err != nil {
		return nil, 0, 0, err
	}
	return s, n, windowN(raw), nil
}

// sumWindow sums s[start..=end]; ok is false if any entry in the window is
// missing (the MA/SUM/STD poisoning rule).
func sumWindow(s NumSeries, start, end int) (float64, bool) {
	var sum float64
	for j := start; j <= end; j++ {
		if s[j] == nil {
			return 0, false
		}
		sum += *s[j]
	}
	return sum, true
}

func builtinHHVLLV(args []Expr, env *Environment, high bool) (Value, error) {
	name := "LLV"
	if high {
		name = "HHV"
	}
	if err := requireArity(name, args, 2); err != nil {
		return nil, err
	}
	s, n, win, err := windowedInput(args, env)
	if err != nil {
		return nil, err
	}
	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if i+1 < win {
			continue
		}
		start := i + 1 - win
		// Asymmetric vs MA/SUM/STD by design: only a missing value at the
		// window's left edge poisons the output; other missing samples in
		// the window are skipped.
		if s[start] == nil {
			continue
		}
		best := *s[start]
		for j := start; j <= i; j++ {
			if s[j] == nil {
				continue
			}
			if high && *s[j] > best {
				best = *s[j]
			}
			if !high && *s[j] < best {
				best = *s[j]
			}
		}
		out[i] = f64(best)
	}
	return out, nil
}

func builtinCount(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("COUNT", args, 2); err != nil {
		return nil, err
	}
	cond, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	n := cond.Len()
	bs, err := AsBoolSeries(cond, n)
	if err != nil {
		return nil, err
	}
	raw, err := evalArgNum(args, 1, env)
	if err != nil {
		return nil, err
	}
	win := windowN(raw)

	out := make(NumSeries, n)
	cnt := 0
	for i := 0; i < n; i++ {
		if bs[i] {
			cnt++
		}
		if i+1 > win {
			left := i + 1 - win
			if bs[left-1] {
				cnt--
			}
		}
		out[i] = f64(float64(cnt))
	}
	return out, nil
}

func builtinIf(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("IF", args, 3); err != nil {
		return nil, err
	}
	cond, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	l, err := evalExpr(args[1], env)
	if err != nil {
		return nil, err
	}
	r, err := evalExpr(args[2], env)
	if err != nil {
		return nil, err
	}
	n := maxLen(cond, l, r)
	bs, err := AsBoolSeries(cond, n)
	if err != nil {
		return nil, err
	}
	ls, err := AsNumSeries(l, n)
	if err != nil {
		return nil, err
	}
	rs, err := AsNumSeries(r, n)
	if err != nil {
		return nil, err
	}
	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if bs[i] {
			out[i] = ls[i]
		} else {
			out[i] = rs[i]
		}
	}
	return out, nil
}

func builtinCross(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("CROSS", args, 2); err != nil {
		return nil, err
	}
	a, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	b, err := evalExpr(args[1], env)
	if err != nil {
		return nil, err
	}
	n := maxLen(a, b)
	as, err := AsNumSeries(a, n)
	if err != nil {
		return nil, err
	}
	bs, err := AsNumSeries(b, n)
	if err != nil {
		return nil, err
	}
	out := make(BoolSeries, n)
	for i := 1; i < n; i++ {
		if as[i] == nil || bs[i] == nil || as[i-1] == nil || bs[i-1] == nil {
			continue
		}
		out[i] = *as[i] > *bs[i] && *as[i-1] <= *bs[i-1]
	}
	return out, nil
}

func builtinEMA(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("EMA", args, 2); err != nil {
		return nil, err
	}
	v, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	n := v.Len()
	s, err := AsNumSeries(v, n)
	if err != nil {
		return nil, err
	}
	raw, err := evalArgNum(args, 1, env)
	if err != nil {
		return nil, err
	}
	win := windowN(raw)
	alpha := 2.0 / (float64(win) + 1.0)
	return ema(s, alpha), nil
}

func builtinSMA(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("SMA", args, 3); err != nil {
		return nil, err
	}
	v, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	n := v.Len()
	s, err := AsNumSeries(v, n)
	if err != nil {
		return nil, err
	}
	rawN, err := evalArgNum(args, 1, env)
	if err != nil {
		return nil, err
	}
	rawM, err := evalArgNum(args, 2, env)
	if err != nil {
		return nil, err
	}
	stdN := rawN
	if stdN <= 0 {
		stdN = 1
	}
	stdM := rawM
	if stdM < 0 {
		stdM = 0
	}
	alpha := clamp01(stdM / stdN)
	return ema(s, alpha), nil
}

// ema applies the shared EMA/SMA recurrence: warm-up seeds from the first
// non-missing value; a missing input resets the running state.
func ema(s NumSeries, alpha float64) NumSeries {
	n := len(s)
	out := make(NumSeries, n)
	var prev *float64
	for i := 0; i < n; i++ {
		if s[i] == nil {
			prev = nil
			continue
		}
		var v float64
		if prev == nil {
			v = *s[i]
		} else {
			v = alpha**s[i] + (1-alpha)**prev
		}
		out[i] = f64(v)
		prev = out[i]
	}
	return out
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func builtinBarsLast(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("BARSLAST", args, 1); err != nil {
		return nil, err
	}
	v, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	n := v.Len()
	bs, err := AsBoolSeries(v, n)
	if err != nil {
		return nil, err
	}
	out := make(NumSeries, n)
	start := n
	hasTrue := false
	for i := 0; i < n; i++ {
		if bs[i] {
			hasTrue = true
			start = i + 1
			out[i] = f64(0)
			break
		}
		out[i] = f64(math.NaN())
	}
	if hasTrue {
		count := 0
		for j := start; j < n; j++ {
			if bs[j] {
				count = 0
			} else {
				count++
			}
			out[j] = f64(float64(count))
		}
	}
	return out, nil
}

func builtinRSV(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("RSV", args, 4); err != nil {
		return nil, err
	}
	c, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	h, err := evalExpr(args[1], env)
	if err != nil {
		return nil, err
	}
	l, err := evalExpr(args[2], env)
	if err != nil {
		return nil, err
	}
	raw, err := evalArgNum(args, 3, env)
	if err != nil {
		return nil, err
	}
	win := windowN(raw)

	n := maxLen(c, h, l)
	cs, err := AsNumSeries(c, n)
	if err != nil {
		return nil, err
	}
	hs, err := AsNumSeries(h, n)
	if err != nil {
		return nil, err
	}
	ls, err := AsNumSeries(l, n)
	if err != nil {
		return nil, err
	}

	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if i+1 < win {
			continue
		}
		start := i + 1 - win
		if cs[i] == nil {
			continue
		}
		llv := math.Inf(1)
		hhv := math.Inf(-1)
		bad := false
		for j := start; j <= i; j++ {
			if ls[j] == nil || hs[j] == nil {
				bad = true
				break
			}
			if *ls[j] < llv {
				llv = *ls[j]
			}
			if *hs[j] > hhv {
				hhv = *hs[j]
			}
		}
		if bad {
			continue
		}
		den := hhv - llv
		if math.Abs(den) < eps {
			out[i] = f64(0)
		} else {
			out[i] = f64(100.0 * (*cs[i] - llv) / den)
		}
	}
	return out, nil
}

func builtinRank(args []Expr, env *Environment, descending bool) (Value, error) {
	name := "LRANK"
	if descending {
		name = "GRANK"
	}
	if err := requireArity(name, args, 2); err != nil {
		return nil, err
	}
	s, n, win, err := windowedInput(args, env)
	if err != nil {
		return nil, err
	}
	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if i+1 < win {
			continue
		}
		start := i + 1 - win
		if s[i] == nil {
			continue
		}
		curr := *s[i]
		count := 1
		bad := false
		for j := start; j < i; j++ {
			if s[j] == nil {
				bad = true
				break
			}
			hist := *s[j]
			if descending {
				if hist > curr+eps || math.Abs(hist-curr) <= eps {
					count++
				}
			} else {
				if hist < curr-eps || math.Abs(hist-curr) <= eps {
					count++
				}
			}
		}
		if bad {
			continue
		}
		out[i] = f64(float64(count))
	}
	return out, nil
}

func builtinGet(args []Expr, env *Environment) (Value, error) {
	if err := requireArity("GET", args, 3); err != nil {
		return nil, err
	}
	cond, err := evalExpr(args[0], env)
	if err != nil {
		return nil, err
	}
	v, err := evalExpr(args[1], env)
	if err != nil {
		return nil, err
	}
	n := maxLen(cond, v)
	condS, err := AsBoolSeries(cond, n)
	if err != nil {
		return nil, err
	}
	valS, err := AsNumSeries(v, n)
	if err != nil {
		return nil, err
	}
	raw, err := evalArgNum(args, 2, env)
	if err != nil {
		return nil, err
	}
	win := windowN(raw)

	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		start := i - win
		if start < 0 {
			start = 0
		}
		var last *float64
		for j := start; j < i; j++ {
			if condS[j] {
				last = valS[j]
			}
		}
		out[i] = last
	}
	return out, nil
}
