package lang

// eps is the epsilon used for every comparison and division-by-zero guard
// in the DSL, per spec.md's Design Notes. Not bit-identical across
// platforms; floating-point determinism across hardware is an explicit
// non-goal.
const eps = 1e-12

// Environment maps identifiers to Values. Lookups are case-sensitive;
// externally seeded with market series (O, H, L, C, V, AMOUNT, ...) and
// mutated by AssignStmt evaluation.
type Environment struct {
	vars map[string]Value
}

// NewEnvironment returns an empty Environment.
func NewEnvironment() *Environment {
	return &Environment{vars: make(map[string]Value)}
}

// Set binds name to v, overwriting any existing binding.
func (e *Environment) Set(name string, v Value) {
	e.vars[name] = v
}

// Get returns the binding for name, or ok=false if unresolved.
func (e *Environment) Get(name string) (Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Len returns the length shared by every series currently bound in the
// environment, or 1 if none are bound. Used by callers (the rule engine) to
// determine the bar count N before evaluation.
func (e *Environment) Len() int {
	n := 1
	for _, v := range e.vars {
		if l := v.Len(); l > n {
			n = l
		}
	}
	return n
}

// Eval runs prog statement-by-statement against env, returning the value of
// the last statement. Assignments publish their binding before returning.
func Eval(prog *Program, env *Environment) (Value, error) {
	var last Value = Num(0)
	for _, stmt := range prog.Stmts {
		v, err := evalStmt(stmt, env)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

// EvalSource parses and evaluates src in one step.
func EvalSource(src string, env *Environment) (Value, error) {
	prog, err := ParseProgram(src)
	if err != nil {
		return nil, err
	}
	return Eval(prog, env)
}

func evalStmt(stmt Stmt, env *Environment) (Value, error) {
	switch s := stmt.(type) {
	case ExprStmt:
		return evalExpr(s.Expr, env)
	case AssignStmt:
		v, err := evalExpr(s.Value, env)
		if err != nil {
			return nil, err
		}
		env.Set(s.Name, v)
		return v, nil
	}
	return nil, evalErrf("unknown statement")
}

func evalExpr(expr Expr, env *Environment) (Value, error) {
	switch e := expr.(type) {
	case NumberExpr:
		return Num(e.Value), nil
	case IdentExpr:
		v, ok := env.Get(e.Name)
		if !ok {
			return nil, evalErrf("unresolved identifier: %s", e.Name)
		}
		return v, nil
	case CallExpr:
		return evalCall(e.Name, e.Args, env)
	case UnaryExpr:
		return evalUnary(e.Op, e.Rhs, env)
	case BinaryExpr:
		return evalBinary(e.Op, e.Lhs, e.Rhs, env)
	}
	return nil, evalErrf("unknown expression node")
}

func evalUnary(op UnaryOp, rhsExpr Expr, env *Environment) (Value, error) {
	rhs, err := evalExpr(rhsExpr, env)
	if err != nil {
		return nil, err
	}

	switch op {
	case OpNeg:
		switch x := rhs.(type) {
		case Num:
			return Num(-x), nil
		case Bool:
			if x {
				return Num(-1), nil
			}
			return Num(0), nil
		case NumSeries:
			out := make(NumSeries, len(x))
			for i, p := range x {
				if p != nil {
					out[i] = f64(-*p)
				}
			}
			return out, nil
		case BoolSeries:
			out := make(NumSeries, len(x))
			for i, b := range x {
				if b {
					out[i] = f64(-1)
				} else {
					out[i] = f64(0)
				}
			}
			return out, nil
		}
	case OpNot:
		switch x := rhs.(type) {
		case Num:
			return Bool(float64(x) == 0), nil
		case Bool:
			return Bool(!x), nil
		case NumSeries:
			out := make(BoolSeries, len(x))
			for i, p := range x {
				v := 0.0
				if p != nil {
					v = *p
				}
				out[i] = v == 0
			}
			return out, nil
		case BoolSeries:
			out := make(BoolSeries, len(x))
			for i, b := range x {
				out[i] = !b
			}
			return out, nil
		}
	}
	return nil, evalErrf("unsupported unary operand")
}

func evalBinary(op BinaryOp, lhsExpr, rhsExpr Expr, env *Environment) (Value, error) {
	lv, err := evalExpr(lhsExpr, env)
	if err != nil {
		return nil, err
	}
	rv, err := evalExpr(rhsExpr, env)
	if err != nil {
		return nil, err
	}

	n := maxLen(lv, rv)
	ls, err := AsNumSeries(lv, n)
	if err != nil {
		return nil, err
	}
	rs, err := AsNumSeries(rv, n)
	if err != nil {
		return nil, err
	}

	switch op {
	case OpAdd:
		return arith(ls, rs, func(a, b float64) float64 { return a + b }), nil
	case OpSub:
		return arith(ls, rs, func(a, b float64) float64 { return a - b }), nil
	case OpMul:
		return arith(ls, rs, func(a, b float64) float64 { return a * b }), nil
	case OpDiv:
		out := make(NumSeries, n)
		for i := 0; i < n; i++ {
			a, b := ls[i], rs[i]
			if a == nil || b == nil {
				continue
			}
			if absf(*b) < eps {
				out[i] = f64(0)
			} else {
				out[i] = f64(*a / *b)
			}
		}
		return out, nil
	case OpGt:
		return compare(ls, rs, func(a, b float64) bool { return a > b+eps }), nil
	case OpGe:
		return compare(ls, rs, func(a, b float64) bool { return a > b+eps || absf(a-b) <= eps }), nil
	case OpLt:
		return compare(ls, rs, func(a, b float64) bool { return a < b-eps }), nil
	case OpLe:
		return compare(ls, rs, func(a, b float64) bool { return a < b-eps || absf(a-b) <= eps }), nil
	case OpEq:
		return compare(ls, rs, func(a, b float64) bool { return absf(a-b) <= eps }), nil
	case OpNe:
		return compare(ls, rs, func(a, b float64) bool { return absf(a-b) > eps }), nil
	case OpAnd:
		return compare(ls, rs, func(a, b float64) bool { return a != 0 && b != 0 }), nil
	case OpOr:
		return compare(ls, rs, func(a, b float64) bool { return a != 0 || b != 0 }), nil
	}
	return nil, evalErrf("unsupported binary operator")
}

func arith(a, b NumSeries, f func(x, y float64) float64) NumSeries {
	n := len(a)
	out := make(NumSeries, n)
	for i := 0; i < n; i++ {
		if a[i] == nil || b[i] == nil {
			continue
		}
		out[i] = f64(f(*a[i], *b[i]))
	}
	return out
}

func compare(a, b NumSeries, f func(x, y float64) bool) BoolSeries {
	n := len(a)
	out := make(BoolSeries, n)
	for i := 0; i < n; i++ {
		if a[i] == nil || b[i] == nil {
			continue
		}
		out[i] = f(*a[i], *b[i])
	}
	return out
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
