package lang

import "fmt"

// ParseError is returned by the parser; TokenIndex is the index into the
// token stream where the error was detected, for caller-side diagnostics.
type ParseError struct {
	Msg        string
	TokenIndex int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at token %d: %s", e.TokenIndex, e.Msg)
}

// EvalError is returned by the evaluator and built-ins.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string {
	return e.Msg
}

func evalErrf(format string, a ...any) *EvalError {
	return &EvalError{Msg: fmt.Sprintf(format, a...)}
}

func parseErrf(idx int, format string, a ...any) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, a...), TokenIndex: idx}
}
