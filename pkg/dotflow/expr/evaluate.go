package expr

import (
	"strings"
)

// BinaryOp compares two resolved values and returns a boolean result.
type BinaryOp func(left, right any) bool

// Evaluator evaluates condition expressions with optional custom
// operators. The zero value is usable; New applies options.
type Evaluator struct {
	customOps map[string]BinaryOp
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCustomOperator registers a custom binary operator. The name is
// matched as a space-delimited word, so it must not collide with the
// built-in symbolic operators.
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(e *Evaluator) {
		if e.customOps == nil {
			e.customOps = make(map[string]BinaryOp)
		}
		e.customOps[name] = fn
	}
}

// New creates an Evaluator with the given options.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate evaluates a condition expression against the variable map.
// An empty expression evaluates false; unconditional edges are the
// caller's concern, not a grammar case.
func (e *Evaluator) Evaluate(expr string, vars map[string]any) (bool, error) {
	return e.evaluate(expr, vars)
}

// Eval evaluates an expression with the default evaluator.
func Eval(expr string, vars map[string]any) (bool, error) {
	return New().Evaluate(expr, vars)
}

// binaryOps lists the built-in operators in match order: longer symbols
// first so ">=" is never split as ">", and the single-equals spelling
// after "!=" so "a != b" is never split on "=".
var binaryOps = []struct {
	symbol  string
	compare BinaryOp
}{
	{"==", opEquals},
	{"!=", opNotEquals},
	{">=", opGTE},
	{"<=", opLTE},
	{"=~", opMatches},
	{"!~", opNotMatches},
	{"=", opEquals},
	{">", opGT},
	{"<", opLT},
	{" contains ", opContains},
}

func (e *Evaluator) evaluate(expr string, vars map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, nil
	}

	// Disjunction first so conjunction binds tighter: a && b || c
	// parses as (a && b) || c.
	if left, right, ok := splitClause(expr, "||", " or "); ok {
		lv, err := e.evaluate(left, vars)
		if err != nil {
			return false, err
		}
		if lv {
			return true, nil
		}
		return e.evaluate(right, vars)
	}

	if left, right, ok := splitClause(expr, "&&", " and "); ok {
		lv, err := e.evaluate(left, vars)
		if err != nil {
			return false, err
		}
		if !lv {
			return false, nil
		}
		return e.evaluate(right, vars)
	}

	if inner, ok := strings.CutPrefix(expr, "not "); ok {
		v, err := e.evaluate(inner, vars)
		return !v, err
	}
	if inner, ok := strings.CutPrefix(expr, "!"); ok && !strings.HasPrefix(inner, "=") && !strings.HasPrefix(inner, "~") {
		v, err := e.evaluate(inner, vars)
		return !v, err
	}

	for _, op := range binaryOps {
		if parts := strings.SplitN(expr, op.symbol, 2); len(parts) == 2 {
			left := Resolve(strings.TrimSpace(parts[0]), vars)
			right := Resolve(strings.TrimSpace(parts[1]), vars)
			return op.compare(left, right), nil
		}
	}

	for name, fn := range e.customOps {
		if parts := strings.SplitN(expr, " "+name+" ", 2); len(parts) == 2 {
			left := Resolve(strings.TrimSpace(parts[0]), vars)
			right := Resolve(strings.TrimSpace(parts[1]), vars)
			return fn(left, right), nil
		}
	}

	// Bare key: truthy check.
	return IsTruthy(Resolve(expr, vars)), nil
}

// splitClause splits expr on the first occurrence of either separator,
// whichever comes first, honoring the symbolic and word forms together.
func splitClause(expr, symbol, word string) (left, right string, ok bool) {
	si := strings.Index(expr, symbol)
	wi := strings.Index(expr, word)
	switch {
	case si < 0 && wi < 0:
		return "", "", false
	case si >= 0 && (wi < 0 || si < wi):
		return expr[:si], expr[si+len(symbol):], true
	default:
		return expr[:wi], expr[wi+len(word):], true
	}
}
