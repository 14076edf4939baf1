package expr

import (
	"fmt"
	"strings"
)

// CheckSyntax reports whether a condition expression is well formed
// without evaluating it. An empty expression is valid (an edge with no
// condition is unconditional). The check mirrors the grammar accepted
// by Evaluate: clauses joined by && / "and" and || / "or", optional
// not/! negation, a comparison operator or a bare key per clause.
func CheckSyntax(expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil
	}
	return checkExpr(expression)
}

func checkExpr(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("empty clause in condition expression")
	}
	if left, right, ok := splitClause(expr, "||", " or "); ok {
		if err := checkExpr(left); err != nil {
			return err
		}
		return checkExpr(right)
	}
	if left, right, ok := splitClause(expr, "&&", " and "); ok {
		if err := checkExpr(left); err != nil {
			return err
		}
		return checkExpr(right)
	}
	return checkClause(expr)
}

func checkClause(clause string) error {
	if clause == "" {
		return fmt.Errorf("empty clause in condition expression")
	}
	if strings.HasPrefix(clause, "not ") {
		return checkClause(strings.TrimSpace(clause[4:]))
	}
	if strings.HasPrefix(clause, "!") && !strings.HasPrefix(clause, "!=") && !strings.HasPrefix(clause, "!~") {
		return checkClause(strings.TrimSpace(clause[1:]))
	}
	// Table order resolves operator overlap: a = inside != or >= or
	// <= belongs to the longer operator, which sits earlier.
	for _, op := range binaryOps {
		idx := strings.Index(clause, op.symbol)
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(clause[:idx])
		val := strings.TrimSpace(clause[idx+len(op.symbol):])
		if key == "" {
			return fmt.Errorf("missing key in clause %q", clause)
		}
		if val == "" {
			return fmt.Errorf("missing value in clause %q", clause)
		}
		return checkKey(key)
	}
	// Bare key, a truthy check against the variable set.
	return checkKey(clause)
}

// checkKey validates a condition key: outcome, preferred_label, a
// context.-prefixed path, or an unqualified dotted path for direct
// context lookup.
func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key in condition expression")
	}
	if key == "outcome" || key == "preferred_label" {
		return nil
	}
	if strings.HasPrefix(key, "context.") {
		path := key[len("context."):]
		if path == "" {
			return fmt.Errorf("empty path after %q in key %q", "context.", key)
		}
		return checkDottedPath(path)
	}
	return checkDottedPath(key)
}

func checkDottedPath(path string) error {
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return fmt.Errorf("empty segment in path %q", path)
		}
		if !isIdentifier(part) {
			return fmt.Errorf("invalid identifier %q in path %q", part, path)
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return len(s) > 0
}
