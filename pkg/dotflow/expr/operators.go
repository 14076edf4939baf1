package expr

import (
	"fmt"
	"regexp"
	"strings"
)

// Equality is stringly: pipeline state is mostly string-valued, so
// 3 == "3" holds. Ordering comparisons are numeric.

func opEquals(left, right any) bool {
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func opNotEquals(left, right any) bool {
	return !opEquals(left, right)
}

func opGT(left, right any) bool {
	return ToFloat64(left) > ToFloat64(right)
}

func opLT(left, right any) bool {
	return ToFloat64(left) < ToFloat64(right)
}

func opGTE(left, right any) bool {
	return ToFloat64(left) >= ToFloat64(right)
}

func opLTE(left, right any) bool {
	return ToFloat64(left) <= ToFloat64(right)
}

func opContains(left, right any) bool {
	return strings.Contains(fmt.Sprintf("%v", left), fmt.Sprintf("%v", right))
}

// Regex match treats the right operand as the pattern. A pattern that
// does not compile matches nothing.
func opMatches(left, right any) bool {
	matched, err := regexp.MatchString(fmt.Sprintf("%v", right), fmt.Sprintf("%v", left))
	return err == nil && matched
}

func opNotMatches(left, right any) bool {
	return !opMatches(left, right)
}

// Compare applies a named operator to two values. Used by callers that
// parse operator names out of band; Evaluate is the usual entry point.
func Compare(left, right any, op string) (bool, error) {
	switch op {
	case "==", "=":
		return opEquals(left, right), nil
	case "!=":
		return opNotEquals(left, right), nil
	case "<":
		return opLT(left, right), nil
	case ">":
		return opGT(left, right), nil
	case "<=":
		return opLTE(left, right), nil
	case ">=":
		return opGTE(left, right), nil
	case "=~":
		return opMatches(left, right), nil
	case "!~":
		return opNotMatches(left, right), nil
	case "contains":
		return opContains(left, right), nil
	default:
		return false, fmt.Errorf("unknown operator: %s", op)
	}
}
