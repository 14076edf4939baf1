package expr

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Resolve resolves a token to a value: quoted strings and literals
// resolve to themselves, everything else is looked up in vars. Dotted
// tokens (context.build.status) walk nested maps. Unknown identifiers
// resolve to the empty string so comparisons against absent state are
// false, not errors.
func Resolve(s string, vars map[string]any) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if (strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'")) ||
		(strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)) {
		if len(s) < 2 {
			return ""
		}
		return s[1 : len(s)-1]
	}

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "null", "nil":
		return nil
	}

	var num json.Number
	if err := json.Unmarshal([]byte(s), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	if vars != nil {
		if val, ok := vars[s]; ok {
			return val
		}
		if val, ok := lookupPath(s, vars); ok {
			return val
		}
	}

	// Bare identifiers that resolve nowhere behave as literals when they
	// contain no dots (outcome = success compares against the word) and
	// as absent state when they do (context.missing is falsy).
	if strings.Contains(s, ".") {
		return ""
	}
	return s
}

// lookupPath walks a dotted path through nested map[string]any values.
func lookupPath(path string, vars map[string]any) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = vars
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// IsTruthy reports whether a value is truthy: nil is false, booleans are
// themselves, empty strings and the string "false" are false, zero
// numbers are false, everything else is true.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && !strings.EqualFold(val, "false")
	case int:
		return val != 0
	case int64:
		return val != 0
	case int32:
		return val != 0
	case float64:
		return val != 0
	case float32:
		return val != 0
	default:
		return true
	}
}

// ToFloat64 converts a value to float64 for numeric comparison,
// returning 0 when no numeric form exists.
func ToFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
