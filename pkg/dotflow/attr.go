package dotflow

import (
	"strconv"
	"strings"
)

// attrKind discriminates the typed attribute values a pipeline definition
// can carry.
type attrKind int

const (
	attrString attrKind = iota
	attrBool
	attrNumber
)

// AttrValue is a typed attribute value: string, bool, or number.
// Accessors report absence instead of failing, so callers decide what a
// missing or mismatched value means (usually: continue down a precedence
// chain).
type AttrValue struct {
	kind attrKind
	str  string
	b    bool
	num  float64
}

// StringValue creates a string-typed attribute value.
func StringValue(s string) AttrValue {
	return AttrValue{kind: attrString, str: s}
}

// BoolValue creates a bool-typed attribute value.
func BoolValue(b bool) AttrValue {
	return AttrValue{kind: attrBool, b: b}
}

// NumberValue creates a number-typed attribute value.
func NumberValue(n float64) AttrValue {
	return AttrValue{kind: attrNumber, num: n}
}

// Str returns the string value. The second return is false when the value
// is not string-typed.
func (v AttrValue) Str() (string, bool) {
	if v.kind != attrString {
		return "", false
	}
	return v.str, true
}

// Bool returns the boolean value, coercing string values: "true"/"false"
// (case-insensitive) convert, anything else does not. The second return is
// false when no boolean interpretation exists.
func (v AttrValue) Bool() (bool, bool) {
	switch v.kind {
	case attrBool:
		return v.b, true
	case attrString:
		switch strings.ToLower(strings.TrimSpace(v.str)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// Num returns the numeric value, coercing numeric-looking strings. The
// second return is false when no numeric interpretation exists.
func (v AttrValue) Num() (float64, bool) {
	switch v.kind {
	case attrNumber:
		return v.num, true
	case attrString:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Text renders the value as a string regardless of type. Used for display
// and for condition-evaluation variables where everything is stringly.
func (v AttrValue) Text() string {
	switch v.kind {
	case attrBool:
		return strconv.FormatBool(v.b)
	case attrNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return v.str
	}
}

// attrMap is a string-keyed attribute map that remembers insertion order.
// Declaration order is observable behavior: transforms and diagnostics
// iterate attributes the way the pipeline author wrote them.
type attrMap struct {
	order  []string
	values map[string]AttrValue
}

func newAttrMap() attrMap {
	return attrMap{values: make(map[string]AttrValue)}
}

func (m *attrMap) set(key string, v AttrValue) {
	if m.values == nil {
		m.values = make(map[string]AttrValue)
	}
	if _, exists := m.values[key]; !exists {
		m.order = append(m.order, key)
	}
	m.values[key] = v
}

func (m *attrMap) get(key string) (AttrValue, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *attrMap) clone() attrMap {
	out := attrMap{
		order:  make([]string, len(m.order)),
		values: make(map[string]AttrValue, len(m.values)),
	}
	copy(out.order, m.order)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// each calls fn for every attribute in insertion order. Iteration stops
// when fn returns false.
func (m *attrMap) each(fn func(key string, v AttrValue) bool) {
	for _, k := range m.order {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// str returns the string form of the attribute, or "" when absent.
func (m *attrMap) str(key string) string {
	v, ok := m.values[key]
	if !ok {
		return ""
	}
	s, ok := v.Str()
	if !ok {
		return v.Text()
	}
	return s
}

// boolean returns the coerced boolean, or def when absent or not coercible.
func (m *attrMap) boolean(key string, def bool) bool {
	v, ok := m.values[key]
	if !ok {
		return def
	}
	b, ok := v.Bool()
	if !ok {
		return def
	}
	return b
}

// integer returns the coerced integer, or def when absent or not numeric.
func (m *attrMap) integer(key string, def int) int {
	v, ok := m.values[key]
	if !ok {
		return def
	}
	n, ok := v.Num()
	if !ok {
		return def
	}
	return int(n)
}
