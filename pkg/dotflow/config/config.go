package config

import (
	"time"
)

// Config wraps a map[string]any for typed value extraction. Accessors
// return the supplied default when a key is missing or its value does
// not convert to the requested type, so run-config files can stay
// sparse.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map. A nil map yields an empty
// Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string at key, or def when missing or not a
// string.
func (c Config) String(key, def string) string {
	v, ok := c.data[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// Bool returns the boolean at key, or def when missing or not a bool.
func (c Config) Bool(key string, def bool) bool {
	v, ok := c.data[key]
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// Int returns the integer at key, or def. YAML decodes whole numbers
// as int and JSON as float64; both convert, but a float with a
// fractional part falls back to def rather than truncate silently.
func (c Config) Int(key string, def int) int {
	v, ok := c.data[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return def
}

// Float returns the float64 at key, or def.
func (c Config) Float(key string, def float64) float64 {
	v, ok := c.data[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	}
	return def
}

// Duration returns the duration at key, or def.
//
// Accepts a time.ParseDuration string ("500ms", "1h30m"), a bare
// number interpreted as seconds, or a time.Duration value.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	v, ok := c.data[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return def
}

// Strings returns the string slice at key, or def. A []any converts
// only when every element is a string.
func (c Config) Strings(key string, def []string) []string {
	v, ok := c.data[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return def
			}
			result = append(result, s)
		}
		return result
	}
	return def
}

// Section returns the nested Config at key. Missing keys and
// non-map values yield an empty section, so chained lookups never
// panic: cfg.Section("checkpoint").String("driver", "memory").
func (c Config) Section(key string) Config {
	v, ok := c.data[key]
	if !ok {
		return New(nil)
	}
	if m, ok := v.(map[string]any); ok {
		return New(m)
	}
	return New(nil)
}

// Any returns the raw value at key, or def when missing.
func (c Config) Any(key string, def any) any {
	v, ok := c.data[key]
	if !ok {
		return def
	}
	return v
}

// Has reports whether key exists.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Raw returns the underlying map. Callers must not modify it.
func (c Config) Raw() map[string]any {
	return c.data
}
