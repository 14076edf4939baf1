package dotflow

import (
	"fmt"
	"strconv"
	"sync"
)

// Context is the pipeline-scoped bag of execution state threaded through
// every node execution and condition evaluation. It accumulates variables
// (handler context updates, engine bookkeeping keys like "outcome" and
// "previous_node") and an append-only log.
//
// A Context is owned by exactly one run. The engine mutates it only from
// the run-loop goroutine; the mutex exists because handlers may read it
// concurrently from goroutines they spawn (the parallel handler clones it
// per branch instead, but reads through the original remain safe).
type Context struct {
	mu     sync.RWMutex
	values map[string]any
	logs   []string
}

// NewContext creates an empty pipeline context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Set stores a value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the value for key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the value for key rendered as a string, or def when
// the key is absent.
func (c *Context) GetString(key, def string) string {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// GetInt returns the value for key coerced to int, or def when absent or
// not numeric.
func (c *Context) GetInt(key string, def int) int {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return def
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// ApplyUpdates merges a handler's context updates into the context.
func (c *Context) ApplyUpdates(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range updates {
		c.values[k] = v
	}
}

// AppendLog appends a line to the run log.
func (c *Context) AppendLog(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, line)
}

// Snapshot returns a copy of the current values.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// SnapshotLogs returns a copy of the accumulated log lines.
func (c *Context) SnapshotLogs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.logs))
	copy(out, c.logs)
	return out
}

// Clone returns an independent copy of the context. Branch executions
// (the parallel handler) run against clones so sibling branches never
// observe each other's writes.
func (c *Context) Clone() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &Context{
		values: make(map[string]any, len(c.values)),
		logs:   make([]string, len(c.logs)),
	}
	for k, v := range c.values {
		out.values[k] = v
	}
	copy(out.logs, c.logs)
	return out
}

// restore replaces the context contents from a snapshot. Used when
// resuming a run from persisted state.
func (c *Context) restore(values map[string]any, logs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]any, len(values))
	for k, v := range values {
		c.values[k] = v
	}
	c.logs = make([]string, len(logs))
	copy(c.logs, logs)
}
