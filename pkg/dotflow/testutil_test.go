package dotflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

// mustParse parses DOT source the test requires to be valid.
func mustParse(t *testing.T, src string) *dotflow.Graph {
	t.Helper()
	g, err := dotflow.ParseDOT([]byte(src))
	require.NoError(t, err)
	return g
}

// fakeHandler records the order nodes execute in and delegates
// outcomes to fn; without fn every stage succeeds.
type fakeHandler struct {
	mu    sync.Mutex
	calls []string
	fn    func(node *dotflow.Node, pctx *dotflow.Context) (*dotflow.Outcome, error)
}

func (h *fakeHandler) Execute(_ context.Context, node *dotflow.Node, pctx *dotflow.Context, _ *dotflow.Graph, _ string) (*dotflow.Outcome, error) {
	h.mu.Lock()
	h.calls = append(h.calls, node.ID)
	h.mu.Unlock()
	if h.fn != nil {
		return h.fn(node, pctx)
	}
	return dotflow.Success(), nil
}

func (h *fakeHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

// testRegistry is the default registry with work stages (box nodes)
// routed to h instead of the noop handler.
func testRegistry(h dotflow.Handler) *dotflow.HandlerRegistry {
	r := dotflow.DefaultHandlerRegistry()
	r.Register("codergen", h)
	return r
}

// eventLog collects emitted events; the engine emits synchronously
// from the run loop, so no locking is needed in assertions made after
// Run returns.
type eventLog struct {
	mu     sync.Mutex
	events []dotflow.Event
}

func (l *eventLog) emit(ev dotflow.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []dotflow.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]dotflow.Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) types() []dotflow.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]dotflow.EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}
