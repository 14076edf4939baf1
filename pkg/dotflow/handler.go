package dotflow

import (
	"context"
	"fmt"

	"github.com/randalmurphal/dotflow/pkg/dotflow/registry"
)

// Handler executes one visit to a pipeline node. Implementations
// receive the node, the shared pipeline context, the graph the engine
// is traversing, and the run's log directory for artifacts. A handler
// reports stage-level failure by returning a fail outcome; a non-nil
// error is reserved for infrastructure faults and aborts the run.
type Handler interface {
	Execute(ctx context.Context, node *Node, pctx *Context, g *Graph, logsRoot string) (*Outcome, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, node *Node, pctx *Context, g *Graph, logsRoot string) (*Outcome, error)

// Execute implements Handler by calling the wrapped function.
func (f HandlerFunc) Execute(ctx context.Context, node *Node, pctx *Context, g *Graph, logsRoot string) (*Outcome, error) {
	return f(ctx, node, pctx, g, logsRoot)
}

// ShapeToType maps DOT node shapes to handler type strings.
var ShapeToType = map[string]string{
	"Mdiamond":      "start",
	"Msquare":       "exit",
	"box":           "codergen",
	"hexagon":       "wait.human",
	"diamond":       "conditional",
	"component":     "parallel",
	"tripleoctagon": "parallel.fan_in",
	"parallelogram": "tool",
	"house":         "stack.manager_loop",
}

// knownHandlerTypes is the set of handler types the built-in suite
// recognizes; the type_known lint rule warns on anything else.
var knownHandlerTypes = map[string]bool{
	"start":              true,
	"exit":               true,
	"codergen":           true,
	"wait.human":         true,
	"conditional":        true,
	"parallel":           true,
	"parallel.fan_in":    true,
	"tool":               true,
	"stack.manager_loop": true,
}

// HandlerTypeOf returns the handler type a node resolves to: the
// explicit type attribute when set, otherwise the shape mapping. A
// node without a shape is treated as a box.
func HandlerTypeOf(n *Node) string {
	if t := n.Type(); t != "" {
		return t
	}
	shape := n.Shape()
	if shape == "" {
		shape = "box"
	}
	return ShapeToType[shape]
}

// HandlerRegistry resolves nodes to handlers.
//
// Resolution consults, in order: a handler registered for the node's
// explicit type attribute, a handler registered for the node's
// shape-mapped type, then the default handler. Resolve returns nil
// only when nothing matches and no default was provided; the engine
// treats that as fatal.
type HandlerRegistry struct {
	handlers       *registry.Registry[string, Handler]
	defaultHandler Handler
}

// NewHandlerRegistry creates a registry with the given default
// handler. A nil default makes resolution strict: nodes with no
// registered handler abort the run.
func NewHandlerRegistry(defaultHandler Handler) *HandlerRegistry {
	return &HandlerRegistry{
		handlers:       registry.New[string, Handler](),
		defaultHandler: defaultHandler,
	}
}

// Register adds a handler for a type string, replacing any previous
// registration.
func (r *HandlerRegistry) Register(typeString string, h Handler) {
	r.handlers.Register(typeString, h)
}

// Has reports whether a handler is registered for the exact type
// string.
func (r *HandlerRegistry) Has(typeString string) bool {
	return r.handlers.Has(typeString)
}

// Types returns the registered type strings in no particular order.
func (r *HandlerRegistry) Types() []string {
	return r.handlers.Keys()
}

// Resolve returns the handler for a node, or nil when the node's type
// is unregistered and no default exists.
func (r *HandlerRegistry) Resolve(node *Node) Handler {
	if t := node.Type(); t != "" {
		if h, ok := r.handlers.Get(t); ok {
			return h
		}
	}
	if shape := node.Shape(); shape != "" {
		if handlerType, ok := ShapeToType[shape]; ok {
			if h, ok := r.handlers.Get(handlerType); ok {
				return h
			}
		}
	}
	return r.defaultHandler
}

// DefaultHandlerRegistry builds the registry a zero-configuration
// engine uses: pass-through handlers for the control-flow node types
// and a noop default for everything else. LLM, tool, human and
// parallel handlers live in the handlers package and are registered on
// top of this.
func DefaultHandlerRegistry() *HandlerRegistry {
	r := NewHandlerRegistry(NoopHandler{})
	r.Register("start", StartHandler{})
	r.Register("exit", ExitHandler{})
	r.Register("conditional", ConditionalHandler{})
	r.Register("stack.manager_loop", StackManagerLoopHandler{})
	return r
}

// StartHandler marks the pipeline entry point. It performs no work.
type StartHandler struct{}

func (StartHandler) Execute(_ context.Context, node *Node, _ *Context, _ *Graph, _ string) (*Outcome, error) {
	return Success().WithNotes(fmt.Sprintf("start node %q entered", node.ID)), nil
}

// ExitHandler marks the pipeline exit point. It performs no work.
type ExitHandler struct{}

func (ExitHandler) Execute(_ context.Context, node *Node, _ *Context, _ *Graph, _ string) (*Outcome, error) {
	return Success().WithNotes(fmt.Sprintf("exit node %q reached", node.ID)), nil
}

// ConditionalHandler is the pass-through for diamond nodes. The
// branching itself happens in edge selection; the node only exists to
// anchor the candidate edges, so it runs exactly once and never
// retries.
type ConditionalHandler struct{}

func (ConditionalHandler) Execute(_ context.Context, node *Node, _ *Context, _ *Graph, _ string) (*Outcome, error) {
	return Success().WithNotes(fmt.Sprintf("conditional node %q evaluated", node.ID)), nil
}

// StackManagerLoopHandler anchors loop-back edges (house shape). Each
// visit bumps a per-node iteration counter in the context under
// loop.<id>.iteration; the loop's exit condition lives on the outgoing
// edges, typically testing that counter.
type StackManagerLoopHandler struct{}

func (StackManagerLoopHandler) Execute(_ context.Context, node *Node, pctx *Context, _ *Graph, _ string) (*Outcome, error) {
	key := "loop." + node.ID + ".iteration"
	iteration := pctx.GetInt(key, 0) + 1
	return Success().
		WithNotes(fmt.Sprintf("loop node %q iteration %d", node.ID, iteration)).
		WithContextUpdate(key, iteration), nil
}

// NoopHandler returns success without performing any work. It backs
// the default registry so pipelines whose nodes are pure routing run
// end to end without wiring real handlers.
type NoopHandler struct{}

func (NoopHandler) Execute(_ context.Context, node *Node, _ *Context, _ *Graph, _ string) (*Outcome, error) {
	return Success().WithNotes(fmt.Sprintf("node %q executed by noop handler", node.ID)), nil
}
