package dotflow

import (
	"strings"
	"time"
)

// Graph is a directed pipeline definition: named nodes, declaration-ordered
// edges, and graph-level attributes. A Graph is built once (by the dot
// parser or programmatically), optionally mutated in place by transforms
// during engine setup, and treated as read-only for the remainder of a run.
// The engine always works on a Clone so the caller's definition is never
// mutated.
//
// Lookups never fail: a missing node, edge, or attribute yields a zero
// value and callers (the precedence-chain resolvers, the lint rules) decide
// what absence means.
type Graph struct {
	// Name is the graph name from the digraph header, if any.
	Name string

	attrs     attrMap
	nodes     map[string]*Node
	nodeOrder []string
	edges     []*Edge
}

// NewGraph creates an empty graph with the given name.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:  name,
		attrs: newAttrMap(),
		nodes: make(map[string]*Node),
	}
}

// AddNode returns the node with the given id, creating it if needed.
// Node ids are unique within a graph; adding an existing id returns the
// existing node so the parser can merge repeated declarations.
func (g *Graph) AddNode(id string) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &Node{ID: id, attrs: newAttrMap()}
	g.nodes[id] = n
	g.nodeOrder = append(g.nodeOrder, id)
	return n
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// NodeIDs returns all node ids in declaration order.
func (g *Graph) NodeIDs() []string {
	out := make([]string, len(g.nodeOrder))
	copy(out, g.nodeOrder)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// AddEdge appends a directed edge. Endpoints are not required to exist;
// dangling references are caught by lint, not by construction.
func (g *Graph) AddEdge(from, to string) *Edge {
	e := &Edge{From: from, To: to, Order: len(g.edges), attrs: newAttrMap()}
	g.edges = append(g.edges, e)
	return e
}

// Edges returns all edges in declaration order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Outgoing returns the edges leaving the given node, in declaration order.
func (g *Graph) Outgoing(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns the edges entering the given node, in declaration order.
func (g *Graph) Incoming(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.To == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Attr returns a graph-level attribute.
func (g *Graph) Attr(key string) (AttrValue, bool) { return g.attrs.get(key) }

// StrAttr returns a graph-level attribute as a string, or "" when absent.
func (g *Graph) StrAttr(key string) string { return g.attrs.str(key) }

// SetAttr sets a graph-level attribute. Used by the parser and transforms.
func (g *Graph) SetAttr(key string, v AttrValue) { g.attrs.set(key, v) }

// EachAttr iterates graph attributes in declaration order.
func (g *Graph) EachAttr(fn func(key string, v AttrValue) bool) { g.attrs.each(fn) }

// Goal returns the graph-level goal attribute.
func (g *Graph) Goal() string { return g.attrs.str("goal") }

// DefaultFidelity returns the graph-level default_fidelity attribute.
func (g *Graph) DefaultFidelity() string { return g.attrs.str("default_fidelity") }

// DefaultThreadID returns the graph-level default_thread_id attribute.
func (g *Graph) DefaultThreadID() string { return g.attrs.str("default_thread_id") }

// RetryTarget returns the graph-level retry_target attribute.
func (g *Graph) RetryTarget() string { return g.attrs.str("retry_target") }

// FallbackRetryTarget returns the graph-level fallback_retry_target attribute.
func (g *Graph) FallbackRetryTarget() string { return g.attrs.str("fallback_retry_target") }

// Clone deep-copies the graph. Transforms run against a clone so the
// original definition survives the run unchanged.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Name:      g.Name,
		attrs:     g.attrs.clone(),
		nodes:     make(map[string]*Node, len(g.nodes)),
		nodeOrder: make([]string, len(g.nodeOrder)),
	}
	copy(out.nodeOrder, g.nodeOrder)
	for id, n := range g.nodes {
		out.nodes[id] = &Node{ID: n.ID, attrs: n.attrs.clone()}
	}
	out.edges = make([]*Edge, len(g.edges))
	for i, e := range g.edges {
		out.edges[i] = &Edge{From: e.From, To: e.To, Order: e.Order, attrs: e.attrs.clone()}
	}
	return out
}

// StartNode returns the pipeline entry node: shape=Mdiamond, or failing
// that a node literally named start.
func (g *Graph) StartNode() (*Node, bool) {
	for _, id := range g.nodeOrder {
		if n := g.nodes[id]; n.Shape() == "Mdiamond" {
			return n, true
		}
	}
	for _, id := range g.nodeOrder {
		if strings.EqualFold(id, "start") {
			return g.nodes[id], true
		}
	}
	return nil, false
}

// TerminalNodes returns every exit node in declaration order.
func (g *Graph) TerminalNodes() []*Node {
	var out []*Node
	for _, id := range g.nodeOrder {
		if n := g.nodes[id]; IsTerminalNode(n) {
			out = append(out, n)
		}
	}
	return out
}

// IsStartNode reports whether the node marks the pipeline entry point.
func IsStartNode(n *Node) bool {
	if n == nil {
		return false
	}
	return n.Shape() == "Mdiamond" || strings.EqualFold(n.ID, "start")
}

// IsTerminalNode reports whether the node marks a pipeline exit point.
func IsTerminalNode(n *Node) bool {
	if n == nil {
		return false
	}
	return n.Shape() == "Msquare" || strings.EqualFold(n.ID, "exit") || strings.EqualFold(n.ID, "end")
}

// Node is a pipeline stage: a unique id plus declaration-ordered typed
// attributes. Reserved attribute keys (shape, goal_gate, retry_target,
// fidelity, thread_id, class, ...) have dedicated accessors; everything
// else is reachable through Attr/StrAttr.
type Node struct {
	ID string

	attrs attrMap
}

// Attr returns a node attribute.
func (n *Node) Attr(key string) (AttrValue, bool) { return n.attrs.get(key) }

// StrAttr returns a node attribute as a string, or "" when absent.
func (n *Node) StrAttr(key string) string { return n.attrs.str(key) }

// BoolAttr returns a node attribute coerced to bool, or def when absent.
func (n *Node) BoolAttr(key string, def bool) bool { return n.attrs.boolean(key, def) }

// IntAttr returns a node attribute coerced to int, or def when absent.
func (n *Node) IntAttr(key string, def int) int { return n.attrs.integer(key, def) }

// SetAttr sets a node attribute. Used by the parser and transforms.
func (n *Node) SetAttr(key string, v AttrValue) { n.attrs.set(key, v) }

// EachAttr iterates node attributes in declaration order.
func (n *Node) EachAttr(fn func(key string, v AttrValue) bool) { n.attrs.each(fn) }

// Shape returns the DOT shape attribute, which selects the handler type
// when no explicit type attribute is present.
func (n *Node) Shape() string { return n.attrs.str("shape") }

// Type returns the explicit handler type override.
func (n *Node) Type() string { return n.attrs.str("type") }

// Label returns the human-readable label.
func (n *Node) Label() string { return n.attrs.str("label") }

// Prompt returns the prompt text for code-generation stages.
func (n *Node) Prompt() string { return n.attrs.str("prompt") }

// GoalGate reports whether this node, once visited, must end in a
// success-class outcome for the run to pass.
func (n *Node) GoalGate() bool { return n.attrs.boolean("goal_gate", false) }

// RetryTarget returns the node id execution jumps to when this node fails.
func (n *Node) RetryTarget() string { return n.attrs.str("retry_target") }

// FallbackRetryTarget returns the second-choice retry destination.
func (n *Node) FallbackRetryTarget() string { return n.attrs.str("fallback_retry_target") }

// Fidelity returns the node-level fidelity override.
func (n *Node) Fidelity() string { return n.attrs.str("fidelity") }

// ThreadID returns the node-level conversation thread override.
func (n *Node) ThreadID() string { return n.attrs.str("thread_id") }

// Class returns the comma-separated tag list used for stylesheet matching
// and thread derivation.
func (n *Node) Class() string { return n.attrs.str("class") }

// MaxRetries returns the per-node retry budget, 0 when unset.
func (n *Node) MaxRetries() int { return n.attrs.integer("max_retries", 0) }

// AllowPartial reports whether retry exhaustion downgrades to
// partial_success instead of fail.
func (n *Node) AllowPartial() bool { return n.attrs.boolean("allow_partial", false) }

// Timeout returns the per-stage execution timeout. Accepts Go duration
// strings and bare second counts; 0 when unset or unparseable.
func (n *Node) Timeout() time.Duration {
	raw := strings.TrimSpace(n.attrs.str("timeout"))
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, ok := n.attrs.get("timeout"); ok {
		if f, ok := secs.Num(); ok && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return 0
}

// Edge is a directed transition between two nodes, guarded by an optional
// condition expression. An empty condition means the edge is unconditional.
// Order records declaration position; routing tie-breaks depend on it.
type Edge struct {
	From  string
	To    string
	Order int

	attrs attrMap
}

// Attr returns an edge attribute.
func (e *Edge) Attr(key string) (AttrValue, bool) { return e.attrs.get(key) }

// StrAttr returns an edge attribute as a string, or "" when absent.
func (e *Edge) StrAttr(key string) string { return e.attrs.str(key) }

// SetAttr sets an edge attribute. Used by the parser and transforms.
func (e *Edge) SetAttr(key string, v AttrValue) { e.attrs.set(key, v) }

// Condition returns the guard expression; empty means always true.
func (e *Edge) Condition() string { return e.attrs.str("condition") }

// Label returns the human-readable edge label.
func (e *Edge) Label() string { return e.attrs.str("label") }

// Fidelity returns the edge-level fidelity override.
func (e *Edge) Fidelity() string { return e.attrs.str("fidelity") }

// ThreadID returns the edge-level conversation thread override.
func (e *Edge) ThreadID() string { return e.attrs.str("thread_id") }

// Weight returns the edge weight for routing tie-breaks, 0 when unset.
func (e *Edge) Weight() int { return e.attrs.integer("weight", 0) }

// LoopRestart reports whether traversing this edge restarts the pipeline
// loop with fresh per-iteration state.
func (e *Edge) LoopRestart() bool { return e.attrs.boolean("loop_restart", false) }
