package dotflow

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/dotflow/pkg/dotflow/expr"
)

// Severity grades a validation diagnostic.
type Severity int

const (
	// SeverityError means the pipeline will not execute.
	SeverityError Severity = iota
	// SeverityWarning means the pipeline will execute but behavior may
	// be unexpected.
	SeverityWarning
	// SeverityInfo is an informational note.
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// EdgeRef identifies an edge by its endpoints.
type EdgeRef struct {
	From string
	To   string
}

// Diagnostic is a single validation finding.
type Diagnostic struct {
	Rule     string
	Severity Severity
	Message  string
	NodeID   string
	Edge     *EdgeRef
	Fix      string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", d.Severity, d.Rule, d.Message)
	if d.NodeID != "" {
		fmt.Fprintf(&b, " (node: %s)", d.NodeID)
	}
	if d.Edge != nil {
		fmt.Fprintf(&b, " (edge: %s -> %s)", d.Edge.From, d.Edge.To)
	}
	if d.Fix != "" {
		fmt.Fprintf(&b, " -- fix: %s", d.Fix)
	}
	return b.String()
}

// LintRule is a single read-only validation rule. Rules never mutate
// the graph.
type LintRule interface {
	Name() string
	Apply(g *Graph) []Diagnostic
}

// Validate runs the built-in rules plus any extra rules against the
// graph and returns every diagnostic regardless of severity.
func Validate(g *Graph, extraRules ...LintRule) []Diagnostic {
	rules := builtInRules()
	rules = append(rules, extraRules...)

	var diagnostics []Diagnostic
	for _, rule := range rules {
		diagnostics = append(diagnostics, rule.Apply(g)...)
	}
	return diagnostics
}

// ValidateOrError runs Validate and returns an *InvalidPipelineError
// listing every Error-severity diagnostic when any exist. All
// diagnostics are returned either way.
func ValidateOrError(g *Graph, extraRules ...LintRule) ([]Diagnostic, error) {
	diagnostics := Validate(g, extraRules...)

	var errs []Diagnostic
	for _, d := range diagnostics {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	if len(errs) > 0 {
		return diagnostics, &InvalidPipelineError{Diagnostics: errs}
	}
	return diagnostics, nil
}

func builtInRules() []LintRule {
	return []LintRule{
		startNodeRule{},
		terminalNodeRule{},
		edgeTargetExistsRule{},
		startNoIncomingRule{},
		exitNoOutgoingRule{},
		reachabilityRule{},
		conditionSyntaxRule{},
		stylesheetSyntaxRule{},
		typeKnownRule{},
		fidelityValidRule{},
		retryTargetExistsRule{},
		goalGateHasRetryRule{},
		promptOnLLMNodesRule{},
	}
}

// start_node: the pipeline must have exactly one start node.
type startNodeRule struct{}

func (startNodeRule) Name() string { return "start_node" }

func (startNodeRule) Apply(g *Graph) []Diagnostic {
	var starts []*Node
	for _, n := range g.Nodes() {
		if IsStartNode(n) {
			starts = append(starts, n)
		}
	}
	switch len(starts) {
	case 0:
		return []Diagnostic{{
			Rule:     "start_node",
			Severity: SeverityError,
			Message:  "pipeline must have exactly one start node (shape=Mdiamond or id=start)",
			Fix:      "add a node with shape=Mdiamond",
		}}
	case 1:
		return nil
	default:
		var diags []Diagnostic
		for _, n := range starts {
			diags = append(diags, Diagnostic{
				Rule:     "start_node",
				Severity: SeverityError,
				Message:  fmt.Sprintf("multiple start nodes found; %q is one of %d", n.ID, len(starts)),
				NodeID:   n.ID,
				Fix:      "ensure exactly one node has shape=Mdiamond or id=start",
			})
		}
		return diags
	}
}

// terminal_node: the pipeline must have at least one terminal node.
type terminalNodeRule struct{}

func (terminalNodeRule) Name() string { return "terminal_node" }

func (terminalNodeRule) Apply(g *Graph) []Diagnostic {
	for _, n := range g.Nodes() {
		if IsTerminalNode(n) {
			return nil
		}
	}
	return []Diagnostic{{
		Rule:     "terminal_node",
		Severity: SeverityError,
		Message:  "pipeline must have at least one terminal node (shape=Msquare or id=exit/end)",
		Fix:      "add a node with shape=Msquare",
	}}
}

// edge_target_exists: both endpoints of every edge must name declared
// nodes.
type edgeTargetExistsRule struct{}

func (edgeTargetExistsRule) Name() string { return "edge_target_exists" }

func (edgeTargetExistsRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, e := range g.Edges() {
		if _, ok := g.Node(e.From); !ok {
			diags = append(diags, Diagnostic{
				Rule:     "edge_target_exists",
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge source %q does not reference an existing node", e.From),
				Edge:     &EdgeRef{From: e.From, To: e.To},
				Fix:      fmt.Sprintf("declare node %q or fix the edge source", e.From),
			})
		}
		if _, ok := g.Node(e.To); !ok {
			diags = append(diags, Diagnostic{
				Rule:     "edge_target_exists",
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge target %q does not reference an existing node", e.To),
				Edge:     &EdgeRef{From: e.From, To: e.To},
				Fix:      fmt.Sprintf("declare node %q or fix the edge target", e.To),
			})
		}
	}
	return diags
}

// start_no_incoming: the start node must have no incoming edges.
type startNoIncomingRule struct{}

func (startNoIncomingRule) Name() string { return "start_no_incoming" }

func (startNoIncomingRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if !IsStartNode(n) {
			continue
		}
		if incoming := g.Incoming(n.ID); len(incoming) > 0 {
			diags = append(diags, Diagnostic{
				Rule:     "start_no_incoming",
				Severity: SeverityError,
				Message:  fmt.Sprintf("start node %q must have no incoming edges, but has %d", n.ID, len(incoming)),
				NodeID:   n.ID,
				Fix:      "remove all edges pointing to the start node",
			})
		}
	}
	return diags
}

// exit_no_outgoing: terminal nodes must have no outgoing edges.
type exitNoOutgoingRule struct{}

func (exitNoOutgoingRule) Name() string { return "exit_no_outgoing" }

func (exitNoOutgoingRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if !IsTerminalNode(n) {
			continue
		}
		if outgoing := g.Outgoing(n.ID); len(outgoing) > 0 {
			diags = append(diags, Diagnostic{
				Rule:     "exit_no_outgoing",
				Severity: SeverityError,
				Message:  fmt.Sprintf("terminal node %q must have no outgoing edges, but has %d", n.ID, len(outgoing)),
				NodeID:   n.ID,
				Fix:      "remove all edges originating from the terminal node",
			})
		}
	}
	return diags
}

// reachability: every node must be reachable from the start node.
type reachabilityRule struct{}

func (reachabilityRule) Name() string { return "reachability" }

func (reachabilityRule) Apply(g *Graph) []Diagnostic {
	start, ok := g.StartNode()
	if !ok {
		// start_node reports the missing start; nothing to walk from.
		return nil
	}

	visited := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing(cur) {
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}

	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if !visited[n.ID] {
			diags = append(diags, Diagnostic{
				Rule:     "reachability",
				Severity: SeverityError,
				Message:  fmt.Sprintf("node %q is not reachable from start node %q", n.ID, start.ID),
				NodeID:   n.ID,
				Fix:      fmt.Sprintf("add an edge path from %q to %q or remove the unreachable node", start.ID, n.ID),
			})
		}
	}
	return diags
}

// condition_syntax: edge condition expressions must parse.
type conditionSyntaxRule struct{}

func (conditionSyntaxRule) Name() string { return "condition_syntax" }

func (conditionSyntaxRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, e := range g.Edges() {
		cond := e.Condition()
		if cond == "" {
			continue
		}
		if err := expr.CheckSyntax(cond); err != nil {
			diags = append(diags, Diagnostic{
				Rule:     "condition_syntax",
				Severity: SeverityError,
				Message:  fmt.Sprintf("invalid condition on edge %s -> %s: %v", e.From, e.To, err),
				Edge:     &EdgeRef{From: e.From, To: e.To},
				Fix:      "fix the condition expression syntax",
			})
		}
	}
	return diags
}

// stylesheet_syntax: model_stylesheet must parse as stylesheet rules.
type stylesheetSyntaxRule struct{}

func (stylesheetSyntaxRule) Name() string { return "stylesheet_syntax" }

func (stylesheetSyntaxRule) Apply(g *Graph) []Diagnostic {
	ss := g.StrAttr("model_stylesheet")
	if ss == "" {
		return nil
	}
	if _, err := ParseStylesheet(ss); err != nil {
		return []Diagnostic{{
			Rule:     "stylesheet_syntax",
			Severity: SeverityError,
			Message:  fmt.Sprintf("invalid model_stylesheet: %v", err),
			Fix:      "fix the stylesheet syntax",
		}}
	}
	return nil
}

// type_known: explicit node type values should be recognized.
type typeKnownRule struct{}

func (typeKnownRule) Name() string { return "type_known" }

func (typeKnownRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		typ := n.Type()
		if typ == "" {
			continue
		}
		if !knownHandlerTypes[typ] {
			diags = append(diags, Diagnostic{
				Rule:     "type_known",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("node %q has unrecognized type %q", n.ID, typ),
				NodeID:   n.ID,
				Fix:      "use a recognized handler type or register a custom handler",
			})
		}
	}
	return diags
}

// fidelity_valid: fidelity values at every level must name a supported
// mode.
type fidelityValidRule struct{}

func (fidelityValidRule) Name() string { return "fidelity_valid" }

const fidelityFix = "use one of: full, truncate, compact, summary:low, summary:medium, summary:high"

func (fidelityValidRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic

	if fid := g.DefaultFidelity(); fid != "" && !IsValidFidelity(fid) {
		diags = append(diags, Diagnostic{
			Rule:     "fidelity_valid",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("graph attribute default_fidelity has invalid value %q", fid),
			Fix:      fidelityFix,
		})
	}
	for _, n := range g.Nodes() {
		if fid := n.Fidelity(); fid != "" && !IsValidFidelity(fid) {
			diags = append(diags, Diagnostic{
				Rule:     "fidelity_valid",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("node %q has invalid fidelity value %q", n.ID, fid),
				NodeID:   n.ID,
				Fix:      fidelityFix,
			})
		}
	}
	for _, e := range g.Edges() {
		if fid := e.Fidelity(); fid != "" && !IsValidFidelity(fid) {
			diags = append(diags, Diagnostic{
				Rule:     "fidelity_valid",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("edge %s -> %s has invalid fidelity value %q", e.From, e.To, fid),
				Edge:     &EdgeRef{From: e.From, To: e.To},
				Fix:      fidelityFix,
			})
		}
	}
	return diags
}

// retry_target_exists: retry_target and fallback_retry_target must
// reference declared nodes.
type retryTargetExistsRule struct{}

func (retryTargetExistsRule) Name() string { return "retry_target_exists" }

func (retryTargetExistsRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic

	for _, key := range []string{"retry_target", "fallback_retry_target"} {
		if v := g.StrAttr(key); v != "" {
			if _, ok := g.Node(v); !ok {
				diags = append(diags, Diagnostic{
					Rule:     "retry_target_exists",
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("graph attribute %s references non-existent node %q", key, v),
					Fix:      fmt.Sprintf("ensure node %q exists or fix the %s value", v, key),
				})
			}
		}
	}
	for _, n := range g.Nodes() {
		for _, key := range []string{"retry_target", "fallback_retry_target"} {
			if v := n.StrAttr(key); v != "" {
				if _, ok := g.Node(v); !ok {
					diags = append(diags, Diagnostic{
						Rule:     "retry_target_exists",
						Severity: SeverityWarning,
						Message:  fmt.Sprintf("node %q attribute %s references non-existent node %q", n.ID, key, v),
						NodeID:   n.ID,
						Fix:      fmt.Sprintf("ensure node %q exists or fix the %s value", v, key),
					})
				}
			}
		}
	}
	return diags
}

// goal_gate_has_retry: goal-gated nodes should have somewhere to send
// the run when the gate fails.
type goalGateHasRetryRule struct{}

func (goalGateHasRetryRule) Name() string { return "goal_gate_has_retry" }

func (goalGateHasRetryRule) Apply(g *Graph) []Diagnostic {
	graphHasRetry := g.RetryTarget() != "" || g.FallbackRetryTarget() != ""

	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if !n.GoalGate() {
			continue
		}
		if n.RetryTarget() == "" && n.FallbackRetryTarget() == "" && !graphHasRetry {
			diags = append(diags, Diagnostic{
				Rule:     "goal_gate_has_retry",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("node %q has goal_gate=true but no retry_target or fallback_retry_target", n.ID),
				NodeID:   n.ID,
				Fix:      "add retry_target or fallback_retry_target attribute to the node or graph",
			})
		}
	}
	return diags
}

// prompt_on_llm_nodes: nodes that resolve to the codergen handler
// should carry a prompt or label.
type promptOnLLMNodesRule struct{}

func (promptOnLLMNodesRule) Name() string { return "prompt_on_llm_nodes" }

func (promptOnLLMNodesRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if HandlerTypeOf(n) != "codergen" {
			continue
		}
		if n.Prompt() == "" && n.Label() == "" {
			diags = append(diags, Diagnostic{
				Rule:     "prompt_on_llm_nodes",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("LLM node %q has no prompt or label attribute", n.ID),
				NodeID:   n.ID,
				Fix:      "add a prompt or label attribute to provide instructions for the LLM",
			})
		}
	}
	return diags
}
