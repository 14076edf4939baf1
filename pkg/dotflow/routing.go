package dotflow

import (
	"sort"
	"strings"

	"github.com/randalmurphal/dotflow/pkg/dotflow/expr"
)

// conditionVars builds the variable set edge conditions evaluate
// against: the stage outcome plus the pipeline context, exposed both
// under the context. prefix and as bare keys.
func conditionVars(out *Outcome, pctx *Context) map[string]any {
	vars := make(map[string]any)
	snapshot := map[string]any{}
	if pctx != nil {
		snapshot = pctx.Snapshot()
		for k, v := range snapshot {
			vars[k] = v
		}
	}
	vars["context"] = snapshot
	if out != nil {
		vars["outcome"] = out.Status.String()
		vars["preferred_label"] = out.PreferredLabel
	}
	return vars
}

// CheckGoalGates scans recorded outcomes in execution order and returns
// the first goal-gated node whose outcome is not successful. The second
// result is true when every gate is satisfied. Outcome ids that no
// longer name a node are skipped; transforms may have rewritten the
// graph after an outcome was recorded.
func CheckGoalGates(g *Graph, outcomes *NodeOutcomes) (string, bool) {
	offender := ""
	outcomes.Each(func(id string, out *Outcome) bool {
		node, ok := g.Node(id)
		if !ok || !node.GoalGate() {
			return true
		}
		if !out.IsSuccess() {
			offender = id
			return false
		}
		return true
	})
	return offender, offender == ""
}

// ResolveRetryTarget resolves where a failed or gated node sends the
// run next. Candidates are consulted in order: the node's retry_target,
// the node's fallback_retry_target, then the graph-level pair. A
// candidate wins only if it names a node present in the graph.
func ResolveRetryTarget(g *Graph, node *Node) (string, bool) {
	var candidates []string
	if node != nil {
		candidates = append(candidates, node.RetryTarget(), node.FallbackRetryTarget())
	}
	candidates = append(candidates, g.RetryTarget(), g.FallbackRetryTarget())

	for _, id := range candidates {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := g.Node(id); ok {
			return id, true
		}
	}
	return "", false
}

// FindFailEdge returns the first outgoing edge, in declaration order,
// whose condition holds against a copy of the outcome forced to fail
// status. Edges without a condition are never fail candidates: an
// unconditional edge must not fire because its source failed.
func FindFailEdge(g *Graph, node *Node, out *Outcome, pctx *Context, ev *expr.Evaluator) *Edge {
	vars := conditionVars(out.forcedFail(), pctx)
	for _, e := range g.Outgoing(node.ID) {
		cond := strings.TrimSpace(e.Condition())
		if cond == "" {
			continue
		}
		ok, err := ev.Evaluate(cond, vars)
		if err != nil || !ok {
			continue
		}
		return e
	}
	return nil
}

// SelectEdge picks the next edge out of a node once its outcome is
// recorded. Conditional edges are considered first; among those whose
// condition holds, ties break by weight descending, then target id
// ascending, then declaration order. When no condition matches, only
// unconditional edges are eligible, preferring a preferred_label match,
// then suggested next ids, then the same tie-break. A nil edge with a
// nil error means the node has nowhere to go.
func SelectEdge(g *Graph, node *Node, out *Outcome, pctx *Context, ev *expr.Evaluator) (*Edge, error) {
	edges := g.Outgoing(node.ID)
	if len(edges) == 0 {
		return nil, nil
	}
	vars := conditionVars(out, pctx)

	var matched []*Edge
	for _, e := range edges {
		cond := strings.TrimSpace(e.Condition())
		if cond == "" {
			continue
		}
		ok, err := ev.Evaluate(cond, vars)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, e)
		}
	}
	if len(matched) > 0 {
		return bestEdge(matched), nil
	}

	var uncond []*Edge
	for _, e := range edges {
		if strings.TrimSpace(e.Condition()) == "" {
			uncond = append(uncond, e)
		}
	}
	if len(uncond) == 0 {
		return nil, nil
	}

	// Outgoing returns declaration order, so the first label or id
	// match is the earliest-declared one.
	if want := normalizeLabel(out.PreferredLabel); want != "" {
		for _, e := range uncond {
			if normalizeLabel(e.Label()) == want {
				return e, nil
			}
		}
	}
	for _, suggested := range out.SuggestedNextIDs {
		for _, e := range uncond {
			if e.To == suggested {
				return e, nil
			}
		}
	}
	return bestEdge(uncond), nil
}

// bestEdge applies the deterministic tie-break: weight descending, then
// target node id ascending, then declaration order.
func bestEdge(edges []*Edge) *Edge {
	sorted := make([]*Edge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		if wi, wj := sorted[i].Weight(), sorted[j].Weight(); wi != wj {
			return wi > wj
		}
		if sorted[i].To != sorted[j].To {
			return sorted[i].To < sorted[j].To
		}
		return sorted[i].Order < sorted[j].Order
	})
	return sorted[0]
}

// normalizeLabel lowercases a label and strips accelerator prefixes of
// the forms "[k] ", "k) " and "k - ", so a handler answering "[R] Retry"
// matches an edge labeled "Retry".
func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 4 && s[0] == '[' && s[2] == ']' && s[3] == ' ' {
		return strings.TrimSpace(s[4:])
	}
	if len(s) >= 3 && s[1] == ')' && s[2] == ' ' {
		return strings.TrimSpace(s[3:])
	}
	if len(s) >= 4 && s[1] == ' ' && s[2] == '-' && s[3] == ' ' {
		return strings.TrimSpace(s[4:])
	}
	return s
}
