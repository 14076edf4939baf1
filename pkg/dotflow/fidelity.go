package dotflow

import "strings"

// FidelityMode controls how much conversational history is supplied to a
// node's handler.
type FidelityMode string

// Supported fidelity modes.
const (
	FidelityFull          FidelityMode = "full"
	FidelityTruncate      FidelityMode = "truncate"
	FidelityCompact       FidelityMode = "compact"
	FidelitySummaryLow    FidelityMode = "summary:low"
	FidelitySummaryMedium FidelityMode = "summary:medium"
	FidelitySummaryHigh   FidelityMode = "summary:high"
)

// DefaultFidelity is the system default when no level of the chain
// provides a valid mode.
const DefaultFidelity = FidelityCompact

var validFidelityModes = map[FidelityMode]bool{
	FidelityFull:          true,
	FidelityTruncate:      true,
	FidelityCompact:       true,
	FidelitySummaryLow:    true,
	FidelitySummaryMedium: true,
	FidelitySummaryHigh:   true,
}

// ParseFidelity parses a fidelity mode string. The second return is false
// for empty or unrecognized input.
func ParseFidelity(s string) (FidelityMode, bool) {
	m := FidelityMode(strings.TrimSpace(s))
	return m, validFidelityModes[m]
}

// IsValidFidelity reports whether s names a supported fidelity mode.
func IsValidFidelity(s string) bool {
	_, ok := ParseFidelity(s)
	return ok
}

// ResolveFidelity resolves the fidelity mode for a node visit via the
// precedence chain: incoming edge, target node, graph default_fidelity,
// then the system default (compact). A candidate that is present but does
// not parse as a valid mode is skipped, never an error.
func ResolveFidelity(edge *Edge, node *Node, g *Graph) FidelityMode {
	if edge != nil {
		if m, ok := ParseFidelity(edge.Fidelity()); ok {
			return m
		}
	}
	if node != nil {
		if m, ok := ParseFidelity(node.Fidelity()); ok {
			return m
		}
	}
	if g != nil {
		if m, ok := ParseFidelity(g.DefaultFidelity()); ok {
			return m
		}
	}
	return DefaultFidelity
}

// ResolveThreadID resolves the conversation thread for a node visit via
// the precedence chain: node thread_id, incoming edge thread_id, graph
// default_thread_id, the first comma-separated token of the node's class,
// then the previous node's id. First non-empty value wins.
func ResolveThreadID(node *Node, edge *Edge, g *Graph, prevNodeID string) string {
	if node != nil {
		if id := strings.TrimSpace(node.ThreadID()); id != "" {
			return id
		}
	}
	if edge != nil {
		if id := strings.TrimSpace(edge.ThreadID()); id != "" {
			return id
		}
	}
	if g != nil {
		if id := strings.TrimSpace(g.DefaultThreadID()); id != "" {
			return id
		}
	}
	if node != nil {
		if class := node.Class(); class != "" {
			first, _, _ := strings.Cut(class, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return prevNodeID
}
