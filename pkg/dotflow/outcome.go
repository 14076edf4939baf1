package dotflow

// StageStatus is the completion state of a single node execution.
type StageStatus string

// Stage completion states. Success and PartialSuccess are the
// success-class statuses; everything else counts as failure for goal
// gates and routing.
const (
	StatusSuccess        StageStatus = "success"
	StatusPartialSuccess StageStatus = "partial_success"
	StatusFail           StageStatus = "fail"
	StatusRetry          StageStatus = "retry"
	StatusSkipped        StageStatus = "skipped"
)

// String returns the wire form of the status.
func (s StageStatus) String() string { return string(s) }

// IsSuccess reports whether the status is success-class.
func (s StageStatus) IsSuccess() bool {
	return s == StatusSuccess || s == StatusPartialSuccess
}

// Outcome is the result of executing one node. Handlers produce it; the
// engine records it, applies its context updates, and feeds it to edge
// selection. Outcomes are treated as immutable once produced; routing
// that needs a fail-forced variant works on a copy (see forcedFail).
type Outcome struct {
	// Status is the stage completion state.
	Status StageStatus `json:"status"`

	// PreferredLabel hints which outgoing edge label to prefer during
	// routing (set by human-gate and LLM handlers).
	PreferredLabel string `json:"preferred_label,omitempty"`

	// SuggestedNextIDs hints which target nodes to prefer, in order.
	SuggestedNextIDs []string `json:"suggested_next_ids,omitempty"`

	// ContextUpdates are merged into the run Context after the node
	// completes.
	ContextUpdates map[string]any `json:"context_updates,omitempty"`

	// Notes carries free-form handler commentary.
	Notes string `json:"notes,omitempty"`

	// FailureReason explains a fail or retry status.
	FailureReason string `json:"failure_reason,omitempty"`
}

// NewOutcome creates an outcome with the given status.
func NewOutcome(status StageStatus) *Outcome {
	return &Outcome{Status: status}
}

// Success creates a success outcome.
func Success() *Outcome { return NewOutcome(StatusSuccess) }

// Fail creates a fail outcome with the given reason.
func Fail(reason string) *Outcome {
	o := NewOutcome(StatusFail)
	o.FailureReason = reason
	return o
}

// PartialSuccess creates a partial-success outcome with the given notes.
func PartialSuccess(notes string) *Outcome {
	o := NewOutcome(StatusPartialSuccess)
	o.Notes = notes
	return o
}

// RetryOutcome creates a retry outcome with the given reason.
func RetryOutcome(reason string) *Outcome {
	o := NewOutcome(StatusRetry)
	o.FailureReason = reason
	return o
}

// Skipped creates a skipped outcome.
func Skipped() *Outcome { return NewOutcome(StatusSkipped) }

// IsSuccess reports whether the outcome status is success-class.
func (o *Outcome) IsSuccess() bool { return o != nil && o.Status.IsSuccess() }

// WithPreferredLabel sets the preferred edge label and returns the outcome.
func (o *Outcome) WithPreferredLabel(label string) *Outcome {
	o.PreferredLabel = label
	return o
}

// WithSuggestedNextIDs sets the suggested next node ids and returns the
// outcome.
func (o *Outcome) WithSuggestedNextIDs(ids ...string) *Outcome {
	o.SuggestedNextIDs = ids
	return o
}

// WithContextUpdate adds a context update and returns the outcome.
func (o *Outcome) WithContextUpdate(key string, value any) *Outcome {
	if o.ContextUpdates == nil {
		o.ContextUpdates = make(map[string]any)
	}
	o.ContextUpdates[key] = value
	return o
}

// WithNotes sets the notes and returns the outcome.
func (o *Outcome) WithNotes(notes string) *Outcome {
	o.Notes = notes
	return o
}

// forcedFail returns a copy of the outcome with Status forced to fail.
// Fail-edge conditions are evaluated against this copy so the original
// outcome is never mutated.
func (o *Outcome) forcedFail() *Outcome {
	cp := *o
	cp.Status = StatusFail
	return &cp
}

// NodeOutcomes records the outcome of every visited node, insertion-ordered
// by execution order. Order matters: goal-gate checking reports the first
// offender by execution order, not by id.
type NodeOutcomes struct {
	ids      []string
	outcomes map[string]*Outcome
}

// NewNodeOutcomes creates an empty outcome record.
func NewNodeOutcomes() *NodeOutcomes {
	return &NodeOutcomes{outcomes: make(map[string]*Outcome)}
}

// Set records the outcome for a node. Re-recording a node (a retry-target
// jump revisits it) updates the outcome in place and keeps the original
// position.
func (no *NodeOutcomes) Set(nodeID string, o *Outcome) {
	if _, exists := no.outcomes[nodeID]; !exists {
		no.ids = append(no.ids, nodeID)
	}
	no.outcomes[nodeID] = o
}

// Get returns the recorded outcome for a node.
func (no *NodeOutcomes) Get(nodeID string) (*Outcome, bool) {
	o, ok := no.outcomes[nodeID]
	return o, ok
}

// IDs returns the visited node ids in execution order.
func (no *NodeOutcomes) IDs() []string {
	out := make([]string, len(no.ids))
	copy(out, no.ids)
	return out
}

// Len returns the number of recorded nodes.
func (no *NodeOutcomes) Len() int { return len(no.ids) }

// Each calls fn for every recorded node in execution order. Iteration
// stops when fn returns false.
func (no *NodeOutcomes) Each(fn func(nodeID string, o *Outcome) bool) {
	for _, id := range no.ids {
		if !fn(id, no.outcomes[id]) {
			return
		}
	}
}
