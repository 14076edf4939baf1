package dotflow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Wrap with fmt.Errorf("%w: ...") to add detail; check
// with errors.Is.
var (
	// ErrInvalidPipeline indicates the graph failed validation or lacks a
	// recognizable start or exit node. The run never starts.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrNoHandler indicates no handler resolved for a node's type.
	ErrNoHandler = errors.New("no handler for node")

	// ErrHandlerFailed indicates a handler returned an error (as opposed
	// to a fail outcome, which is routed, not raised).
	ErrHandlerFailed = errors.New("handler failed")

	// ErrMaxIterations indicates the traversal exceeded the iteration
	// guard, almost always a cycle with no terminating condition.
	ErrMaxIterations = errors.New("max iterations exceeded")

	// ErrGoalGateUnsatisfied indicates a visited goal-gate node did not
	// end in a success-class outcome and no retry target resolved.
	ErrGoalGateUnsatisfied = errors.New("goal gate unsatisfied")

	// ErrRunCanceled indicates the run context was canceled.
	ErrRunCanceled = errors.New("run canceled")
)

// InvalidPipelineError carries the Error-severity diagnostics that stopped
// a run from starting.
type InvalidPipelineError struct {
	Diagnostics []Diagnostic
}

// Error lists every Error-severity diagnostic, one per line.
func (e *InvalidPipelineError) Error() string {
	var b strings.Builder
	b.WriteString("invalid pipeline:")
	for _, d := range e.Diagnostics {
		b.WriteString("\n  ")
		b.WriteString(d.String())
	}
	return b.String()
}

// Unwrap returns ErrInvalidPipeline so errors.Is matches.
func (e *InvalidPipelineError) Unwrap() error { return ErrInvalidPipeline }

// NoHandlerError indicates handler resolution failed for a node. This is
// fatal to the run; handler resolution is never retried.
type NoHandlerError struct {
	NodeID string
	Type   string
}

// Error implements the error interface.
func (e *NoHandlerError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("no handler for node %q (type %q)", e.NodeID, e.Type)
	}
	return fmt.Sprintf("no handler for node %q", e.NodeID)
}

// Unwrap returns ErrNoHandler so errors.Is matches.
func (e *NoHandlerError) Unwrap() error { return ErrNoHandler }

// HandlerError wraps an error returned by a handler execution.
type HandlerError struct {
	NodeID string
	Err    error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed at node %q: %v", e.NodeID, e.Err)
}

// Unwrap exposes both the ErrHandlerFailed sentinel and the underlying
// handler error, so errors.Is matches either.
func (e *HandlerError) Unwrap() []error { return []error{ErrHandlerFailed, e.Err} }

// StageFailureError indicates the run terminated in failure at a node:
// the node failed with no fail edge and no resolvable retry target.
type StageFailureError struct {
	NodeID string
	Reason string
}

// Error implements the error interface.
func (e *StageFailureError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("stage %q failed with no outgoing fail edge: %s", e.NodeID, e.Reason)
	}
	return fmt.Sprintf("stage %q failed with no outgoing fail edge", e.NodeID)
}

// GoalGateError indicates a goal-gate node's outcome was not success-class
// and no retry target resolved. Reported distinctly from handler failure:
// the offending node completed, but the run failed the pipeline's exit
// criteria.
type GoalGateError struct {
	NodeID string
}

// Error implements the error interface.
func (e *GoalGateError) Error() string {
	return fmt.Sprintf("goal gate unsatisfied for node %q, no retry target available", e.NodeID)
}

// Unwrap returns ErrGoalGateUnsatisfied so errors.Is matches.
func (e *GoalGateError) Unwrap() error { return ErrGoalGateUnsatisfied }

// MaxIterationsError indicates the run-loop iteration guard tripped.
type MaxIterationsError struct {
	Limit    int
	LastNode string
}

// Error implements the error interface.
func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("max iterations exceeded (%d) at node %q, possible infinite loop", e.Limit, e.LastNode)
}

// Unwrap returns ErrMaxIterations so errors.Is matches.
func (e *MaxIterationsError) Unwrap() error { return ErrMaxIterations }

// PanicOutcomeError records a recovered handler panic. The engine converts
// panics into fail outcomes rather than crashing the run; the error form
// exists for logging and artifacts.
type PanicOutcomeError struct {
	NodeID string
	Value  any
	Stack  []byte
}

// Error implements the error interface.
func (e *PanicOutcomeError) Error() string {
	return fmt.Sprintf("panic in handler for node %q: %v", e.NodeID, e.Value)
}
