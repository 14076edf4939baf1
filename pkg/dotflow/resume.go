package dotflow

import (
	"context"
	"fmt"

	"github.com/randalmurphal/dotflow/pkg/dotflow/checkpoint"
)

// Resume continues a run from its latest checkpoint. The engine must
// have a checkpoint store configured, and the caller supplies the same
// pipeline graph the run started with; checkpoints persist run state,
// not the pipeline definition.
//
// Traversal restarts at the checkpoint's next node with the context,
// recorded statuses, and retry counts carried over. Pass
// WithReplayLastNode to re-execute the checkpointed node instead.
//
// Example:
//
//	// Previous run crashed after node "build".
//	// Resume continues from build's successor with build's state.
//	result, err := engine.Resume(ctx, g, "run-123")
func (e *Engine) Resume(ctx context.Context, g *Graph, runID string, opts ...RunOption) (*RunResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("resume %s: no checkpoint store configured", runID)
	}

	cp, err := checkpoint.Latest(e.store, runID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", runID, err)
	}
	if cp.Version != checkpoint.Version {
		return nil, fmt.Errorf("resume %s: checkpoint version %d, want %d", runID, cp.Version, checkpoint.Version)
	}

	merged := append([]RunOption{WithRunID(runID), WithResumeState(cp)}, opts...)
	return e.RunGraph(ctx, g, merged...)
}

// ResumeFrom continues a run from the checkpoint at a specific node
// rather than the latest one. Useful for rewinding a run past a node
// whose downstream effects need to be redone.
func (e *Engine) ResumeFrom(ctx context.Context, g *Graph, runID, nodeID string, opts ...RunOption) (*RunResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("resume %s: no checkpoint store configured", runID)
	}

	data, err := e.store.Load(runID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("resume %s at %q: %w", runID, nodeID, err)
	}
	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("resume %s at %q: %w", runID, nodeID, err)
	}
	if cp.Version != checkpoint.Version {
		return nil, fmt.Errorf("resume %s: checkpoint version %d, want %d", runID, cp.Version, checkpoint.Version)
	}

	merged := append([]RunOption{WithRunID(runID), WithResumeState(cp)}, opts...)
	return e.RunGraph(ctx, g, merged...)
}
