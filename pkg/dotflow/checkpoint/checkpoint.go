// Package checkpoint provides persistent run-state storage so pipeline
// runs can be resumed after a crash or deliberate stop.
package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Checkpoint is the persisted snapshot of a pipeline run, captured after
// each completed node. It carries everything the engine needs to resume:
// where the run was, where it goes next, retry bookkeeping, per-node
// outcome statuses, and the accumulated pipeline context.
type Checkpoint struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Pipeline  string    `json:"pipeline,omitempty"`
	NodeID    string    `json:"node_id"`
	NextNode  string    `json:"next_node,omitempty"`
	PrevNode  string    `json:"prev_node,omitempty"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// CompletedNodes lists visited node ids in execution order.
	CompletedNodes []string `json:"completed_nodes,omitempty"`

	// StatusByNode maps visited node ids to their outcome status wire
	// form. Statuses are enough to re-evaluate goal gates on resume.
	StatusByNode map[string]string `json:"status_by_node,omitempty"`

	// RetryCounts maps node ids to consumed retry attempts.
	RetryCounts map[string]int `json:"retry_counts,omitempty"`

	// ContextValues is the pipeline context at capture time.
	ContextValues map[string]any `json:"context_values,omitempty"`

	// Logs is the run log accumulated so far.
	Logs []string `json:"logs,omitempty"`
}

// New creates a checkpoint for the given run position. The caller fills
// in the state fields before saving.
func New(runID, nodeID string, sequence int) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		NodeID:    nodeID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
	}
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Latest returns the highest-sequence checkpoint recorded for a run.
// Returns ErrNotFound when the run has no checkpoints.
func Latest(store Store, runID string) (*Checkpoint, error) {
	infos, err := store.List(runID)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNotFound
	}

	// List is ordered by sequence, so the newest is last.
	newest := infos[len(infos)-1]
	data, err := store.Load(runID, newest.NodeID)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
