package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

// JoinPolicy decides how branch results aggregate into the parallel
// node's own outcome.
type JoinPolicy string

const (
	// JoinWaitAll succeeds only when every branch succeeded (subject
	// to the error policy).
	JoinWaitAll JoinPolicy = "wait_all"
	// JoinFirstSuccess succeeds when at least one branch succeeded.
	JoinFirstSuccess JoinPolicy = "first_success"
	// JoinKOfN succeeds when at least k_value branches succeeded.
	JoinKOfN JoinPolicy = "k_of_n"
	// JoinQuorum succeeds when a strict majority succeeded.
	JoinQuorum JoinPolicy = "quorum"
)

// ErrorPolicy decides how branch failures affect a wait_all join.
type ErrorPolicy string

const (
	ErrorFailFast ErrorPolicy = "fail_fast"
	ErrorContinue ErrorPolicy = "continue"
	ErrorIgnore   ErrorPolicy = "ignore"
)

func parseJoinPolicy(s string) JoinPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(JoinFirstSuccess):
		return JoinFirstSuccess
	case string(JoinKOfN):
		return JoinKOfN
	case string(JoinQuorum):
		return JoinQuorum
	default:
		return JoinWaitAll
	}
}

func parseErrorPolicy(s string) ErrorPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ErrorContinue):
		return ErrorContinue
	case string(ErrorIgnore):
		return ErrorIgnore
	default:
		return ErrorFailFast
	}
}

// BranchResult is one branch's outcome inside a parallel visit, as
// persisted to parallel_results.json.
type BranchResult struct {
	NodeID        string `json:"node_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// ParallelHandler fans out to every outgoing edge target concurrently
// within a single node visit; the engine's traversal stays sequential
// around it. Each branch handler runs against a cloned context so
// branches cannot race on shared state; their updates are deliberately
// discarded, and downstream stages read the aggregate instead:
// "parallel.results" holds id:status pairs, parallel_results.json in
// the stage directory holds the full picture, and the winning branch
// is suggested as the next hop.
//
// Attributes: join_policy (wait_all, first_success, k_of_n, quorum),
// error_policy (fail_fast, continue, ignore), max_parallel (default
// 4), k_value (default 1).
type ParallelHandler struct {
	registry *dotflow.HandlerRegistry
}

// NewParallelHandler creates a ParallelHandler resolving branch
// handlers from registry.
func NewParallelHandler(registry *dotflow.HandlerRegistry) *ParallelHandler {
	return &ParallelHandler{registry: registry}
}

// Execute implements dotflow.Handler.
func (h *ParallelHandler) Execute(ctx context.Context, node *dotflow.Node, pctx *dotflow.Context, g *dotflow.Graph, logsRoot string) (*dotflow.Outcome, error) {
	edges := g.Outgoing(node.ID)
	if len(edges) == 0 {
		return dotflow.Success().WithNotes(fmt.Sprintf("parallel node %q has no branches", node.ID)), nil
	}

	joinPolicy := parseJoinPolicy(node.StrAttr("join_policy"))
	errorPolicy := parseErrorPolicy(node.StrAttr("error_policy"))
	maxParallel := node.IntAttr("max_parallel", 4)
	if maxParallel < 1 {
		maxParallel = 1
	}
	kValue := node.IntAttr("k_value", 1)

	results := make([]BranchResult, len(edges))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, edge := range edges {
		wg.Add(1)
		go func(idx int, targetID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = h.runBranch(ctx, g, targetID, pctx, logsRoot)
		}(i, edge.To)
	}
	wg.Wait()

	var successes, failures int
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.NodeID + ":" + r.Status
		switch dotflow.StageStatus(r.Status) {
		case dotflow.StatusSuccess, dotflow.StatusPartialSuccess:
			successes++
		case dotflow.StatusFail:
			failures++
		}
	}

	writeParallelResults(logsRoot, node.ID, results)

	status := aggregateStatus(joinPolicy, errorPolicy, successes, failures, len(results), kValue)
	out := dotflow.NewOutcome(status).
		WithNotes(fmt.Sprintf("parallel %q: %d/%d branches succeeded", node.ID, successes, len(results))).
		WithContextUpdate("parallel.results", strings.Join(parts, ","))
	if status == dotflow.StatusFail {
		out.FailureReason = fmt.Sprintf("parallel %q: %d of %d branches failed", node.ID, failures, len(results))
	}
	if best := bestBranch(results); best != "" {
		out = out.WithSuggestedNextIDs(best)
	}
	return out, nil
}

// runBranch executes a single branch target with an isolated context
// copy. Handler errors and panics degrade to fail results; a branch
// must never take down its siblings.
func (h *ParallelHandler) runBranch(ctx context.Context, g *dotflow.Graph, targetID string, pctx *dotflow.Context, logsRoot string) (result BranchResult) {
	result = BranchResult{NodeID: targetID, Status: string(dotflow.StatusFail)}
	defer func() {
		if r := recover(); r != nil {
			result.FailureReason = fmt.Sprintf("branch panicked: %v", r)
		}
	}()

	target, ok := g.Node(targetID)
	if !ok {
		result.FailureReason = fmt.Sprintf("target node %q not found", targetID)
		return result
	}

	var handler dotflow.Handler
	if h.registry != nil {
		handler = h.registry.Resolve(target)
	}
	if handler == nil {
		result.FailureReason = fmt.Sprintf("no handler for branch node %q", targetID)
		return result
	}

	branchCtx := pctx.Clone()
	out, err := handler.Execute(ctx, target, branchCtx, g, logsRoot)
	if err != nil {
		result.FailureReason = err.Error()
		return result
	}
	if out == nil {
		out = dotflow.Success()
	}

	return BranchResult{
		NodeID:        targetID,
		Status:        string(out.Status),
		FailureReason: out.FailureReason,
		Notes:         out.Notes,
	}
}

// aggregateStatus folds branch counts into the parallel node's status
// under the configured policies.
func aggregateStatus(join JoinPolicy, errPolicy ErrorPolicy, successes, failures, total, kValue int) dotflow.StageStatus {
	switch join {
	case JoinFirstSuccess:
		if successes > 0 {
			return dotflow.StatusSuccess
		}
		return dotflow.StatusFail
	case JoinKOfN:
		if successes >= kValue {
			return dotflow.StatusSuccess
		}
		return dotflow.StatusFail
	case JoinQuorum:
		if successes > total/2 {
			return dotflow.StatusSuccess
		}
		return dotflow.StatusFail
	default: // JoinWaitAll
		if failures == 0 {
			return dotflow.StatusSuccess
		}
		if errPolicy == ErrorContinue || errPolicy == ErrorIgnore {
			return dotflow.StatusSuccess
		}
		return dotflow.StatusFail
	}
}

// bestBranch ranks branch results (success before partial success
// before fail, ties lexical by id) and returns the winner's id.
func bestBranch(results []BranchResult) string {
	ranked := make([]BranchResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := statusRank(ranked[i].Status), statusRank(ranked[j].Status)
		if ri != rj {
			return ri < rj
		}
		return ranked[i].NodeID < ranked[j].NodeID
	})
	if len(ranked) == 0 {
		return ""
	}
	return ranked[0].NodeID
}

func statusRank(status string) int {
	switch dotflow.StageStatus(strings.ToLower(status)) {
	case dotflow.StatusSuccess:
		return 0
	case dotflow.StatusPartialSuccess:
		return 1
	case dotflow.StatusFail:
		return 2
	default:
		return 3
	}
}

// writeParallelResults persists the branch picture beside the other
// stage artifacts. Best effort: an unwritable log dir should not fail
// a join that already computed its outcome.
func writeParallelResults(logsRoot, nodeID string, results []BranchResult) {
	stageDir := filepath.Join(logsRoot, nodeID)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(stageDir, "parallel_results.json"), data, 0o644)
}

// FanInHandler consolidates a preceding parallel fan-out: it reads
// "parallel.results", picks the best branch with the same ranking the
// fan-out used, and records it under "parallel.best_branch" for
// downstream stages.
type FanInHandler struct{}

// Execute implements dotflow.Handler.
func (FanInHandler) Execute(_ context.Context, node *dotflow.Node, pctx *dotflow.Context, _ *dotflow.Graph, _ string) (*dotflow.Outcome, error) {
	raw := pctx.GetString("parallel.results", "")
	if raw == "" {
		return dotflow.Success().
			WithNotes(fmt.Sprintf("fan-in %q: no parallel results found", node.ID)).
			WithContextUpdate("parallel.best_branch", ""), nil
	}

	var results []BranchResult
	for _, part := range strings.Split(raw, ",") {
		id, status, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		results = append(results, BranchResult{NodeID: id, Status: status})
	}

	best := bestBranch(results)
	return dotflow.Success().
		WithNotes(fmt.Sprintf("fan-in %q: selected branch %q from %d results", node.ID, best, len(results))).
		WithContextUpdate("parallel.best_branch", best).
		WithContextUpdate("last_stage", node.ID), nil
}
