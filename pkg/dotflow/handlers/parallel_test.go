package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
	"github.com/randalmurphal/dotflow/pkg/dotflow/handlers"
)

// fanOutSrc builds the standard three-branch fan-out with extra
// attributes spliced into the parallel node.
func fanOutSrc(extraAttrs string) string {
	return fmt.Sprintf(`digraph p {
	par [shape=component%s];
	alpha [shape=box];
	beta [shape=box];
	gamma [shape=box];
	par -> alpha;
	par -> beta;
	par -> gamma;
}`, extraAttrs)
}

// branchRegistry resolves every box node to a handler that returns the
// scripted outcome for its id, success when unscripted.
func branchRegistry(scripted map[string]*dotflow.Outcome) *dotflow.HandlerRegistry {
	r := dotflow.NewHandlerRegistry(nil)
	r.Register("codergen", dotflow.HandlerFunc(func(_ context.Context, node *dotflow.Node, _ *dotflow.Context, _ *dotflow.Graph, _ string) (*dotflow.Outcome, error) {
		if out, ok := scripted[node.ID]; ok {
			return out, nil
		}
		return dotflow.Success(), nil
	}))
	return r
}

func TestParallelHandler_AllBranchesSucceed(t *testing.T) {
	g := mustGraph(t, fanOutSrc(""))
	node := mustNode(t, g, "par")
	logsRoot := t.TempDir()

	h := handlers.NewParallelHandler(branchRegistry(nil))
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, logsRoot)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, dotflow.StatusSuccess, out.Status)
	assert.Contains(t, out.Notes, "3/3")
	assert.Equal(t, "alpha:success,beta:success,gamma:success", out.ContextUpdates["parallel.results"])
	assert.Equal(t, []string{"alpha"}, out.SuggestedNextIDs)

	data, err := os.ReadFile(filepath.Join(logsRoot, "par", "parallel_results.json"))
	require.NoError(t, err)
	var results []handlers.BranchResult
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 3)
	assert.Equal(t, "alpha", results[0].NodeID)
	assert.Equal(t, "success", results[0].Status)
}

func TestParallelHandler_JoinPolicies(t *testing.T) {
	fail := dotflow.Fail("branch broke")
	tests := []struct {
		name     string
		attrs    string
		scripted map[string]*dotflow.Outcome
		want     dotflow.StageStatus
	}{
		{"wait_all all succeed", "", nil, dotflow.StatusSuccess},
		{"wait_all one fails", "", map[string]*dotflow.Outcome{"beta": fail}, dotflow.StatusFail},
		{"wait_all continue tolerates failure", `, error_policy="continue"`, map[string]*dotflow.Outcome{"beta": fail}, dotflow.StatusSuccess},
		{"wait_all ignore tolerates failure", `, error_policy="ignore"`, map[string]*dotflow.Outcome{"beta": fail}, dotflow.StatusSuccess},
		{"first_success one succeeds", `, join_policy="first_success"`, map[string]*dotflow.Outcome{"alpha": fail, "beta": fail}, dotflow.StatusSuccess},
		{"first_success none succeed", `, join_policy="first_success"`, map[string]*dotflow.Outcome{"alpha": fail, "beta": fail, "gamma": fail}, dotflow.StatusFail},
		{"k_of_n met", `, join_policy="k_of_n", k_value=2`, map[string]*dotflow.Outcome{"gamma": fail}, dotflow.StatusSuccess},
		{"k_of_n unmet", `, join_policy="k_of_n", k_value=3`, map[string]*dotflow.Outcome{"gamma": fail}, dotflow.StatusFail},
		{"quorum met", `, join_policy="quorum"`, map[string]*dotflow.Outcome{"gamma": fail}, dotflow.StatusSuccess},
		{"quorum unmet", `, join_policy="quorum"`, map[string]*dotflow.Outcome{"beta": fail, "gamma": fail}, dotflow.StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustGraph(t, fanOutSrc(tt.attrs))
			node := mustNode(t, g, "par")

			h := handlers.NewParallelHandler(branchRegistry(tt.scripted))
			out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
		})
	}
}

func TestParallelHandler_SuggestsBestBranch(t *testing.T) {
	g := mustGraph(t, fanOutSrc(`, error_policy="continue"`))
	node := mustNode(t, g, "par")

	scripted := map[string]*dotflow.Outcome{
		"alpha": dotflow.PartialSuccess("got halfway"),
		"beta":  dotflow.Fail("broke"),
	}
	h := handlers.NewParallelHandler(branchRegistry(scripted))
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, dotflow.StatusSuccess, out.Status)
	assert.Equal(t, "alpha:partial_success,beta:fail,gamma:success", out.ContextUpdates["parallel.results"])
	assert.Equal(t, []string{"gamma"}, out.SuggestedNextIDs)
}

func TestParallelHandler_FailureReasonCountsBranches(t *testing.T) {
	g := mustGraph(t, fanOutSrc(""))
	node := mustNode(t, g, "par")

	scripted := map[string]*dotflow.Outcome{"beta": dotflow.Fail("compile error")}
	h := handlers.NewParallelHandler(branchRegistry(scripted))
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, dotflow.StatusFail, out.Status)
	assert.Contains(t, out.FailureReason, "1 of 3 branches failed")
}

func TestParallelHandler_MissingBranchHandlerFailsBranch(t *testing.T) {
	g := mustGraph(t, fanOutSrc(""))
	node := mustNode(t, g, "par")
	logsRoot := t.TempDir()

	// Registry with no codergen handler and no default.
	h := handlers.NewParallelHandler(dotflow.NewHandlerRegistry(nil))
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, logsRoot)
	require.NoError(t, err)
	assert.Equal(t, dotflow.StatusFail, out.Status)

	data, err := os.ReadFile(filepath.Join(logsRoot, "par", "parallel_results.json"))
	require.NoError(t, err)
	var results []handlers.BranchResult
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 3)
	assert.Contains(t, results[0].FailureReason, "no handler")
}

func TestParallelHandler_BranchPanicIsContained(t *testing.T) {
	g := mustGraph(t, fanOutSrc(""))
	node := mustNode(t, g, "par")
	logsRoot := t.TempDir()

	r := dotflow.NewHandlerRegistry(nil)
	r.Register("codergen", dotflow.HandlerFunc(func(_ context.Context, n *dotflow.Node, _ *dotflow.Context, _ *dotflow.Graph, _ string) (*dotflow.Outcome, error) {
		if n.ID == "beta" {
			panic("beta blew up")
		}
		return dotflow.Success(), nil
	}))

	h := handlers.NewParallelHandler(r)
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, logsRoot)
	require.NoError(t, err)
	assert.Equal(t, dotflow.StatusFail, out.Status)

	data, err := os.ReadFile(filepath.Join(logsRoot, "par", "parallel_results.json"))
	require.NoError(t, err)
	var results []handlers.BranchResult
	require.NoError(t, json.Unmarshal(data, &results))
	assert.Equal(t, "fail", results[1].Status)
	assert.Contains(t, results[1].FailureReason, "panicked")
}

func TestParallelHandler_BranchesGetIsolatedContexts(t *testing.T) {
	g := mustGraph(t, fanOutSrc(""))
	node := mustNode(t, g, "par")

	var seen sync.Map
	r := dotflow.NewHandlerRegistry(nil)
	r.Register("codergen", dotflow.HandlerFunc(func(_ context.Context, n *dotflow.Node, pctx *dotflow.Context, _ *dotflow.Graph, _ string) (*dotflow.Outcome, error) {
		seen.Store(n.ID, pctx.GetString("shared", ""))
		pctx.Set("scribble."+n.ID, "local write")
		return dotflow.Success(), nil
	}))

	parent := dotflow.NewContext()
	parent.Set("shared", "visible")

	h := handlers.NewParallelHandler(r)
	_, err := h.Execute(context.Background(), node, parent, g, t.TempDir())
	require.NoError(t, err)

	// Every branch saw the parent's values.
	for _, id := range []string{"alpha", "beta", "gamma"} {
		v, ok := seen.Load(id)
		require.True(t, ok, "branch %q never ran", id)
		assert.Equal(t, "visible", v)
	}
	// Branch writes never leak back into the parent.
	assert.False(t, parent.Has("scribble.alpha"))
	assert.False(t, parent.Has("scribble.beta"))
	assert.False(t, parent.Has("scribble.gamma"))
}

func TestParallelHandler_MaxParallelLimitsConcurrency(t *testing.T) {
	g := mustGraph(t, fanOutSrc(", max_parallel=1"))
	node := mustNode(t, g, "par")

	var mu sync.Mutex
	current, peak := 0, 0
	r := dotflow.NewHandlerRegistry(nil)
	r.Register("codergen", dotflow.HandlerFunc(func(context.Context, *dotflow.Node, *dotflow.Context, *dotflow.Graph, string) (*dotflow.Outcome, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return dotflow.Success(), nil
	}))

	h := handlers.NewParallelHandler(r)
	_, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak)
}

func TestParallelHandler_NoBranches(t *testing.T) {
	g := mustGraph(t, `digraph p { par [shape=component]; }`)
	node := mustNode(t, g, "par")

	h := handlers.NewParallelHandler(branchRegistry(nil))
	out, err := h.Execute(context.Background(), node, dotflow.NewContext(), g, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, dotflow.StatusSuccess, out.Status)
	assert.Contains(t, out.Notes, "no branches")
	assert.Empty(t, out.ContextUpdates)
}

func TestFanInHandler_PicksBestBranch(t *testing.T) {
	g := mustGraph(t, `digraph p { join [shape=tripleoctagon]; }`)
	node := mustNode(t, g, "join")

	pctx := dotflow.NewContext()
	pctx.Set("parallel.results", "alpha:fail,beta:success,gamma:success")

	out, err := handlers.FanInHandler{}.Execute(context.Background(), node, pctx, g, "")
	require.NoError(t, err)
	assert.Equal(t, dotflow.StatusSuccess, out.Status)
	assert.Equal(t, "beta", out.ContextUpdates["parallel.best_branch"])
	assert.Equal(t, "join", out.ContextUpdates["last_stage"])
}

func TestFanInHandler_PartialSuccessBeatsFailure(t *testing.T) {
	g := mustGraph(t, `digraph p { join [shape=tripleoctagon]; }`)
	node := mustNode(t, g, "join")

	pctx := dotflow.NewContext()
	pctx.Set("parallel.results", "alpha:fail,beta:partial_success")

	out, err := handlers.FanInHandler{}.Execute(context.Background(), node, pctx, g, "")
	require.NoError(t, err)
	assert.Equal(t, "beta", out.ContextUpdates["parallel.best_branch"])
}

func TestFanInHandler_LexicalTieBreak(t *testing.T) {
	g := mustGraph(t, `digraph p { join [shape=tripleoctagon]; }`)
	node := mustNode(t, g, "join")

	pctx := dotflow.NewContext()
	pctx.Set("parallel.results", "beta:fail,alpha:fail")

	out, err := handlers.FanInHandler{}.Execute(context.Background(), node, pctx, g, "")
	require.NoError(t, err)
	assert.Equal(t, "alpha", out.ContextUpdates["parallel.best_branch"])
}

func TestFanInHandler_NoResults(t *testing.T) {
	g := mustGraph(t, `digraph p { join [shape=tripleoctagon]; }`)
	node := mustNode(t, g, "join")

	out, err := handlers.FanInHandler{}.Execute(context.Background(), node, dotflow.NewContext(), g, "")
	require.NoError(t, err)
	assert.Equal(t, dotflow.StatusSuccess, out.Status)
	assert.Equal(t, "", out.ContextUpdates["parallel.best_branch"])
	assert.Contains(t, out.Notes, "no parallel results")
}
