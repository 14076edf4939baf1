package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
	"github.com/randalmurphal/dotflow/pkg/dotflow/expr"
)

// BenchmarkRun_Linear_5 runs a 5-stage linear pipeline end to end.
func BenchmarkRun_Linear_5(b *testing.B) {
	benchmarkLinearRun(b, 5)
}

// BenchmarkRun_Linear_10 runs a 10-stage linear pipeline end to end.
func BenchmarkRun_Linear_10(b *testing.B) {
	benchmarkLinearRun(b, 10)
}

// BenchmarkRun_Linear_50 runs a 50-stage linear pipeline end to end.
func BenchmarkRun_Linear_50(b *testing.B) {
	benchmarkLinearRun(b, 50)
}

// BenchmarkRun_Linear_100 runs a 100-stage linear pipeline end to end.
func BenchmarkRun_Linear_100(b *testing.B) {
	benchmarkLinearRun(b, 100)
}

// BenchmarkRun_Branching runs a pipeline whose route node picks a
// branch by edge condition on alternating iterations.
func BenchmarkRun_Branching(b *testing.B) {
	g := mustGraph(branchingPipelineSrc())
	registry := dotflow.DefaultHandlerRegistry()
	registry.Register("codergen", classifyHandler())
	eng := dotflow.NewEngine(
		dotflow.WithLogsRoot(b.TempDir()),
		dotflow.WithHandlerRegistry(registry),
	)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = eng.RunGraph(ctx, g, dotflow.WithRunID(runID(i)))
	}
}

// BenchmarkRun_Loop runs a loop pipeline for 3 iterations per run.
func BenchmarkRun_Loop(b *testing.B) {
	benchmarkLoopRun(b, 3)
}

// BenchmarkRun_Loop_10 runs a loop pipeline for 10 iterations per run.
func BenchmarkRun_Loop_10(b *testing.B) {
	benchmarkLoopRun(b, 10)
}

// BenchmarkSelectEdge measures forward edge selection on a node with
// one conditional and one unconditional edge.
func BenchmarkSelectEdge(b *testing.B) {
	g := mustGraph(branchingPipelineSrc())
	route, _ := g.Node("route")
	pctx := dotflow.NewContext()
	pctx.Set("parity", "odd")
	out := dotflow.Success()
	ev := expr.New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = dotflow.SelectEdge(g, route, out, pctx, ev)
	}
}

// BenchmarkCheckGoalGates measures the gate sweep over 50 outcomes.
func BenchmarkCheckGoalGates(b *testing.B) {
	g := mustGraph(linearPipelineSrc(50))
	outcomes := dotflow.NewNodeOutcomes()
	for _, id := range g.NodeIDs() {
		outcomes.Set(id, dotflow.Success())
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = dotflow.CheckGoalGates(g, outcomes)
	}
}

// BenchmarkContextCreation measures pipeline context creation overhead.
func BenchmarkContextCreation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		dotflow.NewContext()
	}
}

// Helper functions

func runID(i int) string {
	return fmt.Sprintf("bench-%d", i)
}

func benchmarkLinearRun(b *testing.B, n int) {
	b.Helper()
	g := mustGraph(linearPipelineSrc(n))
	eng := dotflow.NewEngine(dotflow.WithLogsRoot(b.TempDir()))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = eng.RunGraph(ctx, g, dotflow.WithRunID(runID(i)))
	}
}

func benchmarkLoopRun(b *testing.B, iterations int) {
	b.Helper()
	g := mustGraph(loopPipelineSrc(iterations))
	eng := dotflow.NewEngine(dotflow.WithLogsRoot(b.TempDir()))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = eng.RunGraph(ctx, g, dotflow.WithRunID(runID(i)))
	}
}

// classifyHandler sets parity from a run-local counter so the route
// node alternates branches across runs.
func classifyHandler() dotflow.Handler {
	calls := 0
	return dotflow.HandlerFunc(func(_ context.Context, _ *dotflow.Node, _ *dotflow.Context, _ *dotflow.Graph, _ string) (*dotflow.Outcome, error) {
		calls++
		parity := "even"
		if calls%2 == 1 {
			parity = "odd"
		}
		return dotflow.Success().WithContextUpdate("parity", parity), nil
	})
}

// loopPipelineSrc renders a pipeline whose house-shaped node loops
// back onto itself until its iteration counter reaches n.
func loopPipelineSrc(n int) []byte {
	return []byte(fmt.Sprintf(`
digraph loop {
    s [shape=Mdiamond];
    work [shape=house];
    e [shape=Msquare];
    s -> work;
    work -> work [condition="loop.work.iteration < %d"];
    work -> e;
}`, n))
}
