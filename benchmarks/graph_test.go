package benchmarks

import (
	"fmt"
	"strings"
	"testing"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

// BenchmarkNewGraph measures graph creation overhead.
func BenchmarkNewGraph(b *testing.B) {
	for i := 0; i < b.N; i++ {
		dotflow.NewGraph("bench")
	}
}

// BenchmarkAddNode measures node addition overhead.
func BenchmarkAddNode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		g := dotflow.NewGraph("bench")
		g.AddNode("node")
	}
}

// BenchmarkAddNode_10 measures adding 10 nodes.
func BenchmarkAddNode_10(b *testing.B) {
	for i := 0; i < b.N; i++ {
		g := dotflow.NewGraph("bench")
		for j := 0; j < 10; j++ {
			g.AddNode(nodeID(j))
		}
	}
}

// BenchmarkAddNode_100 measures adding 100 nodes.
func BenchmarkAddNode_100(b *testing.B) {
	for i := 0; i < b.N; i++ {
		g := dotflow.NewGraph("bench")
		for j := 0; j < 100; j++ {
			g.AddNode(nodeID(j))
		}
	}
}

// BenchmarkParseDOT_5 parses a 5-stage linear pipeline.
func BenchmarkParseDOT_5(b *testing.B) {
	src := linearPipelineSrc(5)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = dotflow.ParseDOT(src)
	}
}

// BenchmarkParseDOT_10 parses a 10-stage linear pipeline.
func BenchmarkParseDOT_10(b *testing.B) {
	src := linearPipelineSrc(10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = dotflow.ParseDOT(src)
	}
}

// BenchmarkParseDOT_50 parses a 50-stage linear pipeline.
func BenchmarkParseDOT_50(b *testing.B) {
	src := linearPipelineSrc(50)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = dotflow.ParseDOT(src)
	}
}

// BenchmarkParseDOT_100 parses a 100-stage linear pipeline.
func BenchmarkParseDOT_100(b *testing.B) {
	src := linearPipelineSrc(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = dotflow.ParseDOT(src)
	}
}

// BenchmarkValidate_Linear_50 lints a 50-stage pipeline.
func BenchmarkValidate_Linear_50(b *testing.B) {
	g := mustGraph(linearPipelineSrc(50))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = dotflow.Validate(g)
	}
}

// BenchmarkValidate_Branching lints a pipeline with conditional edges.
func BenchmarkValidate_Branching(b *testing.B) {
	g := mustGraph(branchingPipelineSrc())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = dotflow.Validate(g)
	}
}

// BenchmarkClone_Linear_50 deep-copies a 50-stage pipeline, the
// per-run cost of keeping the caller's graph immutable.
func BenchmarkClone_Linear_50(b *testing.B) {
	g := mustGraph(linearPipelineSrc(50))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.Clone()
	}
}

// Helper functions

func nodeID(n int) string {
	return string(rune('a'+n%26)) + string(rune('0'+n/26%10))
}

func mustGraph(src []byte) *dotflow.Graph {
	g, err := dotflow.ParseDOT(src)
	if err != nil {
		panic(err)
	}
	return g
}

// linearPipelineSrc renders a start -> n stages -> exit pipeline in DOT.
func linearPipelineSrc(n int) []byte {
	var sb strings.Builder
	sb.WriteString("digraph bench {\n")
	sb.WriteString("    s [shape=Mdiamond];\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "    %s [shape=box, label=\"stage %d\"];\n", nodeID(i), i)
	}
	sb.WriteString("    e [shape=Msquare];\n")
	fmt.Fprintf(&sb, "    s -> %s;\n", nodeID(0))
	for i := 0; i < n-1; i++ {
		fmt.Fprintf(&sb, "    %s -> %s;\n", nodeID(i), nodeID(i+1))
	}
	fmt.Fprintf(&sb, "    %s -> e;\n", nodeID(n-1))
	sb.WriteString("}\n")
	return []byte(sb.String())
}

func branchingPipelineSrc() []byte {
	return []byte(`
digraph branch {
    s [shape=Mdiamond];
    classify [shape=box, label="classify"];
    route [shape=diamond];
    even [shape=box, label="even"];
    odd [shape=box, label="odd"];
    merge [shape=box, label="merge"];
    e [shape=Msquare];
    s -> classify;
    classify -> route;
    route -> even [condition="context.parity == even"];
    route -> odd [condition="context.parity == odd"];
    even -> merge;
    odd -> merge;
    merge -> e;
}`)
}
