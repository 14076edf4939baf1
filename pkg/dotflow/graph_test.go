package dotflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

func TestGraph_AddNodeMergesRepeatedIDs(t *testing.T) {
	g := dotflow.NewGraph("p")
	first := g.AddNode("a")
	first.SetAttr("label", dotflow.StringValue("Stage A"))
	second := g.AddNode("a")

	assert.Same(t, first, second)
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, "Stage A", second.Label())
}

func TestGraph_NodeAndEdgeOrder(t *testing.T) {
	g := dotflow.NewGraph("p")
	g.AddNode("c")
	g.AddNode("a")
	g.AddNode("b")
	g.AddEdge("c", "a")
	g.AddEdge("a", "b")
	g.AddEdge("c", "b")

	assert.Equal(t, []string{"c", "a", "b"}, g.NodeIDs())

	edges := g.Edges()
	require.Len(t, edges, 3)
	assert.Equal(t, 0, edges[0].Order)
	assert.Equal(t, 2, edges[2].Order)

	out := g.Outgoing("c")
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].To)
	assert.Equal(t, "b", out[1].To)

	in := g.Incoming("b")
	require.Len(t, in, 2)
	assert.Equal(t, "a", in[0].From)
	assert.Equal(t, "c", in[1].From)
}

func TestGraph_CloneIsIndependent(t *testing.T) {
	g := dotflow.NewGraph("p")
	g.SetAttr("goal", dotflow.StringValue("original"))
	n := g.AddNode("a")
	n.SetAttr("prompt", dotflow.StringValue("$goal"))
	e := g.AddEdge("a", "b")
	e.SetAttr("condition", dotflow.StringValue("outcome == success"))

	clone := g.Clone()
	clone.SetAttr("goal", dotflow.StringValue("changed"))
	cn, _ := clone.Node("a")
	cn.SetAttr("prompt", dotflow.StringValue("expanded"))
	clone.Edges()[0].SetAttr("condition", dotflow.StringValue("outcome == fail"))

	assert.Equal(t, "original", g.Goal())
	assert.Equal(t, "$goal", n.Prompt())
	assert.Equal(t, "outcome == success", e.Condition())
	assert.Equal(t, "changed", clone.Goal())
}

func TestGraph_StartNode(t *testing.T) {
	g := dotflow.NewGraph("p")
	g.AddNode("begin").SetAttr("shape", dotflow.StringValue("Mdiamond"))
	g.AddNode("other")

	n, ok := g.StartNode()
	require.True(t, ok)
	assert.Equal(t, "begin", n.ID)

	// Without the shape, a node literally named start serves.
	g2 := dotflow.NewGraph("p")
	g2.AddNode("work")
	g2.AddNode("Start")
	n2, ok := g2.StartNode()
	require.True(t, ok)
	assert.Equal(t, "Start", n2.ID)

	g3 := dotflow.NewGraph("p")
	g3.AddNode("work")
	_, ok = g3.StartNode()
	assert.False(t, ok)
}

func TestGraph_TerminalNodes(t *testing.T) {
	g := dotflow.NewGraph("p")
	g.AddNode("a")
	g.AddNode("done").SetAttr("shape", dotflow.StringValue("Msquare"))
	g.AddNode("END")
	g.AddNode("exit")

	terminals := g.TerminalNodes()
	require.Len(t, terminals, 3)
	assert.Equal(t, "done", terminals[0].ID)
	assert.Equal(t, "END", terminals[1].ID)
	assert.Equal(t, "exit", terminals[2].ID)

	assert.False(t, dotflow.IsTerminalNode(nil))
	assert.False(t, dotflow.IsStartNode(nil))
}

func TestGraph_AttrAccessors(t *testing.T) {
	g := dotflow.NewGraph("p")
	g.SetAttr("goal", dotflow.StringValue("ship it"))
	g.SetAttr("default_fidelity", dotflow.StringValue("full"))
	g.SetAttr("default_thread_id", dotflow.StringValue("main"))
	g.SetAttr("retry_target", dotflow.StringValue("plan"))
	g.SetAttr("fallback_retry_target", dotflow.StringValue("start"))
	g.SetAttr("flag", dotflow.BoolValue(true))

	assert.Equal(t, "ship it", g.Goal())
	assert.Equal(t, "full", g.DefaultFidelity())
	assert.Equal(t, "main", g.DefaultThreadID())
	assert.Equal(t, "plan", g.RetryTarget())
	assert.Equal(t, "start", g.FallbackRetryTarget())
	// Non-string attributes render through their text form.
	assert.Equal(t, "true", g.StrAttr("flag"))
	assert.Equal(t, "", g.StrAttr("missing"))
}

func TestNode_Accessors(t *testing.T) {
	g := dotflow.NewGraph("p")
	n := g.AddNode("work")
	n.SetAttr("shape", dotflow.StringValue("box"))
	n.SetAttr("type", dotflow.StringValue("tool"))
	n.SetAttr("label", dotflow.StringValue("Do work"))
	n.SetAttr("prompt", dotflow.StringValue("Fix: $goal"))
	n.SetAttr("goal_gate", dotflow.StringValue("true"))
	n.SetAttr("retry_target", dotflow.StringValue("plan"))
	n.SetAttr("fallback_retry_target", dotflow.StringValue("start"))
	n.SetAttr("fidelity", dotflow.StringValue("truncate"))
	n.SetAttr("thread_id", dotflow.StringValue("t1"))
	n.SetAttr("class", dotflow.StringValue("fast, beta"))
	n.SetAttr("max_retries", dotflow.StringValue("5"))
	n.SetAttr("allow_partial", dotflow.BoolValue(true))

	assert.Equal(t, "box", n.Shape())
	assert.Equal(t, "tool", n.Type())
	assert.Equal(t, "Do work", n.Label())
	assert.Equal(t, "Fix: $goal", n.Prompt())
	assert.True(t, n.GoalGate())
	assert.Equal(t, "plan", n.RetryTarget())
	assert.Equal(t, "start", n.FallbackRetryTarget())
	assert.Equal(t, "truncate", n.Fidelity())
	assert.Equal(t, "t1", n.ThreadID())
	assert.Equal(t, "fast, beta", n.Class())
	assert.Equal(t, 5, n.MaxRetries())
	assert.True(t, n.AllowPartial())

	bare := g.AddNode("bare")
	assert.False(t, bare.GoalGate())
	assert.Equal(t, 0, bare.MaxRetries())
	assert.False(t, bare.AllowPartial())
	assert.Equal(t, 7, bare.IntAttr("missing", 7))
	assert.True(t, bare.BoolAttr("missing", true))
}

func TestNode_Timeout(t *testing.T) {
	g := dotflow.NewGraph("p")

	tests := []struct {
		name  string
		value dotflow.AttrValue
		want  time.Duration
	}{
		{"duration string", dotflow.StringValue("30s"), 30 * time.Second},
		{"millis", dotflow.StringValue("150ms"), 150 * time.Millisecond},
		{"bare seconds number", dotflow.NumberValue(2), 2 * time.Second},
		{"bare seconds string", dotflow.StringValue("5"), 5 * time.Second},
		{"garbage", dotflow.StringValue("soon"), 0},
		{"negative", dotflow.StringValue("-3s"), 0},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := g.AddNode(string(rune('a' + i)))
			n.SetAttr("timeout", tt.value)
			assert.Equal(t, tt.want, n.Timeout())
		})
	}

	assert.Equal(t, time.Duration(0), g.AddNode("unset").Timeout())
}

func TestNode_AttrIterationOrder(t *testing.T) {
	g := dotflow.NewGraph("p")
	n := g.AddNode("a")
	n.SetAttr("shape", dotflow.StringValue("box"))
	n.SetAttr("label", dotflow.StringValue("first"))
	n.SetAttr("prompt", dotflow.StringValue("p"))
	// Re-setting keeps the original position.
	n.SetAttr("label", dotflow.StringValue("second"))

	var keys []string
	n.EachAttr(func(key string, _ dotflow.AttrValue) bool {
		keys = append(keys, key)
		return true
	})
	assert.Equal(t, []string{"shape", "label", "prompt"}, keys)
	assert.Equal(t, "second", n.Label())

	// Early stop.
	keys = keys[:0]
	n.EachAttr(func(key string, _ dotflow.AttrValue) bool {
		keys = append(keys, key)
		return false
	})
	assert.Equal(t, []string{"shape"}, keys)
}

func TestEdge_Accessors(t *testing.T) {
	g := dotflow.NewGraph("p")
	e := g.AddEdge("a", "b")
	e.SetAttr("condition", dotflow.StringValue("outcome == success"))
	e.SetAttr("label", dotflow.StringValue("[Y] Yes"))
	e.SetAttr("fidelity", dotflow.StringValue("full"))
	e.SetAttr("thread_id", dotflow.StringValue("side"))
	e.SetAttr("weight", dotflow.NumberValue(10))
	e.SetAttr("loop_restart", dotflow.StringValue("true"))

	assert.Equal(t, "outcome == success", e.Condition())
	assert.Equal(t, "[Y] Yes", e.Label())
	assert.Equal(t, "full", e.Fidelity())
	assert.Equal(t, "side", e.ThreadID())
	assert.Equal(t, 10, e.Weight())
	assert.True(t, e.LoopRestart())

	bare := g.AddEdge("b", "c")
	assert.Equal(t, "", bare.Condition())
	assert.Equal(t, 0, bare.Weight())
	assert.False(t, bare.LoopRestart())
}
