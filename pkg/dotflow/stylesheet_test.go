package dotflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

func TestParseStylesheet(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		rules, err := dotflow.ParseStylesheet("")
		require.NoError(t, err)
		assert.Nil(t, rules)

		rules, err = dotflow.ParseStylesheet("   \n\t ")
		require.NoError(t, err)
		assert.Nil(t, rules)
	})

	t.Run("multiple rules", func(t *testing.T) {
		rules, err := dotflow.ParseStylesheet(`
* { llm_model: claude-sonnet; }
#review { llm_model: claude-opus; reasoning_effort: high }
.fast { llm_provider: groq; }
box { reasoning_effort: low; }
`)
		require.NoError(t, err)
		require.Len(t, rules, 4)

		assert.Equal(t, "*", rules[0].Selector)
		require.Len(t, rules[0].Declarations, 1)
		assert.Equal(t, dotflow.StyleDecl{Property: "llm_model", Value: "claude-sonnet"}, rules[0].Declarations[0])

		assert.Equal(t, "#review", rules[1].Selector)
		require.Len(t, rules[1].Declarations, 2)
		assert.Equal(t, "reasoning_effort", rules[1].Declarations[1].Property)
		assert.Equal(t, "high", rules[1].Declarations[1].Value)

		assert.Equal(t, ".fast", rules[2].Selector)
		assert.Equal(t, "box", rules[3].Selector)
	})

	t.Run("errors", func(t *testing.T) {
		cases := []struct {
			name string
			src  string
			want string
		}{
			{"unknown property", "#x { bogus: v; }", `unknown stylesheet property "bogus"`},
			{"missing brace", "#x llm_model: m;", `expected '{' after selector "#x"`},
			{"missing colon", "#x { llm_model m; }", `expected ':' after property "llm_model"`},
			{"empty value", "#x { llm_model: ; }", `empty value for property "llm_model"`},
			{"unterminated block", "#x { llm_model: m;", `unterminated rule block for selector "#x"`},
			{"bad selector", "@x { llm_model: m; }", `invalid selector character "@"`},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := dotflow.ParseStylesheet(tc.src)
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.want)
			})
		}
	})
}

func TestApplyStylesheet(t *testing.T) {
	g := dotflow.NewGraph("p")
	g.AddNode("plan").SetAttr("shape", dotflow.StringValue("box"))
	review := g.AddNode("review")
	review.SetAttr("shape", dotflow.StringValue("box"))
	review.SetAttr("class", dotflow.StringValue(" senior , careful"))
	pinned := g.AddNode("pinned")
	pinned.SetAttr("llm_model", dotflow.StringValue("hand-picked"))

	rules, err := dotflow.ParseStylesheet(`
* { llm_provider: anthropic; }
box { llm_model: claude-sonnet; }
.careful { reasoning_effort: high; }
#plan { llm_model: claude-haiku; }
`)
	require.NoError(t, err)
	dotflow.ApplyStylesheet(g, rules)

	// Wildcard reaches every node.
	for _, n := range g.Nodes() {
		assert.Equal(t, "anthropic", n.StrAttr("llm_provider"), "node %s", n.ID)
	}

	// Shape rule set plan's model first, so the later #plan rule cannot
	// override it: first matching declaration wins by fill-only.
	planNode, _ := g.Node("plan")
	assert.Equal(t, "claude-sonnet", planNode.StrAttr("llm_model"))

	// Class match trims whitespace around comma-separated class names.
	assert.Equal(t, "high", review.StrAttr("reasoning_effort"))
	assert.Equal(t, "claude-sonnet", review.StrAttr("llm_model"))

	// Explicit node attributes always win over stylesheet values.
	assert.Equal(t, "hand-picked", pinned.StrAttr("llm_model"))
}

func TestApplyStylesheet_IDSelector(t *testing.T) {
	g := dotflow.NewGraph("p")
	g.AddNode("target")
	g.AddNode("other")

	rules, err := dotflow.ParseStylesheet(`#target { llm_model: special; }`)
	require.NoError(t, err)
	dotflow.ApplyStylesheet(g, rules)

	tn, _ := g.Node("target")
	on, _ := g.Node("other")
	assert.Equal(t, "special", tn.StrAttr("llm_model"))
	assert.Equal(t, "", on.StrAttr("llm_model"))
}
