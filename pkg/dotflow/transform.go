package dotflow

import (
	"fmt"

	"github.com/randalmurphal/dotflow/pkg/dotflow/template"
)

// Transform mutates a pipeline graph before execution. Transforms run
// against the engine's private copy, so the caller's graph is never
// changed.
type Transform interface {
	// ID names the transform for error reporting.
	ID() string
	// Apply mutates the graph in place.
	Apply(g *Graph) error
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc struct {
	Name string
	Fn   func(g *Graph) error
}

func (t TransformFunc) ID() string { return t.Name }

func (t TransformFunc) Apply(g *Graph) error { return t.Fn(g) }

// TransformRegistry holds the transforms applied before a run.
// Built-ins run first in a fixed order, then custom transforms in
// registration order. The first error stops the chain.
type TransformRegistry struct {
	builtins []Transform
	customs  []Transform
}

// NewTransformRegistry creates a registry carrying the built-in
// transforms: stylesheet application, variable expansion, then
// graph-default stamping.
func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{
		builtins: []Transform{
			stylesheetTransform{},
			variableExpansionTransform{},
			defaultAttrsTransform{},
		},
	}
}

// Register appends a custom transform to run after the built-ins.
func (r *TransformRegistry) Register(t Transform) {
	if t == nil {
		return
	}
	r.customs = append(r.customs, t)
}

// Apply runs every transform against g, stopping at the first error.
func (r *TransformRegistry) Apply(g *Graph) error {
	for _, t := range r.builtins {
		if err := t.Apply(g); err != nil {
			return fmt.Errorf("transform %s: %w", t.ID(), err)
		}
	}
	for _, t := range r.customs {
		if err := t.Apply(g); err != nil {
			return fmt.Errorf("transform %s: %w", t.ID(), err)
		}
	}
	return nil
}

// stylesheetTransform applies the graph's model_stylesheet, filling
// model-routing attributes on matching nodes.
type stylesheetTransform struct{}

func (stylesheetTransform) ID() string { return "stylesheet" }

func (stylesheetTransform) Apply(g *Graph) error {
	rules, err := ParseStylesheet(g.StrAttr("model_stylesheet"))
	if err != nil {
		return err
	}
	ApplyStylesheet(g, rules)
	return nil
}

// variableExpansionTransform expands $goal placeholders in node
// prompts so handlers see the graph goal inline.
type variableExpansionTransform struct{}

func (variableExpansionTransform) ID() string { return "variable-expansion" }

func (variableExpansionTransform) Apply(g *Graph) error {
	goal := g.Goal()
	if goal == "" {
		return nil
	}
	vars := map[string]any{"goal": goal}
	for _, node := range g.Nodes() {
		for _, key := range []string{"prompt", "llm_prompt"} {
			if s := node.StrAttr(key); s != "" {
				node.SetAttr(key, StringValue(template.Expand(s, vars)))
			}
		}
	}
	return nil
}

// defaultAttrsTransform stamps graph-level defaults onto nodes that
// leave them unset, currently the retry budget.
type defaultAttrsTransform struct{}

func (defaultAttrsTransform) ID() string { return "default-attrs" }

func (defaultAttrsTransform) Apply(g *Graph) error {
	def, ok := g.Attr("default_max_retry")
	if !ok {
		return nil
	}
	for _, node := range g.Nodes() {
		if _, set := node.Attr("max_retries"); !set {
			node.SetAttr("max_retries", def)
		}
	}
	return nil
}
