// Package handlers ships the built-in heavy handlers: LLM code
// generation, shell tools, human gates, and parallel fan-out/fan-in.
// The core package's registry carries only pass-throughs; Register (or
// DefaultRegistry) layers these on top.
package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
	"github.com/randalmurphal/dotflow/pkg/dotflow/llm"
	"github.com/randalmurphal/dotflow/pkg/dotflow/template"
)

// Backend generates the response for one codergen stage. The returned
// value is either the raw response text (string) or a *dotflow.Outcome
// when the backend wants to dictate the stage result directly. The
// error return is for infrastructure faults only; those abort the run.
type Backend interface {
	Run(ctx context.Context, node *dotflow.Node, prompt string, pctx *dotflow.Context) (any, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, node *dotflow.Node, prompt string, pctx *dotflow.Context) (any, error)

// Run implements Backend.
func (f BackendFunc) Run(ctx context.Context, node *dotflow.Node, prompt string, pctx *dotflow.Context) (any, error) {
	return f(ctx, node, prompt, pctx)
}

// SimulatedBackend fabricates responses without calling a model. Dry
// runs and tests use it to exercise full pipelines offline.
type SimulatedBackend struct{}

// Run implements Backend.
func (SimulatedBackend) Run(_ context.Context, node *dotflow.Node, prompt string, _ *dotflow.Context) (any, error) {
	preview := prompt
	if len(preview) > 100 {
		preview = preview[:100]
	}
	return fmt.Sprintf("[simulated] %s: %s", node.ID, preview), nil
}

// ClientBackend runs codergen stages through an llm.Client. Model
// routing attributes on the node (llm_model, reasoning_effort,
// system_prompt, max_tokens) become request fields, so a stylesheet
// can steer models per stage.
type ClientBackend struct {
	Client llm.Client
}

// Run implements Backend.
func (b *ClientBackend) Run(ctx context.Context, node *dotflow.Node, prompt string, _ *dotflow.Context) (any, error) {
	req := llm.CompletionRequest{
		Model:           node.StrAttr("llm_model"),
		SystemPrompt:    node.StrAttr("system_prompt"),
		ReasoningEffort: node.StrAttr("reasoning_effort"),
		MaxTokens:       node.IntAttr("max_tokens", 0),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
	}

	resp, err := b.Client.Complete(ctx, req)
	if err != nil {
		if llm.IsRetryable(err) {
			return dotflow.RetryOutcome(err.Error()), nil
		}
		return dotflow.Fail(err.Error()), nil
	}
	return resp.Content, nil
}

// CodergenHandler executes an LLM code-generation stage: build the
// prompt (prompt attribute, falling back to label, with $goal and
// context variables expanded), write prompt.md to the stage directory,
// invoke the backend, write response.md, and report the result with
// last_stage/last_response context updates. A nil Backend simulates.
type CodergenHandler struct {
	Backend Backend
}

// Execute implements dotflow.Handler.
func (h *CodergenHandler) Execute(ctx context.Context, node *dotflow.Node, pctx *dotflow.Context, g *dotflow.Graph, logsRoot string) (*dotflow.Outcome, error) {
	stageDir := filepath.Join(logsRoot, node.ID)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("codergen: create stage dir: %w", err)
	}

	prompt := buildPrompt(node, pctx, g)
	if err := os.WriteFile(filepath.Join(stageDir, "prompt.md"), []byte(prompt), 0o644); err != nil {
		return nil, fmt.Errorf("codergen: write prompt: %w", err)
	}

	backend := h.Backend
	if backend == nil {
		backend = SimulatedBackend{}
	}
	result, err := backend.Run(ctx, node, prompt, pctx)
	if err != nil {
		return nil, fmt.Errorf("codergen: backend: %w", err)
	}

	var responseText string
	var out *dotflow.Outcome
	switch v := result.(type) {
	case string:
		responseText = v
	case *dotflow.Outcome:
		out = v
		responseText = v.Notes
	default:
		responseText = fmt.Sprintf("%v", v)
	}

	if err := os.WriteFile(filepath.Join(stageDir, "response.md"), []byte(responseText), 0o644); err != nil {
		return nil, fmt.Errorf("codergen: write response: %w", err)
	}

	if out != nil {
		return out, nil
	}

	truncated := responseText
	if len(truncated) > 200 {
		truncated = truncated[:200] + "..."
	}
	return dotflow.Success().
		WithNotes(fmt.Sprintf("codergen stage %q completed", node.ID)).
		WithContextUpdate("last_stage", node.ID).
		WithContextUpdate("last_response", truncated), nil
}

// buildPrompt assembles the stage prompt. The prompt attribute (label
// when absent) is expanded against the pipeline context plus the
// effective goal, so $goal and ${key} references resolve even when the
// variable-expansion transform did not run.
func buildPrompt(node *dotflow.Node, pctx *dotflow.Context, g *dotflow.Graph) string {
	raw := node.Prompt()
	if raw == "" {
		raw = node.Label()
	}
	if !strings.Contains(raw, "$") {
		return raw
	}

	vars := map[string]any{}
	if pctx != nil {
		vars = pctx.Snapshot()
	}
	if _, ok := vars["goal"]; !ok && g != nil {
		vars["goal"] = g.Goal()
	}
	return template.Expand(raw, vars)
}
