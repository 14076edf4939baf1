package handlers

import (
	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

// DefaultRegistry builds a registry with the full built-in handler
// suite on top of the core control-flow handlers: codergen stages run
// against backend, wait.human gates ask interv, and parallel branches
// resolve through the registry itself.
//
// A nil backend simulates LLM work; a nil interv auto-approves gates.
func DefaultRegistry(backend Backend, interv Interviewer) *dotflow.HandlerRegistry {
	r := dotflow.DefaultHandlerRegistry()
	r.Register("codergen", &CodergenHandler{Backend: backend})
	r.Register("tool", ToolHandler{})
	r.Register("wait.human", &WaitForHumanHandler{Interviewer: interv})
	r.Register("parallel", NewParallelHandler(r))
	r.Register("parallel.fan_in", FanInHandler{})
	return r
}
