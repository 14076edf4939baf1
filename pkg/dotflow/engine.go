package dotflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/dotflow/pkg/dotflow/checkpoint"
	dferrors "github.com/randalmurphal/dotflow/pkg/dotflow/errors"
	"github.com/randalmurphal/dotflow/pkg/dotflow/expr"
	"github.com/randalmurphal/dotflow/pkg/dotflow/observability"
)

// defaultMaxRetries bounds stage re-execution and goal-gate jumps for
// nodes that set neither max_retries nor the graph-level
// default_max_retry attribute.
const defaultMaxRetries = 3

// Engine drives a pipeline graph from its start node to an exit node,
// invoking a handler per node, routing on outcomes and edge
// conditions, and enforcing goal gates before the run is allowed to
// succeed. Traversal is strictly sequential: one node at a time, one
// run per Engine call. Engines are safe to reuse across runs as long
// as the injected handlers and emitters are.
type Engine struct {
	logsRoot             string
	handlers             *HandlerRegistry
	transforms           *TransformRegistry
	emitter              EventEmitter
	logger               *slog.Logger
	metrics              observability.MetricsRecorder
	spans                observability.SpanManager
	tracingEnabled       bool
	store                checkpoint.Store
	checkpointBestEffort bool
	maxIterations        int
	retry                dferrors.RetryConfig
	eval                 *expr.Evaluator
	extraRules           []LintRule
}

// NewEngine creates an engine with the default registries, a noop
// event sink, and checkpointing disabled. See the Option funcs for
// what can be overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logsRoot:      "logs",
		handlers:      DefaultHandlerRegistry(),
		transforms:    NewTransformRegistry(),
		emitter:       NoopEmitter{},
		logger:        slog.Default(),
		metrics:       observability.NewMetricsRecorder(),
		spans:         observability.NoopSpanManager{},
		maxIterations: 10000,
		retry:         dferrors.DefaultRetry,
		eval:          expr.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunResult aggregates everything a finished run produced. It is
// populated even when Run returns an error, so callers can inspect
// the outcomes recorded up to the point of failure.
type RunResult struct {
	// RunID identifies the run; it names the artifact directory and
	// keys the run's checkpoints.
	RunID string

	// Pipeline is the graph name from the pipeline definition.
	Pipeline string

	// FinalStatus reflects the ultimate success or failure of the run:
	// the last-visited node's status on clean termination, fail on any
	// fatal error or unsatisfied goal gate.
	FinalStatus StageStatus

	// FinalNode is the last node that completed execution.
	FinalNode string

	// Outcomes holds every visited node's outcome in execution order.
	Outcomes *NodeOutcomes

	// Context is the pipeline context as of run end.
	Context *Context

	// CompletedNodes lists visited node ids in execution order,
	// including repeat visits (Outcomes keeps only the latest).
	CompletedNodes []string

	// Diagnostics is the full lint output from pre-flight validation,
	// warnings included.
	Diagnostics []Diagnostic

	// RunDir is the run's artifact directory under logs_root.
	RunDir string

	// Duration is wall time from traversal start to run end.
	Duration time.Duration

	// Err mirrors the error returned alongside the result.
	Err error
}

// runState is the mutable traversal bookkeeping threaded through one
// run.
type runState struct {
	completed  []string
	retries    map[string]int
	gateJumps  map[string]int
	sequence   int
	prevNodeID string
	entryEdge  *Edge
}

// Run parses a DOT pipeline definition and executes it. See RunGraph.
func (e *Engine) Run(ctx context.Context, source []byte, opts ...RunOption) (*RunResult, error) {
	g, err := ParseDOT(source)
	if err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	return e.RunGraph(ctx, g, opts...)
}

// RunGraph executes a pipeline graph.
//
// Setup clones the graph, applies transforms to the copy, lints it
// (Error-severity diagnostics abort with an InvalidPipelineError), and
// creates the run directory. Traversal then starts at the start node
// and repeats: resolve the node's handler, execute it (with retry
// pacing for retry outcomes), record the outcome, and route to the
// next node. Fail outcomes route through a fail edge, then a retry
// target, then terminate the run in failure. Reaching a terminal node
// (or running out of edges) checks goal gates over everything visited;
// an unsatisfied gate jumps to its retry target or fails the run.
//
// The returned result is populated even on error. The caller's graph
// is never mutated.
func (e *Engine) RunGraph(ctx context.Context, g *Graph, opts ...RunOption) (result *RunResult, runErr error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}
	runID := cfg.runID

	result = &RunResult{
		RunID:       runID,
		Pipeline:    g.Name,
		FinalStatus: StatusFail,
		Outcomes:    NewNodeOutcomes(),
		Context:     NewContext(),
	}
	defer func() {
		result.Err = runErr
	}()

	work := g.Clone()
	if err := e.transforms.Apply(work); err != nil {
		runErr = fmt.Errorf("apply transforms: %w", err)
		return result, runErr
	}

	diags, err := ValidateOrError(work, e.extraRules...)
	result.Diagnostics = diags
	if err != nil {
		runErr = err
		return result, runErr
	}

	runDir := filepath.Join(e.logsRoot, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		runErr = fmt.Errorf("create run dir %s: %w", runDir, err)
		return result, runErr
	}
	result.RunDir = runDir

	pctx := result.Context
	st := &runState{
		retries:   make(map[string]int),
		gateJumps: make(map[string]int),
	}

	// Graph attributes are visible to handlers and conditions under
	// the graph. prefix; the goal doubles as a bare key for prompt
	// expansion.
	work.EachAttr(func(key string, v AttrValue) bool {
		pctx.Set("graph."+key, v.Text())
		return true
	})
	if goal := work.Goal(); goal != "" {
		pctx.Set("goal", goal)
	}

	current, err := e.resolveStart(work, &cfg, pctx, result, st)
	if err != nil {
		runErr = err
		return result, runErr
	}

	startTime := time.Now()
	observability.LogRunStart(e.logger, runID, work.Name)
	e.emit(Event{Type: EventRunStarted, RunID: runID, Data: map[string]any{
		"pipeline": work.Name,
	}})

	execCtx := ctx
	var runSpan trace.Span
	if e.tracingEnabled {
		execCtx, runSpan = e.spans.StartRunSpan(ctx, work.Name, runID)
		defer func() {
			e.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	runErr = e.traverse(execCtx, work, current, pctx, result, &cfg, st)

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())
	result.Duration = duration
	result.CompletedNodes = st.completed

	e.metrics.RecordPipelineRun(ctx, runErr == nil, duration)

	if runErr != nil {
		result.FinalStatus = StatusFail
		lastNode := result.FinalNode
		switch te := runErr.(type) {
		case *NoHandlerError:
			lastNode = te.NodeID
		case *HandlerError:
			lastNode = te.NodeID
		case *StageFailureError:
			lastNode = te.NodeID
		case *GoalGateError:
			lastNode = te.NodeID
		case *MaxIterationsError:
			lastNode = te.LastNode
		}
		observability.LogRunError(e.logger, runID, runErr, durationMs, lastNode)
		e.emit(Event{Type: EventRunFailed, RunID: runID, NodeID: lastNode, Data: map[string]any{
			"error": runErr.Error(),
		}})
		return result, runErr
	}

	if last, ok := result.Outcomes.Get(result.FinalNode); ok {
		result.FinalStatus = last.Status
	} else {
		result.FinalStatus = StatusSuccess
	}
	observability.LogRunComplete(e.logger, runID, durationMs, result.Outcomes.Len())
	e.emit(Event{Type: EventRunCompleted, RunID: runID, Data: map[string]any{
		"status": string(result.FinalStatus),
		"stages": result.Outcomes.Len(),
	}})
	return result, nil
}

// resolveStart picks the first node to execute and, for resumed runs,
// rehydrates context, outcomes, and retry bookkeeping from the
// checkpoint.
func (e *Engine) resolveStart(g *Graph, cfg *runConfig, pctx *Context, res *RunResult, st *runState) (*Node, error) {
	startID := cfg.startNode

	if cp := cfg.resume; cp != nil {
		pctx.restore(cp.ContextValues, cp.Logs)
		st.completed = append(st.completed, cp.CompletedNodes...)
		st.sequence = cp.Sequence
		st.prevNodeID = cp.NodeID
		for id, n := range cp.RetryCounts {
			st.retries[id] = n
		}
		// Statuses alone are enough to re-evaluate goal gates; the
		// full outcomes died with the original process.
		for _, id := range cp.CompletedNodes {
			if status, ok := cp.StatusByNode[id]; ok {
				res.Outcomes.Set(id, NewOutcome(StageStatus(status)))
			}
		}
		if startID == "" {
			if cfg.replayLast {
				startID = cp.NodeID
			} else {
				startID = cp.NextNode
			}
		}
		if startID == "" {
			return nil, fmt.Errorf("resume %s: checkpoint at %q has no next node, run already completed", cp.RunID, cp.NodeID)
		}
	}

	if startID != "" {
		n, ok := g.Node(startID)
		if !ok {
			return nil, fmt.Errorf("%w: start node %q not in graph", ErrInvalidPipeline, startID)
		}
		return n, nil
	}

	n, ok := g.StartNode()
	if !ok {
		// The start_node lint rule already rejects this; guard for
		// registries running with pruned rule sets.
		return nil, fmt.Errorf("%w: no start node", ErrInvalidPipeline)
	}
	return n, nil
}

// traverse is the run loop: execute the current node, record its
// outcome, checkpoint, and advance along the selected edge until
// routing terminates or a fatal error surfaces.
func (e *Engine) traverse(ctx context.Context, g *Graph, current *Node, pctx *Context, res *RunResult, cfg *runConfig, st *runState) error {
	iterations := 0

	for current != nil {
		iterations++
		if iterations > e.maxIterations {
			return &MaxIterationsError{Limit: e.maxIterations, LastNode: current.ID}
		}

		// Cooperative cancellation at the loop top; handlers also
		// receive ctx and may honor it mid-stage.
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w at node %q: %v", ErrRunCanceled, current.ID, ctx.Err())
		default:
		}

		handler := e.handlers.Resolve(current)
		if handler == nil {
			return &NoHandlerError{NodeID: current.ID, Type: HandlerTypeOf(current)}
		}
		handlerType := HandlerTypeOf(current)

		// Per-visit delivery settings resolved from the precedence
		// chains; handlers read them from the context.
		fidelity := ResolveFidelity(st.entryEdge, current, g)
		threadID := ResolveThreadID(current, st.entryEdge, g, st.prevNodeID)
		pctx.Set("fidelity", string(fidelity))
		pctx.Set("thread_id", threadID)

		observability.LogStageStart(e.logger, current.ID, handlerType)
		e.emit(Event{Type: EventStageStarted, RunID: cfg.runID, NodeID: current.ID, Data: map[string]any{
			"type":     handlerType,
			"fidelity": string(fidelity),
		}})

		stageCtx := ctx
		var stageSpan trace.Span
		if e.tracingEnabled {
			stageCtx, stageSpan = e.spans.StartStageSpan(ctx, current.ID, handlerType)
		}

		stageStart := time.Now()
		out, stageErr := e.executeStage(stageCtx, handler, current, pctx, g, res.RunDir, cfg, st)
		stageDuration := time.Since(stageStart)

		status := ""
		if out != nil {
			status = string(out.Status)
		}
		e.metrics.RecordStageExecution(stageCtx, current.ID, status, stageDuration)
		if e.tracingEnabled {
			e.spans.EndSpanWithError(stageSpan, stageErr)
		}

		if stageErr != nil {
			observability.LogStageError(e.logger, current.ID, stageErr)
			e.emit(Event{Type: EventStageFailed, RunID: cfg.runID, NodeID: current.ID, Data: map[string]any{
				"error": stageErr.Error(),
			}})
			return stageErr
		}
		observability.LogStageComplete(e.logger, current.ID, string(out.Status), float64(stageDuration.Milliseconds()))

		res.Outcomes.Set(current.ID, out)
		res.FinalNode = current.ID
		st.completed = append(st.completed, current.ID)

		if err := writeStageStatus(res.RunDir, current.ID, out); err != nil {
			return err
		}

		pctx.ApplyUpdates(out.ContextUpdates)
		pctx.Set("outcome", string(out.Status))
		pctx.Set("preferred_label", out.PreferredLabel)
		pctx.Set("failure_reason", out.FailureReason)

		if out.Status == StatusFail {
			e.emit(Event{Type: EventStageFailed, RunID: cfg.runID, NodeID: current.ID, Data: map[string]any{
				"status": string(out.Status),
				"reason": out.FailureReason,
			}})
		} else {
			e.emit(Event{Type: EventStageCompleted, RunID: cfg.runID, NodeID: current.ID, Data: map[string]any{
				"status": string(out.Status),
			}})
		}

		next, nextEdge, err := e.nextNode(g, current, out, pctx, res, st)
		if err != nil {
			return err
		}

		if e.store != nil {
			nextID := ""
			if next != nil {
				nextID = next.ID
			}
			if err := e.saveCheckpoint(ctx, g, cfg, st, current.ID, nextID, pctx, res); err != nil {
				return err
			}
		}

		// A loop_restart edge starts a fresh pass: retry budgets and
		// gate-jump counts reset so the new iteration is not charged
		// for the previous one.
		if nextEdge != nil && nextEdge.LoopRestart() {
			st.retries = make(map[string]int)
			st.gateJumps = make(map[string]int)
		}

		st.prevNodeID = current.ID
		st.entryEdge = nextEdge
		current = next
	}

	return nil
}

// executeStage invokes the node's handler, re-invoking on retry
// outcomes until the budget runs out. Budget exhaustion downgrades the
// outcome: partial success when the node allows it, fail otherwise.
// Conditional nodes run exactly once; branching is edge selection's
// job, so a retry would change nothing.
func (e *Engine) executeStage(ctx context.Context, h Handler, node *Node, pctx *Context, g *Graph, runDir string, cfg *runConfig, st *runState) (*Outcome, error) {
	budget := maxRetriesFor(node, g)
	if HandlerTypeOf(node) == "conditional" {
		budget = 0
	}

	for {
		out, err := e.invokeHandler(ctx, h, node, pctx, g, runDir)
		if err != nil {
			return out, err
		}
		if out == nil {
			// A nil outcome with a nil error is a handler bug; treat
			// it as bare success rather than killing the run.
			out = Success()
		}
		if out.Status != StatusRetry {
			return out, nil
		}

		attempt := st.retries[node.ID] + 1
		if attempt > budget {
			return downgradeRetry(out, node, budget), nil
		}
		st.retries[node.ID] = attempt

		delay := e.retry.BackoffFor(attempt)
		observability.LogStageRetry(e.logger, node.ID, attempt, delay)
		e.metrics.RecordStageRetry(ctx, node.ID, attempt)
		e.emit(Event{Type: EventStageRetrying, RunID: cfg.runID, NodeID: node.ID, Data: map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"reason":   out.FailureReason,
		}})

		if delay > 0 {
			select {
			case <-ctx.Done():
				return out, fmt.Errorf("%w at node %q: %v", ErrRunCanceled, node.ID, ctx.Err())
			case <-time.After(delay):
			}
		}
	}
}

// invokeHandler runs one handler execution with panic recovery and the
// node's timeout attribute applied. A panic becomes a fail outcome so
// routing decides what happens next; a returned error is wrapped and
// fatal.
func (e *Engine) invokeHandler(ctx context.Context, h Handler, node *Node, pctx *Context, g *Graph, runDir string) (out *Outcome, err error) {
	if d := node.Timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			perr := &PanicOutcomeError{NodeID: node.ID, Value: r, Stack: debug.Stack()}
			observability.LogStageError(e.logger, node.ID, perr)
			writePanicArtifact(runDir, node.ID, perr)
			out = Fail(perr.Error())
			err = nil
		}
	}()

	out, err = h.Execute(ctx, node, pctx, g, runDir)
	if err != nil {
		return out, &HandlerError{NodeID: node.ID, Err: err}
	}
	return out, nil
}

// nextNode routes from a completed node. Fail outcomes try the fail
// edge, then the retry-target chain, then terminate the run in
// failure. Success-class outcomes at a terminal node (or with no
// matching edge) go through the goal-gate check; otherwise normal edge
// selection applies.
func (e *Engine) nextNode(g *Graph, current *Node, out *Outcome, pctx *Context, res *RunResult, st *runState) (*Node, *Edge, error) {
	if out.Status == StatusFail {
		if fe := FindFailEdge(g, current, out, pctx, e.eval); fe != nil {
			target, ok := g.Node(fe.To)
			if ok {
				return target, fe, nil
			}
		}
		if targetID, ok := ResolveRetryTarget(g, current); ok {
			target, _ := g.Node(targetID)
			return target, nil, nil
		}
		return nil, nil, &StageFailureError{NodeID: current.ID, Reason: out.FailureReason}
	}

	if IsTerminalNode(current) {
		return e.finishOrGateJump(g, res, st)
	}

	edge, err := SelectEdge(g, current, out, pctx, e.eval)
	if err != nil {
		return nil, nil, fmt.Errorf("select edge from %q: %w", current.ID, err)
	}
	if edge == nil {
		// Out of edges on a non-fail outcome: de-facto exit. Goal
		// gates still apply.
		return e.finishOrGateJump(g, res, st)
	}
	target, ok := g.Node(edge.To)
	if !ok {
		// The edge_target_exists lint rule rejects this up front;
		// guard for pruned rule sets.
		return nil, nil, fmt.Errorf("%w: edge %s -> %s targets unknown node", ErrInvalidPipeline, edge.From, edge.To)
	}
	return target, edge, nil
}

// finishOrGateJump ends traversal if every visited goal gate is
// satisfied. An unsatisfied gate jumps to its retry target while the
// offender's budget lasts; otherwise the run fails with a GoalGateError,
// reported distinctly from handler failure because the offending node
// did complete.
func (e *Engine) finishOrGateJump(g *Graph, res *RunResult, st *runState) (*Node, *Edge, error) {
	offender, satisfied := CheckGoalGates(g, res.Outcomes)
	if satisfied {
		return nil, nil, nil
	}

	offNode, ok := g.Node(offender)
	if ok {
		if targetID, tok := ResolveRetryTarget(g, offNode); tok {
			st.gateJumps[offender]++
			if st.gateJumps[offender] <= maxRetriesFor(offNode, g) {
				e.logger.Info("goal gate unsatisfied, jumping to retry target",
					"node_id", offender, "target", targetID, "jump", st.gateJumps[offender])
				target, _ := g.Node(targetID)
				return target, nil, nil
			}
		}
	}
	return nil, nil, &GoalGateError{NodeID: offender}
}

// saveCheckpoint persists the run state after a completed node. Write
// failures are fatal unless the engine was built with
// WithCheckpointBestEffort, in which case they are logged and the run
// continues.
func (e *Engine) saveCheckpoint(ctx context.Context, g *Graph, cfg *runConfig, st *runState, nodeID, nextNode string, pctx *Context, res *RunResult) error {
	st.sequence++
	cp := checkpoint.New(cfg.runID, nodeID, st.sequence)
	cp.Pipeline = g.Name
	cp.NextNode = nextNode
	cp.PrevNode = st.prevNodeID
	cp.CompletedNodes = append([]string(nil), st.completed...)
	statuses := make(map[string]string, res.Outcomes.Len())
	res.Outcomes.Each(func(id string, o *Outcome) bool {
		statuses[id] = string(o.Status)
		return true
	})
	cp.StatusByNode = statuses
	if len(st.retries) > 0 {
		counts := make(map[string]int, len(st.retries))
		for id, n := range st.retries {
			counts[id] = n
		}
		cp.RetryCounts = counts
	}
	cp.ContextValues = pctx.Snapshot()
	cp.Logs = pctx.SnapshotLogs()

	data, err := cp.Marshal()
	if err != nil {
		if !e.checkpointBestEffort {
			return fmt.Errorf("marshal checkpoint at %q: %w", nodeID, err)
		}
		observability.LogCheckpointError(e.logger, nodeID, "marshal", err)
		return nil
	}

	if err := e.store.Save(cfg.runID, nodeID, data); err != nil {
		if !e.checkpointBestEffort {
			return fmt.Errorf("save checkpoint at %q: %w", nodeID, err)
		}
		observability.LogCheckpointError(e.logger, nodeID, "save", err)
		return nil
	}

	sizeBytes := len(data)
	observability.LogCheckpoint(e.logger, nodeID, sizeBytes)
	e.metrics.RecordCheckpoint(ctx, nodeID, int64(sizeBytes))
	e.emit(Event{Type: EventCheckpointSaved, RunID: cfg.runID, NodeID: nodeID, Data: map[string]any{
		"sequence":   st.sequence,
		"size_bytes": sizeBytes,
	}})
	return nil
}

// emit sends a lifecycle event, stamping the time. Emitters must not
// block; see EventEmitter.
func (e *Engine) emit(ev Event) {
	if e.emitter == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	e.emitter.Emit(ev)
}

// maxRetriesFor resolves a node's retry budget: its max_retries
// attribute, then the graph's default_max_retry, then the package
// default. The same budget bounds goal-gate jumps targeting the node.
func maxRetriesFor(node *Node, g *Graph) int {
	if n := node.MaxRetries(); n > 0 {
		return n
	}
	if v, ok := g.Attr("default_max_retry"); ok {
		if f, fok := v.Num(); fok && int(f) > 0 {
			return int(f)
		}
	}
	return defaultMaxRetries
}

// writeStageStatus records the node's outcome as a JSON artifact at
// <run_dir>/<node_id>/status.json. Artifact write failures are fatal
// to the run.
func writeStageStatus(runDir, nodeID string, out *Outcome) error {
	dir := filepath.Join(runDir, nodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stage dir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outcome for %q: %w", nodeID, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status.json"), data, 0o644); err != nil {
		return fmt.Errorf("write status for %q: %w", nodeID, err)
	}
	return nil
}

// writePanicArtifact records a recovered panic and its stack at
// <run_dir>/<node_id>/panic.txt. Best effort: the panic is already in
// the fail outcome and the log, so a write failure is not fatal.
func writePanicArtifact(runDir, nodeID string, perr *PanicOutcomeError) {
	dir := filepath.Join(runDir, nodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	body := fmt.Sprintf("%v\n\n%s", perr.Value, perr.Stack)
	_ = os.WriteFile(filepath.Join(dir, "panic.txt"), []byte(body), 0o644)
}

// downgradeRetry converts a retry outcome whose budget ran out into
// the outcome routing will actually see, preserving the handler's
// hints and context updates.
func downgradeRetry(out *Outcome, node *Node, budget int) *Outcome {
	down := *out
	reason := out.FailureReason
	if reason == "" {
		reason = fmt.Sprintf("retry budget exhausted after %d attempts", budget)
	}
	if node.AllowPartial() {
		down.Status = StatusPartialSuccess
		if down.Notes == "" {
			down.Notes = reason
		}
	} else {
		down.Status = StatusFail
		down.FailureReason = reason
	}
	return &down
}
