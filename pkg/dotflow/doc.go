/*
Package dotflow executes pipelines described as Graphviz DOT digraphs.

# Overview

dotflow is a Go library for orchestrating multi-stage workflows,
typically LLM-powered coding pipelines, where the pipeline itself is a
DOT file. Nodes are stages, node shapes pick handlers, and edges carry
the routing rules: conditions, preferred labels, weights, and failure
paths. The engine walks the graph sequentially from the start node,
executing one handler per stage, until it reaches a terminal node or a
routing rule ends the run.

The library provides:
  - A DOT parser producing a typed, attribute-rich graph model
  - Sequential traversal with conditional routing and loop protection
  - Goal gates, retry targets, and fail-edge failure routing
  - Fidelity modes controlling how much context each stage sees
  - Graph transforms (stylesheets, variable expansion) and lint rules
  - Crash recovery via checkpointing, plus events and OpenTelemetry

# Pipelines as DOT

A pipeline is an ordinary digraph. Shapes map to handler types:
Mdiamond is the start node, Msquare the exit, box a codergen (LLM)
stage, diamond a conditional, hexagon a human gate, parallelogram a
shell tool, component/tripleoctagon a parallel fan-out/fan-in pair.

	digraph review {
	    graph [goal="Fix the failing build"];

	    start   [shape=Mdiamond];
	    plan    [shape=box, label="Plan the fix", prompt="Plan how to: $goal"];
	    fix     [shape=box, label="Apply the fix", goal_gate=true, retry_target=plan];
	    verify  [shape=parallelogram, tool_command="go test ./..."];
	    exit    [shape=Msquare];

	    start -> plan;
	    plan -> fix;
	    fix -> verify;
	    verify -> exit [condition="outcome == success"];
	    verify -> fix  [condition="outcome == fail"];
	}

# Basic Usage

Create an engine and hand it DOT source:

	engine := dotflow.NewEngine(dotflow.WithLogsRoot("logs"))

	result, err := engine.Run(context.Background(), source)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(result.FinalStatus, result.CompletedNodes)

Run parses, applies graph transforms, lints (Error-severity diagnostics
abort the run), then walks the graph. RunGraph accepts an
already-parsed *Graph. Each run gets a directory under the logs root
where stages write their artifacts.

# Handlers

A Handler executes one stage:

	type Handler interface {
	    Execute(ctx context.Context, node *Node, pctx *Context, g *Graph, logsRoot string) (*Outcome, error)
	}

Handlers resolve by the node's type attribute first, then its shape,
then the registry default. Returning an error aborts the run;
returning a Fail outcome routes through the graph's failure rules
instead. Register custom handlers on a HandlerRegistry:

	reg := dotflow.DefaultHandlerRegistry()
	reg.Register("deploy", dotflow.HandlerFunc(func(ctx context.Context, node *dotflow.Node, pctx *dotflow.Context, g *dotflow.Graph, logsRoot string) (*dotflow.Outcome, error) {
	    if err := deploy(ctx, pctx.GetString("artifact", "")); err != nil {
	        return dotflow.Fail(err.Error()), nil
	    }
	    return dotflow.Success().WithContextUpdate("deployed", true), nil
	}))

	engine := dotflow.NewEngine(dotflow.WithHandlerRegistry(reg))

The handlers subpackage ships the heavier built-ins (codergen, tool,
wait.human, parallel) and a DefaultRegistry that wires them all.

# Routing

After a stage completes, the engine picks the next edge in strict
order: conditional edges whose condition matches the outcome and
context win first (ties broken by weight, then target id, then
declaration order); otherwise an unconditional edge matching the
outcome's preferred label; otherwise one named by the outcome's
suggested next ids; otherwise the best unconditional edge. Conditions
are small boolean expressions:

	verify -> exit  [condition="outcome == success"];
	verify -> retry [condition="outcome == fail && context.attempts < 3"];

# Goal Gates and Retry Targets

A node with goal_gate=true must finish success-class (success or
partial_success). When traversal reaches the exit, the engine
re-checks every visited gate; the first unsatisfied one resolves a
retry target (node retry_target, then node fallback_retry_target, then
the graph-level pair, accepting only targets that name existing nodes)
and traversal jumps there instead of finishing. A gate with no
resolvable target fails the run with GoalGateError.

When a stage returns Fail, the engine first looks for a fail edge: an
outgoing conditional edge whose condition matches a forced-Fail view
of the outcome. If none matches, it falls back to the same retry-target
chain. Only when that resolves nothing does the run end with
StageFailureError.

# Fidelity

Fidelity controls how much accumulated context a stage's handler sees:
full, truncate, compact, or summary:<n>. Resolution is a four-level
chain: incoming edge attr, then node attr, then the graph's
default_fidelity, then compact. Thread ids resolve through their own
chain (node, edge, graph default, first class token, previous node),
so parallel branches and loop iterations can isolate their history.

# Checkpointing

Enable crash recovery with a checkpoint store:

	store, err := checkpoint.NewSQLiteStore("checkpoints.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	engine := dotflow.NewEngine(dotflow.WithCheckpointStore(store))
	result, err := engine.Run(ctx, source, dotflow.WithRunID("run-123"))

	// Resume after a crash.
	cp, err := checkpoint.Latest(store, "run-123")
	if err != nil {
	    log.Fatal(err)
	}
	result, err = engine.Run(ctx, source, dotflow.WithResumeState(cp))

A checkpoint is written after every completed stage. Resume continues
from the node after the last checkpoint; WithReplayLastNode re-runs
the checkpointed node instead. Checkpoint failures abort the run
unless WithCheckpointBestEffort is set.

# Events

The engine emits lifecycle events (run.started, stage.completed,
run.failed, ...) through an EventEmitter:

	engine := dotflow.NewEngine(dotflow.WithEventEmitter(dotflow.EmitterFunc(func(ev dotflow.Event) {
	    fmt.Println(ev.Type, ev.NodeID)
	})))

The event subpackage provides a buffered pub/sub bus when multiple
consumers need the stream.

# Observability

Enable structured logging, metrics, and tracing:

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	engine := dotflow.NewEngine(
	    dotflow.WithLogger(logger),
	    dotflow.WithMetrics(observability.NewMetricsRecorder()),
	    dotflow.WithTracing(observability.NewSpanManager()),
	)

Logs carry structured fields: run_id, node_id, status, attempt,
duration_ms. OpenTelemetry metrics: dotflow.stage.executions,
dotflow.stage.latency_ms, dotflow.pipeline.runs, and friends. Tracing
produces a dotflow.run span with one dotflow.stage.<id> child per
stage.

# Error Handling

Run errors carry typed context and unwrap to sentinels:

	result, err := engine.Run(ctx, source)
	var gateErr *dotflow.GoalGateError
	if errors.As(err, &gateErr) {
	    log.Printf("gate %s never succeeded", gateErr.NodeID)
	}
	if errors.Is(err, dotflow.ErrMaxIterations) {
	    log.Print("pipeline looped forever")
	}

Handler panics are recovered, recorded as a Fail outcome with a
panic.txt artifact, and routed like any other failure.

# Thread Safety

  - Graph is NOT safe for concurrent mutation; parse or build, then run
  - Engine IS safe for concurrent use: each Run keeps its own state
  - Context is safe for concurrent use; parallel branches get clones
  - HandlerRegistry and checkpoint stores are safe for concurrent use

# Subpackages

  - checkpoint: run-state persistence (memory, SQLite)
  - config: YAML/JSON configuration with an engine-options bridge
  - errors: failure classification and retry/backoff policies
  - event: buffered pub/sub bus over engine events
  - expr: the condition-expression evaluator
  - handlers: built-in stage handlers (codergen, tool, human gate, parallel)
  - llm: LLM client interface and implementations
  - observability: logging, metrics, and tracing helpers
  - registry: generic thread-safe registry used by the handler registry
  - template: ${var} expansion used by prompts and transforms
*/
package dotflow
