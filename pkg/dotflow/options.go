package dotflow

import (
	"log/slog"

	"github.com/randalmurphal/dotflow/pkg/dotflow/checkpoint"
	dferrors "github.com/randalmurphal/dotflow/pkg/dotflow/errors"
	"github.com/randalmurphal/dotflow/pkg/dotflow/expr"
	"github.com/randalmurphal/dotflow/pkg/dotflow/observability"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogsRoot sets the directory under which each run creates its
// artifact directory (<logs_root>/<run_id>).
// Default: "logs"
func WithLogsRoot(dir string) Option {
	return func(e *Engine) {
		if dir != "" {
			e.logsRoot = dir
		}
	}
}

// WithHandlerRegistry replaces the handler registry. The default
// registry covers the control-flow node types and falls back to a
// noop handler; pass a registry built with NewHandlerRegistry(nil)
// to make unresolved node types fatal instead.
func WithHandlerRegistry(r *HandlerRegistry) Option {
	return func(e *Engine) {
		if r != nil {
			e.handlers = r
		}
	}
}

// WithTransformRegistry replaces the transform registry applied to the
// private graph copy before validation.
// Default: NewTransformRegistry() (built-in transforms only)
func WithTransformRegistry(r *TransformRegistry) Option {
	return func(e *Engine) {
		if r != nil {
			e.transforms = r
		}
	}
}

// WithEventEmitter sets the sink for run lifecycle events.
// Default: NoopEmitter
func WithEventEmitter(em EventEmitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithLogger sets the structured logger for run and stage logging.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder for stage and run telemetry.
// Default: an OpenTelemetry recorder against the global meter provider,
// which is a no-op unless an SDK is installed.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracing enables span creation for runs and stages. Passing nil
// uses the OpenTelemetry span manager against the global tracer
// provider.
func WithTracing(sm observability.SpanManager) Option {
	return func(e *Engine) {
		if sm == nil {
			sm = observability.NewSpanManager()
		}
		e.spans = sm
		e.tracingEnabled = true
	}
}

// WithCheckpointStore enables checkpointing: run state is persisted
// after every completed node so the run can be resumed.
// Default: nil (checkpointing off)
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithCheckpointBestEffort downgrades checkpoint write failures from
// fatal run errors to logged warnings. The run continues without the
// checkpoint; resumption may lose the affected node.
func WithCheckpointBestEffort() Option {
	return func(e *Engine) {
		e.checkpointBestEffort = true
	}
}

// WithMaxIterations sets the traversal iteration guard. A run that
// visits more nodes than this fails with a MaxIterationsError, which
// is almost always a retry-target cycle with no terminating condition.
// Default: 10000
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithRetryPolicy sets the backoff policy used to pace stage
// re-execution when a handler returns a retry outcome.
// Default: errors.DefaultRetry
func WithRetryPolicy(cfg dferrors.RetryConfig) Option {
	return func(e *Engine) {
		e.retry = cfg
	}
}

// WithLintRules appends caller-supplied lint rules to the built-in set
// run during pre-flight validation.
func WithLintRules(rules ...LintRule) Option {
	return func(e *Engine) {
		e.extraRules = append(e.extraRules, rules...)
	}
}

// WithEvaluator replaces the condition evaluator used for edge
// selection and fail-edge lookup, for callers that registered custom
// operators.
func WithEvaluator(ev *expr.Evaluator) Option {
	return func(e *Engine) {
		if ev != nil {
			e.eval = ev
		}
	}
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// runConfig holds per-run settings resolved at the top of RunGraph.
type runConfig struct {
	runID      string
	startNode  string
	resume     *checkpoint.Checkpoint
	replayLast bool
}

// WithRunID pins the run identifier instead of generating one. The id
// names the run's artifact directory and keys its checkpoints.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithStartNode begins traversal at the named node instead of the
// graph's start node. The node must exist in the transformed graph.
func WithStartNode(id string) RunOption {
	return func(c *runConfig) {
		c.startNode = id
	}
}

// WithResumeState rehydrates the run from a checkpoint: context
// values, completed nodes, recorded statuses, and retry counts carry
// over, and traversal begins at the checkpoint's next node unless
// WithStartNode overrides it. Engine.Resume loads the latest
// checkpoint and applies this for you.
func WithResumeState(cp *checkpoint.Checkpoint) RunOption {
	return func(c *runConfig) {
		c.resume = cp
	}
}

// WithReplayLastNode makes a resumed run re-execute the checkpointed
// node instead of starting at its successor. Useful when the node's
// effects were lost in the crash the resume is recovering from.
func WithReplayLastNode() RunOption {
	return func(c *runConfig) {
		c.replayLast = true
	}
}
