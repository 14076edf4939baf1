package config

import (
	"fmt"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
	"github.com/randalmurphal/dotflow/pkg/dotflow/checkpoint"
	dferrors "github.com/randalmurphal/dotflow/pkg/dotflow/errors"
	"github.com/randalmurphal/dotflow/pkg/dotflow/observability"
)

// EngineOptions translates a run-config into engine options, so a
// pipeline runner can be configured from a file instead of code:
//
//	logs_root: ./logs
//	max_iterations: 500
//	tracing: true
//	checkpoint:
//	  driver: sqlite
//	  path: runs.db
//	  best_effort: true
//	retry:
//	  max_attempts: 4
//	  initial_backoff: 500ms
//	  backoff_factor: 2.0
//
// Keys left out keep the engine defaults. An unknown checkpoint
// driver or an unopenable store is an error; everything else is
// best-effort extraction.
func EngineOptions(cfg Config) ([]dotflow.Option, error) {
	var opts []dotflow.Option

	if root := cfg.String("logs_root", ""); root != "" {
		opts = append(opts, dotflow.WithLogsRoot(root))
	}
	if n := cfg.Int("max_iterations", 0); n > 0 {
		opts = append(opts, dotflow.WithMaxIterations(n))
	}

	if cfg.Has("checkpoint") {
		cp := cfg.Section("checkpoint")
		store, err := openStore(cp)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dotflow.WithCheckpointStore(store))
		if cp.Bool("best_effort", false) {
			opts = append(opts, dotflow.WithCheckpointBestEffort())
		}
	}

	if cfg.Has("retry") {
		rc := cfg.Section("retry")
		retry := dferrors.DefaultRetry
		retry.MaxAttempts = rc.Int("max_attempts", retry.MaxAttempts)
		retry.InitialBackoff = rc.Duration("initial_backoff", retry.InitialBackoff)
		retry.MaxBackoff = rc.Duration("max_backoff", retry.MaxBackoff)
		retry.BackoffFactor = rc.Float("backoff_factor", retry.BackoffFactor)
		retry.Jitter = rc.Float("jitter", retry.Jitter)
		opts = append(opts, dotflow.WithRetryPolicy(retry))
	}

	if cfg.Bool("tracing", false) {
		opts = append(opts, dotflow.WithTracing(observability.NewSpanManager()))
	}

	return opts, nil
}

// openStore builds the checkpoint store a config section names.
func openStore(cp Config) (checkpoint.Store, error) {
	driver := cp.String("driver", "memory")
	switch driver {
	case "memory":
		return checkpoint.NewMemoryStore(), nil
	case "sqlite":
		path := cp.String("path", "")
		if path == "" {
			return nil, fmt.Errorf("config: checkpoint driver %q requires a path", driver)
		}
		return checkpoint.NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("config: unknown checkpoint driver %q", driver)
	}
}
