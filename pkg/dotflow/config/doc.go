/*
Package config loads run-configuration for pipeline execution.

# Overview

config wraps a map[string]any in typed accessors that swallow missing
keys and type mismatches by returning defaults, so sparse YAML or JSON
run-config files extract cleanly without assertion boilerplate:

	cfg, err := config.FromFile("run.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	logsRoot := cfg.String("logs_root", "logs")
	timeout := cfg.Duration("stage_timeout", time.Minute)
	parallel := cfg.Section("parallel").Int("max", 4)

# Engine wiring

EngineOptions turns a config into engine options, covering logs root,
iteration cap, checkpoint store (memory or sqlite), retry policy and
tracing:

	opts, err := config.EngineOptions(cfg)
	if err != nil {
	    log.Fatal(err)
	}
	engine := dotflow.NewEngine(opts...)

# Type coercion

Duration accepts a time.ParseDuration string or a bare number of
seconds. Int converts from float64 only when the value is whole. All
accessors fall back to the default on conversion failure instead of
guessing.

# Thread safety

Config is safe for concurrent reads. The underlying map must not be
modified after construction.
*/
package config
