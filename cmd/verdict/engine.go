package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/verdict/internal/config"
	"github.com/felixgeelhaar/verdict/internal/exercise"
	"github.com/felixgeelhaar/verdict/internal/markup"
	"github.com/felixgeelhaar/verdict/internal/runner"
	"github.com/felixgeelhaar/verdict/internal/sandbox"
	"github.com/felixgeelhaar/verdict/internal/storage"
)

// engine is an in-process grading stack for commands that do not go
// through the daemon.
type engine struct {
	cfg      *config.LocalConfig
	registry *exercise.Registry
	runner   *runner.Service
	backend  sandbox.Backend
	stores   *storage.Stores
	logger   *slog.Logger
}

type engineOptions struct {
	// storage opens the configured run and progress stores.
	storage bool
	logger  *slog.Logger
}

func newEngine(ctx context.Context, opts engineOptions) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := opts.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	registry, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	sbCfg := cfg.Runner.Sandbox()
	backend, err := sandbox.NewBackend(sbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create sandbox backend: %w", err)
	}

	e := &engine{cfg: cfg, registry: registry, backend: backend, logger: logger}

	var runnerOpts []runner.Option
	if opts.storage {
		dir, err := config.EnsureVerdictDir()
		if err != nil {
			e.Close()
			return nil, err
		}
		stores, err := storage.Open(ctx, cfg.Storage, filepath.Join(dir, "data"), logger)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		e.stores = stores
		runnerOpts = stores.Options()
	}
	runnerOpts = append(runnerOpts, runner.WithLogger(logger))

	supervisor := sandbox.NewSupervisor(backend, sbCfg.Budget, sbCfg.Grace, logger)
	e.runner = runner.NewService(cfg.Runner.Service(),
		runner.NewFunctionEngine(supervisor, logger),
		markup.NewEngine(cfg.Markup.Settle(), logger),
		runnerOpts...)
	return e, nil
}

// Close releases the stores and the sandbox backend.
func (e *engine) Close() {
	if e.stores != nil {
		e.stores.Close()
	}
	if closer, ok := e.backend.(interface{ Close() error }); ok {
		closer.Close()
	}
}

// loadCatalog loads the configured exercises directory, falling back to
// ~/.verdict/exercises.
func loadCatalog(cfg *config.LocalConfig) (*exercise.Registry, error) {
	path := cfg.Daemon.ExercisesPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		dir, err := config.VerdictDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "exercises")
	}

	registry := exercise.NewRegistry(exercise.NewLoader(path))
	if err := registry.Load(); err != nil {
		return nil, fmt.Errorf("load exercises from %s: %w", path, err)
	}
	return registry, nil
}
