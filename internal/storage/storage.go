// Package storage opens the run and progress stores named by config.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/felixgeelhaar/verdict/internal/config"
	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/runner"
	"github.com/felixgeelhaar/verdict/internal/storage/local"
	"github.com/felixgeelhaar/verdict/internal/storage/postgres"
	"github.com/felixgeelhaar/verdict/internal/storage/sqlite"
)

// StatusCounter reports stored runs per status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.RunStatus]int, error)
}

// Stores bundles the stores of one driver. Runs and Progress are nil for
// the "none" driver; Counter is nil when the driver cannot count.
type Stores struct {
	Driver   string
	Runs     runner.RunStore
	Progress runner.ProgressStore
	Counter  StatusCounter

	closers []func() error
}

// Options returns the runner options that attach these stores.
func (s *Stores) Options() []runner.Option {
	if s.Runs == nil {
		return nil
	}
	return []runner.Option{runner.WithRunStore(s.Runs), runner.WithProgressStore(s.Progress)}
}

// Close releases the underlying connections.
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Open builds the stores for cfg. A relative or empty path resolves under
// dataDir.
func Open(ctx context.Context, cfg config.StorageConfig, dataDir string, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case config.StorageNone:
		return &Stores{Driver: config.StorageNone}, nil

	case "", config.StorageSQLite:
		path := resolve(cfg.Path, dataDir, "verdict.db")
		db, err := sqlite.Open(path, logger)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		runs := sqlite.NewRunStore(db)
		logger.Info("storage opened", "driver", config.StorageSQLite, "path", path)
		return &Stores{
			Driver:   config.StorageSQLite,
			Runs:     runs,
			Progress: sqlite.NewProgressStore(db),
			Counter:  runs,
			closers:  []func() error{db.Close},
		}, nil

	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		runs := postgres.NewRunStore(pool)
		logger.Info("storage opened", "driver", config.StoragePostgres)
		return &Stores{
			Driver:   config.StoragePostgres,
			Runs:     runs,
			Progress: postgres.NewProgressStore(pool),
			Counter:  runs,
			closers:  []func() error{func() error { pool.Close(); return nil }},
		}, nil

	case config.StorageLocal:
		path := resolve(cfg.Path, dataDir, "store")
		store, err := local.NewStore(path)
		if err != nil {
			return nil, err
		}
		logger.Info("storage opened", "driver", config.StorageLocal, "path", path)
		return &Stores{
			Driver:   config.StorageLocal,
			Runs:     local.NewRunStore(store),
			Progress: local.NewProgressStore(store),
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown storage driver %q", domain.ErrInvalidInput, cfg.Driver)
}

func resolve(path, dataDir, fallback string) string {
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}
