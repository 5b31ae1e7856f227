package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/sandbox"
)

// FunctionEngine grades js exercises by running the test runner in an
// isolated unit.
type FunctionEngine struct {
	supervisor *sandbox.Supervisor
	logger     *slog.Logger
}

// NewFunctionEngine creates an engine over a supervisor.
func NewFunctionEngine(supervisor *sandbox.Supervisor, logger *slog.Logger) *FunctionEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &FunctionEngine{supervisor: supervisor, logger: logger}
}

// Run executes one job and returns its normalized outcome.
func (e *FunctionEngine) Run(ctx context.Context, job sandbox.Job) domain.Outcome {
	start := time.Now()
	outcome := Normalize(e.supervisor.Run(ctx, job))
	e.logger.Debug("function engine finished",
		"backend", e.supervisor.Backend(),
		"dom", job.DOM,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", outcome.Error)
	return outcome
}
