package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

// Supervisor runs jobs in fresh units under an outer timer.
//
// The unit arms its own timer at the job budget. The supervisor arms a
// second one at budget plus grace for units whose inner timer cannot fire,
// such as a native call that never yields. Whichever settles first is the
// outcome, and the unit is always terminated afterwards.
type Supervisor struct {
	backend Backend
	budget  time.Duration
	grace   time.Duration
	logger  *slog.Logger
}

// NewSupervisor creates a supervisor. Zero durations take the defaults.
func NewSupervisor(backend Backend, budget, grace time.Duration, logger *slog.Logger) *Supervisor {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{backend: backend, budget: budget, grace: grace, logger: logger}
}

// Budget returns the inner budget applied to jobs that carry none.
func (s *Supervisor) Budget() time.Duration {
	return s.budget
}

// Backend returns the name of the backend units come from.
func (s *Supervisor) Backend() string {
	return s.backend.Name()
}

// Run executes job in a new unit and returns exactly one outcome.
func (s *Supervisor) Run(ctx context.Context, job Job) domain.Outcome {
	if job.TimeoutMs <= 0 {
		job.TimeoutMs = s.budget.Milliseconds()
	}
	budget := job.Budget()

	unit, err := s.backend.NewUnit(ctx)
	if err != nil {
		s.logger.Error("create unit failed", "backend", s.backend.Name(), "error", err)
		return domain.Failed(fmt.Sprintf("start isolated unit: %v", err))
	}
	defer unit.Terminate()

	reply := unit.Post(job)
	outer := time.NewTimer(budget + s.grace)
	defer outer.Stop()

	select {
	case msg := <-reply:
		return msg
	case <-outer.C:
		s.logger.Warn("unit missed its budget, terminating",
			"backend", s.backend.Name(),
			"budget_ms", budget.Milliseconds())
		return domain.Failed(TimeoutMessage(budget))
	case <-ctx.Done():
		return domain.Failed(domain.CanceledMessage)
	}
}
