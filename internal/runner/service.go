package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/markup"
	"github.com/felixgeelhaar/verdict/internal/sandbox"
	"github.com/google/uuid"
)

// Config holds runner configuration
type Config struct {
	// MaxConcurrent bounds runs executing at once.
	MaxConcurrent int
	// MaxQueue bounds runs waiting for a slot. Beyond it runs are rejected.
	MaxQueue     int
	QueueTimeout time.Duration
}

// DefaultConfig returns default runner configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		MaxQueue:      16,
		QueueTimeout:  30 * time.Second,
	}
}

// FunctionRunner executes js jobs in isolation.
type FunctionRunner interface {
	Run(ctx context.Context, job sandbox.Job) domain.Outcome
}

// MarkupEvaluator grades html and css submissions.
type MarkupEvaluator interface {
	Evaluate(ctx context.Context, in markup.Input) domain.Outcome
}

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListRuns(ctx context.Context, studentID, exerciseID string, limit int) ([]*domain.Run, error)
}

// ProgressStore persists per-student progress. GetProgress returns
// domain.ErrProgressNotFound for a student with no attempts.
type ProgressStore interface {
	GetProgress(ctx context.Context, studentID, exerciseID string) (*domain.Progress, error)
	SaveProgress(ctx context.Context, p *domain.Progress) error
	ListProgress(ctx context.Context, studentID string) ([]*domain.Progress, error)
}

// Service selects an engine for each run, executes it under bounded
// concurrency and records the result.
type Service struct {
	config   Config
	function FunctionRunner
	markup   MarkupEvaluator
	runs     RunStore
	progress ProgressStore
	bulkhead bulkhead.Bulkhead[domain.Outcome]
	logger   *slog.Logger

	mu      sync.Mutex
	running map[uuid.UUID]*runState
}

type runState struct {
	run    *domain.Run
	cancel context.CancelFunc
	doneCh chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithRunStore records every finished run.
func WithRunStore(store RunStore) Option {
	return func(s *Service) { s.runs = store }
}

// WithProgressStore updates learner progress after every run.
func WithProgressStore(store ProgressStore) Option {
	return func(s *Service) { s.progress = store }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new runner service
func NewService(cfg Config, function FunctionRunner, markup MarkupEvaluator, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxQueue < 0 {
		cfg.MaxQueue = 0
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = def.QueueTimeout
	}

	s := &Service{
		config:   cfg,
		function: function,
		markup:   markup,
		running:  make(map[uuid.UUID]*runState),
		bulkhead: bulkhead.New[domain.Outcome](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxQueue,
			QueueTimeout:  cfg.QueueTimeout,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// RunRequest contains data for grading one submission
type RunRequest struct {
	// RunID is assigned when zero.
	RunID     uuid.UUID
	StudentID string
	Exercise  *domain.Exercise
	Code      string
}

// Run grades a submission. Engine failures are reported inside the run's
// outcome; the returned error is for requests that cannot be run at all.
func (s *Service) Run(ctx context.Context, req RunRequest) (*domain.Run, error) {
	if req.Exercise == nil {
		return nil, fmt.Errorf("%w: exercise is required", domain.ErrInvalidInput)
	}
	plan, err := Select(req.Exercise, req.Code)
	if err != nil {
		return nil, err
	}
	if plan.Inferred {
		s.logger.Debug("execution mode inferred from test runner",
			"exercise_id", req.Exercise.ID,
			"engine", plan.Engine)
	}

	id := req.RunID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now()
	run := &domain.Run{
		ID:         id,
		StudentID:  req.StudentID,
		ExerciseID: req.Exercise.ID,
		Engine:     plan.Engine,
		Status:     domain.RunStatusRunning,
		Code:       req.Code,
		StartedAt:  &now,
		CreatedAt:  now,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	state := &runState{run: run, cancel: cancel, doneCh: make(chan struct{})}

	s.mu.Lock()
	s.running[id] = state
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		close(state.doneCh)
	}()

	outcome, err := s.execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	finish(run, outcome)
	s.mu.Unlock()

	s.logger.Info("run finished",
		"run_id", run.ID,
		"exercise_id", run.ExerciseID,
		"engine", run.Engine,
		"status", run.Status,
		"passed", outcome.Passed(),
		"total", len(outcome.Results),
		"duration_ms", run.Duration.Milliseconds())

	s.record(context.WithoutCancel(ctx), run)
	return run, nil
}

// execute runs a plan through the bulkhead. It fails only when the run
// never got a slot.
func (s *Service) execute(ctx context.Context, plan Plan) (domain.Outcome, error) {
	outcome, err := s.bulkhead.Execute(ctx, func(ctx context.Context) (domain.Outcome, error) {
		switch {
		case plan.Function != nil:
			return s.function.Run(ctx, *plan.Function), nil
		case plan.Markup != nil:
			return s.markup.Evaluate(ctx, *plan.Markup), nil
		default:
			return domain.Failed(fmt.Sprintf("no input for engine %q", plan.Engine)), nil
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Failed(domain.CanceledMessage), nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Outcome{}, fmt.Errorf("%w: queue wait exceeded %v", domain.ErrRunRejected, s.config.QueueTimeout)
		}
		return domain.Outcome{}, fmt.Errorf("%w: %v", domain.ErrRunRejected, err)
	}
	return Normalize(outcome), nil
}

func finish(run *domain.Run, outcome domain.Outcome) {
	now := time.Now()
	run.Outcome = outcome
	run.FinishedAt = &now
	if run.StartedAt != nil {
		run.Duration = now.Sub(*run.StartedAt)
	}
	switch {
	case sandbox.IsTimeout(outcome.Error):
		run.Status = domain.RunStatusTimeout
	case outcome.IsError():
		run.Status = domain.RunStatusFailed
	default:
		run.Status = domain.RunStatusCompleted
	}
}

// record persists the run and the student's progress. Storage failures are
// logged; the graded run is still returned to the caller.
func (s *Service) record(ctx context.Context, run *domain.Run) {
	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, run); err != nil {
			s.logger.Error("save run failed", "run_id", run.ID, "error", err)
		}
	}
	if s.progress == nil || run.StudentID == "" || run.Outcome.Error == domain.CanceledMessage {
		return
	}

	p, err := s.progress.GetProgress(ctx, run.StudentID, run.ExerciseID)
	if errors.Is(err, domain.ErrProgressNotFound) {
		p = &domain.Progress{StudentID: run.StudentID, ExerciseID: run.ExerciseID}
	} else if err != nil {
		s.logger.Error("load progress failed", "run_id", run.ID, "student_id", run.StudentID, "error", err)
		return
	}
	p.Record(run)
	if err := s.progress.SaveProgress(ctx, p); err != nil {
		s.logger.Error("save progress failed", "run_id", run.ID, "student_id", run.StudentID, "error", err)
	}
}

// GetRun returns a stored run, or a run still executing.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.Lock()
	if state, ok := s.running[id]; ok {
		run := *state.run
		s.mu.Unlock()
		return &run, nil
	}
	s.mu.Unlock()
	if s.runs == nil {
		return nil, domain.ErrRunNotFound
	}
	return s.runs.GetRun(ctx, id)
}

// ListRuns returns the most recent runs of a student, optionally for one
// exercise.
func (s *Service) ListRuns(ctx context.Context, studentID, exerciseID string, limit int) ([]*domain.Run, error) {
	if s.runs == nil {
		return []*domain.Run{}, nil
	}
	return s.runs.ListRuns(ctx, studentID, exerciseID, limit)
}

// Progress returns every progress record of a student.
func (s *Service) Progress(ctx context.Context, studentID string) ([]*domain.Progress, error) {
	if s.progress == nil {
		return []*domain.Progress{}, nil
	}
	return s.progress.ListProgress(ctx, studentID)
}

// Cancel cancels a running execution
func (s *Service) Cancel(runID uuid.UUID) error {
	s.mu.Lock()
	state, ok := s.running[runID]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}

	state.cancel()
	return nil
}

// IsRunning checks if a run is currently executing
func (s *Service) IsRunning(runID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[runID]
	return ok
}

// Wait waits for a run to complete
func (s *Service) Wait(ctx context.Context, runID uuid.UUID) error {
	s.mu.Lock()
	state, ok := s.running[runID]
	s.mu.Unlock()

	if !ok {
		return nil // Already completed
	}

	select {
	case <-state.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running returns the number of runs currently executing.
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
