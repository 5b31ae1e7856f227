package mcp

import (
	"context"
	"fmt"
	"strings"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/exercise"
	"github.com/felixgeelhaar/verdict/internal/runner"
)

// Server wraps the MCP server with verdict functionality
type Server struct {
	mcpServer *server.Server
	registry  *exercise.Registry
	runner    *runner.Service
}

// Config contains configuration for the MCP server
type Config struct {
	Registry *exercise.Registry
	Runner   *runner.Service
	Version  string
}

// NewServer creates a new MCP server for verdict
func NewServer(cfg Config) *Server {
	s := &Server{
		registry: cfg.Registry,
		runner:   cfg.Runner,
	}
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "verdict",
		Version: version,
	}, server.WithInstructions(`
Verdict runs learner code against exercise tests in a sandbox and reports
one pass/fail verdict per test.

Available tools:
- verdict_list_exercises: List catalog exercises (filter by type, tag or pack)
- verdict_get_exercise: Show an exercise with its starter code
- verdict_run: Run code against an exercise and report the results
- verdict_verify: Check that reference solutions pass their own tests
- verdict_progress: Show a student's progress

Exercise types: js (function tests), html, css and html-css (markup tests).
`))

	s.registerTools()

	return s
}

// registerTools registers all verdict MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("verdict_list_exercises").
		Description("List exercises in the catalog, optionally filtered by type, tag or pack.").
		Handler(s.handleListExercises)

	s.mcpServer.Tool("verdict_get_exercise").
		Description("Get an exercise description, starter code and provided HTML.").
		Handler(s.handleGetExercise)

	s.mcpServer.Tool("verdict_run").
		Description("Run code against an exercise. Returns one result per test.").
		Handler(s.handleRun)

	s.mcpServer.Tool("verdict_verify").
		Description("Verify that reference solutions pass. Verifies every exercise when no id is given.").
		Handler(s.handleVerify)

	s.mcpServer.Tool("verdict_progress").
		Description("Get a student's progress across exercises.").
		Handler(s.handleProgress)
}

// Input/Output types for tools

type ListExercisesInput struct {
	Type string `json:"type,omitempty" jsonschema:"description=Exercise type,enum=js,enum=html,enum=css,enum=html-css"`
	Tag  string `json:"tag,omitempty" jsonschema:"description=Only exercises with this tag"`
	Pack string `json:"pack,omitempty" jsonschema:"description=Only exercises from this pack"`
}

type ExerciseSummary struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	Type       domain.ExerciseType `json:"type"`
	Difficulty domain.Difficulty   `json:"difficulty,omitempty"`
	Tags       []string            `json:"tags,omitempty"`
}

type ListExercisesOutput struct {
	Exercises []ExerciseSummary `json:"exercises"`
}

type GetExerciseInput struct {
	ExerciseID string `json:"exercise_id" jsonschema:"description=Exercise ID in format pack/section/slug"`
}

type GetExerciseOutput struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Type         domain.ExerciseType `json:"type"`
	Difficulty   domain.Difficulty   `json:"difficulty,omitempty"`
	StarterCode  string              `json:"starter_code,omitempty"`
	ProvidedHTML string              `json:"provided_html,omitempty"`
	Tests        []string            `json:"tests,omitempty"`
	NextID       string              `json:"next_id,omitempty"`
}

type RunInput struct {
	ExerciseID string `json:"exercise_id" jsonschema:"description=Exercise ID from verdict_list_exercises"`
	Code       string `json:"code" jsonschema:"description=Learner code. For html-css exercises put CSS in a style block"`
	StudentID  string `json:"student_id,omitempty" jsonschema:"description=Student to record progress for"`
}

type RunOutput struct {
	RunID   string              `json:"run_id"`
	Status  domain.RunStatus    `json:"status"`
	Engine  domain.Engine       `json:"engine"`
	Passed  bool                `json:"passed"`
	Error   string              `json:"error,omitempty"`
	Results []domain.TestResult `json:"results"`
	Summary string              `json:"summary"`
}

type VerifyInput struct {
	ExerciseID string `json:"exercise_id,omitempty" jsonschema:"description=Exercise to verify; all when empty"`
}

type VerifyOutput struct {
	Total    int      `json:"total"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

type ProgressInput struct {
	StudentID string `json:"student_id" jsonschema:"description=Student ID used with verdict_run"`
}

type ProgressOutput struct {
	StudentID string             `json:"student_id"`
	Completed int                `json:"completed"`
	Progress  []*domain.Progress `json:"progress"`
}

// Tool handlers

func (s *Server) handleListExercises(ctx context.Context, input ListExercisesInput) (ListExercisesOutput, error) {
	if s.registry == nil {
		return ListExercisesOutput{}, fmt.Errorf("no exercise catalog loaded")
	}

	exercises := s.registry.ListExercises()
	if input.Type != "" {
		t := domain.ExerciseType(input.Type)
		if !t.Valid() {
			return ListExercisesOutput{}, fmt.Errorf("%w: %q", domain.ErrUnknownExerciseType, input.Type)
		}
		exercises = s.registry.ListByType(t)
	}

	out := ListExercisesOutput{Exercises: make([]ExerciseSummary, 0, len(exercises))}
	for _, ex := range exercises {
		if input.Pack != "" && ex.PackID != input.Pack {
			continue
		}
		if input.Tag != "" && !hasTag(ex, input.Tag) {
			continue
		}
		out.Exercises = append(out.Exercises, ExerciseSummary{
			ID:         ex.ID,
			Title:      ex.Title,
			Type:       ex.Type,
			Difficulty: ex.Difficulty,
			Tags:       ex.Tags,
		})
	}
	return out, nil
}

func (s *Server) handleGetExercise(ctx context.Context, input GetExerciseInput) (GetExerciseOutput, error) {
	ex, err := s.lookup(input.ExerciseID)
	if err != nil {
		return GetExerciseOutput{}, err
	}

	out := GetExerciseOutput{
		ID:           ex.ID,
		Title:        ex.Title,
		Description:  ex.Description,
		Type:         ex.Type,
		Difficulty:   ex.Difficulty,
		StarterCode:  ex.StarterCode,
		ProvidedHTML: ex.ProvidedHTML,
	}
	for _, tc := range ex.TestCases {
		out.Tests = append(out.Tests, tc.Description)
	}
	if next, err := s.registry.GetNextExercise(ex.ID); err == nil && next != nil {
		out.NextID = next.ID
	}
	return out, nil
}

func (s *Server) handleRun(ctx context.Context, input RunInput) (RunOutput, error) {
	ex, err := s.lookup(input.ExerciseID)
	if err != nil {
		return RunOutput{}, err
	}
	if s.runner == nil {
		return RunOutput{}, fmt.Errorf("runner not configured")
	}

	run, err := s.runner.Run(ctx, runner.RunRequest{
		StudentID: input.StudentID,
		Exercise:  ex,
		Code:      input.Code,
	})
	if err != nil {
		return RunOutput{}, fmt.Errorf("run failed: %w", err)
	}

	return RunOutput{
		RunID:   run.ID.String(),
		Status:  run.Status,
		Engine:  run.Engine,
		Passed:  run.Success(),
		Error:   run.Outcome.Error,
		Results: run.Outcome.Results,
		Summary: summarize(run.Outcome),
	}, nil
}

func (s *Server) handleVerify(ctx context.Context, input VerifyInput) (VerifyOutput, error) {
	if s.runner == nil || s.registry == nil {
		return VerifyOutput{}, fmt.Errorf("runner not configured")
	}

	exercises := s.registry.ListExercises()
	if input.ExerciseID != "" {
		ex, err := s.lookup(input.ExerciseID)
		if err != nil {
			return VerifyOutput{}, err
		}
		exercises = []*domain.Exercise{ex}
	}

	report, err := s.runner.VerifyAll(ctx, exercises)
	if err != nil {
		return VerifyOutput{}, fmt.Errorf("verify: %w", err)
	}

	out := VerifyOutput{Total: report.Total, Passed: report.Passed, Failed: report.Failed}
	for _, v := range report.Results {
		if v.Passed {
			continue
		}
		reason := v.Problem
		if reason == "" && v.Outcome.Error != "" {
			reason = v.Outcome.Error
		}
		if reason == "" {
			reason = "failing: " + strings.Join(v.Failures(), "; ")
		}
		out.Failures = append(out.Failures, v.ExerciseID+": "+reason)
	}
	return out, nil
}

func (s *Server) handleProgress(ctx context.Context, input ProgressInput) (ProgressOutput, error) {
	if input.StudentID == "" {
		return ProgressOutput{}, fmt.Errorf("%w: student_id is required", domain.ErrInvalidInput)
	}
	if s.runner == nil {
		return ProgressOutput{}, fmt.Errorf("runner not configured")
	}

	progress, err := s.runner.Progress(ctx, input.StudentID)
	if err != nil {
		return ProgressOutput{}, fmt.Errorf("load progress: %w", err)
	}

	out := ProgressOutput{StudentID: input.StudentID, Progress: progress}
	for _, p := range progress {
		if p.Completed {
			out.Completed++
		}
	}
	return out, nil
}

func (s *Server) lookup(id string) (*domain.Exercise, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: exercise_id is required", domain.ErrInvalidInput)
	}
	if s.registry == nil {
		return nil, fmt.Errorf("no exercise catalog loaded")
	}
	return s.registry.GetExercise(id)
}

// summarize renders an outcome as one line per test.
func summarize(o domain.Outcome) string {
	if o.IsError() {
		return "Error: " + o.Error
	}
	lines := []string{fmt.Sprintf("%d/%d tests passed", o.Passed(), len(o.Results))}
	for _, r := range o.Results {
		mark := "✓"
		if !r.Pass {
			mark = "✗"
		}
		lines = append(lines, mark+" "+r.Description)
	}
	return strings.Join(lines, "\n")
}

func hasTag(ex *domain.Exercise, tag string) bool {
	for _, t := range ex.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
