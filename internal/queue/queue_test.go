package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/markup"
	"github.com/felixgeelhaar/verdict/internal/queue"
	"github.com/felixgeelhaar/verdict/internal/runner"
	"github.com/felixgeelhaar/verdict/internal/sandbox"
	"github.com/google/uuid"
)

type stubFunction struct {
	outcome domain.Outcome
	jobs    []sandbox.Job
}

func (s *stubFunction) Run(ctx context.Context, job sandbox.Job) domain.Outcome {
	s.jobs = append(s.jobs, job)
	return s.outcome
}

type stubMarkup struct{}

func (stubMarkup) Evaluate(ctx context.Context, in markup.Input) domain.Outcome {
	return domain.Completed(nil)
}

var sumExercise = &domain.Exercise{
	ID:            "sum",
	Title:         "Sum",
	Type:          domain.ExerciseTypeJS,
	ExecutionMode: domain.ExecutionModeWorker,
	Solution:      "function sum(a, b) { return a + b; }",
	TestRunner: `(code) => {
		const sum = new Function(code + "; return sum;")();
		return [{ pass: sum(1, 2) === 3, description: "adds", got: sum(1, 2) }];
	}`,
}

func newService(fn runner.FunctionRunner) *runner.Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return runner.NewService(runner.DefaultConfig(), fn, stubMarkup{}, runner.WithLogger(logger))
}

func TestRunJob_JSONCarriesInlineExercise(t *testing.T) {
	job := queue.NewInlineRunJob("s1", sumExercise, "function sum(a, b) { return a + b; }")

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded queue.RunJob
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.ID != job.ID {
		t.Errorf("ID = %v; want %v", decoded.ID, job.ID)
	}
	if decoded.ExerciseID != "sum" {
		t.Errorf("ExerciseID = %q; want %q", decoded.ExerciseID, "sum")
	}
	if decoded.Exercise == nil || decoded.Exercise.TestRunner != sumExercise.TestRunner {
		t.Errorf("Exercise = %+v; want inline descriptor", decoded.Exercise)
	}
}

func TestRunJob_CatalogJobOmitsExercise(t *testing.T) {
	data, err := json.Marshal(queue.NewRunJob("s1", "sum", "code"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := raw["exercise"]; ok {
		t.Errorf("catalog job serialized an exercise: %s", data)
	}
}

func TestRunResult_OutcomeShape(t *testing.T) {
	outcome := domain.Failed("Test timed out after 5000ms")
	result := queue.RunResult{JobID: uuid.New(), Status: domain.RunStatusTimeout, Outcome: &outcome}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded queue.RunResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Outcome == nil || decoded.Outcome.Error != outcome.Error {
		t.Errorf("Outcome = %+v; want %+v", decoded.Outcome, outcome)
	}
}

func TestRunHandler_InlineExercise(t *testing.T) {
	fn := &stubFunction{outcome: domain.Completed([]domain.TestResult{{Pass: true, Description: "adds"}})}
	handler := queue.NewRunHandler(newService(fn), nil)

	job := queue.NewInlineRunJob("s1", sumExercise, sumExercise.Solution)
	result, err := handler(context.Background(), job)
	if err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	if result.JobID != job.ID {
		t.Errorf("JobID = %v; want %v", result.JobID, job.ID)
	}
	if result.Status != domain.RunStatusCompleted {
		t.Errorf("Status = %q; want %q", result.Status, domain.RunStatusCompleted)
	}
	if result.Outcome == nil || !result.Outcome.AllPassed() {
		t.Errorf("Outcome = %+v; want all passed", result.Outcome)
	}
	if len(fn.jobs) != 1 || fn.jobs[0].Code != sumExercise.Solution {
		t.Errorf("sandbox jobs = %+v", fn.jobs)
	}
}

func TestRunHandler_CatalogLookup(t *testing.T) {
	fn := &stubFunction{outcome: domain.Completed([]domain.TestResult{{Pass: false, Description: "adds"}})}
	lookup := func(id string) (*domain.Exercise, error) {
		if id == sumExercise.ID {
			return sumExercise, nil
		}
		return nil, domain.ErrExerciseNotFound
	}
	handler := queue.NewRunHandler(newService(fn), lookup)

	result, err := handler(context.Background(), queue.NewRunJob("s1", "sum", "function sum() {}"))
	if err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	if result.Outcome == nil || result.Outcome.Failures() != 1 {
		t.Errorf("Outcome = %+v; want one failure", result.Outcome)
	}

	_, err = handler(context.Background(), queue.NewRunJob("s1", "nope", ""))
	if !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Errorf("handler(unknown) error = %v; want ErrExerciseNotFound", err)
	}
}

func TestRunHandler_NoCatalog(t *testing.T) {
	handler := queue.NewRunHandler(newService(&stubFunction{}), nil)

	_, err := handler(context.Background(), queue.NewRunJob("s1", "sum", ""))
	if !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Errorf("handler() error = %v; want ErrExerciseNotFound", err)
	}
}
