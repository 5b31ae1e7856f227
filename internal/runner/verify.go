package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

// Verification is the result of running an exercise's reference solution.
type Verification struct {
	ExerciseID string         `json:"exercise_id"`
	Engine     domain.Engine  `json:"engine,omitempty"`
	Passed     bool           `json:"passed"`
	Outcome    domain.Outcome `json:"outcome"`
	// Problem is set when the exercise could not be run at all.
	Problem  string        `json:"problem,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failures lists the descriptions of failing results.
func (v Verification) Failures() []string {
	var out []string
	for _, r := range v.Outcome.Results {
		if !r.Pass {
			out = append(out, r.Description)
		}
	}
	return out
}

// VerifyReport aggregates verifications.
type VerifyReport struct {
	Total   int            `json:"total"`
	Passed  int            `json:"passed"`
	Failed  int            `json:"failed"`
	Results []Verification `json:"results"`
}

// OK reports whether every exercise verified.
func (r *VerifyReport) OK() bool {
	return r.Failed == 0
}

// Verify runs the reference solution of ex and checks that every result
// passes. Nothing is recorded.
func (s *Service) Verify(ctx context.Context, ex *domain.Exercise) (Verification, error) {
	if ex == nil {
		return Verification{}, fmt.Errorf("%w: exercise is required", domain.ErrInvalidInput)
	}
	v := Verification{ExerciseID: ex.ID}
	if ex.Solution == "" {
		return v, fmt.Errorf("%w: %s has no reference solution", domain.ErrInvalidExercise, ex.ID)
	}

	plan, err := Select(ex, ex.Solution)
	if err != nil {
		return v, err
	}
	v.Engine = plan.Engine

	start := time.Now()
	outcome, err := s.execute(ctx, plan)
	if err != nil {
		return v, err
	}
	v.Duration = time.Since(start)
	v.Outcome = outcome
	v.Passed = outcome.AllPassed()

	if !v.Passed {
		s.logger.Warn("reference solution failed",
			"exercise_id", ex.ID,
			"engine", plan.Engine,
			"error", outcome.Error,
			"failed", outcome.Failures())
	}
	return v, nil
}

// VerifyAll verifies every exercise in order. Exercises that cannot be run
// count as failed with Problem set.
func (s *Service) VerifyAll(ctx context.Context, exercises []*domain.Exercise) (*VerifyReport, error) {
	report := &VerifyReport{Results: make([]Verification, 0, len(exercises))}
	for _, ex := range exercises {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		v, err := s.Verify(ctx, ex)
		if err != nil {
			v.Problem = err.Error()
			v.Passed = false
		}
		report.Total++
		if v.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, v)
	}
	return report, nil
}
