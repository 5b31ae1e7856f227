package queue

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/runner"
)

// ExerciseLookup resolves an exercise id from the worker's catalog.
type ExerciseLookup func(id string) (*domain.Exercise, error)

// NewRunHandler returns a JobHandler that grades jobs with svc. The job
// id doubles as the run id so results can be found through either API.
func NewRunHandler(svc *runner.Service, lookup ExerciseLookup) JobHandler {
	return func(ctx context.Context, job *RunJob) (*RunResult, error) {
		ex := job.Exercise
		if ex == nil {
			if lookup == nil {
				return nil, fmt.Errorf("%w: %s", domain.ErrExerciseNotFound, job.ExerciseID)
			}
			found, err := lookup(job.ExerciseID)
			if err != nil {
				return nil, err
			}
			ex = found
		}

		run, err := svc.Run(ctx, runner.RunRequest{
			RunID:     job.ID,
			StudentID: job.StudentID,
			Exercise:  ex,
			Code:      job.Code,
		})
		if err != nil {
			return nil, err
		}

		outcome := run.Outcome
		return &RunResult{
			JobID:   job.ID,
			Status:  run.Status,
			Outcome: &outcome,
		}, nil
	}
}
