package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/google/uuid"
)

// Publisher sends JSON messages to a named queue.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes run jobs to the queue
type Producer struct {
	conn    Publisher
	retrier retry.Retry[struct{}]
	logger  *slog.Logger
}

// NewProducer creates a new queue producer. Publishes are retried with
// exponential backoff while the connection recovers.
func NewProducer(conn Publisher, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		conn:   conn,
		logger: logger,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   4,
			InitialDelay:  250 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryablePublish,
		}),
	}
}

func isRetryablePublish(err error) bool {
	return err != nil &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (p *Producer) publish(ctx context.Context, queue string, data any) error {
	_, err := p.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.conn.PublishJSON(ctx, queue, data)
	})
	return err
}

// PublishRunJob publishes a grading job to the queue
func (p *Producer) PublishRunJob(ctx context.Context, job *RunJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := p.publish(ctx, RunQueueName, job); err != nil {
		return fmt.Errorf("failed to publish run job: %w", err)
	}

	p.logger.Info("published run job",
		"job_id", job.ID,
		"student_id", job.StudentID,
		"exercise_id", job.ExerciseID,
	)

	return nil
}

// PublishResult publishes a run result to the results queue
func (p *Producer) PublishResult(ctx context.Context, result *RunResult) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}

	if err := p.publish(ctx, ResultQueueName, result); err != nil {
		return fmt.Errorf("failed to publish run result: %w", err)
	}

	p.logger.Info("published run result",
		"job_id", result.JobID,
		"status", result.Status,
		"duration", result.Duration,
	)

	return nil
}

// NewRunJob creates a job for an exercise in the worker's catalog.
func NewRunJob(studentID, exerciseID, code string) *RunJob {
	return &RunJob{
		ID:         uuid.New(),
		StudentID:  studentID,
		ExerciseID: exerciseID,
		Code:       code,
		CreatedAt:  time.Now(),
	}
}

// NewInlineRunJob creates a job carrying its own exercise descriptor.
func NewInlineRunJob(studentID string, ex *domain.Exercise, code string) *RunJob {
	job := NewRunJob(studentID, ex.ID, code)
	job.Exercise = ex
	return job
}
