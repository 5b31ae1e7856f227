// Package postgres stores runs and progress in PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// DefaultListLimit caps ListRuns when the caller passes no limit.
const DefaultListLimit = 50

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables when they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// RunStore implements run persistence using PostgreSQL
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new PostgreSQL run store
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runColumns = `id, student_id, exercise_id, engine, status, code, outcome,
	duration_ms, started_at, finished_at, created_at`

// SaveRun inserts or updates a run
func (s *RunStore) SaveRun(ctx context.Context, run *domain.Run) error {
	outcome, err := json.Marshal(run.Outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, outcome = EXCLUDED.outcome,
			duration_ms = EXCLUDED.duration_ms, finished_at = EXCLUDED.finished_at
	`
	_, err = s.pool.Exec(ctx, query,
		run.ID, run.StudentID, run.ExerciseID, string(run.Engine), string(run.Status),
		run.Code, outcome, run.Duration.Milliseconds(), run.StartedAt, run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	return run, err
}

// ListRuns returns a student's runs, newest first
func (s *RunStore) ListRuns(ctx context.Context, studentID, exerciseID string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE student_id = $1 AND ($2 = '' OR exercise_id = $2)
		ORDER BY created_at DESC
		LIMIT $3`, studentID, exerciseID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []*domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountByStatus returns the number of stored runs per status.
func (s *RunStore) CountByStatus(ctx context.Context) (map[domain.RunStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RunStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan run count: %w", err)
		}
		counts[domain.RunStatus(status)] = int(n)
	}
	return counts, rows.Err()
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run            domain.Run
		engine, status string
		outcome        []byte
		durationMs     int64
	)
	err := row.Scan(&run.ID, &run.StudentID, &run.ExerciseID, &engine, &status, &run.Code,
		&outcome, &durationMs, &run.StartedAt, &run.FinishedAt, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Engine = domain.Engine(engine)
	run.Status = domain.RunStatus(status)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal(outcome, &run.Outcome); err != nil {
		return nil, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return &run, nil
}

// ProgressStore implements progress persistence using PostgreSQL
type ProgressStore struct {
	pool *pgxpool.Pool
}

// NewProgressStore creates a new PostgreSQL progress store
func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

const progressColumns = `student_id, exercise_id, attempts, completed, saved_code,
	last_summary, completed_at, updated_at`

// SaveProgress upserts a progress record
func (s *ProgressStore) SaveProgress(ctx context.Context, p *domain.Progress) error {
	summary, err := json.Marshal(p.LastSummary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	query := `
		INSERT INTO progress (` + progressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, exercise_id) DO UPDATE SET
			attempts = EXCLUDED.attempts, completed = EXCLUDED.completed,
			saved_code = EXCLUDED.saved_code, last_summary = EXCLUDED.last_summary,
			completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query,
		p.StudentID, p.ExerciseID, p.Attempts, p.Completed, p.SavedCode,
		summary, p.CompletedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// GetProgress retrieves one student's progress on one exercise
func (s *ProgressStore) GetProgress(ctx context.Context, studentID, exerciseID string) (*domain.Progress, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+progressColumns+` FROM progress
		WHERE student_id = $1 AND exercise_id = $2`, studentID, exerciseID)
	p, err := scanProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProgressNotFound
	}
	return p, err
}

// ListProgress returns every progress record of a student
func (s *ProgressStore) ListProgress(ctx context.Context, studentID string) ([]*domain.Progress, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+progressColumns+` FROM progress
		WHERE student_id = $1 ORDER BY exercise_id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	list := []*domain.Progress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanProgress(row pgx.Row) (*domain.Progress, error) {
	var p domain.Progress
	var summary []byte
	err := row.Scan(&p.StudentID, &p.ExerciseID, &p.Attempts, &p.Completed, &p.SavedCode,
		&summary, &p.CompletedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(summary, &p.LastSummary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &p, nil
}
