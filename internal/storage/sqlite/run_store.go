package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/google/uuid"
)

// DefaultListLimit caps ListRuns when the caller passes no limit.
const DefaultListLimit = 50

// RunStore implements run persistence backed by SQLite.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new SQLite-backed run store.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

const runColumns = `id, student_id, exercise_id, engine, status, code, outcome,
	duration_ms, started_at, finished_at, created_at`

// SaveRun persists a run (insert or update).
func (s *RunStore) SaveRun(ctx context.Context, run *domain.Run) error {
	outcome, err := json.Marshal(run.Outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, outcome=excluded.outcome,
			duration_ms=excluded.duration_ms, finished_at=excluded.finished_at`,
		run.ID.String(), run.StudentID, run.ExerciseID, string(run.Engine),
		string(run.Status), run.Code, string(outcome),
		run.Duration.Milliseconds(), nullTime(run.StartedAt), nullTime(run.FinishedAt),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	return run, err
}

// ListRuns returns a student's runs, newest first. An empty exerciseID
// matches every exercise.
func (s *RunStore) ListRuns(ctx context.Context, studentID, exerciseID string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE student_id = ? AND (? = '' OR exercise_id = ?)
		ORDER BY created_at DESC
		LIMIT ?`, studentID, exerciseID, exerciseID, limit)
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
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM runs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan run count: %w", err)
		}
		counts[domain.RunStatus(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var (
		run               domain.Run
		id                string
		engine, status    string
		outcome           string
		durationMs        int64
		started, finished sql.NullTime
	)
	if err := row.Scan(&id, &run.StudentID, &run.ExerciseID, &engine, &status, &run.Code,
		&outcome, &durationMs, &started, &finished, &run.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Engine = domain.Engine(engine)
	run.Status = domain.RunStatus(status)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.StartedAt = timePtr(started)
	run.FinishedAt = timePtr(finished)
	if err := json.Unmarshal([]byte(outcome), &run.Outcome); err != nil {
		return nil, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return &run, nil
}
