package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

// ProgressStore implements learner progress persistence backed by SQLite.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a new SQLite-backed progress store.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

const progressColumns = `student_id, exercise_id, attempts, completed, saved_code,
	last_summary, completed_at, updated_at`

// SaveProgress upserts a progress record.
func (s *ProgressStore) SaveProgress(ctx context.Context, p *domain.Progress) error {
	summary, err := json.Marshal(p.LastSummary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(student_id, exercise_id) DO UPDATE SET
			attempts=excluded.attempts, completed=excluded.completed,
			saved_code=excluded.saved_code, last_summary=excluded.last_summary,
			completed_at=excluded.completed_at, updated_at=excluded.updated_at`,
		p.StudentID, p.ExerciseID, p.Attempts, p.Completed, p.SavedCode,
		string(summary), nullTime(p.CompletedAt), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// GetProgress retrieves one student's progress on one exercise.
func (s *ProgressStore) GetProgress(ctx context.Context, studentID, exerciseID string) (*domain.Progress, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM progress
		WHERE student_id = ? AND exercise_id = ?`, studentID, exerciseID)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProgressNotFound
	}
	return p, err
}

// ListProgress returns every progress record of a student, by exercise id.
func (s *ProgressStore) ListProgress(ctx context.Context, studentID string) ([]*domain.Progress, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+progressColumns+` FROM progress
		WHERE student_id = ? ORDER BY exercise_id`, studentID)
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

func scanProgress(row scanner) (*domain.Progress, error) {
	var (
		p         domain.Progress
		summary   string
		completed sql.NullTime
	)
	err := row.Scan(&p.StudentID, &p.ExerciseID, &p.Attempts, &p.Completed, &p.SavedCode,
		&summary, &completed, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	p.CompletedAt = timePtr(completed)
	if err := json.Unmarshal([]byte(summary), &p.LastSummary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &p, nil
}
