package local

import (
	"context"
	"errors"
	"path"
	"sort"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/google/uuid"
)

const (
	runsCollection     = "runs"
	progressCollection = "progress"
)

// RunStore keeps one JSON file per run.
type RunStore struct {
	store *Store
}

// NewRunStore creates a run store over s.
func NewRunStore(s *Store) *RunStore {
	return &RunStore{store: s}
}

// SaveRun writes or replaces a run.
func (r *RunStore) SaveRun(ctx context.Context, run *domain.Run) error {
	return r.store.Save(runsCollection, run.ID.String(), run)
}

// GetRun reads a run by id.
func (r *RunStore) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	var run domain.Run
	if err := r.store.Load(runsCollection, id.String(), &run); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRuns scans every stored run. Fine for a single learner's history;
// use the sqlite store for anything larger.
func (r *RunStore) ListRuns(ctx context.Context, studentID, exerciseID string, limit int) ([]*domain.Run, error) {
	ids, err := r.store.List(runsCollection)
	if err != nil {
		return nil, err
	}

	runs := []*domain.Run{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var run domain.Run
		if err := r.store.Load(runsCollection, id, &run); err != nil {
			continue
		}
		if run.StudentID != studentID || (exerciseID != "" && run.ExerciseID != exerciseID) {
			continue
		}
		runs = append(runs, &run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ProgressStore keeps progress under progress/<student>/<exercise>.json.
type ProgressStore struct {
	store *Store
}

// NewProgressStore creates a progress store over s.
func NewProgressStore(s *Store) *ProgressStore {
	return &ProgressStore{store: s}
}

func studentCollection(studentID string) string {
	return path.Join(progressCollection, key(studentID))
}

// GetProgress reads one progress record.
func (p *ProgressStore) GetProgress(ctx context.Context, studentID, exerciseID string) (*domain.Progress, error) {
	var progress domain.Progress
	if err := p.store.Load(studentCollection(studentID), exerciseID, &progress); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, err
	}
	return &progress, nil
}

// SaveProgress writes or replaces a progress record.
func (p *ProgressStore) SaveProgress(ctx context.Context, progress *domain.Progress) error {
	return p.store.Save(studentCollection(progress.StudentID), progress.ExerciseID, progress)
}

// ListProgress returns a student's progress ordered by exercise id.
func (p *ProgressStore) ListProgress(ctx context.Context, studentID string) ([]*domain.Progress, error) {
	ids, err := p.store.List(studentCollection(studentID))
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	list := make([]*domain.Progress, 0, len(ids))
	for _, id := range ids {
		progress, err := p.GetProgress(ctx, studentID, id)
		if err != nil {
			return nil, err
		}
		list = append(list, progress)
	}
	return list, nil
}
