package exercise

import (
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

// Registry provides access to exercises and packs
type Registry struct {
	loader    *Loader
	mu        sync.RWMutex
	packs     map[string]*domain.ExercisePack
	exercises map[string]*domain.Exercise
	// loadOrder keeps every loaded exercise, duplicates included, so
	// validation can see ids that collided in the map.
	loadOrder []*domain.Exercise
	loaded    bool
}

// NewRegistry creates a new exercise registry
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		loader:    loader,
		packs:     make(map[string]*domain.ExercisePack),
		exercises: make(map[string]*domain.Exercise),
	}
}

// Load loads all packs, documents and exercises into memory
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	packs, err := r.loader.LoadAllPacks()
	if err != nil {
		return fmt.Errorf("load packs: %w", err)
	}

	for _, pack := range packs {
		r.packs[pack.ID] = pack

		exercises, err := r.loader.LoadPackExercises(pack.ID)
		if err != nil {
			return fmt.Errorf("load exercises for pack %s: %w", pack.ID, err)
		}
		r.add(exercises)
	}

	docPacks, docExercises, err := r.loader.LoadDocuments()
	if err != nil {
		return err
	}
	for _, pack := range docPacks {
		r.packs[pack.ID] = pack
	}
	r.add(docExercises)

	r.loaded = true
	return nil
}

func (r *Registry) add(exercises []*domain.Exercise) {
	for _, ex := range exercises {
		if _, dup := r.exercises[ex.ID]; !dup {
			r.exercises[ex.ID] = ex
		}
		r.loadOrder = append(r.loadOrder, ex)
	}
}

// Reload reloads all exercises (useful for development)
func (r *Registry) Reload() error {
	r.mu.Lock()
	r.packs = make(map[string]*domain.ExercisePack)
	r.exercises = make(map[string]*domain.Exercise)
	r.loadOrder = nil
	r.loaded = false
	r.mu.Unlock()

	return r.Load()
}

// Loaded reports whether Load has completed successfully.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// GetPack returns a pack by ID
func (r *Registry) GetPack(id string) (*domain.ExercisePack, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pack, ok := r.packs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrExercisePackNotFound, id)
	}
	return pack, nil
}

// GetExercise returns an exercise by ID
func (r *Registry) GetExercise(id string) (*domain.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exercise, ok := r.exercises[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrExerciseNotFound, id)
	}
	return exercise, nil
}

// ListPacks returns all packs sorted by id
func (r *Registry) ListPacks() []*domain.ExercisePack {
	r.mu.RLock()
	defer r.mu.RUnlock()

	packs := make([]*domain.ExercisePack, 0, len(r.packs))
	for _, pack := range r.packs {
		packs = append(packs, pack)
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].ID < packs[j].ID })
	return packs
}

// ListExercises returns all exercises sorted by id
func (r *Registry) ListExercises() []*domain.Exercise {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sorted(r.exercises, func(*domain.Exercise) bool { return true })
}

// ListByType returns the exercises of one type sorted by id
func (r *Registry) ListByType(t domain.ExerciseType) []*domain.Exercise {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sorted(r.exercises, func(ex *domain.Exercise) bool { return ex.Type == t })
}

// GetExercisesByTag returns exercises that have a specific tag
func (r *Registry) GetExercisesByTag(tag string) []*domain.Exercise {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sorted(r.exercises, func(ex *domain.Exercise) bool {
		for _, t := range ex.Tags {
			if t == tag {
				return true
			}
		}
		return false
	})
}

func sorted(all map[string]*domain.Exercise, keep func(*domain.Exercise) bool) []*domain.Exercise {
	exercises := make([]*domain.Exercise, 0, len(all))
	for _, ex := range all {
		if keep(ex) {
			exercises = append(exercises, ex)
		}
	}
	sort.Slice(exercises, func(i, j int) bool { return exercises[i].ID < exercises[j].ID })
	return exercises
}

// ListPackExercises returns all exercises for a pack in pack order
func (r *Registry) ListPackExercises(packID string) ([]*domain.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pack, ok := r.packs[packID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrExercisePackNotFound, packID)
	}

	exercises := make([]*domain.Exercise, 0, len(pack.ExerciseIDs))
	for _, exID := range pack.ExerciseIDs {
		if ex, ok := r.exercises[exID]; ok {
			exercises = append(exercises, ex)
		}
	}
	return exercises, nil
}

// GetNextExercise returns the exercise after currentExerciseID in its pack.
// Returns nil if the current exercise is the last one.
func (r *Registry) GetNextExercise(currentExerciseID string) (*domain.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ex, ok := r.exercises[currentExerciseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrExerciseNotFound, currentExerciseID)
	}
	pack, ok := r.packs[ex.PackID]
	if !ok {
		return nil, nil
	}

	for i, exID := range pack.ExerciseIDs {
		if exID != currentExerciseID {
			continue
		}
		if i+1 < len(pack.ExerciseIDs) {
			if next, ok := r.exercises[pack.ExerciseIDs[i+1]]; ok {
				return next, nil
			}
		}
		return nil, nil
	}
	return nil, nil
}

// Validate checks every loaded exercise, duplicates included.
func (r *Registry) Validate() []Problem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Validate(r.loadOrder)
}

// Stats returns statistics about loaded exercises
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		PackCount:     len(r.packs),
		ExerciseCount: len(r.exercises),
		ByDifficulty:  make(map[string]int),
		ByType:        make(map[string]int),
	}

	for _, ex := range r.exercises {
		if ex.Difficulty != "" {
			stats.ByDifficulty[string(ex.Difficulty)]++
		}
		stats.ByType[string(ex.Type)]++
	}

	return stats
}

// RegistryStats holds statistics about the registry
type RegistryStats struct {
	PackCount     int            `json:"pack_count"`
	ExerciseCount int            `json:"exercise_count"`
	ByDifficulty  map[string]int `json:"by_difficulty"`
	ByType        map[string]int `json:"by_type"`
}
