package exercise

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"gopkg.in/yaml.v3"
)

// PackFile represents the YAML structure for an exercise pack
type PackFile struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Exercises   []string `yaml:"exercises"`
}

// Document is the content store's JSON exercise document.
type Document struct {
	Exercises []*domain.Exercise `json:"exercises"`
}

// Loader handles loading exercises from YAML packs and JSON documents
type Loader struct {
	fsys fs.FS
}

// NewLoader creates a new exercise loader rooted at basePath
func NewLoader(basePath string) *Loader {
	return &Loader{fsys: os.DirFS(basePath)}
}

// NewFSLoader creates a loader over an arbitrary file system.
func NewFSLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// LoadPack loads an exercise pack from a directory
func (l *Loader) LoadPack(packID string) (*domain.ExercisePack, error) {
	if !validSlug(packID) {
		return nil, fmt.Errorf("%w: invalid pack id %q", domain.ErrInvalidInput, packID)
	}

	data, err := fs.ReadFile(l.fsys, packID+"/pack.yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrExercisePackNotFound, packID)
	}
	if err != nil {
		return nil, fmt.Errorf("read pack file: %w", err)
	}

	var packFile PackFile
	if err := yaml.Unmarshal(data, &packFile); err != nil {
		return nil, fmt.Errorf("parse pack file: %w", err)
	}

	pack := &domain.ExercisePack{
		ID:          packID,
		Name:        packFile.Name,
		Version:     packFile.Version,
		Description: packFile.Description,
		ExerciseIDs: make([]string, len(packFile.Exercises)),
	}

	for i, ex := range packFile.Exercises {
		pack.ExerciseIDs[i] = fmt.Sprintf("%s/%s", packID, ex)
	}

	return pack, nil
}

// LoadExercise loads a single exercise from a YAML file. The exercise id
// is the pack id joined with the slug.
func (l *Loader) LoadExercise(packID, slug string) (*domain.Exercise, error) {
	if !validSlug(packID) || !validSlug(slug) {
		return nil, fmt.Errorf("%w: invalid exercise slug %q", domain.ErrInvalidInput, slug)
	}

	data, err := fs.ReadFile(l.fsys, packID+"/"+slug+".yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrExerciseNotFound, packID, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("read exercise file: %w", err)
	}

	var ex domain.Exercise
	if err := yaml.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("parse exercise file %s: %w", slug, err)
	}
	ex.ID = packID + "/" + slug
	ex.PackID = packID

	return &ex, nil
}

// LoadAllPacks loads all exercise packs from the base directory
func (l *Loader) LoadAllPacks() ([]*domain.ExercisePack, error) {
	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read exercises directory: %w", err)
	}

	var packs []*domain.ExercisePack
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, err := fs.Stat(l.fsys, entry.Name()+"/pack.yaml"); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		pack, err := l.LoadPack(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("load pack %s: %w", entry.Name(), err)
		}
		packs = append(packs, pack)
	}

	return packs, nil
}

// LoadPackExercises loads all exercises for a pack
func (l *Loader) LoadPackExercises(packID string) ([]*domain.Exercise, error) {
	pack, err := l.LoadPack(packID)
	if err != nil {
		return nil, err
	}

	exercises := make([]*domain.Exercise, 0, len(pack.ExerciseIDs))
	for _, exID := range pack.ExerciseIDs {
		slug := strings.TrimPrefix(exID, packID+"/")

		exercise, err := l.LoadExercise(packID, slug)
		if err != nil {
			return nil, fmt.Errorf("load exercise %s: %w", exID, err)
		}
		exercises = append(exercises, exercise)
	}

	return exercises, nil
}

// LoadDocuments loads every top-level *.json document. Each document
// becomes a pack named after the file; exercise ids are kept as written.
func (l *Loader) LoadDocuments() ([]*domain.ExercisePack, []*domain.Exercise, error) {
	names, err := fs.Glob(l.fsys, "*.json")
	if err != nil {
		return nil, nil, fmt.Errorf("list documents: %w", err)
	}

	var packs []*domain.ExercisePack
	var all []*domain.Exercise
	for _, name := range names {
		f, err := l.fsys.Open(name)
		if err != nil {
			return nil, nil, fmt.Errorf("open document %s: %w", name, err)
		}
		exercises, err := ParseDocument(f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("load document %s: %w", name, err)
		}

		pack := &domain.ExercisePack{ID: strings.TrimSuffix(name, filepath.Ext(name)), Name: name}
		for _, ex := range exercises {
			ex.PackID = pack.ID
			pack.ExerciseIDs = append(pack.ExerciseIDs, ex.ID)
		}
		packs = append(packs, pack)
		all = append(all, exercises...)
	}
	return packs, all, nil
}

// ParseDocument decodes a {"exercises": [...]} document.
func ParseDocument(r io.Reader) ([]*domain.Exercise, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	for i, ex := range doc.Exercises {
		if ex == nil {
			return nil, fmt.Errorf("%w: exercise %d is null", domain.ErrInvalidExercise, i)
		}
	}
	return doc.Exercises, nil
}

// validSlug accepts slash-separated names that stay inside the root.
func validSlug(s string) bool {
	return s != "" && fs.ValidPath(s) && !strings.HasPrefix(s, ".")
}
