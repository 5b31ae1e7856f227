package exercise_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/exercise"
)

func setupRegistry(t *testing.T) *exercise.Registry {
	t.Helper()

	loader := exercise.NewLoader("../../exercises")
	registry := exercise.NewRegistry(loader)

	if err := registry.Load(); err != nil {
		t.Fatalf("Failed to load exercises: %v", err)
	}

	return registry
}

func TestRegistry_Load(t *testing.T) {
	registry := setupRegistry(t)

	if !registry.Loaded() {
		t.Error("Loaded() = false after Load")
	}
	stats := registry.Stats()
	if stats.PackCount != 2 {
		t.Errorf("PackCount = %d; want 2", stats.PackCount)
	}
	if stats.ExerciseCount != 7 {
		t.Errorf("ExerciseCount = %d; want 7", stats.ExerciseCount)
	}
	if stats.ByType["js"] != 4 {
		t.Errorf("ByType[js] = %d; want 4", stats.ByType["js"])
	}
}

func TestRegistry_ShippedCatalogIsValid(t *testing.T) {
	registry := setupRegistry(t)

	for _, p := range registry.Validate() {
		t.Errorf("problem: %s", p)
	}
}

func TestRegistry_GetExercise(t *testing.T) {
	registry := setupRegistry(t)

	ex, err := registry.GetExercise("web-basics/css/box")
	if err != nil {
		t.Fatalf("GetExercise() error = %v", err)
	}
	if ex.Type != domain.ExerciseTypeCSS || ex.PackID != "web-basics" {
		t.Errorf("exercise = %+v", ex)
	}

	greet, err := registry.GetExercise("greet")
	if err != nil {
		t.Fatalf("GetExercise(greet) error = %v", err)
	}
	if greet.PackID != "extras" {
		t.Errorf("greet.PackID = %q; want extras", greet.PackID)
	}

	if _, err := registry.GetExercise("nope"); !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Errorf("GetExercise(nope) error = %v; want ErrExerciseNotFound", err)
	}
}

func TestRegistry_ListPacks(t *testing.T) {
	registry := setupRegistry(t)

	packs := registry.ListPacks()
	if len(packs) != 2 || packs[0].ID != "extras" || packs[1].ID != "web-basics" {
		t.Fatalf("ListPacks() = %+v; want extras, web-basics", packs)
	}

	if _, err := registry.GetPack("missing"); !errors.Is(err, domain.ErrExercisePackNotFound) {
		t.Errorf("GetPack(missing) error = %v; want ErrExercisePackNotFound", err)
	}
}

func TestRegistry_ListByType(t *testing.T) {
	registry := setupRegistry(t)

	tests := []struct {
		typ  domain.ExerciseType
		want int
	}{
		{domain.ExerciseTypeJS, 4},
		{domain.ExerciseTypeCSS, 1},
		{domain.ExerciseTypeHTML, 1},
		{domain.ExerciseTypeHTMLCSS, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			got := registry.ListByType(tt.typ)
			if len(got) != tt.want {
				t.Errorf("ListByType(%q) = %d exercises; want %d", tt.typ, len(got), tt.want)
			}
			for _, ex := range got {
				if ex.Type != tt.typ {
					t.Errorf("exercise %s has type %q", ex.ID, ex.Type)
				}
			}
		})
	}
}

func TestRegistry_ListExercisesSorted(t *testing.T) {
	registry := setupRegistry(t)

	list := registry.ListExercises()
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Errorf("ListExercises not sorted: %q before %q", list[i-1].ID, list[i].ID)
		}
	}
}

func TestRegistry_ListPackExercisesInPackOrder(t *testing.T) {
	registry := setupRegistry(t)

	list, err := registry.ListPackExercises("web-basics")
	if err != nil {
		t.Fatalf("ListPackExercises() error = %v", err)
	}
	if len(list) != 6 || list[0].ID != "web-basics/js/sum" || list[5].ID != "web-basics/css/card" {
		t.Errorf("ListPackExercises() order wrong: %d exercises", len(list))
	}
}

func TestRegistry_GetNextExercise(t *testing.T) {
	registry := setupRegistry(t)

	next, err := registry.GetNextExercise("web-basics/js/sum")
	if err != nil {
		t.Fatalf("GetNextExercise() error = %v", err)
	}
	if next == nil || next.ID != "web-basics/js/fizzbuzz" {
		t.Errorf("GetNextExercise(sum) = %v; want fizzbuzz", next)
	}

	last, err := registry.GetNextExercise("web-basics/css/card")
	if err != nil || last != nil {
		t.Errorf("GetNextExercise(last) = %v, %v; want nil, nil", last, err)
	}

	if _, err := registry.GetNextExercise("nope"); !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Errorf("GetNextExercise(nope) error = %v; want ErrExerciseNotFound", err)
	}
}

func TestRegistry_GetExercisesByTag(t *testing.T) {
	registry := setupRegistry(t)

	got := registry.GetExercisesByTag("dom")
	if len(got) != 1 || got[0].ID != "web-basics/dom/counter" {
		t.Errorf("GetExercisesByTag(dom) = %+v", got)
	}
}

func TestRegistry_DuplicateIDsReported(t *testing.T) {
	fsys := fstest.MapFS{
		"a.json": {Data: []byte(`{"exercises": [{"id": "x", "type": "js", "testRunner": "() => []"}]}`)},
		"b.json": {Data: []byte(`{"exercises": [{"id": "x", "type": "js", "testRunner": "() => []"}]}`)},
	}
	registry := exercise.NewRegistry(exercise.NewFSLoader(fsys))
	if err := registry.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if n := registry.Stats().ExerciseCount; n != 1 {
		t.Errorf("ExerciseCount = %d; want 1", n)
	}
	problems := registry.Validate()
	if len(problems) != 1 || problems[0].Message != "duplicate id" {
		t.Errorf("Validate() = %v; want one duplicate id problem", problems)
	}
}

func TestRegistry_Reload(t *testing.T) {
	registry := setupRegistry(t)

	if err := registry.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if n := registry.Stats().ExerciseCount; n != 7 {
		t.Errorf("ExerciseCount after Reload = %d; want 7", n)
	}
}
