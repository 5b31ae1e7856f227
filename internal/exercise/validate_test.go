package exercise_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/exercise"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		ex     *domain.Exercise
		fields []string
	}{
		{
			name: "valid js",
			ex:   &domain.Exercise{ID: "a", Type: domain.ExerciseTypeJS, TestRunner: "() => []"},
		},
		{
			name:   "unknown type",
			ex:     &domain.Exercise{ID: "a", Type: "python"},
			fields: []string{"type"},
		},
		{
			name:   "js without runner and bad mode",
			ex:     &domain.Exercise{ID: "a", Type: domain.ExerciseTypeJS, ExecutionMode: "thread"},
			fields: []string{"testRunner", "executionMode"},
		},
		{
			name:   "css without html or cases",
			ex:     &domain.Exercise{ID: "a", Type: domain.ExerciseTypeCSS},
			fields: []string{"providedHtml", "testCases"},
		},
		{
			name: "bad assertions",
			ex: &domain.Exercise{ID: "a", Type: domain.ExerciseTypeHTML, TestCases: []domain.TestAssertion{
				{Selector: "p", Assertion: "glows"},
				{Selector: "p", Assertion: domain.AssertCountAtLeast, Value: "many"},
				{Selector: "p[", Assertion: domain.AssertExists},
				{Assertion: domain.AssertEquals, Value: "x"},
				{Assertion: domain.AssertSourceContains, Value: "x", Source: "js"},
			}},
			fields: []string{"testCases[0]", "testCases[1]", "testCases[2]", "testCases[3]", "testCases[4]"},
		},
		{
			name: "valid html-css",
			ex: &domain.Exercise{ID: "a", Type: domain.ExerciseTypeHTMLCSS, TestCases: []domain.TestAssertion{
				{Query: ".card", Assertion: domain.AssertExists},
				{Selector: "li", Assertion: domain.AssertCountAtLeast, Value: float64(3)},
				{Assertion: domain.AssertSourceMatch, Value: "(unclosed", Source: "css"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := exercise.Validate([]*domain.Exercise{tt.ex})
			if len(problems) != len(tt.fields) {
				t.Fatalf("Validate() = %v; want problems on %v", problems, tt.fields)
			}
			for i, p := range problems {
				if p.Field != tt.fields[i] {
					t.Errorf("problem[%d].Field = %q; want %q", i, p.Field, tt.fields[i])
				}
				if p.ExerciseID != "a" {
					t.Errorf("problem[%d].ExerciseID = %q; want a", i, p.ExerciseID)
				}
			}
		})
	}
}

func TestValidate_ReportsAllExercises(t *testing.T) {
	problems := exercise.Validate([]*domain.Exercise{
		{ID: "ok", Type: domain.ExerciseTypeJS, TestRunner: "() => []"},
		nil,
		{Type: domain.ExerciseTypeJS, TestRunner: "() => []"},
		{ID: "ok", Type: domain.ExerciseTypeJS, TestRunner: "() => []"},
	})

	want := []string{"#1: exercise is null", "#2: id: required", "ok: id: duplicate id"}
	if len(problems) != len(want) {
		t.Fatalf("Validate() = %v; want %v", problems, want)
	}
	for i := range want {
		if got := problems[i].String(); got != want[i] {
			t.Errorf("problem[%d] = %q; want %q", i, got, want[i])
		}
	}
}

func TestErr(t *testing.T) {
	if err := exercise.Err(nil); err != nil {
		t.Errorf("Err(nil) = %v; want nil", err)
	}

	err := exercise.Err([]exercise.Problem{{ExerciseID: "a", Field: "type", Message: "bad"}})
	if !errors.Is(err, domain.ErrInvalidExercise) {
		t.Errorf("Err() = %v; want ErrInvalidExercise", err)
	}
	if !strings.Contains(err.Error(), "a: type: bad") {
		t.Errorf("Err() = %q; want problem text", err)
	}
}
