package exercise

import (
	"errors"
	"fmt"

	"github.com/andybalholm/cascadia"
	"github.com/felixgeelhaar/verdict/internal/domain"
)

// Problem is one defect found in an exercise descriptor.
type Problem struct {
	ExerciseID string `json:"exercise_id"`
	Field      string `json:"field"`
	Message    string `json:"message"`
}

func (p Problem) String() string {
	if p.Field == "" {
		return fmt.Sprintf("%s: %s", p.ExerciseID, p.Message)
	}
	return fmt.Sprintf("%s: %s: %s", p.ExerciseID, p.Field, p.Message)
}

// Validate checks exercises and returns every problem found, in input
// order. An empty result means the catalog is usable.
func Validate(exercises []*domain.Exercise) []Problem {
	var problems []Problem
	seen := make(map[string]bool, len(exercises))

	for i, ex := range exercises {
		if ex == nil {
			problems = append(problems, Problem{ExerciseID: fmt.Sprintf("#%d", i), Message: "exercise is null"})
			continue
		}
		id := ex.ID
		if id == "" {
			id = fmt.Sprintf("#%d", i)
			problems = append(problems, Problem{ExerciseID: id, Field: "id", Message: "required"})
		} else if seen[id] {
			problems = append(problems, Problem{ExerciseID: id, Field: "id", Message: "duplicate id"})
		}
		seen[ex.ID] = true

		problems = append(problems, validateOne(id, ex)...)
	}
	return problems
}

func validateOne(id string, ex *domain.Exercise) []Problem {
	var problems []Problem
	add := func(field, format string, args ...any) {
		problems = append(problems, Problem{ExerciseID: id, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !ex.Type.Valid() {
		add("type", "unknown exercise type %q", ex.Type)
		return problems
	}

	if !ex.Type.IsMarkup() {
		if ex.TestRunner == "" {
			add("testRunner", "js exercises need a test runner")
		}
		switch ex.ExecutionMode {
		case domain.ExecutionModeAuto, domain.ExecutionModeWorker, domain.ExecutionModeIframe:
		default:
			add("executionMode", "unknown execution mode %q", ex.ExecutionMode)
		}
		return problems
	}

	if ex.Type == domain.ExerciseTypeCSS && ex.ProvidedHTML == "" {
		add("providedHtml", "css exercises need provided html")
	}
	if len(ex.TestCases) == 0 {
		add("testCases", "markup exercises need test cases")
	}
	for i, tc := range ex.TestCases {
		field := fmt.Sprintf("testCases[%d]", i)
		if !tc.Assertion.Valid() {
			add(field, "unknown assertion %q", tc.Assertion)
			continue
		}
		switch tc.Assertion {
		case domain.AssertSourceContains, domain.AssertSourceMatch:
			if tc.Source != "" && tc.Source != "html" && tc.Source != "css" {
				add(field, "source must be html or css, got %q", tc.Source)
			}
			continue
		case domain.AssertCountAtLeast:
			if _, err := tc.ExpectedInt(); err != nil {
				add(field, "%v", err)
			}
		}
		target := tc.Target()
		if target == "" {
			add(field, "%s needs a selector", tc.Assertion)
			continue
		}
		if _, err := cascadia.ParseGroup(target); err != nil {
			add(field, "selector %q does not compile: %v", target, err)
		}
	}
	return problems
}

// Err folds problems into a single error wrapping ErrInvalidExercise, or
// nil when there are none.
func Err(problems []Problem) error {
	if len(problems) == 0 {
		return nil
	}
	errs := make([]error, 0, len(problems)+1)
	errs = append(errs, fmt.Errorf("%w: %d problem(s)", domain.ErrInvalidExercise, len(problems)))
	for _, p := range problems {
		errs = append(errs, errors.New(p.String()))
	}
	return errors.Join(errs...)
}
