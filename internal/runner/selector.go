package runner

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/markup"
	"github.com/felixgeelhaar/verdict/internal/sandbox"
)

// domMarkers are substrings of a test runner that only make sense with a
// document available.
var domMarkers = []string{
	"document.",
	"DOMParser",
	"window.",
	"createElement",
	"querySelector",
	"getElementById",
	"addEventListener",
	"innerHTML",
	"iframe",
	"contentWindow",
	"postMessage",
}

// NeedsDOM reports whether a test runner references DOM constructs.
func NeedsDOM(testRunner string) bool {
	for _, m := range domMarkers {
		if strings.Contains(testRunner, m) {
			return true
		}
	}
	return false
}

// Plan is the engine choice for one run together with its input. Exactly
// one of Function and Markup is set.
type Plan struct {
	Engine   domain.Engine
	Function *sandbox.Job
	Markup   *markup.Input

	// Inferred is set when a js exercise carried no execution mode and the
	// engine was picked from the test runner source.
	Inferred bool
}

// Select picks the engine for an exercise and builds its input. It has no
// side effects.
func Select(ex *domain.Exercise, code string) (Plan, error) {
	if !ex.Type.Valid() {
		return Plan{}, fmt.Errorf("%w: %q", domain.ErrUnknownExerciseType, ex.Type)
	}
	if ex.Type.IsMarkup() {
		in := markupInput(ex, code)
		return Plan{Engine: domain.EngineMarkup, Markup: &in}, nil
	}

	if strings.TrimSpace(ex.TestRunner) == "" {
		return Plan{}, fmt.Errorf("%w: %s", domain.ErrMissingTestRunner, ex.ID)
	}

	var dom, inferred bool
	switch ex.ExecutionMode {
	case domain.ExecutionModeWorker:
	case domain.ExecutionModeIframe:
		dom = true
	default:
		dom = NeedsDOM(ex.TestRunner)
		inferred = true
	}

	job := &sandbox.Job{Code: code, TestRunnerStr: ex.TestRunner}
	plan := Plan{Engine: domain.EngineFunction, Function: job, Inferred: inferred}
	if dom {
		job.DOM = true
		job.HTML = ex.ProvidedHTML
		plan.Engine = domain.EngineDOM
	}
	return plan, nil
}

func markupInput(ex *domain.Exercise, code string) markup.Input {
	in := markup.Input{TestCases: ex.TestCases}
	switch ex.Type {
	case domain.ExerciseTypeCSS:
		in.HTML, in.CSS = ex.ProvidedHTML, code
		in.DefaultSource = code
	case domain.ExerciseTypeHTMLCSS:
		in.HTML, in.CSS = markup.Split(code)
		in.DefaultSource = in.HTML + "\n" + in.CSS
	default:
		in.HTML = code
		in.DefaultSource = code
	}
	in.Sources = map[string]string{"html": in.HTML, "css": in.CSS}
	return in
}
