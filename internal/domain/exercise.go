package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Exercise is a read-only exercise descriptor from the content store.
type Exercise struct {
	ID            string          `json:"id" yaml:"id"`
	PackID        string          `json:"packId,omitempty" yaml:"-"`
	Title         string          `json:"title" yaml:"title"`
	Description   string          `json:"description,omitempty" yaml:"description"`
	Difficulty    Difficulty      `json:"difficulty,omitempty" yaml:"difficulty"`
	Tags          []string        `json:"tags,omitempty" yaml:"tags"`
	Type          ExerciseType    `json:"type" yaml:"type"`
	ExecutionMode ExecutionMode   `json:"executionMode,omitempty" yaml:"execution_mode"`
	StarterCode   string          `json:"starterCode,omitempty" yaml:"starter_code"`
	Solution      string          `json:"solution,omitempty" yaml:"solution"`
	TestRunner    string          `json:"testRunner,omitempty" yaml:"test_runner"`
	TestCases     []TestAssertion `json:"testCases,omitempty" yaml:"test_cases"`
	ProvidedHTML  string          `json:"providedHtml,omitempty" yaml:"provided_html"`
}

// ExerciseType determines which engine evaluates an exercise.
type ExerciseType string

const (
	ExerciseTypeJS      ExerciseType = "js"
	ExerciseTypeHTML    ExerciseType = "html"
	ExerciseTypeCSS     ExerciseType = "css"
	ExerciseTypeHTMLCSS ExerciseType = "html-css"
)

// Valid reports whether t is a known exercise type.
func (t ExerciseType) Valid() bool {
	switch t {
	case ExerciseTypeJS, ExerciseTypeHTML, ExerciseTypeCSS, ExerciseTypeHTMLCSS:
		return true
	}
	return false
}

// IsMarkup reports whether t is evaluated by the markup engine.
func (t ExerciseType) IsMarkup() bool {
	return t == ExerciseTypeHTML || t == ExerciseTypeCSS || t == ExerciseTypeHTMLCSS
}

// ExecutionMode is the authored execution strategy for js exercises.
type ExecutionMode string

const (
	ExecutionModeAuto   ExecutionMode = ""
	ExecutionModeWorker ExecutionMode = "worker"
	ExecutionModeIframe ExecutionMode = "iframe"
)

// Difficulty represents exercise difficulty level
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// AssertionKind is the comparison a declarative assertion performs.
type AssertionKind string

const (
	AssertExists         AssertionKind = "exists"
	AssertCountAtLeast   AssertionKind = "countAtLeast"
	AssertSourceContains AssertionKind = "sourceContains"
	AssertSourceMatch    AssertionKind = "sourceMatch"
	AssertEquals         AssertionKind = "equals"
	AssertNotEquals      AssertionKind = "notEquals"
	AssertContains       AssertionKind = "contains"
)

// AssertionKinds lists every supported assertion kind.
var AssertionKinds = []AssertionKind{
	AssertExists, AssertCountAtLeast, AssertSourceContains, AssertSourceMatch,
	AssertEquals, AssertNotEquals, AssertContains,
}

// Valid reports whether k is a known assertion kind.
func (k AssertionKind) Valid() bool {
	for _, known := range AssertionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// TestAssertion is one declarative check run by the markup engine.
type TestAssertion struct {
	Query       string        `json:"query,omitempty" yaml:"query"`
	Selector    string        `json:"selector,omitempty" yaml:"selector"`
	Assertion   AssertionKind `json:"assertion" yaml:"assertion"`
	Value       any           `json:"value,omitempty" yaml:"value"`
	Property    string        `json:"property,omitempty" yaml:"property"`
	Description string        `json:"description" yaml:"description"`
	// Source picks the raw text for source assertions: "html" or "css".
	Source string `json:"source,omitempty" yaml:"source"`
}

// Target returns the selector, preferring selector over query.
func (a TestAssertion) Target() string {
	if a.Selector != "" {
		return a.Selector
	}
	return a.Query
}

// ExpectedString renders Value as the string used in comparisons.
func (a TestAssertion) ExpectedString() string {
	switch v := a.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// ExpectedInt interprets Value as a count. A fractional count rounds up,
// so "at least 2.5" needs three matches.
func (a TestAssertion) ExpectedInt() (int, error) {
	switch v := a.Value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(math.Ceil(v)), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("count %q is not a number", v)
		}
		return int(math.Ceil(f)), nil
	case nil:
		return 1, nil
	default:
		return 0, fmt.Errorf("count %v is not a number", v)
	}
}

// ExercisePack represents a collection of related exercises
type ExercisePack struct {
	ID          string
	Name        string
	Version     string
	Description string
	ExerciseIDs []string // ordered list of exercise ids
}
