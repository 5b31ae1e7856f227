package domain

import (
	"encoding/json"
	"errors"
)

// CanceledMessage is the error reported when the caller abandons a run.
const CanceledMessage = "run canceled"

// TestResult is the verdict for one test or assertion.
type TestResult struct {
	Pass        bool   `json:"pass"`
	Description string `json:"description"`
	Got         any    `json:"got,omitempty"`
}

// Outcome is the single value a test run produces: either results or an
// engine-level error, never both.
type Outcome struct {
	Results []TestResult
	Error   string
}

// Failed builds an error outcome.
func Failed(msg string) Outcome {
	if msg == "" {
		msg = "unknown error"
	}
	return Outcome{Error: msg}
}

// Completed builds a results outcome. A nil slice becomes empty.
func Completed(results []TestResult) Outcome {
	if results == nil {
		results = []TestResult{}
	}
	return Outcome{Results: results}
}

// IsError reports whether the run failed at the engine level.
func (o Outcome) IsError() bool {
	return o.Error != ""
}

// Passed counts passing results.
func (o Outcome) Passed() int {
	n := 0
	for _, r := range o.Results {
		if r.Pass {
			n++
		}
	}
	return n
}

// Failures counts failing results.
func (o Outcome) Failures() int {
	return len(o.Results) - o.Passed()
}

// AllPassed is true when there is no error and every result passes.
// Zero results count as a pass.
func (o Outcome) AllPassed() bool {
	return !o.IsError() && o.Failures() == 0
}

type outcomeJSON struct {
	Results *[]TestResult `json:"results,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// MarshalJSON emits {"error": ...} or {"results": [...]}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.IsError() {
		return json.Marshal(outcomeJSON{Error: o.Error})
	}
	results := o.Results
	if results == nil {
		results = []TestResult{}
	}
	return json.Marshal(outcomeJSON{Results: &results})
}

// UnmarshalJSON accepts either shape and rejects a value carrying both.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw outcomeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Error != "" && raw.Results != nil:
		return errors.New("outcome carries both results and error")
	case raw.Error != "":
		*o = Failed(raw.Error)
	case raw.Results != nil:
		*o = Completed(*raw.Results)
	default:
		return errors.New("outcome carries neither results nor error")
	}
	return nil
}
