package domain

import (
	"time"

	"github.com/google/uuid"
)

// Engine names the strategy that evaluated a run.
type Engine string

const (
	EngineFunction Engine = "function"
	EngineDOM      Engine = "dom"
	EngineMarkup   Engine = "markup"
)

// Run represents one test-run invocation
type Run struct {
	ID         uuid.UUID     `json:"id"`
	StudentID  string        `json:"student_id,omitempty"`
	ExerciseID string        `json:"exercise_id"`
	Engine     Engine        `json:"engine"`
	Status     RunStatus     `json:"status"`
	Code       string        `json:"code,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	Duration   time.Duration `json:"duration"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RunStatus represents the current state of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusTimeout   RunStatus = "timeout"
)

// IsTerminal returns true if the run is in a terminal state
func (r *Run) IsTerminal() bool {
	return r.Status == RunStatusCompleted ||
		r.Status == RunStatusFailed ||
		r.Status == RunStatusTimeout
}

// Success returns true if the run completed with every result passing
func (r *Run) Success() bool {
	return r.Status == RunStatusCompleted && r.Outcome.AllPassed()
}

// Summary counts results by verdict.
type Summary struct {
	Total  int    `json:"total"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
	Error  string `json:"error,omitempty"`
}

// Summarize reduces an outcome to counts.
func Summarize(o Outcome) Summary {
	return Summary{
		Total:  len(o.Results),
		Passed: o.Passed(),
		Failed: o.Failures(),
		Error:  o.Error,
	}
}
