package domain

import "time"

// Progress tracks one student's history on one exercise.
type Progress struct {
	StudentID   string     `json:"student_id"`
	ExerciseID  string     `json:"exercise_id"`
	Attempts    int        `json:"attempts"`
	Completed   bool       `json:"completed"`
	SavedCode   string     `json:"saved_code,omitempty"`
	LastSummary Summary    `json:"last_summary"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Record applies a finished run. Completion is sticky: a later failing
// attempt does not clear it.
func (p *Progress) Record(run *Run) {
	p.Attempts++
	p.SavedCode = run.Code
	p.LastSummary = Summarize(run.Outcome)
	now := time.Now()
	if run.FinishedAt != nil {
		now = *run.FinishedAt
	}
	if run.Success() && !p.Completed {
		p.Completed = true
		p.CompletedAt = &now
	}
	p.UpdatedAt = now
}
