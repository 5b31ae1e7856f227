package sqlite

import "github.com/felixgeelhaar/verdict/internal/runner"

// Ensure SQLite stores implement the runner storage interfaces.
var (
	_ runner.RunStore      = (*RunStore)(nil)
	_ runner.ProgressStore = (*ProgressStore)(nil)
)
