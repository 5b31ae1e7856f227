package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// Engine-level failures of learner code are carried in Outcome.Error; these
// sentinels describe failures of the caller or the platform.
// -----------------------------------------------------------------------------

// Exercise errors
var (
	ErrExerciseNotFound     = errors.New("exercise not found")
	ErrExercisePackNotFound = errors.New("exercise pack not found")
	ErrUnknownExerciseType  = errors.New("unknown exercise type")
	ErrMissingTestRunner    = errors.New("js exercise has no test runner")
	ErrInvalidExercise      = errors.New("invalid exercise")
)

// Run errors
var (
	ErrRunNotFound      = errors.New("run not found")
	ErrProgressNotFound = errors.New("progress not found")
	ErrRunRejected      = errors.New("run rejected: too many concurrent runs")
)

// General errors
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
)
