package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

// Backend names.
const (
	BackendGoja   = "goja"
	BackendDocker = "docker"
)

const (
	// DefaultBudget is the inner time budget of one job.
	DefaultBudget = 5 * time.Second
	// DefaultGrace is how long the host waits past the budget before it
	// kills the unit itself.
	DefaultGrace = 500 * time.Millisecond
	// DefaultMaxCallStack bounds JavaScript call depth.
	DefaultMaxCallStack = 1024
)

// Job is the message posted to an isolated unit.
type Job struct {
	Code          string `json:"code"`
	TestRunnerStr string `json:"testRunnerStr"`
	// HTML seeds document.body when DOM is set.
	HTML      string `json:"html,omitempty"`
	DOM       bool   `json:"dom,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

// Budget returns the job's time budget, falling back to DefaultBudget.
func (j Job) Budget() time.Duration {
	if j.TimeoutMs <= 0 {
		return DefaultBudget
	}
	return time.Duration(j.TimeoutMs) * time.Millisecond
}

// Message is the single reply a unit posts for a job.
type Message = domain.Outcome

// Unit is one isolated execution context. A unit accepts exactly one job
// and is discarded afterwards.
type Unit interface {
	// Post starts the job. The returned channel yields at most one message.
	Post(job Job) <-chan Message
	// Terminate hard-stops the unit. Safe to call more than once.
	Terminate()
}

// Backend creates fresh units.
type Backend interface {
	Name() string
	NewUnit(ctx context.Context) (Unit, error)
}

// Config holds sandbox parameters.
type Config struct {
	Backend      string        `json:"backend"`
	Budget       time.Duration `json:"budget"`
	Grace        time.Duration `json:"grace"`
	MaxCallStack int           `json:"max_call_stack"`
	Image        string        `json:"image"`
	MemoryMB     int           `json:"memory_mb"`
	CPULimit     float64       `json:"cpu_limit"`
	NetworkOff   bool          `json:"network_off"`
}

// DefaultConfig returns sensible defaults for the in-process backend.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendGoja,
		Budget:       DefaultBudget,
		Grace:        DefaultGrace,
		MaxCallStack: DefaultMaxCallStack,
		Image:        "node:20-alpine",
		MemoryMB:     128,
		CPULimit:     0.5,
		NetworkOff:   true,
	}
}

// NewBackend builds the backend named by cfg.Backend.
func NewBackend(cfg Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", BackendGoja:
		return NewGojaBackend(cfg.MaxCallStack, logger), nil
	case BackendDocker:
		return NewDockerBackend(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// TimeoutMessage is the error text reported when a job exceeds budget.
func TimeoutMessage(budget time.Duration) string {
	secs := strconv.FormatFloat(budget.Seconds(), 'f', -1, 64)
	return timeoutPrefix + secs + "s — your code may contain an infinite loop"
}

const timeoutPrefix = "Test timed out after "

// IsTimeout reports whether an outcome error was produced by a budget
// expiry.
func IsTimeout(msg string) bool {
	return strings.HasPrefix(msg, timeoutPrefix)
}

var (
	ErrUnknownBackend = errors.New("unknown sandbox backend")
	ErrUnitBusy       = errors.New("unit already accepted a job")
	ErrTerminated     = errors.New("unit terminated")
	ErrNeverSettled   = errors.New("test runner promise never settled")
	ErrNotArray       = errors.New("test runner must return an array of results")
)
