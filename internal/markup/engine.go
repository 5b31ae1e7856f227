// Package markup renders learner HTML and CSS into an inert document and
// evaluates declarative assertions against it.
package markup

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

// DefaultSettleDelay is the wait between rendering and the first assertion.
const DefaultSettleDelay = 50 * time.Millisecond

// Input is everything the engine needs for one run.
type Input struct {
	HTML      string
	CSS       string
	TestCases []domain.TestAssertion

	// Sources holds the raw text source assertions may target, keyed by
	// "html" and "css". DefaultSource is used when an assertion names none.
	Sources       map[string]string
	DefaultSource string
}

func (in Input) source(tc domain.TestAssertion) string {
	if tc.Source != "" {
		if s, ok := in.Sources[tc.Source]; ok {
			return s
		}
	}
	return in.DefaultSource
}

// Engine evaluates markup exercises.
type Engine struct {
	settle time.Duration
	logger *slog.Logger
}

// NewEngine creates an engine. A negative settle delay disables the wait.
func NewEngine(settle time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if settle < 0 {
		settle = 0
	}
	return &Engine{settle: settle, logger: logger}
}

// Evaluate renders the input and runs every assertion in declared order.
// A document that cannot be rendered yields a single error and no results.
func (e *Engine) Evaluate(ctx context.Context, in Input) domain.Outcome {
	doc, err := Render(in.HTML, in.CSS)
	if err != nil {
		e.logger.Debug("markup render failed", "error", err)
		return domain.Failed(err.Error())
	}

	if e.settle > 0 {
		timer := time.NewTimer(e.settle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return domain.Failed(domain.CanceledMessage)
		}
	}

	results := make([]domain.TestResult, 0, len(in.TestCases))
	for _, tc := range in.TestCases {
		results = append(results, Check(doc, tc, in.source(tc)))
	}
	return domain.Completed(results)
}
