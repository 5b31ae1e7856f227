package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/exercise"
	"github.com/felixgeelhaar/verdict/internal/runner"
)

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// cmdRun runs a file against an exercise
func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	student := fs.String("student", "", "record the run and progress for this student")
	asJSON := fs.Bool("json", false, "print the run as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: verdict run [--student id] [--json] <exercise-id> <file>")
	}
	exerciseID, file := fs.Arg(0), fs.Arg(1)

	code, err := readSource(file)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	e, err := newEngine(ctx, engineOptions{storage: *student != ""})
	if err != nil {
		return err
	}
	defer e.Close()

	ex, err := e.registry.GetExercise(exerciseID)
	if err != nil {
		return err
	}

	run, err := e.runner.Run(ctx, runner.RunRequest{
		StudentID: *student,
		Exercise:  ex,
		Code:      code,
	})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return err
		}
	} else {
		printRun(os.Stdout, ex, run)
	}

	if !run.Success() {
		return fmt.Errorf("%s: not passing", ex.ID)
	}
	return nil
}

func readSource(file string) (string, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	return string(data), nil
}

func printRun(w io.Writer, ex *domain.Exercise, run *domain.Run) {
	fmt.Fprintf(w, "%s (%s engine, %dms)\n\n", ex.Title, run.Engine, run.Duration.Milliseconds())
	if run.Outcome.IsError() {
		fmt.Fprintf(w, "  ✗ %s\n", run.Outcome.Error)
		return
	}
	for _, r := range run.Outcome.Results {
		mark := "✓"
		if !r.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, r.Description)
		if !r.Pass && r.Got != nil {
			got, _ := json.Marshal(r.Got)
			fmt.Fprintf(w, "      got: %s\n", got)
		}
	}
	fmt.Fprintf(w, "\n%d/%d passed\n", run.Outcome.Passed(), len(run.Outcome.Results))
}

// cmdVerify runs reference solutions against their own tests
func cmdVerify(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := newEngine(ctx, engineOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	exercises := e.registry.ListExercises()
	if len(args) > 0 {
		ex, err := e.registry.GetExercise(args[0])
		if err != nil {
			return err
		}
		exercises = []*domain.Exercise{ex}
	}

	report, err := e.runner.VerifyAll(ctx, exercises)
	if err != nil {
		return err
	}

	for _, v := range report.Results {
		if v.Passed {
			fmt.Printf("  ✓ %s\n", v.ExerciseID)
			continue
		}
		fmt.Printf("  ✗ %s\n", v.ExerciseID)
		switch {
		case v.Problem != "":
			fmt.Printf("      %s\n", v.Problem)
		case v.Outcome.Error != "":
			fmt.Printf("      error: %s\n", v.Outcome.Error)
		default:
			fmt.Printf("      failing: %s\n", strings.Join(v.Failures(), "; "))
		}
	}
	fmt.Printf("\n%d/%d verified\n", report.Passed, report.Total)

	if !report.OK() {
		return fmt.Errorf("%d exercise(s) failed verification", report.Failed)
	}
	return nil
}

// cmdValidate checks every exercise descriptor
func cmdValidate() error {
	e, err := newEngine(context.Background(), engineOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	problems := e.registry.Validate()
	printProblems(os.Stdout, problems)
	if len(problems) > 0 {
		return exercise.Err(problems)
	}

	stats := e.registry.Stats()
	fmt.Printf("✓ %d exercises in %d packs are valid\n", stats.ExerciseCount, stats.PackCount)
	return nil
}

func printProblems(w io.Writer, problems []exercise.Problem) {
	for _, p := range problems {
		fmt.Fprintf(w, "  ✗ %s\n", p)
	}
}
