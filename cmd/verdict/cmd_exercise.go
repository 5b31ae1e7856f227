package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/verdict/internal/config"
	"github.com/felixgeelhaar/verdict/internal/domain"
)

// cmdExercise browses the local exercise catalog
func cmdExercise(args []string) error {
	if len(args) < 1 {
		fmt.Println(`Exercise commands:

  verdict exercise list [--type t] [--tag t]  List exercises by pack
  verdict exercise info <id>                  Show exercise details`)
		return nil
	}

	switch args[0] {
	case "list":
		return cmdExerciseList(args[1:])
	case "info":
		if len(args) < 2 {
			return fmt.Errorf("exercise ID required (e.g., web-basics/js/sum)")
		}
		return cmdExerciseInfo(args[1])
	default:
		return fmt.Errorf("unknown exercise command: %s", args[0])
	}
}

func cmdExerciseList(args []string) error {
	fs := flag.NewFlagSet("exercise list", flag.ContinueOnError)
	typ := fs.String("type", "", "only exercises of this type (js, html, css, html-css)")
	tag := fs.String("tag", "", "only exercises with this tag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *typ != "" && !domain.ExerciseType(*typ).Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownExerciseType, *typ)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	registry, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	fmt.Println("Available Exercises:")
	for _, pack := range registry.ListPacks() {
		exercises, err := registry.ListPackExercises(pack.ID)
		if err != nil {
			return err
		}

		var lines []string
		for _, ex := range exercises {
			if *typ != "" && string(ex.Type) != *typ {
				continue
			}
			if *tag != "" && !hasTag(ex.Tags, *tag) {
				continue
			}
			lines = append(lines, fmt.Sprintf("    %-32s %-9s %s", ex.ID, ex.Type, ex.Title))
		}
		if len(lines) == 0 {
			continue
		}

		name := pack.Name
		if name == "" {
			name = pack.ID
		}
		fmt.Printf("\n  %s (%s)\n", name, pack.ID)
		if pack.Description != "" {
			fmt.Printf("    %s\n", pack.Description)
		}
		fmt.Println(strings.Join(lines, "\n"))
	}

	fmt.Println("\nUse 'verdict exercise info <id>' for details")
	return nil
}

func cmdExerciseInfo(id string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	registry, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	ex, err := registry.GetExercise(id)
	if err != nil {
		return err
	}

	fmt.Printf("Exercise: %s\n\n", ex.Title)
	fmt.Printf("ID:         %s\n", ex.ID)
	fmt.Printf("Type:       %s\n", ex.Type)
	if ex.ExecutionMode != "" {
		fmt.Printf("Mode:       %s\n", ex.ExecutionMode)
	}
	fmt.Printf("Difficulty: %s\n", ex.Difficulty)
	fmt.Printf("Tags:       %s\n", strings.Join(ex.Tags, ", "))
	fmt.Printf("\nDescription:\n%s\n", ex.Description)

	if len(ex.TestCases) > 0 {
		fmt.Println("\nTests:")
		for _, tc := range ex.TestCases {
			fmt.Printf("  - %s\n", tc.Description)
		}
	}
	if ex.StarterCode != "" {
		fmt.Printf("\nStarter code:\n%s\n", ex.StarterCode)
	}
	if next, err := registry.GetNextExercise(ex.ID); err == nil && next != nil {
		fmt.Printf("\nNext: %s\n", next.ID)
	}
	return nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
