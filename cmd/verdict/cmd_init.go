package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/verdict/internal/config"
)

// cmdInit prepares ~/.verdict for first use
func cmdInit(args []string) error {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	force := flags.Bool("force", false, "overwrite an existing config.yaml")
	if err := flags.Parse(args); err != nil {
		return err
	}

	fmt.Print("Creating ~/.verdict directory structure... ")
	verdictDir, err := config.EnsureVerdictDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	configPath := filepath.Join(verdictDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) || *force {
		fmt.Print("Writing default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	// Seed the catalog from ./exercises when run from a checkout.
	dest := filepath.Join(verdictDir, "exercises")
	if _, err := os.Stat("./exercises"); err == nil {
		fmt.Print("Copying exercise packs... ")
		n, err := copyDir("./exercises", dest)
		if err != nil {
			fmt.Println("✗")
			return fmt.Errorf("copy exercises: %w", err)
		}
		fmt.Printf("✓ (%d files)\n", n)
	} else {
		fmt.Printf("No ./exercises found; add packs under %s\n", dest)
	}

	fmt.Println()
	fmt.Println("Next: 'verdict validate' to check the catalog, 'verdict start' to run the daemon.")
	return nil
}

// copyDir copies a directory tree and returns the number of files written
func copyDir(src, dst string) (int, error) {
	count := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dst, relPath)

		if d.IsDir() {
			return os.MkdirAll(dstPath, 0755)
		}

		if err := copyFile(path, dstPath); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
