package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/verdict/internal/config"
	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/storage"
	"github.com/google/uuid"
)

func TestOpen_Drivers(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.StorageConfig
		wantFile    string
		wantCounter bool
	}{
		{"sqlite default path", config.StorageConfig{Driver: config.StorageSQLite}, "verdict.db", true},
		{"sqlite relative path", config.StorageConfig{Driver: config.StorageSQLite, Path: "db/runs.db"}, "db/runs.db", true},
		{"local", config.StorageConfig{Driver: config.StorageLocal}, "store", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			stores, err := storage.Open(ctx, tt.cfg, dir, nil)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer stores.Close()

			if _, err := os.Stat(filepath.Join(dir, tt.wantFile)); err != nil {
				t.Errorf("expected %s under data dir: %v", tt.wantFile, err)
			}
			if (stores.Counter != nil) != tt.wantCounter {
				t.Errorf("Counter = %v; want present %v", stores.Counter, tt.wantCounter)
			}
			if len(stores.Options()) != 2 {
				t.Errorf("Options() = %d; want 2", len(stores.Options()))
			}

			now := time.Now().UTC().Truncate(time.Second)
			run := &domain.Run{
				ID:         uuid.New(),
				StudentID:  "s1",
				ExerciseID: "sum",
				Engine:     domain.EngineFunction,
				Status:     domain.RunStatusCompleted,
				Outcome:    domain.Completed([]domain.TestResult{{Pass: true, Description: "ok"}}),
				CreatedAt:  now,
			}
			if err := stores.Runs.SaveRun(ctx, run); err != nil {
				t.Fatalf("SaveRun() error = %v", err)
			}
			got, err := stores.Runs.GetRun(ctx, run.ID)
			if err != nil || got.ExerciseID != "sum" {
				t.Errorf("GetRun() = %+v, %v", got, err)
			}
			if _, err := stores.Progress.GetProgress(ctx, "s1", "sum"); !errors.Is(err, domain.ErrProgressNotFound) {
				t.Errorf("GetProgress() error = %v; want ErrProgressNotFound", err)
			}
		})
	}
}

func TestOpen_None(t *testing.T) {
	stores, err := storage.Open(context.Background(), config.StorageConfig{Driver: config.StorageNone}, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if stores.Runs != nil || stores.Progress != nil {
		t.Error("none driver should have no stores")
	}
	if opts := stores.Options(); len(opts) != 0 {
		t.Errorf("Options() = %d; want 0", len(opts))
	}
	if err := stores.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := storage.Open(context.Background(), config.StorageConfig{Driver: "mongo"}, t.TempDir(), nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Open() error = %v; want ErrInvalidInput", err)
	}
}
