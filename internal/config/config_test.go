package config

import (
	"strings"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{"returns default when not set", "VERDICT_TEST_KEY_UNSET", "default", "", "default"},
		{"returns env value when set", "VERDICT_TEST_KEY_SET", "default", "custom", "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     int
	}{
		{"unset", "", 42},
		{"valid", "7", 7},
		{"invalid falls back", "seven", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VERDICT_TEST_INT", tt.envValue)
			if got := getEnvInt("VERDICT_TEST_INT", 42); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloatAndBool(t *testing.T) {
	t.Setenv("VERDICT_TEST_FLOAT", "0.25")
	if got := getEnvFloat("VERDICT_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
	t.Setenv("VERDICT_TEST_BOOL", "false")
	if got := getEnvBool("VERDICT_TEST_BOOL", true); got {
		t.Error("getEnvBool() = true, want false")
	}
	t.Setenv("VERDICT_TEST_BOOL", "maybe")
	if got := getEnvBool("VERDICT_TEST_BOOL", true); !got {
		t.Error("getEnvBool(invalid) = false, want default true")
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		envValue string
		want     time.Duration
	}{
		{"", time.Second},
		{"250ms", 250 * time.Millisecond},
		{"2s", 2 * time.Second},
		{"1500", 1500 * time.Millisecond},
		{"-1s", time.Second},
		{"soon", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("VERDICT_TEST_DURATION", tt.envValue)
			if got := getEnvDuration("VERDICT_TEST_DURATION", time.Second); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VERDICT_PORT", "9000")
	t.Setenv("VERDICT_BACKEND", "docker")
	t.Setenv("VERDICT_RUN_TIMEOUT", "3s")
	t.Setenv("VERDICT_MAX_CONCURRENT", "8")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/verdict")
	t.Setenv("RABBITMQ_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("VERDICT_RATE_LIMIT", "5")

	cfg := DefaultLocalConfig()
	ApplyEnv(cfg)

	if cfg.Daemon.Port != 9000 {
		t.Errorf("Daemon.Port = %d, want 9000", cfg.Daemon.Port)
	}
	if cfg.Runner.Backend != "docker" {
		t.Errorf("Runner.Backend = %q, want docker", cfg.Runner.Backend)
	}
	if cfg.Runner.TimeoutMs != 3000 {
		t.Errorf("Runner.TimeoutMs = %d, want 3000", cfg.Runner.TimeoutMs)
	}
	if cfg.Runner.MaxConcurrent != 8 {
		t.Errorf("Runner.MaxConcurrent = %d, want 8", cfg.Runner.MaxConcurrent)
	}
	if cfg.Storage.Driver != StoragePostgres || cfg.Storage.DSN != "postgres://u:p@db/verdict" {
		t.Errorf("Storage = %+v, want postgres with DSN", cfg.Storage)
	}
	if cfg.Queue.URL != "amqp://guest:guest@mq:5672/" {
		t.Errorf("Queue.URL = %q", cfg.Queue.URL)
	}
	if cfg.RateLimit.Rate != 5 {
		t.Errorf("RateLimit.Rate = %d, want 5", cfg.RateLimit.Rate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestApplyEnv_ExplicitDriverWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db/verdict")
	t.Setenv("VERDICT_STORAGE_DRIVER", "local")

	cfg := DefaultLocalConfig()
	ApplyEnv(cfg)

	if cfg.Storage.Driver != StorageLocal {
		t.Errorf("Storage.Driver = %q, want local", cfg.Storage.Driver)
	}
}

func TestLoad_UsesHome(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VERDICT_PORT", "7500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Daemon.Port != 7500 {
		t.Errorf("Daemon.Port = %d, want 7500", cfg.Daemon.Port)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VERDICT_BACKEND", "v8")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "runner.backend") {
		t.Errorf("Load() error = %v, want runner.backend problem", err)
	}
}
