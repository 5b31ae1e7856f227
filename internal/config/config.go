package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Load reads ~/.verdict/config.yaml, applies environment overrides and
// validates the result.
func Load() (*LocalConfig, error) {
	cfg, err := LoadLocalConfig()
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with environment variables
func ApplyEnv(cfg *LocalConfig) {
	cfg.Daemon.Port = getEnvInt("VERDICT_PORT", cfg.Daemon.Port)
	cfg.Daemon.Bind = getEnv("VERDICT_BIND", cfg.Daemon.Bind)
	cfg.Daemon.LogLevel = getEnv("VERDICT_LOG_LEVEL", cfg.Daemon.LogLevel)
	cfg.Daemon.ExercisesPath = getEnv("VERDICT_EXERCISES_PATH", cfg.Daemon.ExercisesPath)

	cfg.Runner.Backend = getEnv("VERDICT_BACKEND", cfg.Runner.Backend)
	timeout := getEnvDuration("VERDICT_RUN_TIMEOUT", time.Duration(cfg.Runner.TimeoutMs)*time.Millisecond)
	cfg.Runner.TimeoutMs = int(timeout / time.Millisecond)
	cfg.Runner.MaxConcurrent = getEnvInt("VERDICT_MAX_CONCURRENT", cfg.Runner.MaxConcurrent)
	cfg.Runner.MaxQueue = getEnvInt("VERDICT_MAX_QUEUE", cfg.Runner.MaxQueue)
	cfg.Runner.Docker.Image = getEnv("VERDICT_RUNNER_IMAGE", cfg.Runner.Docker.Image)
	cfg.Runner.Docker.MemoryMB = getEnvInt("VERDICT_RUNNER_MEMORY_MB", cfg.Runner.Docker.MemoryMB)
	cfg.Runner.Docker.CPULimit = getEnvFloat("VERDICT_RUNNER_CPU_LIMIT", cfg.Runner.Docker.CPULimit)

	// DATABASE_URL implies postgres unless a driver is named explicitly.
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Storage.DSN = dsn
		cfg.Storage.Driver = StoragePostgres
	}
	cfg.Storage.Driver = getEnv("VERDICT_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.Path = getEnv("VERDICT_STORAGE_PATH", cfg.Storage.Path)

	cfg.Queue.URL = getEnv("RABBITMQ_URL", cfg.Queue.URL)
	cfg.Queue.Workers = getEnvInt("VERDICT_QUEUE_WORKERS", cfg.Queue.Workers)

	cfg.RateLimit.Enabled = getEnvBool("VERDICT_RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Rate = getEnvInt("VERDICT_RATE_LIMIT", cfg.RateLimit.Rate)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts a Go duration ("5s") or a bare number of
// milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
