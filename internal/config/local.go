package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/verdict/internal/markup"
	"github.com/felixgeelhaar/verdict/internal/runner"
	"github.com/felixgeelhaar/verdict/internal/sandbox"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageLocal    = "local"
	StorageNone     = "none"
)

// LocalConfig holds configuration for local daemon mode
type LocalConfig struct {
	Daemon    DaemonConfig    `yaml:"daemon"`
	Runner    RunnerConfig    `yaml:"runner"`
	Markup    MarkupConfig    `yaml:"markup"`
	Storage   StorageConfig   `yaml:"storage"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port          int    `yaml:"port"`
	Bind          string `yaml:"bind"`
	LogLevel      string `yaml:"log_level"`
	ExercisesPath string `yaml:"exercises_path"`
}

// Addr returns the listen address.
func (d DaemonConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Bind, d.Port)
}

// RunnerConfig holds code execution settings
type RunnerConfig struct {
	// Backend is "goja" (in-process) or "docker" (one container per job).
	Backend             string             `yaml:"backend"`
	TimeoutMs           int                `yaml:"timeout_ms"`
	GraceMs             int                `yaml:"grace_ms"`
	MaxCallStack        int                `yaml:"max_call_stack"`
	MaxConcurrent       int                `yaml:"max_concurrent"`
	MaxQueue            int                `yaml:"max_queue"`
	QueueTimeoutSeconds int                `yaml:"queue_timeout_seconds"`
	Docker              DockerRunnerConfig `yaml:"docker"`
}

// DockerRunnerConfig holds Docker executor settings
type DockerRunnerConfig struct {
	Image      string  `yaml:"image"`
	MemoryMB   int     `yaml:"memory_mb"`
	CPULimit   float64 `yaml:"cpu_limit"`
	NetworkOff bool    `yaml:"network_off"`
}

// Sandbox converts the runner section to sandbox parameters.
func (r RunnerConfig) Sandbox() sandbox.Config {
	return sandbox.Config{
		Backend:      r.Backend,
		Budget:       time.Duration(r.TimeoutMs) * time.Millisecond,
		Grace:        time.Duration(r.GraceMs) * time.Millisecond,
		MaxCallStack: r.MaxCallStack,
		Image:        r.Docker.Image,
		MemoryMB:     r.Docker.MemoryMB,
		CPULimit:     r.Docker.CPULimit,
		NetworkOff:   r.Docker.NetworkOff,
	}
}

// Service converts the runner section to runner service limits.
func (r RunnerConfig) Service() runner.Config {
	return runner.Config{
		MaxConcurrent: r.MaxConcurrent,
		MaxQueue:      r.MaxQueue,
		QueueTimeout:  time.Duration(r.QueueTimeoutSeconds) * time.Second,
	}
}

// MarkupConfig holds markup engine settings
type MarkupConfig struct {
	// SettleMs delays evaluation after rendering, for parity with hosts
	// that wait for a document load.
	SettleMs int `yaml:"settle_ms"`
}

// Settle returns the settle delay.
func (m MarkupConfig) Settle() time.Duration {
	return time.Duration(m.SettleMs) * time.Millisecond
}

// StorageConfig selects where runs and progress are kept
type StorageConfig struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite database file or the local store directory.
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
}

// QueueConfig holds RabbitMQ settings. An empty URL disables the queue.
type QueueConfig struct {
	URL               string `yaml:"url"`
	Workers           int    `yaml:"workers"`
	Prefetch          int    `yaml:"prefetch"`
	JobTimeoutSeconds int    `yaml:"job_timeout_seconds"`
}

// RateLimitConfig holds per-student request limits
type RateLimitConfig struct {
	Enabled         bool `yaml:"enabled"`
	Rate            int  `yaml:"rate"`
	Burst           int  `yaml:"burst"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

// VerdictDir returns the path to ~/.verdict
func VerdictDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".verdict"), nil
}

// EnsureVerdictDir creates ~/.verdict and subdirectories if they don't exist
func EnsureVerdictDir() (string, error) {
	dir, err := VerdictDir()
	if err != nil {
		return "", err
	}

	subdirs := []string{
		"",
		"logs",
		"data",
		"exercises",
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	sb := sandbox.DefaultConfig()
	svc := runner.DefaultConfig()
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:          7433,
			Bind:          "127.0.0.1",
			LogLevel:      "info",
			ExercisesPath: "./exercises",
		},
		Runner: RunnerConfig{
			Backend:             sb.Backend,
			TimeoutMs:           int(sb.Budget / time.Millisecond),
			GraceMs:             int(sb.Grace / time.Millisecond),
			MaxCallStack:        sb.MaxCallStack,
			MaxConcurrent:       svc.MaxConcurrent,
			MaxQueue:            svc.MaxQueue,
			QueueTimeoutSeconds: int(svc.QueueTimeout / time.Second),
			Docker: DockerRunnerConfig{
				Image:      sb.Image,
				MemoryMB:   sb.MemoryMB,
				CPULimit:   sb.CPULimit,
				NetworkOff: sb.NetworkOff,
			},
		},
		Markup: MarkupConfig{
			SettleMs: int(markup.DefaultSettleDelay / time.Millisecond),
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
		},
		Queue: QueueConfig{
			Workers:           3,
			Prefetch:          1,
			JobTimeoutSeconds: 30,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			Rate:            30,
			Burst:           10,
			IntervalSeconds: 60,
		},
	}
}

// Validate reports every invalid setting at once.
func (c *LocalConfig) Validate() error {
	var errs []error
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port %d out of range", c.Daemon.Port))
	}
	switch c.Daemon.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_level %q: want debug, info, warn or error", c.Daemon.LogLevel))
	}
	switch c.Runner.Backend {
	case sandbox.BackendGoja, sandbox.BackendDocker:
	default:
		errs = append(errs, fmt.Errorf("runner.backend %q: want goja or docker", c.Runner.Backend))
	}
	if c.Runner.TimeoutMs <= 0 {
		errs = append(errs, errors.New("runner.timeout_ms must be positive"))
	}
	if c.Runner.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("runner.max_concurrent must be positive"))
	}
	if c.Runner.MaxQueue < 0 {
		errs = append(errs, errors.New("runner.max_queue must not be negative"))
	}
	switch c.Storage.Driver {
	case StorageSQLite, StorageLocal, StorageNone:
	case StoragePostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want sqlite, postgres, local or none", c.Storage.Driver))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Rate <= 0 || c.RateLimit.IntervalSeconds <= 0) {
		errs = append(errs, errors.New("ratelimit.rate and ratelimit.interval_seconds must be positive"))
	}
	return errors.Join(errs...)
}

// LoadLocalConfig loads configuration from ~/.verdict/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := VerdictDir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(filepath.Join(dir, "config.yaml"))
}

// LoadLocalConfigFrom loads configuration from path over the defaults. A
// missing file yields the defaults.
func LoadLocalConfigFrom(configPath string) (*LocalConfig, error) {
	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultLocalConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultLocalConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// SaveLocalConfig saves configuration to ~/.verdict/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureVerdictDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(dir, "config.yaml")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
