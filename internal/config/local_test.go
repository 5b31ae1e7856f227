package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestVerdictDir(t *testing.T) {
	dir, err := VerdictDir()
	if err != nil {
		t.Fatalf("VerdictDir() error = %v", err)
	}

	if filepath.Base(dir) != ".verdict" {
		t.Errorf("VerdictDir() = %q, want ending with .verdict", dir)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("VerdictDir() = %q, want absolute path", dir)
	}
}

func TestEnsureVerdictDir(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	dir, err := EnsureVerdictDir()
	if err != nil {
		t.Fatalf("EnsureVerdictDir() error = %v", err)
	}

	expectedDir := filepath.Join(tmpHome, ".verdict")
	if dir != expectedDir {
		t.Errorf("EnsureVerdictDir() = %q, want %q", dir, expectedDir)
	}

	for _, subdir := range []string{"logs", "data", "exercises"} {
		path := filepath.Join(dir, subdir)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("EnsureVerdictDir() should create %s", subdir)
		}
	}
}

func TestDefaultLocalConfig(t *testing.T) {
	cfg := DefaultLocalConfig()

	if cfg.Daemon.Port != 7433 {
		t.Errorf("Daemon.Port = %d, want 7433", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon.Bind = %q, want 127.0.0.1", cfg.Daemon.Bind)
	}
	if cfg.Runner.Backend != "goja" {
		t.Errorf("Runner.Backend = %q, want goja", cfg.Runner.Backend)
	}
	if cfg.Runner.GraceMs != 500 {
		t.Errorf("Runner.GraceMs = %d, want 500", cfg.Runner.GraceMs)
	}
	if cfg.Storage.Driver != StorageSQLite {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if got := cfg.Markup.Settle(); got != 50*time.Millisecond {
		t.Errorf("Markup.Settle() = %v, want 50ms", got)
	}
	if cfg.Queue.URL != "" {
		t.Errorf("Queue.URL = %q, want empty (queue disabled)", cfg.Queue.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestRunnerConfig_Conversions(t *testing.T) {
	cfg := DefaultLocalConfig().Runner
	cfg.TimeoutMs = 1500
	cfg.QueueTimeoutSeconds = 2

	sb := cfg.Sandbox()
	if sb.Budget != 1500*time.Millisecond {
		t.Errorf("Sandbox().Budget = %v, want 1.5s", sb.Budget)
	}
	if sb.Grace != 500*time.Millisecond {
		t.Errorf("Sandbox().Grace = %v, want 500ms", sb.Grace)
	}
	if sb.Image != cfg.Docker.Image || !sb.NetworkOff {
		t.Errorf("Sandbox() docker fields = %+v", sb)
	}

	svc := cfg.Service()
	if svc.QueueTimeout != 2*time.Second || svc.MaxConcurrent != cfg.MaxConcurrent {
		t.Errorf("Service() = %+v", svc)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultLocalConfig()
	cfg.Daemon.Port = 0
	cfg.Daemon.LogLevel = "loud"
	cfg.Runner.Backend = "v8"
	cfg.Storage.Driver = StoragePostgres

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"daemon.port", "daemon.log_level", "runner.backend", "storage.dsn"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, missing %q", err, want)
		}
	}
}

func TestLoadLocalConfigFrom_Missing(t *testing.T) {
	cfg, err := LoadLocalConfigFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadLocalConfigFrom() error = %v", err)
	}
	if cfg.Daemon.Port != DefaultLocalConfig().Daemon.Port {
		t.Errorf("missing file should yield defaults, got port %d", cfg.Daemon.Port)
	}
}

func TestLoadLocalConfigFrom_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `daemon:
  port: 8123
runner:
  backend: docker
  docker:
    image: node:22-alpine
storage:
  driver: local
  path: /tmp/verdict
queue:
  url: amqp://localhost:5672/
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadLocalConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadLocalConfigFrom() error = %v", err)
	}
	if cfg.Daemon.Port != 8123 {
		t.Errorf("Daemon.Port = %d, want 8123", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon.Bind = %q, want default retained", cfg.Daemon.Bind)
	}
	if cfg.Runner.Backend != "docker" || cfg.Runner.Docker.Image != "node:22-alpine" {
		t.Errorf("Runner = %+v", cfg.Runner)
	}
	if cfg.Runner.Docker.MemoryMB != DefaultLocalConfig().Runner.Docker.MemoryMB {
		t.Errorf("Docker.MemoryMB = %d, want default retained", cfg.Runner.Docker.MemoryMB)
	}
	if cfg.Storage.Driver != StorageLocal || cfg.Storage.Path != "/tmp/verdict" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Queue.URL == "" || cfg.Queue.Workers != 3 {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
}

func TestLoadLocalConfigFrom_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("daemon: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadLocalConfigFrom(path); err == nil {
		t.Error("LoadLocalConfigFrom() expected error for invalid YAML")
	}
}

func TestSaveLocalConfig_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultLocalConfig()
	cfg.Daemon.Port = 9999
	cfg.RateLimit.Enabled = false
	if err := SaveLocalConfig(cfg); err != nil {
		t.Fatalf("SaveLocalConfig() error = %v", err)
	}

	dir, _ := VerdictDir()
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("saved config is not YAML: %v", err)
	}
	for _, section := range []string{"daemon", "runner", "markup", "storage", "queue", "ratelimit"} {
		if _, ok := raw[section]; !ok {
			t.Errorf("saved config missing section %q", section)
		}
	}

	loaded, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}
	if loaded.Daemon.Port != 9999 || loaded.RateLimit.Enabled {
		t.Errorf("loaded = %+v / %+v", loaded.Daemon, loaded.RateLimit)
	}
}
