package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/verdict/internal/config"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// daemonAddr returns the base URL of the configured daemon
func daemonAddr() string {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultLocalConfig()
	}
	return "http://" + cfg.Daemon.Addr()
}

// cmdStart starts the daemon in the background
func cmdStart() error {
	addr := daemonAddr()
	if isRunning(addr) {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	verdictDir, err := config.EnsureVerdictDir()
	if err != nil {
		return fmt.Errorf("setup verdict directory: %w", err)
	}

	daemonPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	// The daemon resolves ./exercises against its working directory, so
	// keep the caller's.
	cmd := exec.Command(daemonPath)
	if wd, err := os.Getwd(); err == nil {
		cmd.Dir = wd
	} else {
		cmd.Dir = verdictDir
	}
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning(addr) {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", addr)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'verdict logs')")
}

// cmdStop stops the daemon
func cmdStop() error {
	addr := daemonAddr()
	if !isRunning(addr) {
		fmt.Println("Daemon is not running")
		return nil
	}

	verdictDir, err := config.VerdictDir()
	if err != nil {
		return err
	}
	pid, err := readPID(filepath.Join(verdictDir, pidFile))
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning(addr) {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

// daemonStatus is the subset of GET /v1/status the CLI prints
type daemonStatus struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Backend   string         `json:"backend"`
	Storage   string         `json:"storage"`
	Queue     bool           `json:"queue"`
	Running   int            `json:"running"`
	Runs      map[string]int `json:"runs"`
	Exercises struct {
		PackCount     int `json:"pack_count"`
		ExerciseCount int `json:"exercise_count"`
	} `json:"exercises"`
}

// cmdStatus shows daemon status
func cmdStatus() error {
	addr := daemonAddr()
	if !isRunning(addr) {
		fmt.Println("Status: stopped")
		return nil
	}

	resp, err := httpClient.Get(addr + "/v1/status")
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	var status daemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Backend:   %s\n", status.Backend)
	fmt.Printf("Storage:   %s\n", status.Storage)
	fmt.Printf("Queue:     %v\n", status.Queue)
	fmt.Printf("Exercises: %d in %d packs\n", status.Exercises.ExerciseCount, status.Exercises.PackCount)
	fmt.Printf("Running:   %d\n", status.Running)
	if len(status.Runs) > 0 {
		fmt.Printf("Runs:      %s\n", formatCounts(status.Runs))
	}
	fmt.Printf("Address:   %s\n", addr)

	return nil
}

func formatCounts(counts map[string]int) string {
	var parts []string
	for _, status := range []string{"completed", "failed", "timeout"} {
		if n, ok := counts[status]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", status, n))
		}
	}
	return strings.Join(parts, " ")
}

// cmdLogs shows the tail of the daemon log
func cmdLogs() error {
	verdictDir, err := config.VerdictDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(verdictDir, "logs", "verdictd.log")
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// Seek to the last ~4KB
	info, _ := file.Stat()
	offset := info.Size() - 4096
	if offset < 0 {
		offset = 0
	}
	_, _ = file.Seek(offset, 0)

	reader := bufio.NewReader(file)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}

// isRunning checks if the daemon is running by calling the health endpoint
func isRunning(addr string) bool {
	resp, err := httpClient.Get(addr + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the verdictd binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("verdictd"); err == nil {
		return path, nil
	}

	// Next to this binary
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "verdictd")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{
		"/usr/local/bin/verdictd",
		"./verdictd",
		"./cmd/verdictd/verdictd",
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("verdictd binary not found (build with 'go build ./cmd/verdictd')")
}
