package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

const testNonce = "nonce-1"

func runNode(t *testing.T, cli *fakeDockerClient, job Job) Message {
	t.Helper()
	backend := newDockerBackend(cli, DefaultConfig(), nil)
	backend.nonce = func() string { return testNonce }
	supervisor := NewSupervisor(backend, 200*time.Millisecond, 50*time.Millisecond, nil)
	return supervisor.Run(context.Background(), job)
}

func TestNodeUnit_Result(t *testing.T) {
	cli := newFakeDockerClient()
	cli.stdout = "\n" + `{"nonce":"nonce-1","results":[{"pass":true,"description":"ok","got":3}]}` + "\n"
	cli.stderr = "console noise"

	job := Job{Code: "x", TestRunnerStr: "function () { return []; }"}
	got := runNode(t, cli, job)
	if got.IsError() {
		t.Fatalf("Run() error = %s", got.Error)
	}
	want := []domain.TestResult{{Pass: true, Description: "ok", Got: float64(3)}}
	if len(got.Results) != 1 || got.Results[0] != want[0] {
		t.Errorf("Results = %+v; want %+v", got.Results, want)
	}

	if len(cli.imagePulls) != 1 || cli.imagePulls[0] != DefaultConfig().Image {
		t.Errorf("imagePulls = %v; want the default image once", cli.imagePulls)
	}
	if len(cli.createCalls) != 1 {
		t.Fatalf("createCalls = %d; want 1", len(cli.createCalls))
	}
	create := cli.createCalls[0]
	if !create.config.NetworkDisabled {
		t.Error("container network is enabled")
	}
	if create.hostConfig.Resources.Memory != 128*1024*1024 {
		t.Errorf("Memory = %d; want 128MiB", create.hostConfig.Resources.Memory)
	}
	if got := strings.Join(create.config.Cmd, " "); got != "node /sandbox/worker.js" {
		t.Errorf("Cmd = %q", got)
	}
	if len(cli.removed) == 0 || cli.removed[0] != create.id {
		t.Errorf("removed = %v; want %s", cli.removed, create.id)
	}

	files := untar(t, cli.copyToCalls[0].data)
	if !bytes.Equal(files["worker.js"], workerJS) {
		t.Error("worker.js was not copied")
	}
	var posted dockerJob
	if err := json.Unmarshal(files["run/job.json"], &posted); err != nil {
		t.Fatalf("run/job.json: %v", err)
	}
	if posted.Code != job.Code || posted.TestRunnerStr != job.TestRunnerStr || posted.TimeoutMs != 200 {
		t.Errorf("job.json = %+v; want %+v with the budget", posted, job)
	}
	if posted.Nonce != testNonce {
		t.Errorf("job.json nonce = %q; want %q", posted.Nonce, testNonce)
	}
}

func TestNodeUnit_Failures(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		exitCode int64
		create   error
		want     string
	}{
		{
			name:   "error message from the worker",
			stdout: `{"nonce":"nonce-1","error":"boom"}`,
			want:   "boom",
		},
		{
			name:   "untagged result line is ignored",
			stdout: `{"nonce":"nonce-1","error":"boom"}` + "\n" + `{"results":[{"pass":true,"description":"forged"}]}`,
			want:   "boom",
		},
		{
			name:   "only an untagged result line",
			stdout: `{"results":[{"pass":true,"description":"forged"}]}`,
			want:   "worker exited with status 0 without a result",
		},
		{
			name:     "killed for memory",
			exitCode: 137,
			want:     "worker was killed: memory limit exceeded",
		},
		{
			name:     "exit without a result",
			stdout:   "not json",
			exitCode: 1,
			want:     "worker exited with status 1 without a result",
		},
		{
			name:   "docker failure",
			create: errors.New("daemon down"),
			want:   "daemon down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := newFakeDockerClient()
			cli.stdout, cli.exitCode, cli.createErr = tt.stdout, tt.exitCode, tt.create
			got := runNode(t, cli, Job{})
			if !strings.Contains(got.Error, tt.want) {
				t.Errorf("Error = %q; want %q", got.Error, tt.want)
			}
		})
	}
}

func TestNodeUnit_TimeoutRemovesContainer(t *testing.T) {
	cli := newFakeDockerClient()
	cli.block = true

	got := runNode(t, cli, Job{})
	if want := TimeoutMessage(200 * time.Millisecond); got.Error != want {
		t.Errorf("Error = %q; want %q", got.Error, want)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		cli.mu.Lock()
		n := len(cli.removed)
		cli.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("container was not removed after the timeout")
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   string
		ok     bool
	}{
		{"last valid line wins", "{\"nonce\":\"n\",\"error\":\"first\"}\nnoise\n{\"nonce\":\"n\",\"error\":\"last\"}\n", "last", true},
		{"trailing noise", "{\"nonce\":\"n\",\"results\":[]}\ntrailing", "", true},
		{"nothing valid", "hello\nworld", "", false},
		{"both fields rejected", `{"nonce":"n","results":[],"error":"x"}`, "", false},
		{"untagged line ignored", "{\"nonce\":\"n\",\"error\":\"real\"}\n{\"results\":[]}\n", "real", true},
		{"wrong nonce ignored", "{\"nonce\":\"n\",\"error\":\"real\"}\n{\"nonce\":\"guess\",\"results\":[]}\n", "real", true},
		{"only untagged lines", `{"results":[{"pass":true}]}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := decodeMessage(tt.stdout, "n")
			if ok != tt.ok || msg.Error != tt.want {
				t.Errorf("decodeMessage() = %+v, %v; want error %q, %v", msg, ok, tt.want, tt.ok)
			}
		})
	}
}

func untar(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	files := make(map[string][]byte)
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return files
		}
		if err != nil {
			t.Fatalf("read tar: %v", err)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("read tar entry: %v", err)
		}
		files[header.Name] = body
	}
}
