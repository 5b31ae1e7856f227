package sandbox

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

//go:embed harness/worker.js
var workerJS []byte

const (
	workdir = "/sandbox"
	// jobDir is owned by the container user so the worker can delete the
	// job file before learner code runs.
	jobDir  = "run"
	nodeUID = 1000
)

// dockerJob is job.json: the job plus the nonce that tags the worker's
// result line. Output lines without it are not results.
type dockerJob struct {
	Job
	Nonce string `json:"nonce"`
}

type dockerClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
	ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerBackend runs each job in a one-shot Node.js container.
type DockerBackend struct {
	client  dockerClient
	cfg     Config
	breaker circuitbreaker.CircuitBreaker[Message]
	logger  *slog.Logger
	nonce   func() string

	pullOnce sync.Once
	pullErr  error
}

// NewDockerBackend connects to the Docker daemon from the environment.
func NewDockerBackend(cfg Config, logger *slog.Logger) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker not reachable: %w", err)
	}

	return newDockerBackend(cli, cfg, logger), nil
}

func newDockerBackend(cli dockerClient, cfg Config, logger *slog.Logger) *DockerBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Image == "" {
		cfg.Image = DefaultConfig().Image
	}
	b := &DockerBackend{client: cli, cfg: cfg, logger: logger, nonce: uuid.NewString}
	b.breaker = circuitbreaker.New[Message](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("docker circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})
	return b
}

func (b *DockerBackend) Name() string {
	return BackendDocker
}

func (b *DockerBackend) NewUnit(ctx context.Context) (Unit, error) {
	unitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &NodeUnit{
		backend: b,
		ctx:     unitCtx,
		cancel:  cancel,
		reply:   make(chan Message, 1),
	}, nil
}

// Close closes the Docker client.
func (b *DockerBackend) Close() error {
	return b.client.Close()
}

func (b *DockerBackend) ensureImage(ctx context.Context) error {
	b.pullOnce.Do(func() {
		reader, err := b.client.ImagePull(ctx, b.cfg.Image, image.PullOptions{})
		if err != nil {
			b.pullErr = fmt.Errorf("pull image %s: %w", b.cfg.Image, err)
			return
		}
		defer reader.Close()
		// Drain the reader to complete the pull
		_, _ = io.Copy(io.Discard, reader)
	})
	return b.pullErr
}

func (b *DockerBackend) createContainer(ctx context.Context) (string, error) {
	pids := int64(64)
	resp, err := b.client.ContainerCreate(ctx,
		&container.Config{
			Image:           b.cfg.Image,
			Cmd:             []string{"node", workdir + "/worker.js"},
			WorkingDir:      workdir,
			NetworkDisabled: b.cfg.NetworkOff,
			User:            "node",
			Labels: map[string]string{
				"verdict.unit": "true",
			},
		},
		&container.HostConfig{
			CapDrop:     []string{"ALL"},
			SecurityOpt: []string{"no-new-privileges"},
			Resources: container.Resources{
				Memory:    int64(b.cfg.MemoryMB) * 1024 * 1024,
				NanoCPUs:  int64(b.cfg.CPULimit * 1e9),
				PidsLimit: &pids,
			},
		},
		nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return resp.ID, nil
}

func (b *DockerBackend) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = b.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

type fileSpec struct {
	name  string
	data  []byte
	dir   bool
	owner int
}

// makeArchive packs files into the tar stream CopyToContainer expects.
func makeArchive(files []fileSpec) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()
	for _, f := range files {
		header := &tar.Header{
			Name:    f.name,
			Mode:    0o644,
			Size:    int64(len(f.data)),
			ModTime: now,
			Uid:     f.owner,
			Gid:     f.owner,
		}
		if f.dir {
			header.Typeflag = tar.TypeDir
			header.Mode = 0o700
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write(f.data); err != nil {
			return nil, fmt.Errorf("write tar content: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	return &buf, nil
}

// NodeUnit is a single-use unit backed by one container. Terminate
// force-removes the container.
type NodeUnit struct {
	backend *DockerBackend
	ctx     context.Context
	cancel  context.CancelFunc

	posted   atomic.Bool
	reply    chan Message
	mu       sync.Mutex
	id       string
	stopOnce sync.Once
}

func (u *NodeUnit) Post(job Job) <-chan Message {
	if !u.posted.CompareAndSwap(false, true) {
		busy := make(chan Message, 1)
		busy <- domain.Failed(ErrUnitBusy.Error())
		return busy
	}
	go u.run(job)
	return u.reply
}

func (u *NodeUnit) Terminate() {
	u.stopOnce.Do(func() {
		u.cancel()
		u.mu.Lock()
		id := u.id
		u.mu.Unlock()
		if id != "" {
			u.backend.remove(id)
		}
	})
}

func (u *NodeUnit) settle(msg Message) {
	select {
	case u.reply <- msg:
	default:
	}
}

func (u *NodeUnit) run(job Job) {
	msg, err := u.backend.breaker.Execute(u.ctx, func(ctx context.Context) (Message, error) {
		msg, err := u.exec(ctx, job)
		if err != nil && ctx.Err() != nil {
			// Terminated by the host, not a platform failure.
			return domain.Failed(domain.CanceledMessage), nil
		}
		return msg, err
	})
	if err != nil {
		if u.ctx.Err() != nil {
			return
		}
		u.backend.logger.Error("container run failed", "error", err)
		u.settle(domain.Failed(fmt.Sprintf("sandbox unavailable: %v", err)))
		return
	}
	u.settle(msg)
}

// exec returns an error only for platform failures. Anything the learner
// code caused is carried in the message.
func (u *NodeUnit) exec(ctx context.Context, job Job) (Message, error) {
	b := u.backend
	if err := b.ensureImage(ctx); err != nil {
		return Message{}, err
	}

	nonce := b.nonce()
	payload, err := json.Marshal(dockerJob{Job: job, Nonce: nonce})
	if err != nil {
		return Message{}, fmt.Errorf("encode job: %w", err)
	}

	id, err := b.createContainer(ctx)
	if err != nil {
		return Message{}, err
	}
	defer b.remove(id)
	u.mu.Lock()
	u.id = id
	u.mu.Unlock()

	archive, err := makeArchive([]fileSpec{
		{name: "worker.js", data: workerJS},
		{name: jobDir + "/", dir: true, owner: nodeUID},
		{name: jobDir + "/job.json", data: payload, owner: nodeUID},
	})
	if err != nil {
		return Message{}, err
	}
	if err := b.client.CopyToContainer(ctx, id, workdir, archive, container.CopyToContainerOptions{}); err != nil {
		return Message{}, fmt.Errorf("copy files: %w", err)
	}
	if err := b.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return Message{}, fmt.Errorf("start container: %w", err)
	}

	status, err := u.wait(ctx, id)
	if err != nil {
		return Message{}, err
	}

	stdout, stderr, err := u.logs(ctx, id)
	if err != nil {
		return Message{}, fmt.Errorf("fetch logs: %w", err)
	}
	if stderr != "" {
		b.logger.Debug("console", "container", id, "output", stderr)
	}
	if msg, ok := decodeMessage(stdout, nonce); ok {
		return msg, nil
	}
	if status.StatusCode == 137 {
		return domain.Failed("worker was killed: memory limit exceeded"), nil
	}
	return domain.Failed(fmt.Sprintf("worker exited with status %d without a result", status.StatusCode)), nil
}

func (u *NodeUnit) wait(ctx context.Context, id string) (container.WaitResponse, error) {
	statusCh, errCh := u.backend.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		return status, nil
	case err := <-errCh:
		return container.WaitResponse{}, fmt.Errorf("wait container: %w", err)
	case <-ctx.Done():
		return container.WaitResponse{}, ctx.Err()
	}
}

func (u *NodeUnit) logs(ctx context.Context, id string) (string, string, error) {
	reader, err := u.backend.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", "", err
	}
	return stdout.String(), strings.TrimSpace(stderr.String()), nil
}

// decodeMessage returns the last line of output that is a valid message
// tagged with nonce. Learner code that escapes the vm context can write to
// stdout but does not know the nonce.
func decodeMessage(stdout, nonce string) (Message, bool) {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		var tag struct {
			Nonce string `json:"nonce"`
		}
		if err := json.Unmarshal([]byte(lines[i]), &tag); err != nil || tag.Nonce != nonce {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(lines[i]), &msg); err == nil {
			return msg, true
		}
	}
	return Message{}, false
}
