package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/verdict/internal/config"
	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/exercise"
	"github.com/felixgeelhaar/verdict/internal/markup"
	"github.com/felixgeelhaar/verdict/internal/queue"
	"github.com/felixgeelhaar/verdict/internal/runner"
	"github.com/felixgeelhaar/verdict/internal/sandbox"
	"github.com/felixgeelhaar/verdict/internal/storage"
	"github.com/google/uuid"
)

// Version is reported by the status endpoint.
const Version = "0.1.0"

// maxBodyBytes bounds request bodies. Learner code is small.
const maxBodyBytes = 1 << 20

// defaultWaitTimeout bounds ?wait=true on async runs.
const defaultWaitTimeout = 60 * time.Second

// JobPublisher enqueues run jobs.
type JobPublisher interface {
	PublishRunJob(ctx context.Context, job *queue.RunJob) error
}

// ResultWaiter hands out waits for job results. Prepare must be called
// before the job is published.
type ResultWaiter interface {
	Prepare(jobID uuid.UUID) func(ctx context.Context) (*queue.RunResult, error)
}

// Server represents the verdict daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux
	logger *slog.Logger

	// Services
	registry *exercise.Registry
	runner   *runner.Service
	backend  sandbox.Backend
	stores   *storage.Stores
	limiter  ratelimit.RateLimiter

	// Queue, nil when no broker is configured
	conn    *queue.Connection
	jobs    JobPublisher
	results ResultWaiter
	stopRes func()

	waitTimeout time.Duration
	startedAt   time.Time
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config       *config.LocalConfig
	ExercisePath string // Overrides Config.Daemon.ExercisesPath
	DataDir      string // Where relative storage paths resolve
	Logger       *slog.Logger
}

// NewServer creates a new daemon server
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		cfg.Config = config.DefaultLocalConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:         cfg.Config,
		router:      http.NewServeMux(),
		logger:      logger,
		waitTimeout: defaultWaitTimeout,
		startedAt:   time.Now(),
	}

	// Exercise catalog
	exercisePath := cfg.ExercisePath
	if exercisePath == "" {
		exercisePath = cfg.Config.Daemon.ExercisesPath
	}
	s.registry = exercise.NewRegistry(exercise.NewLoader(exercisePath))
	if err := s.registry.Load(); err != nil {
		return nil, fmt.Errorf("load exercises: %w", err)
	}
	for _, p := range s.registry.Validate() {
		logger.Warn("invalid exercise", "problem", p.String())
	}

	// Sandbox backend, falling back to in-process when docker is unavailable
	sbCfg := cfg.Config.Runner.Sandbox()
	backend, err := sandbox.NewBackend(sbCfg, logger)
	if err != nil {
		if sbCfg.Backend != sandbox.BackendDocker {
			return nil, fmt.Errorf("create sandbox backend: %w", err)
		}
		logger.Warn("docker backend not available, using goja", "error", err)
		backend = sandbox.NewGojaBackend(sbCfg.MaxCallStack, logger)
	}
	s.backend = backend

	supervisor := sandbox.NewSupervisor(backend, sbCfg.Budget, sbCfg.Grace, logger)
	function := runner.NewFunctionEngine(supervisor, logger)
	markupEngine := markup.NewEngine(cfg.Config.Markup.Settle(), logger)

	// Storage
	dataDir := cfg.DataDir
	if dataDir == "" {
		dir, err := config.VerdictDir()
		if err != nil {
			return nil, fmt.Errorf("get verdict dir: %w", err)
		}
		dataDir = filepath.Join(dir, "data")
	}
	stores, err := storage.Open(ctx, cfg.Config.Storage, dataDir, logger)
	if err != nil {
		s.closeBackend()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	s.stores = stores

	opts := append(stores.Options(), runner.WithLogger(logger))
	s.runner = runner.NewService(cfg.Config.Runner.Service(), function, markupEngine, opts...)

	// Optional queue
	if url := cfg.Config.Queue.URL; url != "" {
		if err := s.connectQueue(ctx, url); err != nil {
			logger.Warn("queue not available, async runs disabled", "error", err)
		}
	}

	if rl := cfg.Config.RateLimit; rl.Enabled {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rl.Rate,
			Burst:    rl.Burst,
			Interval: time.Duration(rl.IntervalSeconds) * time.Second,
		})
	}

	// Setup routes
	s.setupRoutes()

	// Create HTTP server with middleware chain
	handler := recoveryMiddleware(logger, correlationIDMiddleware(loggingMiddleware(logger, s.router)))
	s.server = &http.Server{
		Addr:         cfg.Config.Daemon.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for ?wait=true
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) connectQueue(ctx context.Context, url string) error {
	conn, err := queue.NewConnection(url, s.logger)
	if err != nil {
		return err
	}
	results := queue.NewResultConsumer(conn, s.logger)
	if err := results.Start(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("start result consumer: %w", err)
	}
	s.conn = conn
	s.jobs = queue.NewProducer(conn, s.logger)
	s.results = results
	s.stopRes = results.Stop
	return nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Catalog. Exercise ids contain slashes, so actions are parsed from the
	// tail of the path.
	s.router.HandleFunc("GET /v1/packs", s.handleListPacks)
	s.router.HandleFunc("GET /v1/packs/{id}", s.handleListPackExercises)
	s.router.HandleFunc("GET /v1/exercises", s.handleListExercises)
	s.router.HandleFunc("GET /v1/exercises/{id...}", s.handleGetExercise)
	s.router.HandleFunc("POST /v1/exercises/{path...}", s.limited(s.handleExerciseAction))

	// Runs
	s.router.HandleFunc("POST /v1/runs", s.limited(s.handleInlineRun))
	s.router.HandleFunc("POST /v1/runs/async", s.limited(s.handleAsyncRun))
	s.router.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	s.router.HandleFunc("DELETE /v1/runs/{id}", s.handleCancelRun)

	// Verification
	s.router.HandleFunc("POST /v1/verify", s.handleVerifyAll)
	s.router.HandleFunc("POST /v1/catalog/reload", s.handleReloadCatalog)

	// Students
	s.router.HandleFunc("GET /v1/students/{id}/runs", s.handleListStudentRuns)
	s.router.HandleFunc("GET /v1/students/{id}/progress", s.handleGetProgress)
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting verdict daemon",
		"addr", s.server.Addr,
		"backend", s.backend.Name(),
		"storage", s.stores.Driver,
		"exercises", len(s.registry.ListExercises()),
		"queue", s.jobs != nil,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)

	if s.stopRes != nil {
		s.stopRes()
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil {
			s.logger.Warn("failed to close queue connection", "error", cerr)
		}
	}
	if s.limiter != nil {
		s.limiter.Close()
	}
	if cerr := s.stores.Close(); cerr != nil {
		s.logger.Warn("failed to close storage", "error", cerr)
	}
	s.closeBackend()

	return err
}

func (s *Server) closeBackend() {
	if closer, ok := s.backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("failed to close sandbox backend", "error", err)
		}
	}
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "running",
		"version":   Version,
		"backend":   s.backend.Name(),
		"storage":   s.stores.Driver,
		"queue":     s.jobs != nil,
		"queue_up":  s.conn != nil && s.conn.IsConnected(),
		"running":   s.runner.Running(),
		"uptime_s":  int(time.Since(s.startedAt).Seconds()),
		"exercises": s.registry.Stats(),
	}
	if s.stores.Counter != nil {
		counts, err := s.stores.Counter.CountByStatus(r.Context())
		if err != nil {
			s.logger.Warn("failed to count runs", "error", err)
		} else {
			resp["runs"] = counts
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// Catalog handlers

func (s *Server) handleListPacks(w http.ResponseWriter, r *http.Request) {
	packs := s.registry.ListPacks()
	result := make([]map[string]interface{}, 0, len(packs))
	for _, pack := range packs {
		result = append(result, map[string]interface{}{
			"id":             pack.ID,
			"name":           pack.Name,
			"version":        pack.Version,
			"description":    pack.Description,
			"exercise_count": len(pack.ExerciseIDs),
		})
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"packs": result,
	})
}

func (s *Server) handleListPackExercises(w http.ResponseWriter, r *http.Request) {
	pack, err := s.registry.GetPack(r.PathValue("id"))
	if err != nil {
		s.handleError(w, "pack not found", err)
		return
	}

	exercises, err := s.registry.ListPackExercises(pack.ID)
	if err != nil {
		s.handleError(w, "pack not found", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"pack_id":     pack.ID,
		"name":        pack.Name,
		"description": pack.Description,
		"exercises":   summaries(exercises),
	})
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	exercises := s.registry.ListExercises()
	if t := q.Get("type"); t != "" {
		et := domain.ExerciseType(t)
		if !et.Valid() {
			s.jsonError(w, http.StatusBadRequest, "unknown exercise type", fmt.Errorf("%w: %q", domain.ErrUnknownExerciseType, t))
			return
		}
		exercises = s.registry.ListByType(et)
	}
	if tag := q.Get("tag"); tag != "" {
		exercises = filter(exercises, func(ex *domain.Exercise) bool { return hasTag(ex, tag) })
	}
	if pack := q.Get("pack"); pack != "" {
		exercises = filter(exercises, func(ex *domain.Exercise) bool { return ex.PackID == pack })
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"exercises": summaries(exercises),
	})
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	ex, err := s.registry.GetExercise(r.PathValue("id"))
	if err != nil {
		s.handleError(w, "exercise not found", err)
		return
	}

	resp := map[string]interface{}{
		"exercise": publicView(ex),
	}
	if next, err := s.registry.GetNextExercise(ex.ID); err == nil && next != nil {
		resp["next_id"] = next.ID
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleExerciseAction serves POST /v1/exercises/{id}/runs and
// POST /v1/exercises/{id}/verify.
func (s *Server) handleExerciseAction(w http.ResponseWriter, r *http.Request) {
	id, action := splitAction(r.PathValue("path"))
	if id == "" {
		s.jsonError(w, http.StatusNotFound, "unknown action", nil)
		return
	}

	ex, err := s.registry.GetExercise(id)
	if err != nil {
		s.handleError(w, "exercise not found", err)
		return
	}

	switch action {
	case "runs":
		var req struct {
			StudentID string `json:"student_id"`
			Code      string `json:"code"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		s.run(w, r, runner.RunRequest{StudentID: req.StudentID, Exercise: ex, Code: req.Code})

	case "verify":
		v, err := s.runner.Verify(r.Context(), ex)
		if err != nil {
			s.handleError(w, "verification failed", err)
			return
		}
		s.jsonResponse(w, http.StatusOK, v)
	}
}

// Run handlers

type inlineRunRequest struct {
	StudentID  string           `json:"student_id"`
	ExerciseID string           `json:"exercise_id"`
	Exercise   *domain.Exercise `json:"exercise"`
	Code       string           `json:"code"`
}

// resolve returns the inline descriptor, or the catalog exercise named by
// ExerciseID.
func (s *Server) resolve(req inlineRunRequest) (*domain.Exercise, error) {
	if req.Exercise != nil {
		if req.Exercise.ID == "" {
			req.Exercise.ID = "inline"
		}
		return req.Exercise, nil
	}
	if req.ExerciseID == "" {
		return nil, fmt.Errorf("%w: exercise or exercise_id is required", domain.ErrInvalidInput)
	}
	return s.registry.GetExercise(req.ExerciseID)
}

func (s *Server) handleInlineRun(w http.ResponseWriter, r *http.Request) {
	var req inlineRunRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ex, err := s.resolve(req)
	if err != nil {
		s.handleError(w, "exercise not found", err)
		return
	}
	s.run(w, r, runner.RunRequest{StudentID: req.StudentID, Exercise: ex, Code: req.Code})
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, req runner.RunRequest) {
	run, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.handleError(w, "run failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

func (s *Server) handleAsyncRun(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "queue not configured", nil)
		return
	}

	var req inlineRunRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var job *queue.RunJob
	if req.Exercise != nil {
		ex, _ := s.resolve(req)
		job = queue.NewInlineRunJob(req.StudentID, ex, req.Code)
	} else {
		if _, err := s.resolve(req); err != nil {
			s.handleError(w, "exercise not found", err)
			return
		}
		job = queue.NewRunJob(req.StudentID, req.ExerciseID, req.Code)
	}

	wait := r.URL.Query().Get("wait") == "true"
	var await func(context.Context) (*queue.RunResult, error)
	if wait && s.results != nil {
		await = s.results.Prepare(job.ID)
	}

	if err := s.jobs.PublishRunJob(r.Context(), job); err != nil {
		if await != nil {
			// Releases the subscription.
			ctx, cancel := context.WithCancel(r.Context())
			cancel()
			await(ctx)
		}
		s.jsonError(w, http.StatusServiceUnavailable, "failed to enqueue run", err)
		return
	}

	if await == nil {
		s.jsonResponse(w, http.StatusAccepted, map[string]interface{}{
			"job_id": job.ID,
			"status": domain.RunStatusPending,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
	defer cancel()
	result, err := await(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrResultTimeout) {
			s.jsonResponse(w, http.StatusAccepted, map[string]interface{}{
				"job_id": job.ID,
				"status": domain.RunStatusPending,
			})
			return
		}
		s.jsonError(w, http.StatusServiceUnavailable, "failed waiting for result", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid run id", err)
		return
	}

	run, err := s.runner.GetRun(r.Context(), id)
	if err != nil {
		s.handleError(w, "run not found", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid run id", err)
		return
	}

	if err := s.runner.Cancel(id); err != nil {
		s.handleError(w, "run not running", err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]interface{}{
		"run_id": id,
		"status": "canceling",
	})
}

func (s *Server) handleVerifyAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.VerifyAll(r.Context(), s.registry.ListExercises())
	if err != nil {
		s.handleError(w, "verification interrupted", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// handleReloadCatalog rereads the exercises directory so authors can edit
// content without restarting the daemon.
func (s *Server) handleReloadCatalog(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Reload(); err != nil {
		s.handleError(w, "failed to reload exercises", err)
		return
	}

	problems := s.registry.Validate()
	messages := make([]string, 0, len(problems))
	for _, p := range problems {
		messages = append(messages, p.String())
	}
	s.logger.Info("exercise catalog reloaded", "exercises", s.registry.Stats().ExerciseCount, "problems", len(problems))

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"stats":    s.registry.Stats(),
		"problems": messages,
	})
}

// Student handlers

func (s *Server) handleListStudentRuns(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := s.runner.ListRuns(r.Context(), studentID, r.URL.Query().Get("exercise"), limit)
	if err != nil {
		s.handleError(w, "failed to list runs", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"student_id": studentID,
		"runs":       runs,
	})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")

	progress, err := s.runner.Progress(r.Context(), studentID)
	if err != nil {
		s.handleError(w, "failed to load progress", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"student_id": studentID,
		"progress":   progress,
	})
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// handleError writes err with the status its sentinel maps to.
func (s *Server) handleError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(message, "error", err)
		message = "internal error"
	}
	s.jsonError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrExerciseNotFound),
		errors.Is(err, domain.ErrExercisePackNotFound),
		errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrProgressNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidExercise),
		errors.Is(err, domain.ErrUnknownExerciseType),
		errors.Is(err, domain.ErrMissingTestRunner):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRunRejected):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// splitAction separates "pack/slug/runs" into the exercise id and action.
func splitAction(path string) (id, action string) {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "", ""
	}
	action = path[i+1:]
	if action != "runs" && action != "verify" {
		return "", ""
	}
	return path[:i], action
}

// publicView hides the reference solution.
func publicView(ex *domain.Exercise) *domain.Exercise {
	view := *ex
	view.Solution = ""
	return &view
}

func summaries(exercises []*domain.Exercise) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(exercises))
	for _, ex := range exercises {
		result = append(result, map[string]interface{}{
			"id":         ex.ID,
			"pack_id":    ex.PackID,
			"title":      ex.Title,
			"type":       ex.Type,
			"difficulty": ex.Difficulty,
			"tags":       ex.Tags,
		})
	}
	return result
}

func filter(exercises []*domain.Exercise, keep func(*domain.Exercise) bool) []*domain.Exercise {
	out := exercises[:0:0]
	for _, ex := range exercises {
		if keep(ex) {
			out = append(out, ex)
		}
	}
	return out
}

func hasTag(ex *domain.Exercise, tag string) bool {
	for _, t := range ex.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
