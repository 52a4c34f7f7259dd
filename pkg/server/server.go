package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/config"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/monitor"
	"github.com/go-go-golems/mangiafuoco/pkg/providers/ratelimit"
	"github.com/go-go-golems/mangiafuoco/pkg/workspace"
)

// Server is the REST + SSE surface over the task runner. Handlers are
// plain ServeMux routes; task execution happens on background
// goroutines tracked by the TaskRegistry.
type Server struct {
	cfg      *config.Settings
	runner   Runner
	registry *TaskRegistry
	bus      *events.Bus
	monitors *monitor.Registry
	limiter  *ratelimit.Limiter

	version string
	baseCtx context.Context
}

type Option func(*Server)

// WithVersion sets the version string reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithBaseContext sets the context background tasks inherit from, so
// shutting the server down cancels running tasks.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		s.baseCtx = ctx
	}
}

func New(cfg *config.Settings, runner Runner, registry *TaskRegistry, bus *events.Bus, monitors *monitor.Registry, limiter *ratelimit.Limiter, options ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		runner:   runner,
		registry: registry,
		bus:      bus,
		monitors: monitors,
		limiter:  limiter,
		version:  "dev",
		baseCtx:  context.Background(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/execute", s.handleExecute)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status/", s.handleStatus)
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskDelete)
	mux.HandleFunc("/events/", s.handleEvents)
	mux.HandleFunc("/monitor/", s.handleMonitor)
	return s.logRequests(mux)
}

// ListenAndServe blocks serving HTTP until ctx is cancelled, then
// performs a graceful shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

// TaskRequest queues one task.
type TaskRequest struct {
	TaskDescription string `json:"task_description"`
	TaskType        string `json:"task_type,omitempty"`
	Priority        string `json:"priority,omitempty"`
	TimeoutMinutes  int    `json:"timeout_minutes,omitempty"`
}

// TaskResponse acknowledges a queued task.
type TaskResponse struct {
	TaskID            string `json:"task_id"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	EstimatedDuration string `json:"estimated_duration,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TaskDescription) == "" {
		http.Error(w, "task_description is required", http.StatusBadRequest)
		return
	}
	if req.TaskType == "" {
		req.TaskType = TaskTypeResearch
	}

	taskID := workspace.NewTaskID()
	taskCtx, cancel := context.WithCancel(s.baseCtx)
	if req.TimeoutMinutes > 0 {
		taskCtx, cancel = context.WithTimeout(s.baseCtx, time.Duration(req.TimeoutMinutes)*time.Minute)
	}
	s.registry.Add(taskID, req.TaskDescription, req.TaskType, cancel)

	go s.runTask(taskCtx, cancel, taskID, req)

	writeJSON(w, http.StatusOK, TaskResponse{
		TaskID:            taskID,
		Status:            string(StatusQueued),
		Message:           "Task queued for execution",
		EstimatedDuration: "5-30 minutes depending on complexity",
	})
}

// runTask drives one background execution, translating the runner's
// outcome into registry state. Nothing a single task does may escape
// and take the serving process down.
func (s *Server) runTask(ctx context.Context, cancel context.CancelFunc, taskID string, req TaskRequest) {
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("task_id", taskID).Msg("task panicked")
			s.registry.MarkFailed(taskID, fmt.Sprintf("task panicked: %v", rec))
		}
	}()

	s.registry.MarkRunning(taskID)
	outcome, err := s.runner.ExecuteTask(ctx, taskID, req.TaskDescription, req.TaskType)
	switch {
	case ctx.Err() != nil:
		s.registry.MarkCancelled(taskID)
		log.Info().Str("task_id", taskID).Msg("task cancelled")
	case err != nil:
		s.registry.MarkFailed(taskID, err.Error())
		if mon, ok := s.monitors.Lookup(taskID); ok {
			mon.MarkFailed(err.Error())
		}
		log.Error().Err(err).Str("task_id", taskID).Msg("task failed")
	default:
		s.registry.MarkCompleted(taskID, outcome)
		log.Info().Str("task_id", taskID).Msg("task completed")
	}
}

// HealthResponse reports service, configuration and provider health.
type HealthResponse struct {
	Status        string                              `json:"status"`
	Timestamp     string                              `json:"timestamp"`
	Version       string                              `json:"version"`
	Configuration map[string]interface{}              `json:"configuration"`
	APIHealth     map[string]ratelimit.ProviderHealth `json:"api_health"`
	ActiveTasks   int                                 `json:"active_tasks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	models := s.cfg.Models.ForAgents()
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   s.version,
		Configuration: map[string]interface{}{
			"workspace_base":  s.cfg.WorkspaceBase,
			"openrouter_keys": len(s.cfg.Providers.OpenRouterKeys),
			"gemini_keys":     len(s.cfg.Providers.GeminiKeys),
			"models":          models,
			"max_retries":     s.cfg.Providers.MaxRetries,
		},
		APIHealth:   map[string]ratelimit.ProviderHealth{},
		ActiveTasks: s.registry.ActiveCount(),
	}
	if s.limiter != nil {
		resp.APIHealth = s.limiter.HealthReport()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/status/")
	task, ok := s.registry.Get(taskID)
	if !ok {
		http.Error(w, "unknown task", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if err := s.registry.Cancel(taskID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": taskID,
		"message": "Cancellation requested",
	})
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/monitor/")
	mon, ok := s.monitors.Lookup(taskID)
	if !ok {
		http.Error(w, "no monitor for task", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, mon.Status())
}

// handleEvents streams the task's bus topic as server-sent events.
// The stream ends when the client disconnects; a heartbeat comment
// keeps idle connections from being reaped by proxies.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/events/")
	if _, ok := s.registry.Get(taskID); !ok {
		http.Error(w, "unknown task", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	eventCh, err := s.bus.Subscribe(ctx, taskID)
	if err != nil {
		http.Error(w, "could not subscribe to task events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case e, open := <-eventCh:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type(), e.Payload())
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("could not encode response")
	}
}
