package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// TaskStatus is the REST-visible lifecycle of a queued task.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is one tracked execution. Snapshot copies are handed out to
// handlers; the registry owns the mutable record.
type Task struct {
	ID            string     `json:"task_id"`
	Description   string     `json:"description"`
	Type          string     `json:"task_type"`
	Status        TaskStatus `json:"status"`
	WorkspacePath string     `json:"workspace_path,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Result        *Outcome   `json:"result,omitempty"`

	cancel context.CancelFunc
}

// TaskRegistry tracks tasks by id with per-task cancellation. It is an
// injected object so each server (and each test) owns its population.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: map[string]*Task{}}
}

// Add records a freshly queued task with its cancel function.
func (r *TaskRegistry) Add(id, description, taskType string, cancel context.CancelFunc) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &Task{
		ID:          id,
		Description: description,
		Type:        taskType,
		Status:      StatusQueued,
		CreatedAt:   time.Now(),
		cancel:      cancel,
	}
	r.tasks[id] = t
	return t
}

// Get returns a snapshot of the task.
func (r *TaskRegistry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns snapshots of all tasks, newest first.
func (r *TaskRegistry) List() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ActiveCount counts tasks that have not reached a terminal status.
func (r *TaskRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.tasks {
		if !t.Status.Terminal() {
			n++
		}
	}
	return n
}

// MarkRunning transitions a task to running.
func (r *TaskRegistry) MarkRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		now := time.Now()
		t.Status = StatusRunning
		t.StartedAt = &now
	}
}

// MarkCompleted stores the outcome and transitions to completed.
func (r *TaskRegistry) MarkCompleted(id string, result *Outcome) {
	r.finish(id, StatusCompleted, "", result)
}

// MarkFailed records the failure text and transitions to failed.
func (r *TaskRegistry) MarkFailed(id, errMsg string) {
	r.finish(id, StatusFailed, errMsg, nil)
}

// MarkCancelled transitions to cancelled, keeping any partial result.
func (r *TaskRegistry) MarkCancelled(id string) {
	r.finish(id, StatusCancelled, "", nil)
}

func (r *TaskRegistry) finish(id string, status TaskStatus, errMsg string, result *Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	now := time.Now()
	t.Status = status
	t.CompletedAt = &now
	t.ErrorMessage = errMsg
	t.Result = result
	if result != nil && result.WorkspacePath != "" {
		t.WorkspacePath = result.WorkspacePath
	}
}

// Cancel triggers the task's cancel function. The status transition to
// cancelled happens when the runner observes the dead context, so an
// in-flight tool call is never reported cancelled while still running.
func (r *TaskRegistry) Cancel(id string) error {
	r.mu.RLock()
	t, ok := r.tasks[id]
	r.mu.RUnlock()
	if !ok {
		return errors.Errorf("unknown task %s", id)
	}
	if t.Status.Terminal() {
		return errors.Errorf("task %s already %s", id, t.Status)
	}
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
