package monitor

import "sync"

// Registry hands out one monitor per task id. It is an injected
// dependency, never a package global, so servers and tests each own
// their monitor population.
type Registry struct {
	mu       sync.RWMutex
	monitors map[string]*Monitor
	options  []Option
}

// NewRegistry builds a registry whose monitors are created with the
// given options.
func NewRegistry(options ...Option) *Registry {
	return &Registry{
		monitors: map[string]*Monitor{},
		options:  options,
	}
}

// GetOrCreate returns the monitor for the task, creating it on first use.
func (r *Registry) GetOrCreate(taskID string) *Monitor {
	return r.GetOrCreateWith(taskID)
}

// GetOrCreateWith is GetOrCreate with per-task options appended to the
// registry's own, so a task can bring its own store or clock.
func (r *Registry) GetOrCreateWith(taskID string, extra ...Option) *Monitor {
	r.mu.RLock()
	m, ok := r.monitors[taskID]
	r.mu.RUnlock()
	if ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.monitors[taskID]; ok {
		return m
	}
	options := make([]Option, 0, len(r.options)+len(extra))
	options = append(options, r.options...)
	options = append(options, extra...)
	m = New(taskID, options...)
	r.monitors[taskID] = m
	return m
}

// Lookup returns the monitor for the task if one exists.
func (r *Registry) Lookup(taskID string) (*Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.monitors[taskID]
	return m, ok
}

// Remove drops the task's monitor.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.monitors, taskID)
}

// Count returns the number of live monitors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}
