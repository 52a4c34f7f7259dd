package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// TodoStore owns the workspace's todo.json. The manager's model writes
// the whole document at once through the update_todo tool, so the store
// validates and replaces rather than patching.
type TodoStore struct {
	mu   sync.Mutex
	path string
}

func NewTodoStore(w *Workspace) *TodoStore {
	return &TodoStore{path: filepath.Join(w.Root(), "todo.json")}
}

// Write replaces todo.json with the given document.
func (s *TodoStore) Write(data []byte) error {
	if !json.Valid(data) {
		return errors.New("todo data is not valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "could not write todo.json")
	}
	return nil
}

// Read returns the current todo document, or os.ErrNotExist before the
// first write.
func (s *TodoStore) Read() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Summary reports the task count and overall status recorded in the
// document, for journal entries.
func (s *TodoStore) Summary() (tasksCount int, status string) {
	data, err := s.Read()
	if err != nil {
		return 0, "unknown"
	}
	var doc struct {
		Tasks  []json.RawMessage `json:"tasks"`
		Status string            `json:"status"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, "unknown"
	}
	if doc.Status == "" {
		doc.Status = "unknown"
	}
	return len(doc.Tasks), doc.Status
}
