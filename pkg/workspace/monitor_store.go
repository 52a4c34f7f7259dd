package workspace

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/mangiafuoco/pkg/monitor"
)

// MonitorStore persists monitor state into the task workspace:
// metadata/task_monitor.json for the full state and one
// activities/activity_<ts>.json per logged activity.
type MonitorStore struct {
	workspace *Workspace
}

func NewMonitorStore(w *Workspace) *MonitorStore {
	return &MonitorStore{workspace: w}
}

var _ monitor.Store = &MonitorStore{}

func (s *MonitorStore) SaveState(_ string, data []byte) error {
	path := s.workspace.MetadataPath("task_monitor.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "could not create metadata directory")
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *MonitorStore) SaveActivity(_ string, timestamp time.Time, data []byte) error {
	name := "activity_" + strconv.FormatInt(timestamp.UnixNano(), 10) + ".json"
	path := s.workspace.ActivityPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "could not create activities directory")
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *MonitorStore) LoadState(_ string) ([]byte, error) {
	return os.ReadFile(s.workspace.MetadataPath("task_monitor.json"))
}
