package workspace

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Subdirectories every task workspace carries.
var subdirs = []string{
	"data", "outputs", "temp_code", "logs",
	"screenshots", "progress", "metadata", "activities",
}

// Metadata is written to task_metadata.json when a workspace is created.
type Metadata struct {
	TaskDescription string    `json:"task_description"`
	TaskID          string    `json:"task_id"`
	CreatedAt       time.Time `json:"created_at"`
	WorkspacePath   string    `json:"workspace_path"`
	AgentType       string    `json:"agent_type"`
	Features        []string  `json:"features"`
}

var defaultFeatures = []string{
	"web_research",
	"code_execution",
	"progress_tracking",
	"rate_limit_management",
	"task_monitoring",
}

// Workspace is one task's on-disk directory tree.
type Workspace struct {
	root   string
	taskID string
}

// NewTaskID generates a short task identifier.
func NewTaskID() string {
	u := uuid.New()
	return "task_" + hex.EncodeToString(u[:])[:8]
}

// Create builds a fresh workspace under baseDir named
// api_task_<timestamp>_<taskID> and writes task_metadata.json.
func Create(baseDir, taskDescription, taskID string) (*Workspace, error) {
	if taskID == "" {
		taskID = NewTaskID()
	}
	name := "api_task_" + time.Now().Format("20060102_150405") + "_" + taskID
	root := filepath.Join(baseDir, name)

	w := &Workspace{root: root, taskID: taskID}
	if err := w.ensureStructure(); err != nil {
		return nil, err
	}

	meta := Metadata{
		TaskDescription: taskDescription,
		TaskID:          taskID,
		CreatedAt:       time.Now(),
		WorkspacePath:   root,
		AgentType:       "api_manager",
		Features:        defaultFeatures,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "could not encode task metadata")
	}
	if err := os.WriteFile(filepath.Join(root, "task_metadata.json"), data, 0o644); err != nil {
		return nil, errors.Wrap(err, "could not write task metadata")
	}

	log.Debug().Str("task_id", taskID).Str("workspace", root).Msg("created task workspace")
	return w, nil
}

// Open attaches to an existing workspace directory, creating any
// missing subdirectories.
func Open(root, taskID string) (*Workspace, error) {
	w := &Workspace{root: root, taskID: taskID}
	if err := w.ensureStructure(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workspace) ensureStructure() error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return errors.Wrapf(err, "could not create workspace %s", w.root)
	}
	for _, d := range subdirs {
		if err := os.MkdirAll(filepath.Join(w.root, d), 0o755); err != nil {
			return errors.Wrapf(err, "could not create workspace subdirectory %s", d)
		}
	}
	return nil
}

func (w *Workspace) Root() string   { return w.root }
func (w *Workspace) TaskID() string { return w.taskID }

// Dir returns the path of a workspace subdirectory.
func (w *Workspace) Dir(name string) string {
	return filepath.Join(w.root, name)
}

// OutputPath is the location for a result file; the filename defaults
// to a timestamped output_*.json.
func (w *Workspace) OutputPath(filename string) string {
	if filename == "" {
		filename = "output_" + time.Now().Format("20060102_150405") + ".json"
	}
	return filepath.Join(w.root, "outputs", filename)
}

// MetadataPath is the location for a metadata file.
func (w *Workspace) MetadataPath(filename string) string {
	if filename == "" {
		filename = "metadata.json"
	}
	return filepath.Join(w.root, "metadata", filename)
}

// ActivityPath is the location for a monitor activity file.
func (w *Workspace) ActivityPath(filename string) string {
	if filename == "" {
		filename = "activities_" + time.Now().Format("20060102_150405") + ".log"
	}
	return filepath.Join(w.root, "activities", filename)
}

// LogPath is the location for a log file.
func (w *Workspace) LogPath(filename string) string {
	if filename == "" {
		filename = "task_log_" + time.Now().Format("20060102_150405") + ".log"
	}
	return filepath.Join(w.root, "logs", filename)
}

// ProgressPath is the location for a progress file.
func (w *Workspace) ProgressPath(filename string) string {
	if filename == "" {
		filename = "progress_log.json"
	}
	return filepath.Join(w.root, "progress", filename)
}

// TempCodePath is the location for a generated script.
func (w *Workspace) TempCodePath(filename string) string {
	return filepath.Join(w.root, "temp_code", filename)
}

// SaveFile writes text content into a workspace subdirectory and
// returns the full path.
func (w *Workspace) SaveFile(content, filename, subdirectory string) (string, error) {
	if subdirectory == "" {
		subdirectory = "outputs"
	}
	path := filepath.Join(w.root, subdirectory, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrapf(err, "could not create directory for %s", filename)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrapf(err, "could not write %s", filename)
	}
	return path, nil
}

// SaveJSON writes a value as indented JSON into a workspace
// subdirectory and returns the full path.
func (w *Workspace) SaveJSON(v interface{}, filename, subdirectory string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrapf(err, "could not encode %s", filename)
	}
	return w.SaveFile(string(data), filename, subdirectory)
}

// ReadMetadata loads task_metadata.json.
func (w *Workspace) ReadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(w.root, "task_metadata.json"))
	if err != nil {
		return nil, errors.Wrap(err, "could not read task metadata")
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrap(err, "could not decode task metadata")
	}
	return &meta, nil
}

// Info describes the workspace layout for status consumers.
type Info struct {
	WorkspacePath string            `json:"workspace_path"`
	TaskID        string            `json:"task_id"`
	Directories   map[string]string `json:"directories"`
}

func (w *Workspace) Info() Info {
	dirs := make(map[string]string, len(subdirs))
	for _, d := range subdirs {
		dirs[d] = filepath.Join(w.root, d)
	}
	return Info{
		WorkspacePath: w.root,
		TaskID:        w.taskID,
		Directories:   dirs,
	}
}
