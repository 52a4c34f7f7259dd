package files

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mb0/glob"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// textSuffixes are read as UTF-8 text even when the platform has no
// mime type registered for them.
var textSuffixes = map[string]bool{
	".md":   true,
	".txt":  true,
	".py":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".csv":  true,
	".log":  true,
}

// Manager gives agents file access scoped to a single workspace
// directory. Relative paths resolve under the root; absolute paths
// pointing outside the root are reduced to their base name, so a tool
// call cannot reach files outside the task workspace.
type Manager struct {
	root string
}

func NewManager(root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve workspace root")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create workspace root")
	}
	return &Manager{root: abs}, nil
}

func (m *Manager) Root() string {
	return m.root
}

// resolve maps a tool-supplied path into the workspace.
func (m *Manager) resolve(path string) string {
	if path == "" {
		return m.root
	}
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(m.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.Clean(path)
		}
		return filepath.Join(m.root, filepath.Base(path))
	}
	resolved := filepath.Join(m.root, path)
	if rel, err := filepath.Rel(m.root, resolved); err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Join(m.root, filepath.Base(path))
	}
	return resolved
}

// ReadResult is the transcript-facing payload of a read. Type is one
// of "text", "pdf" or "binary"; binary files carry a placeholder
// instead of raw bytes.
type ReadResult struct {
	Success  bool   `json:"success"`
	Content  string `json:"content"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	Type     string `json:"type"`
}

func (m *Manager) ReadFile(path string) (*ReadResult, error) {
	resolved := m.resolve(path)

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("file not found: %s", path)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}
	if info.IsDir() {
		return nil, errors.Errorf("path is a directory: %s", path)
	}

	suffix := strings.ToLower(filepath.Ext(resolved))
	mimeType := mime.TypeByExtension(suffix)

	if suffix == ".pdf" {
		content, err := extractPDFText(resolved)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to extract pdf %s", path)
		}
		return &ReadResult{
			Success:  true,
			Content:  content,
			Path:     resolved,
			Size:     info.Size(),
			MimeType: mimeType,
			Type:     "pdf",
		}, nil
	}

	if strings.HasPrefix(mimeType, "text/") || textSuffixes[suffix] {
		content, err := os.ReadFile(resolved)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		return &ReadResult{
			Success:  true,
			Content:  string(content),
			Path:     resolved,
			Size:     info.Size(),
			MimeType: mimeType,
			Type:     "text",
		}, nil
	}

	return &ReadResult{
		Success:  true,
		Content:  "[Binary file: " + suffix + "]",
		Path:     resolved,
		Size:     info.Size(),
		MimeType: mimeType,
		Type:     "binary",
	}, nil
}

type WriteResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Message string `json:"message"`
}

func (m *Manager) WriteFile(path, content string) (*WriteResult, error) {
	resolved := m.resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create parent directory for %s", path)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", path)
	}

	log.Debug().Str("path", resolved).Int("size", len(content)).Msg("file written")

	return &WriteResult{
		Success: true,
		Path:    resolved,
		Size:    len(content),
		Message: "File written successfully: " + path,
	}, nil
}

func (m *Manager) AppendFile(path, content string) (*WriteResult, error) {
	resolved := m.resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create parent directory for %s", path)
	}

	f, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.WriteString(content); err != nil {
		return nil, errors.Wrapf(err, "failed to append to %s", path)
	}

	return &WriteResult{
		Success: true,
		Path:    resolved,
		Size:    len(content),
		Message: "Content appended to: " + path,
	}, nil
}

// FileInfo describes one listed file. Path is relative to the
// workspace root.
type FileInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
	Type     string `json:"type"`
}

type ListResult struct {
	Success   bool       `json:"success"`
	Directory string     `json:"directory"`
	Pattern   string     `json:"pattern"`
	Files     []FileInfo `json:"files"`
	Count     int        `json:"count"`
}

// ListFiles lists the files in one workspace directory whose names
// match pattern ("*" when empty). Matching is non-recursive.
func (m *Manager) ListFiles(directory, pattern string) (*ListResult, error) {
	if directory == "" {
		directory = "."
	}
	if pattern == "" {
		pattern = "*"
	}
	resolved := m.resolve(directory)

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("directory not found: %s", directory)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", directory)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("path is not a directory: %s", directory)
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", directory)
	}

	files := []FileInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, err := glob.Match(pattern, entry.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pattern %q", pattern)
		}
		if !matched {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(m.root, filepath.Join(resolved, entry.Name()))
		if err != nil {
			rel = entry.Name()
		}
		files = append(files, FileInfo{
			Name:     entry.Name(),
			Path:     rel,
			Size:     fi.Size(),
			Modified: fi.ModTime().Format(time.RFC3339),
			Type:     filepath.Ext(entry.Name()),
		})
	}

	relDir, err := filepath.Rel(m.root, resolved)
	if err != nil {
		relDir = directory
	}

	return &ListResult{
		Success:   true,
		Directory: relDir,
		Pattern:   pattern,
		Files:     files,
		Count:     len(files),
	}, nil
}

type DirectoryResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (m *Manager) CreateDirectory(directory string) (*DirectoryResult, error) {
	resolved := m.resolve(directory)
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory %s", directory)
	}
	return &DirectoryResult{
		Success: true,
		Path:    resolved,
		Message: "Directory created: " + directory,
	}, nil
}
