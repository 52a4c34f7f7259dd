package workspace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// JournalEntry is one line of journal.log.
type JournalEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details"`
}

// Journal appends manager actions to journal.log, one JSON object per
// line.
type Journal struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewJournal(w *Workspace) *Journal {
	return &Journal{
		path: filepath.Join(w.Root(), "journal.log"),
		now:  time.Now,
	}
}

// Log appends one entry.
func (j *Journal) Log(action string, details map[string]interface{}) error {
	entry := JournalEntry{
		Timestamp: j.now(),
		Action:    action,
		Details:   details,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "could not encode journal entry")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "could not open journal")
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "could not append journal entry")
	}
	return nil
}

// Entries reads the whole journal back. Corrupt lines are skipped.
func (j *Journal) Entries() ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "could not open journal")
	}
	defer func() {
		_ = f.Close()
	}()

	var entries []JournalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "could not read journal")
	}
	return entries, nil
}
