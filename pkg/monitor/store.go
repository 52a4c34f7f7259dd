package monitor

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Store persists monitor state between process restarts. LoadState
// returns os.ErrNotExist when no state was saved yet. Persistence
// failures are logged and swallowed, monitoring never blocks the task.
type Store interface {
	SaveState(taskID string, data []byte) error
	SaveActivity(taskID string, timestamp time.Time, data []byte) error
	LoadState(taskID string) ([]byte, error)
}

// NullStore drops everything. Used when no workspace is attached.
type NullStore struct{}

func (NullStore) SaveState(string, []byte) error               { return nil }
func (NullStore) SaveActivity(string, time.Time, []byte) error { return nil }
func (NullStore) LoadState(string) ([]byte, error)             { return nil, os.ErrNotExist }

var _ Store = NullStore{}

// persistedState is the full monitor state as written to the store.
type persistedState struct {
	TaskID              string             `json:"task_id"`
	OriginalTask        string             `json:"original_task"`
	CurrentStatus       Status             `json:"current_status"`
	Activities          []Activity         `json:"activities"`
	Checkpoints         []Checkpoint       `json:"checkpoints"`
	DeviationCount      int                `json:"deviation_count"`
	SearchQueries       []SearchRecord     `json:"search_queries_executed"`
	PagesVisited        []VisitRecord      `json:"pages_visited"`
	ContentExtracted    []ExtractionRecord `json:"content_extracted"`
	ExpectedSearchTerms []string           `json:"expected_search_terms"`
	LastActivityTime    time.Time          `json:"last_activity_time"`
}

func (m *Monitor) restore() {
	data, err := m.store.LoadState(m.taskID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("task_id", m.taskID).Msg("could not load monitor state, starting fresh")
		}
		m.mu.Lock()
		m.persistLocked()
		m.mu.Unlock()
		return
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Error().Err(err).Str("task_id", m.taskID).Msg("corrupt monitor state, starting fresh")
		m.mu.Lock()
		m.persistLocked()
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.originalTask = state.OriginalTask
	if state.CurrentStatus != "" {
		m.status = state.CurrentStatus
	}
	m.activities = state.Activities
	m.checkpoints = state.Checkpoints
	m.deviationCount = state.DeviationCount
	m.searchQueries = state.SearchQueries
	m.pagesVisited = state.PagesVisited
	m.contentExtracted = state.ContentExtracted
	m.expectedTerms = state.ExpectedSearchTerms
	if !state.LastActivityTime.IsZero() {
		m.lastActivity = state.LastActivityTime
	}
}

func (m *Monitor) persistLocked() {
	state := persistedState{
		TaskID:              m.taskID,
		OriginalTask:        m.originalTask,
		CurrentStatus:       m.status,
		Activities:          m.activities,
		Checkpoints:         m.checkpoints,
		DeviationCount:      m.deviationCount,
		SearchQueries:       m.searchQueries,
		PagesVisited:        m.pagesVisited,
		ContentExtracted:    m.contentExtracted,
		ExpectedSearchTerms: m.expectedTerms,
		LastActivityTime:    m.lastActivity,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("task_id", m.taskID).Msg("could not encode monitor state")
		return
	}
	if err := m.store.SaveState(m.taskID, data); err != nil {
		log.Error().Err(err).Str("task_id", m.taskID).Msg("could not save monitor state")
	}
}

func (m *Monitor) persistActivityLocked(a Activity) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("task_id", m.taskID).Msg("could not encode activity")
		return
	}
	if err := m.store.SaveActivity(m.taskID, a.Timestamp, data); err != nil {
		log.Error().Err(err).Str("task_id", m.taskID).Msg("could not save activity")
	}
}
