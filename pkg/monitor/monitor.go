package monitor

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/huandu/go-clone"
	"github.com/rs/zerolog/log"
)

// Status is the lifecycle state of a monitored task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeviated   Status = "deviated"
)

// ActivityType classifies a logged activity. The constants cover what
// the deviation scorer understands, callers may log other kinds too.
type ActivityType string

const (
	ActivitySearch     ActivityType = "search"
	ActivityNavigation ActivityType = "navigation"
	ActivityExtraction ActivityType = "extraction"
	ActivityToolCall   ActivityType = "tool_call"
	ActivityError      ActivityType = "error"
)

// Activity is one logged agent action.
type Activity struct {
	Timestamp      time.Time              `json:"timestamp"`
	Type           ActivityType           `json:"activity_type"`
	Description    string                 `json:"description"`
	Details        map[string]interface{} `json:"details"`
	Success        bool                   `json:"success"`
	DeviationScore float64                `json:"deviation_score"`
}

// Checkpoint records one detected deviation with corrective feedback.
type Checkpoint struct {
	Timestamp         time.Time `json:"timestamp"`
	ExpectedActivity  string    `json:"expected_activity"`
	ActualActivity    string    `json:"actual_activity"`
	DeviationDetected bool      `json:"deviation_detected"`
	FeedbackMessage   string    `json:"feedback_message"`
	CorrectionApplied bool      `json:"correction_applied"`
}

// Weights are the per-signal deviation contributions. Triggered weights
// are summed and clamped to [0, 1].
type Weights struct {
	OffTopicQuery float64 `json:"off_topic_query"`
	EmptyQuery    float64 `json:"empty_query"`
	OffTopicURL   float64 `json:"off_topic_url"`
	Error         float64 `json:"error"`
	Inactivity    float64 `json:"inactivity"`
}

// Config tunes deviation detection and snapshot sizes.
type Config struct {
	Weights            Weights       `json:"weights"`
	DeviationThreshold float64       `json:"deviation_threshold"`
	RedirectAfter      int           `json:"redirect_after"`
	InactivityWindow   time.Duration `json:"inactivity_window"`
	RecentActivities   int           `json:"recent_activities"`
	RecentCheckpoints  int           `json:"recent_checkpoints"`
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			OffTopicQuery: 0.5,
			EmptyQuery:    0.8,
			OffTopicURL:   0.3,
			Error:         0.4,
			Inactivity:    0.6,
		},
		DeviationThreshold: 0.7,
		RedirectAfter:      3,
		InactivityWindow:   5 * time.Minute,
		RecentActivities:   5,
		RecentCheckpoints:  3,
	}
}

// SearchRecord is one executed search query.
type SearchRecord struct {
	Query        string    `json:"query"`
	Timestamp    time.Time `json:"timestamp"`
	ResultsCount int       `json:"results_count"`
}

// VisitRecord is one visited page.
type VisitRecord struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// ExtractionRecord is one content extraction.
type ExtractionRecord struct {
	URL           string    `json:"url"`
	Timestamp     time.Time `json:"timestamp"`
	ContentLength int       `json:"content_length"`
}

// TaskState is a point-in-time snapshot for status consumers.
type TaskState struct {
	TaskID                string         `json:"task_id"`
	OriginalTask          string         `json:"original_task"`
	CurrentStatus         Status         `json:"current_status"`
	DeviationCount        int            `json:"deviation_count"`
	ActivitiesCount       int            `json:"activities_count"`
	LastActivityTime      time.Time      `json:"last_activity_time"`
	SearchQueries         []SearchRecord `json:"search_queries_executed"`
	PagesVisited          []VisitRecord  `json:"pages_visited"`
	ContentExtractedCount int            `json:"content_extracted_count"`
	ExpectedSearchTerms   []string       `json:"expected_search_terms"`
	RecentActivities      []Activity     `json:"recent_activities"`
	RecentCheckpoints     []Checkpoint   `json:"recent_checkpoints"`
}

// Monitor tracks one task's activities, scores them against the task
// description, and decides when the agent needs to be redirected.
type Monitor struct {
	mu     sync.Mutex
	taskID string
	cfg    Config
	store  Store
	now    func() time.Time

	originalTask     string
	status           Status
	activities       []Activity
	checkpoints      []Checkpoint
	deviationCount   int
	lastActivity     time.Time
	searchQueries    []SearchRecord
	pagesVisited     []VisitRecord
	contentExtracted []ExtractionRecord
	expectedTerms    []string
}

type Option func(*Monitor)

func WithConfig(cfg Config) Option {
	return func(m *Monitor) {
		m.cfg = cfg
	}
}

func WithStore(s Store) Option {
	return func(m *Monitor) {
		m.store = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func New(taskID string, options ...Option) *Monitor {
	m := &Monitor{
		taskID: taskID,
		cfg:    DefaultConfig(),
		store:  NullStore{},
		now:    time.Now,
		status: StatusPending,
	}
	for _, o := range options {
		o(m)
	}
	m.lastActivity = m.now()
	m.restore()
	return m
}

// SetTask records the task description and derives the search terms the
// scorer checks activities against.
func (m *Monitor) SetTask(description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.originalTask = description
	m.expectedTerms = expectedTermsFromTask(description)
	m.persistLocked()
}

// LogActivity appends an activity, scores it, and opens a checkpoint
// when the score crosses the deviation threshold.
func (m *Monitor) LogActivity(typ ActivityType, description string, details map[string]interface{}, success bool) Activity {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	gap := now.Sub(m.lastActivity)

	activity := Activity{
		Timestamp:   now,
		Type:        typ,
		Description: description,
		Details:     details,
		Success:     success,
	}
	activity.DeviationScore = m.scoreLocked(activity, gap)

	m.activities = append(m.activities, activity)
	m.lastActivity = now
	if m.status == StatusPending {
		m.status = StatusInProgress
	}

	if activity.DeviationScore > m.cfg.DeviationThreshold {
		m.handleDeviationLocked(activity)
	}

	m.persistActivityLocked(activity)
	m.persistLocked()
	return activity
}

// LogSearch records a search query execution.
func (m *Monitor) LogSearch(query string, resultsCount int) Activity {
	m.mu.Lock()
	m.searchQueries = append(m.searchQueries, SearchRecord{
		Query:        query,
		Timestamp:    m.now(),
		ResultsCount: resultsCount,
	})
	m.mu.Unlock()

	return m.LogActivity(ActivitySearch,
		"Executed search: "+query,
		map[string]interface{}{"query": query, "results_count": resultsCount},
		resultsCount > 0)
}

// LogPageVisit records a page navigation.
func (m *Monitor) LogPageVisit(url string, success bool) Activity {
	m.mu.Lock()
	m.pagesVisited = append(m.pagesVisited, VisitRecord{
		URL:       url,
		Timestamp: m.now(),
		Success:   success,
	})
	m.mu.Unlock()

	return m.LogActivity(ActivityNavigation,
		"Visited page: "+url,
		map[string]interface{}{"url": url, "success": success},
		success)
}

// LogExtraction records a content extraction.
func (m *Monitor) LogExtraction(url string, contentLength int) Activity {
	m.mu.Lock()
	m.contentExtracted = append(m.contentExtracted, ExtractionRecord{
		URL:           url,
		Timestamp:     m.now(),
		ContentLength: contentLength,
	})
	m.mu.Unlock()

	return m.LogActivity(ActivityExtraction,
		"Extracted content from: "+url,
		map[string]interface{}{"url": url, "content_length": contentLength},
		contentLength > 0)
}

// MarkCompleted marks the task finished.
func (m *Monitor) MarkCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusCompleted
	m.persistLocked()
}

// MarkFailed marks the task failed and logs the reason as an error
// activity.
func (m *Monitor) MarkFailed(reason string) {
	m.mu.Lock()
	m.status = StatusFailed
	m.mu.Unlock()

	m.LogActivity(ActivityError,
		"Task failed: "+reason,
		map[string]interface{}{"reason": reason},
		false)

	m.mu.Lock()
	// LogActivity flips pending to in_progress, failure wins.
	m.status = StatusFailed
	m.persistLocked()
	m.mu.Unlock()
}

// ShouldRedirect reports whether the agent needs a course correction:
// too many deviations, or no searches, or no extracted content yet.
func (m *Monitor) ShouldRedirect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deviationCount >= m.cfg.RedirectAfter {
		return true
	}
	if len(m.searchQueries) == 0 {
		return true
	}
	if len(m.contentExtracted) == 0 {
		return true
	}
	return false
}

// RedirectInstructions picks the most urgent correction: search first,
// then extract, then refocus.
func (m *Monitor) RedirectInstructions() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.searchQueries) == 0 {
		return "Perform web search for: " + redirectTermsFromTask(m.originalTask)
	}
	if len(m.contentExtracted) == 0 {
		return "Extract content from search results about: " + m.originalTask
	}
	return "Refocus on the main task: " + m.originalTask
}

// DeviationCount returns the number of checkpointed deviations.
func (m *Monitor) DeviationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviationCount
}

// Status returns a deep snapshot. Mutating it never touches live state.
func (m *Monitor) Status() *TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	recentActivities := m.activities
	if n := m.cfg.RecentActivities; n > 0 && len(recentActivities) > n {
		recentActivities = recentActivities[len(recentActivities)-n:]
	}
	recentCheckpoints := m.checkpoints
	if n := m.cfg.RecentCheckpoints; n > 0 && len(recentCheckpoints) > n {
		recentCheckpoints = recentCheckpoints[len(recentCheckpoints)-n:]
	}

	state := &TaskState{
		TaskID:                m.taskID,
		OriginalTask:          m.originalTask,
		CurrentStatus:         m.status,
		DeviationCount:        m.deviationCount,
		ActivitiesCount:       len(m.activities),
		LastActivityTime:      m.lastActivity,
		SearchQueries:         m.searchQueries,
		PagesVisited:          m.pagesVisited,
		ContentExtractedCount: len(m.contentExtracted),
		ExpectedSearchTerms:   m.expectedTerms,
		RecentActivities:      recentActivities,
		RecentCheckpoints:     recentCheckpoints,
	}
	return clone.Clone(state).(*TaskState)
}

func (m *Monitor) scoreLocked(a Activity, gap time.Duration) float64 {
	score := 0.0

	switch a.Type {
	case ActivitySearch:
		query := strings.ToLower(detailString(a.Details, "query"))
		if !containsAnyTerm(query, m.expectedTerms) {
			score += m.cfg.Weights.OffTopicQuery
		}
		if query == "" {
			score += m.cfg.Weights.EmptyQuery
		}
	case ActivityNavigation:
		url := strings.ToLower(detailString(a.Details, "url"))
		if !containsAnyTerm(url, m.expectedTerms) {
			score += m.cfg.Weights.OffTopicURL
		}
	case ActivityError:
		score += m.cfg.Weights.Error
	}

	if m.cfg.InactivityWindow > 0 && gap > m.cfg.InactivityWindow {
		score += m.cfg.Weights.Inactivity
	}

	return math.Min(score, 1.0)
}

func (m *Monitor) handleDeviationLocked(a Activity) {
	m.deviationCount++
	m.status = StatusDeviated

	checkpoint := Checkpoint{
		Timestamp:         m.now(),
		ExpectedActivity:  "Task-related activity for: " + m.originalTask,
		ActualActivity:    string(a.Type) + ": " + a.Description,
		DeviationDetected: true,
		FeedbackMessage:   m.feedbackLocked(a),
		CorrectionApplied: false,
	}
	m.checkpoints = append(m.checkpoints, checkpoint)

	log.Warn().
		Str("task_id", m.taskID).
		Int("deviation_count", m.deviationCount).
		Msg("task deviation detected: " + checkpoint.FeedbackMessage)
}

func containsAnyTerm(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func detailString(details map[string]interface{}, key string) string {
	if details == nil {
		return ""
	}
	if v, ok := details[key].(string); ok {
		return v
	}
	return ""
}
