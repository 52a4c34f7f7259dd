package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/memory"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
	"github.com/go-go-golems/mangiafuoco/pkg/research"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/workspace"
)

const (
	// notesNamespace is where research notes land in vector memory so
	// other agents can query them later.
	notesNamespace = "researcher_notes"

	// minNoteContent filters out boilerplate pages; extracts at or
	// below this length carry no signal worth keeping.
	minNoteContent = 200

	noteTextLimit   = 4000
	memoryTextLimit = 1000

	digestNotes     = 10
	digestTextLimit = 600

	maxQueryWords        = 6
	defaultMaxQueries    = 8
	defaultPagesPerQuery = 3
)

// ResearchNote is one extracted page worth keeping, as persisted to the
// workspace and summarized for the final answer.
type ResearchNote struct {
	Query string `json:"query"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Researcher plans search queries, gathers pages concurrently and
// summarizes what it found. Unlike the other agents it is a pipeline
// rather than a tool loop: the search/extract/persist sequence is
// fixed, only query planning and the final summary go through the
// model.
type Researcher struct {
	taskID   string
	profile  Profile
	caller   Caller
	searcher research.Searcher
	store    memory.Store
	ws       *workspace.Workspace
}

// NewResearcher wires the research pipeline. store and ws may be nil;
// notes are then kept in memory for the summary only.
func NewResearcher(taskID string, profile Profile, caller Caller, searcher research.Searcher, store memory.Store, ws *workspace.Workspace) *Researcher {
	return &Researcher{
		taskID:   taskID,
		profile:  profile,
		caller:   caller,
		searcher: searcher,
		store:    store,
		ws:       ws,
	}
}

func (r *Researcher) meta() events.EventMetadata {
	return events.EventMetadata{TaskID: r.taskID, Agent: AgentResearcher}
}

var _ SubAgent = (*Researcher)(nil)

// ExecuteTask runs plan, gather, persist and summarize. Individual
// query or persistence failures are logged and skipped; the pipeline
// always comes back with a usable summary string.
func (r *Researcher) ExecuteTask(ctx context.Context, task, extra string) (string, error) {
	meta := r.meta()
	meta.ID = uuid.New()
	events.PublishEventToContext(ctx, events.NewAgentStartEvent(meta, AgentResearcher, tools.Truncate(task, logLimit)))

	queries := r.planQueries(ctx, task, extra)
	pagesPerQuery := r.profile.PagesPerQuery
	if pagesPerQuery <= 0 {
		pagesPerQuery = defaultPagesPerQuery
	}
	results := research.RunPhase(ctx, r.searcher, queries, pagesPerQuery)
	notes := r.persistNotes(ctx, results)

	log.Info().
		Str("task_id", r.taskID).
		Int("queries", len(queries)).
		Int("notes", len(notes)).
		Msg("research gathering finished")

	summary := r.summarize(ctx, task, notes)

	meta.ID = uuid.New()
	events.PublishEventToContext(ctx, events.NewAgentEndEvent(meta, AgentResearcher, tools.Truncate(summary, logLimit), len(queries)))
	return summary, nil
}

// planQueries asks the model for short search queries, normalizes and
// deduplicates them, and falls back to template queries derived from
// the task when planning yields nothing usable.
func (r *Researcher) planQueries(ctx context.Context, task, extra string) []string {
	var raw []string
	prompt, err := renderPrompt(researchPlanTemplate, promptData{Task: task, Context: extra})
	if err != nil {
		log.Warn().Err(err).Msg("could not render query plan prompt")
	} else {
		temperature := r.profile.Temperature
		choice, callErr := callModel(ctx, r.caller, r.meta(), providers.Request{
			Model:       r.profile.Model,
			Messages:    []chat.Message{chat.System("Return JSON only."), chat.User(prompt)},
			Temperature: &temperature,
		})
		if callErr != nil {
			log.Warn().Err(callErr).Msg("query planning failed, using fallback queries")
		} else {
			raw = parseQueryList(choice.Message.Content)
		}
	}

	maxQueries := r.profile.MaxQueries
	if maxQueries <= 0 {
		maxQueries = defaultMaxQueries
	}

	queries := make([]string, 0, maxQueries)
	seen := map[string]bool{}
	for _, q := range raw {
		q = normalizeQuery(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		queries = append(queries, q)
		if len(queries) == maxQueries {
			break
		}
	}
	if len(queries) == 0 {
		base := normalizeQuery(task)
		for _, q := range []string{base + " overview", base + " latest", base + " trends"} {
			queries = append(queries, normalizeQuery(q))
		}
	}
	return queries
}

// persistNotes keeps substantial extracts: each becomes a workspace
// note file and a vector memory entry.
func (r *Researcher) persistNotes(ctx context.Context, results []research.PhaseResult) []ResearchNote {
	var notes []ResearchNote
	for _, res := range results {
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("query", res.Query).Msg("search failed, skipping query")
			continue
		}
		for _, page := range res.Pages {
			if len(page.Content) <= minNoteContent {
				continue
			}
			note := ResearchNote{
				Query: res.Query,
				URL:   page.URL,
				Title: page.Title,
				Text:  tools.Truncate(page.Content, noteTextLimit),
			}
			notes = append(notes, note)

			if r.store != nil {
				_, err := r.store.Upsert(ctx, memory.Entry{
					Namespace: notesNamespace,
					Content:   tools.Truncate(page.Content, memoryTextLimit),
					Metadata:  map[string]interface{}{"query": res.Query, "url": page.URL},
				})
				if err != nil {
					log.Warn().Err(err).Str("url", page.URL).Msg("could not upsert research note")
				}
			}
			if r.ws != nil {
				name := fmt.Sprintf("research_%d_%d.json", time.Now().UnixNano(), len(notes)-1)
				if _, err := r.ws.SaveJSON(note, name, "research"); err != nil {
					log.Warn().Err(err).Str("url", page.URL).Msg("could not save research note")
				}
			}
		}
	}
	return notes
}

// summarize asks the model for a findings digest built from the first
// notes. Without notes, or when the call fails, it returns the canned
// pointer at the workspace instead of inventing findings.
func (r *Researcher) summarize(ctx context.Context, task string, notes []ResearchNote) string {
	if len(notes) == 0 {
		return researcherFallbackResult
	}

	var digest strings.Builder
	for i, note := range notes {
		if i == digestNotes {
			break
		}
		fmt.Fprintf(&digest, "%s | %s\n%s\n\n", note.Title, note.URL, tools.Truncate(note.Text, digestTextLimit))
	}
	prompt := fmt.Sprintf("Task: %s\n\nNotes:\n%s\nSummarize the key findings, citing source URLs.", task, digest.String())

	temperature := r.profile.Temperature
	choice, err := callModel(ctx, r.caller, r.meta(), providers.Request{
		Model:       r.profile.Model,
		Messages:    []chat.Message{chat.System(researcherSystemPrompt), chat.User(prompt)},
		Temperature: &temperature,
	})
	if err != nil {
		log.Warn().Err(err).Msg("summary call failed, returning fallback summary")
		return researcherFallbackResult
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return researcherFallbackResult
	}
	return choice.Message.Content
}

// parseQueryList reads a JSON array of strings, tolerating code fences
// and prose around the array. As a last resort it treats each non-empty
// line as one query.
func parseQueryList(content string) []string {
	s := strings.TrimSpace(content)
	if start, end := strings.Index(s, "["), strings.LastIndex(s, "]"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	var queries []string
	if err := json.Unmarshal([]byte(s), &queries); err == nil {
		return queries
	}

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		line = strings.Trim(line, "\"'`,")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

var (
	searchForPrefix = regexp.MustCompile(`^\s*search\s+for:\s*`)
	nonQueryChars   = regexp.MustCompile(`[^a-z0-9\-\s]`)
)

// normalizeQuery canonicalizes a model-proposed query: lowercase, strip
// a leading "search for:" echo, collapse stuttered characters, drop
// punctuation and keep at most six words.
func normalizeQuery(q string) string {
	q = strings.ToLower(q)
	q = searchForPrefix.ReplaceAllString(q, "")
	q = collapseRuns(q)
	q = nonQueryChars.ReplaceAllString(q, " ")
	words := strings.Fields(q)
	if len(words) > maxQueryWords {
		words = words[:maxQueryWords]
	}
	return strings.Join(words, " ")
}

// collapseRuns squashes runs of the same character, undoing the
// stuttered tokens some models emit in query lists.
func collapseRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := rune(-1)
	for _, r := range s {
		if r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}
