package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/monitor"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
	"github.com/go-go-golems/mangiafuoco/pkg/research"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/workspace"
)

const (
	digestPages        = 20
	reportContentLimit = 500
)

// ResearchPhase is one named group of search queries.
type ResearchPhase struct {
	Name    string   `json:"name"`
	Queries []string `json:"search_queries"`
}

// ResearchPlan drives the research pipeline: a short model-written
// description plus the phases to execute.
type ResearchPlan struct {
	Description string          `json:"description,omitempty"`
	Phases      []ResearchPhase `json:"phases"`
}

// PhaseOutcome collects the pages one phase gathered.
type PhaseOutcome struct {
	Name  string
	Pages []research.Page
}

// ResearchResult summarizes one research run.
type ResearchResult struct {
	Report     string `json:"report"`
	ReportPath string `json:"report_path,omitempty"`
	Pages      int    `json:"pages"`
	Queries    int    `json:"queries"`
	Redirected bool   `json:"redirected"`
}

// ManagerDeps collects the collaborators the manager orchestrates. All
// fields are optional except Registry; missing collaborators disable
// the corresponding behavior rather than failing construction.
type ManagerDeps struct {
	Registry  tools.Registry
	Searcher  research.Searcher
	Monitor   *monitor.Monitor
	Todo      *workspace.TodoStore
	Journal   *workspace.Journal
	Workspace *workspace.Workspace
	Reviewer  SubAgent
}

// Manager is the orchestrating agent. General tasks run through the
// iterative tool loop with sub-agent dispatch; research tasks run the
// fixed plan/gather/redirect/report pipeline.
type Manager struct {
	taskID  string
	profile Profile
	caller  Caller
	deps    ManagerDeps
}

func NewManager(taskID string, profile Profile, caller Caller, deps ManagerDeps) *Manager {
	return &Manager{
		taskID:  taskID,
		profile: profile,
		caller:  caller,
		deps:    deps,
	}
}

func (m *Manager) meta() events.EventMetadata {
	return events.EventMetadata{TaskID: m.taskID, Agent: AgentManager}
}

// ExecuteTask runs a general task through the manager loop: the task is
// recorded in the todo file, then the model plans and dispatches
// sub-agents until the reviewer confirms the answer. Provider failures
// abort the task; the manager has no one to hand a broken loop to.
func (m *Manager) ExecuteTask(ctx context.Context, task, extra string) (string, error) {
	if err := m.seedTodo(task); err != nil {
		log.Warn().Err(err).Msg("could not seed todo file")
	}

	todoState := extra
	if todoState == "" {
		todoState = m.todoSnapshot()
	}
	prompt, err := renderPrompt(managerTaskTemplate, promptData{Task: task, Context: todoState})
	if err != nil {
		return "", err
	}

	var options []LoopOption
	if m.deps.Reviewer != nil {
		options = append(options, WithGates(ReflectionGate(m.deps.Reviewer, task)))
	}

	loop := NewLoop(AgentManager, m.taskID, m.profile, managerSystemPrompt, m.caller, m.deps.Registry, options...)
	return loop.RunIterative(ctx, prompt)
}

// ExecuteResearchTask runs the research pipeline: plan the phases,
// gather pages, redirect once if the monitor flags drift, then write
// the report. Query-level failures are skipped; only cancellation and a
// missing searcher abort the run.
func (m *Manager) ExecuteResearchTask(ctx context.Context, task string) (*ResearchResult, error) {
	if m.deps.Searcher == nil {
		return nil, errors.New("research task requires a searcher")
	}

	meta := m.meta()
	meta.ID = uuid.New()
	events.PublishEventToContext(ctx, events.NewAgentStartEvent(meta, AgentManager, tools.Truncate(task, logLimit)))
	m.publishStatus(ctx, "running", task)

	if m.deps.Monitor != nil {
		m.deps.Monitor.SetTask(task)
	}
	m.journalLog("task_initialization", map[string]interface{}{"task": task})
	m.journalLog("task_start", map[string]interface{}{"task": task})

	plan := m.createPlan(ctx, task)
	outcomes := m.executePhases(ctx, plan)
	queries := 0
	for _, phase := range plan.Phases {
		queries += len(phase.Queries)
	}

	redirected := false
	if ctx.Err() == nil && m.deps.Monitor != nil && m.deps.Monitor.ShouldRedirect() {
		redirected = true
		instructions := m.deps.Monitor.RedirectInstructions()
		deviations := m.deps.Monitor.DeviationCount()

		m.journalLog("task_redirection", map[string]interface{}{
			"instructions": instructions,
			"deviations":   deviations,
		})
		redirectMeta := m.meta()
		redirectMeta.ID = uuid.New()
		events.PublishEventToContext(ctx, events.NewRedirectEvent(redirectMeta, instructions, deviations))
		log.Info().Str("task_id", m.taskID).Str("instructions", instructions).Msg("redirecting research")

		redirectPlan := ResearchPlan{Phases: []ResearchPhase{
			{Name: "Redirected Research", Queries: []string{instructions}},
		}}
		outcomes = append(outcomes, m.executePhases(ctx, redirectPlan)...)
		queries++
	}

	if err := ctx.Err(); err != nil {
		m.failResearch(ctx, "task cancelled")
		return nil, err
	}

	report := m.synthesizeReport(ctx, task, outcomes)

	reportPath := ""
	if m.deps.Workspace != nil {
		filename := fmt.Sprintf("research_report_%s.md", time.Now().Format("20060102_150405"))
		path, err := m.deps.Workspace.SaveFile(report, filename, "")
		if err != nil {
			log.Warn().Err(err).Msg("could not save research report")
		} else {
			reportPath = path
		}
	}

	totalPages := 0
	for _, outcome := range outcomes {
		totalPages += len(outcome.Pages)
	}

	if m.deps.Monitor != nil {
		m.deps.Monitor.MarkCompleted()
	}
	m.journalLog("task_completed", map[string]interface{}{
		"pages":       totalPages,
		"redirected":  redirected,
		"report_path": reportPath,
	})
	m.publishStatus(ctx, "completed", fmt.Sprintf("%d pages across %d queries", totalPages, queries))

	meta.ID = uuid.New()
	events.PublishEventToContext(ctx, events.NewAgentEndEvent(meta, AgentManager, tools.Truncate(report, logLimit), len(outcomes)))

	return &ResearchResult{
		Report:     report,
		ReportPath: reportPath,
		Pages:      totalPages,
		Queries:    queries,
		Redirected: redirected,
	}, nil
}

func (m *Manager) failResearch(ctx context.Context, reason string) {
	if m.deps.Monitor != nil {
		m.deps.Monitor.MarkFailed(reason)
	}
	m.journalLog("task_failed", map[string]interface{}{"reason": reason})
	m.publishStatus(ctx, "failed", reason)
}

// createPlan builds the three standard research phases for the task and
// asks the model for a plan description on top. Planning failures keep
// the templated phases; research never stalls on a flaky plan call.
func (m *Manager) createPlan(ctx context.Context, task string) ResearchPlan {
	plan := ResearchPlan{
		Phases: []ResearchPhase{
			{Name: "Initial Research", Queries: []string{
				fmt.Sprintf("latest developments %s %d", task, time.Now().Year()),
				fmt.Sprintf("recent advances %s", task),
				fmt.Sprintf("current state %s", task),
			}},
			{Name: "Deep Analysis", Queries: []string{
				fmt.Sprintf("detailed analysis %s", task),
				fmt.Sprintf("comprehensive review %s", task),
				fmt.Sprintf("expert opinion %s", task),
			}},
			{Name: "Data Collection", Queries: []string{
				fmt.Sprintf("statistics data %s", task),
				fmt.Sprintf("research findings %s", task),
				fmt.Sprintf("case studies %s", task),
			}},
		},
	}

	temperature := m.profile.Temperature
	choice, err := callModel(ctx, m.caller, m.meta(), providers.Request{
		Model:       m.profile.Model,
		Messages:    []chat.Message{chat.System(planSystemPrompt), chat.User("Create a research plan for: " + task)},
		Temperature: &temperature,
	})
	if err != nil {
		log.Warn().Err(err).Msg("plan call failed, keeping templated phases")
		return plan
	}
	plan.Description = choice.Message.Content
	return plan
}

// executePhases runs each phase's queries through the searcher,
// reporting searches and extractions to the monitor as they happen.
func (m *Manager) executePhases(ctx context.Context, plan ResearchPlan) []PhaseOutcome {
	outcomes := make([]PhaseOutcome, 0, len(plan.Phases))
	for _, phase := range plan.Phases {
		if ctx.Err() != nil {
			break
		}
		results := research.RunPhase(ctx, m.deps.Searcher, phase.Queries, defaultPagesPerQuery)

		outcome := PhaseOutcome{Name: phase.Name}
		for _, res := range results {
			if res.Err != nil {
				log.Warn().Err(res.Err).
					Str("phase", phase.Name).
					Str("query", res.Query).
					Msg("phase query failed")
				continue
			}
			if m.deps.Monitor != nil {
				m.deps.Monitor.LogSearch(res.Query, len(res.Pages))
				for _, page := range res.Pages {
					m.deps.Monitor.LogExtraction(page.URL, len(page.Content))
				}
			}
			outcome.Pages = append(outcome.Pages, res.Pages...)
		}
		outcomes = append(outcomes, outcome)

		log.Debug().
			Str("phase", phase.Name).
			Int("queries", len(phase.Queries)).
			Int("pages", len(outcome.Pages)).
			Msg("research phase finished")
	}
	return outcomes
}

type reportData struct {
	Task   string
	Pages  []research.Page
	Phases []PhaseOutcome
}

// synthesizeReport asks the model to write the report over a digest of
// the gathered pages. When the call fails the templated report
// preserves the raw findings instead.
func (m *Manager) synthesizeReport(ctx context.Context, task string, outcomes []PhaseOutcome) string {
	temperature := m.profile.Temperature
	choice, err := callModel(ctx, m.caller, m.meta(), providers.Request{
		Model:       m.profile.Model,
		Messages:    []chat.Message{chat.System(reportSystemPrompt), chat.User(reportDigest(task, outcomes))},
		Temperature: &temperature,
	})
	if err == nil && strings.TrimSpace(choice.Message.Content) != "" {
		return choice.Message.Content
	}
	if err != nil {
		log.Warn().Err(err).Msg("report synthesis failed, rendering templated report")
	}

	data := reportData{Task: task, Phases: outcomes}
	for _, outcome := range outcomes {
		data.Pages = append(data.Pages, outcome.Pages...)
	}
	report, rerr := renderPrompt(basicReportTemplate, data)
	if rerr != nil {
		log.Error().Err(rerr).Msg("could not render report template")
		return fmt.Sprintf("# Research Report: %s\n\nNo report could be generated.", task)
	}
	return report
}

// reportDigest flattens the phase outcomes into the synthesis prompt,
// bounding page count and per-page content.
func reportDigest(task string, outcomes []PhaseOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task)

	count := 0
	for _, outcome := range outcomes {
		if len(outcome.Pages) == 0 || count >= digestPages {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n", outcome.Name)
		for _, page := range outcome.Pages {
			if count >= digestPages {
				break
			}
			count++
			fmt.Fprintf(&b, "\n%s | %s\n%s\n", page.Title, page.URL, tools.Truncate(page.Content, reportContentLimit))
		}
	}

	b.WriteString("\nWrite the research report now.")
	return b.String()
}

// seedTodo appends the task to the todo file, creating the initial
// planning state on first use. The model owns the file afterwards
// through the update_todo tool, so the state is parsed leniently.
func (m *Manager) seedTodo(task string) error {
	if m.deps.Todo == nil {
		return nil
	}

	state := map[string]interface{}{
		"status":          "planning",
		"tasks":           []interface{}{},
		"current_task":    nil,
		"completed_tasks": []interface{}{},
	}
	if raw, err := m.deps.Todo.Read(); err == nil {
		var existing map[string]interface{}
		if jsonErr := json.Unmarshal(raw, &existing); jsonErr == nil && existing != nil {
			state = existing
		}
	}

	tasks, _ := state["tasks"].([]interface{})
	entry := map[string]interface{}{
		"id":             fmt.Sprintf("task_%d", len(tasks)+1),
		"description":    task,
		"status":         "pending",
		"dependencies":   []interface{}{},
		"assigned_agent": nil,
		"result":         nil,
	}
	state["tasks"] = append(tasks, entry)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode todo state")
	}
	return m.deps.Todo.Write(data)
}

func (m *Manager) todoSnapshot() string {
	if m.deps.Todo == nil {
		return ""
	}
	raw, err := m.deps.Todo.Read()
	if err != nil {
		return ""
	}
	return string(raw)
}

func (m *Manager) journalLog(action string, details map[string]interface{}) {
	if m.deps.Journal == nil {
		return
	}
	if err := m.deps.Journal.Log(action, details); err != nil {
		log.Debug().Err(err).Str("action", action).Msg("journal write failed")
	}
}

func (m *Manager) publishStatus(ctx context.Context, status, detail string) {
	meta := m.meta()
	meta.ID = uuid.New()
	events.PublishEventToContext(ctx, events.NewTaskStatusEvent(meta, status, tools.Truncate(detail, logLimit)))
}
