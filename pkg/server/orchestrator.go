package server

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/mangiafuoco/pkg/agents"
	"github.com/go-go-golems/mangiafuoco/pkg/config"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/files"
	"github.com/go-go-golems/mangiafuoco/pkg/memory"
	"github.com/go-go-golems/mangiafuoco/pkg/monitor"
	"github.com/go-go-golems/mangiafuoco/pkg/research"
	"github.com/go-go-golems/mangiafuoco/pkg/sandbox"
	"github.com/go-go-golems/mangiafuoco/pkg/workspace"
)

const embeddingCacheSize = 512

// TaskTypeResearch routes through the dedicated plan/gather/report
// pipeline; every other task type runs the iterative manager loop.
const TaskTypeResearch = "research"

// Outcome is the stored result of one finished task.
type Outcome struct {
	Report        string `json:"report"`
	ReportPath    string `json:"report_path,omitempty"`
	WorkspacePath string `json:"workspace_path,omitempty"`
	Pages         int    `json:"pages,omitempty"`
	Queries       int    `json:"queries,omitempty"`
	Redirected    bool   `json:"redirected,omitempty"`
}

// Runner executes one task to completion. The server talks to this
// interface; tests substitute scripted runners.
type Runner interface {
	ExecuteTask(ctx context.Context, taskID, description, taskType string) (*Outcome, error)
}

// Orchestrator assembles the per-task agent stack: workspace, monitor,
// collaborators, sub-agents and the manager, all sharing the
// process-wide provider router and event bus.
type Orchestrator struct {
	cfg      *config.Settings
	caller   agents.Caller
	bus      *events.Bus
	monitors *monitor.Registry
	profiles agents.Profiles
	store    memory.Store
}

var _ Runner = &Orchestrator{}

// NewOrchestrator wires the shared pieces. The vector memory store is
// process-wide and namespaced per task; it is nil when no embedding
// key is configured, which disables memory tools only.
func NewOrchestrator(cfg *config.Settings, caller agents.Caller, bus *events.Bus, monitors *monitor.Registry) (*Orchestrator, error) {
	profiles, err := agents.LoadProfiles()
	if err != nil {
		return nil, err
	}
	profiles = profiles.WithModels(cfg.Models.ForAgents())

	o := &Orchestrator{
		cfg:      cfg,
		caller:   caller,
		bus:      bus,
		monitors: monitors,
		profiles: profiles,
	}

	if cfg.Memory.OpenAIAPIKey != "" {
		embedder := memory.NewCachedEmbedder(
			memory.NewOpenAIEmbedder(cfg.Memory.OpenAIAPIKey, openai.SmallEmbedding3, 0),
			embeddingCacheSize,
		)
		if cfg.Memory.WeaviateURL != "" {
			u, err := url.Parse(cfg.Memory.WeaviateURL)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid weaviate url %s", cfg.Memory.WeaviateURL)
			}
			o.store = memory.NewWeaviateStore(u.Host, u.Scheme, embedder)
		} else {
			o.store = memory.NewInMemoryStore(embedder)
		}
	} else {
		log.Info().Msg("no embedding key configured, vector memory tools disabled")
	}

	return o, nil
}

// ExecuteTask builds the task's stack and runs it. Research tasks go
// through the dedicated pipeline; everything else runs the iterative
// manager loop with sub-agent dispatch.
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID, description, taskType string) (*Outcome, error) {
	w, err := workspace.Create(o.cfg.WorkspaceBase, description, taskID)
	if err != nil {
		return nil, err
	}
	journal := workspace.NewJournal(w)
	todo := workspace.NewTodoStore(w)

	mon := o.monitors.GetOrCreateWith(taskID, monitor.WithStore(workspace.NewMonitorStore(w)))
	mon.SetTask(description)

	fm, err := files.NewManager(w.Root())
	if err != nil {
		return nil, err
	}

	sandboxOptions := []sandbox.Option{}
	if o.cfg.Sandbox.PythonBinary != "" {
		sandboxOptions = append(sandboxOptions, sandbox.WithPythonBinary(o.cfg.Sandbox.PythonBinary))
	}
	runner, err := sandbox.NewRunner(w.Root(), sandboxOptions...)
	if err != nil {
		return nil, err
	}

	browser := research.NewWebResearcher(
		research.WithMonitor(mon),
		research.WithMaxPages(o.cfg.Research.MaxPages),
	)

	manager, err := o.buildManager(taskID, w, journal, todo, mon, fm, runner, browser)
	if err != nil {
		return nil, err
	}

	if o.bus != nil {
		ctx = events.WithEventSinks(ctx, o.bus.Sink(taskID))
	}

	if taskType == TaskTypeResearch {
		res, err := manager.ExecuteResearchTask(ctx, description)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Report:        res.Report,
			ReportPath:    res.ReportPath,
			WorkspacePath: w.Root(),
			Pages:         res.Pages,
			Queries:       res.Queries,
			Redirected:    res.Redirected,
		}, nil
	}

	report, err := manager.ExecuteTask(ctx, description, "")
	if err != nil {
		mon.MarkFailed(err.Error())
		return nil, err
	}
	mon.MarkCompleted()
	return &Outcome{Report: report, WorkspacePath: w.Root()}, nil
}

// buildManager registers the sub-agents with their role toolsets and
// hands the manager its dispatch surface.
func (o *Orchestrator) buildManager(
	taskID string,
	w *workspace.Workspace,
	journal *workspace.Journal,
	todo *workspace.TodoStore,
	mon *monitor.Monitor,
	fm *files.Manager,
	runner *sandbox.Runner,
	browser agents.Browser,
) (*agents.Manager, error) {
	factory := agents.NewFactory()

	researcher := agents.NewResearcher(taskID, o.profiles.Get(agents.AgentResearcher), o.caller, browser, o.store, w)
	factory.Register(agents.AgentResearcher, researcher)

	coderTools, err := agents.CoderToolset(fm, runner)
	if err != nil {
		return nil, err
	}
	factory.Register(agents.AgentCoder, agents.NewCoder(taskID, o.profiles.Get(agents.AgentCoder), o.caller, coderTools, runner))

	analystTools := coderTools
	if o.store != nil {
		analystTools, err = agents.AnalystToolset(fm, runner, o.store)
		if err != nil {
			return nil, err
		}
	}
	factory.Register(agents.AgentAnalyst, agents.NewAnalyst(taskID, o.profiles.Get(agents.AgentAnalyst), o.caller, analystTools))

	criticTools, err := agents.CriticToolset(fm, browser)
	if err != nil {
		return nil, err
	}
	factory.Register(agents.AgentCritic, agents.NewCritic(taskID, o.profiles.Get(agents.AgentCritic), o.caller, criticTools))

	managerTools, err := agents.ManagerToolset(browser, fm, runner, factory, todo, journal)
	if err != nil {
		return nil, err
	}

	deps := agents.ManagerDeps{
		Registry:  managerTools,
		Searcher:  browser,
		Monitor:   mon,
		Todo:      todo,
		Journal:   journal,
		Workspace: w,
		Reviewer:  agents.NewReviewer(taskID, o.profiles.Get(agents.AgentCritic), o.caller),
	}
	return agents.NewManager(taskID, o.profiles.Get(agents.AgentManager), o.caller, deps), nil
}
