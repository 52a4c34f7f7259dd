package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/workspace"
)

// SubAgent runs one specialized task to completion and returns the
// result text.
type SubAgent interface {
	ExecuteTask(ctx context.Context, task, extra string) (string, error)
}

// Factory resolves agent types to sub-agent instances for the
// dispatch tool.
type Factory struct {
	mu     sync.RWMutex
	agents map[string]SubAgent
}

func NewFactory() *Factory {
	return &Factory{agents: map[string]SubAgent{}}
}

func (f *Factory) Register(agentType string, agent SubAgent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[agentType] = agent
}

func (f *Factory) Resolve(agentType string) (SubAgent, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	agent, ok := f.agents[agentType]
	return agent, ok
}

// Types lists the registered agent types, sorted.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.agents))
	for t := range f.agents {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

type dispatchParams struct {
	AgentType       string `json:"agent_type" jsonschema:"enum=researcher,enum=coder,enum=analyst,enum=critic,description=Type of sub-agent to dispatch"`
	TaskDescription string `json:"task_description" jsonschema:"description=Description of the task to execute"`
	Context         string `json:"context,omitempty" jsonschema:"description=Additional context for the task"`
}

// DispatchTool builds the dispatch_sub_agent tool over the factory.
// Dispatches and completions are journaled; the completion entry keeps
// a 200 character result summary. An unknown agent type comes back as
// a plain string so the model can correct itself.
func DispatchTool(factory *Factory, journal *workspace.Journal) (tools.Definition, error) {
	handler := func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var p dispatchParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, errors.Wrap(err, "invalid dispatch arguments")
		}

		agent, ok := factory.Resolve(p.AgentType)
		if !ok {
			return fmt.Sprintf("Unknown agent type: %s", p.AgentType), nil
		}

		journalLog(journal, "dispatch_"+p.AgentType, map[string]interface{}{
			"task":    p.TaskDescription,
			"context": p.Context,
		})

		result, err := agent.ExecuteTask(ctx, p.TaskDescription, p.Context)
		if err != nil {
			log.Error().Err(err).Str("agent_type", p.AgentType).Msg("sub-agent failed")
			return fmt.Sprintf("Sub-agent %s failed: %s", p.AgentType, err), nil
		}

		journalLog(journal, "completed_"+p.AgentType, map[string]interface{}{
			"task":           p.TaskDescription,
			"result_summary": tools.Truncate(result, logLimit),
		})
		return result, nil
	}

	return tools.NewDefinition(
		"dispatch_sub_agent",
		"Dispatch a task to a specialized sub-agent",
		dispatchParams{},
		handler,
	)
}

type updateTodoParams struct {
	TodoData string `json:"todo_data" jsonschema:"description=JSON string containing todo data"`
}

// UpdateTodoTool builds the update_todo tool over the workspace todo
// store. Write failures come back as result strings, not errors, so
// the model sees what was wrong with its document.
func UpdateTodoTool(store *workspace.TodoStore, journal *workspace.Journal) (tools.Definition, error) {
	handler := func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var p updateTodoParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, errors.Wrap(err, "invalid update_todo arguments")
		}

		if err := store.Write([]byte(p.TodoData)); err != nil {
			return fmt.Sprintf("Failed to update todo: %s", err), nil
		}

		tasksCount, status := store.Summary()
		journalLog(journal, "update_todo", map[string]interface{}{
			"tasks_count": tasksCount,
			"status":      status,
		})
		return "Todo file updated successfully", nil
	}

	return tools.NewDefinition(
		"update_todo",
		"Update the todo.json file with new tasks or status",
		updateTodoParams{},
		handler,
	)
}

func journalLog(j *workspace.Journal, action string, details map[string]interface{}) {
	if j == nil {
		return
	}
	if err := j.Log(action, details); err != nil {
		log.Debug().Err(err).Str("action", action).Msg("journal write failed")
	}
}
