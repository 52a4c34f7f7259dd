package agents

import (
	"context"

	"github.com/go-go-golems/mangiafuoco/pkg/tools"
)

// Analyst examines data and findings in an iterative tool loop, using
// code execution and vector memory to back its conclusions.
type Analyst struct {
	taskID   string
	profile  Profile
	caller   Caller
	registry tools.Registry
}

func NewAnalyst(taskID string, profile Profile, caller Caller, registry tools.Registry) *Analyst {
	return &Analyst{
		taskID:   taskID,
		profile:  profile,
		caller:   caller,
		registry: registry,
	}
}

func (a *Analyst) ExecuteTask(ctx context.Context, task, extra string) (string, error) {
	prompt, err := renderPrompt(analystTaskTemplate, promptData{Task: task, Context: extra})
	if err != nil {
		return "", err
	}
	loop := NewLoop(AgentAnalyst, a.taskID, a.profile, analystSystemPrompt, a.caller, a.registry,
		WithMinContent(a.profile.MinContentLength, analystElaboratePrompt),
		WithFallbackResult(analystFallbackResult),
		WithContinueOnError(),
	)
	return loop.RunIterative(ctx, prompt)
}

var _ SubAgent = (*Analyst)(nil)
