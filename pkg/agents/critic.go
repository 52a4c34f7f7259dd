package agents

import (
	"context"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
)

// Critic evaluates work produced by other agents in an iterative tool
// loop, reading workspace files and checking claims against the web.
type Critic struct {
	taskID   string
	profile  Profile
	caller   Caller
	registry tools.Registry
}

func NewCritic(taskID string, profile Profile, caller Caller, registry tools.Registry) *Critic {
	return &Critic{
		taskID:   taskID,
		profile:  profile,
		caller:   caller,
		registry: registry,
	}
}

func (c *Critic) ExecuteTask(ctx context.Context, task, extra string) (string, error) {
	prompt, err := renderPrompt(criticTaskTemplate, promptData{Task: task, Context: extra})
	if err != nil {
		return "", err
	}
	loop := NewLoop(AgentCritic, c.taskID, c.profile, criticSystemPrompt, c.caller, c.registry,
		WithMinContent(c.profile.MinContentLength, criticElaboratePrompt),
		WithFallbackResult(criticFallbackResult),
		WithContinueOnError(),
	)
	return loop.RunIterative(ctx, prompt)
}

// Reviewer wraps the critic model for one-shot answer reviews. It skips
// the critic's evaluation scaffold and tool loop so a short CONFIRM
// verdict is a valid reply.
type Reviewer struct {
	taskID  string
	profile Profile
	caller  Caller
}

func NewReviewer(taskID string, profile Profile, caller Caller) *Reviewer {
	return &Reviewer{taskID: taskID, profile: profile, caller: caller}
}

func (r *Reviewer) ExecuteTask(ctx context.Context, task, extra string) (string, error) {
	_ = extra
	temperature := r.profile.Temperature
	choice, err := callModel(ctx, r.caller,
		events.EventMetadata{TaskID: r.taskID, Agent: AgentCritic},
		providers.Request{
			Model:       r.profile.Model,
			Messages:    []chat.Message{chat.System(criticSystemPrompt), chat.User(task)},
			Temperature: &temperature,
		})
	if err != nil {
		return "", err
	}
	return choice.Message.Content, nil
}

var (
	_ SubAgent = (*Critic)(nil)
	_ SubAgent = (*Reviewer)(nil)
)
