package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
)

// CancelledResult is returned when the loop notices its context is done.
// Cancellation is cooperative: it takes effect at the next turn boundary
// and never rolls back tool calls that already ran.
const CancelledResult = "Task cancelled"

// logLimit caps result excerpts on events and log lines.
const logLimit = 200

// Caller issues one provider call. Satisfied by providers.Router;
// tests substitute scripted implementations.
type Caller interface {
	Call(ctx context.Context, provider string, req providers.Request) (*chat.CallResult, error)
}

// Gate inspects a candidate final answer once the model stops without
// tool calls. Accepting ends the loop; rejecting feeds the returned
// message back as a corrective user turn and the loop continues.
type Gate func(ctx context.Context, candidate string) (accepted bool, feedback string)

// Loop drives one transcript against a provider until the model
// produces an accepted answer or the step budget runs out. One Loop
// serves one task invocation; transcripts are not reused.
type Loop struct {
	agent       string
	model       string
	temperature float64
	maxTokens   int
	maxSteps    int
	system      string

	caller     Caller
	registry   tools.Registry
	dispatcher *tools.Dispatcher

	gates           []Gate
	minContent      int
	elaboratePrompt string
	fallbackResult  string
	continueOnError bool

	meta events.EventMetadata
}

type LoopOption func(*Loop)

// WithGates appends completion gates, checked in order on every
// candidate answer.
func WithGates(gates ...Gate) LoopOption {
	return func(l *Loop) {
		l.gates = append(l.gates, gates...)
	}
}

// WithMinContent rejects answers of n characters or fewer, asking the
// model to elaborate with the given prompt instead of finishing.
func WithMinContent(n int, elaboratePrompt string) LoopOption {
	return func(l *Loop) {
		l.minContent = n
		l.elaboratePrompt = elaboratePrompt
	}
}

// WithFallbackResult sets what the loop returns when the budget runs
// out before the model produced any assistant content.
func WithFallbackResult(s string) LoopOption {
	return func(l *Loop) {
		l.fallbackResult = s
	}
}

// WithContinueOnError turns provider failures into corrective user
// turns instead of aborting the loop. Sub-agents use this so a flaky
// call costs one turn, not the whole task.
func WithContinueOnError() LoopOption {
	return func(l *Loop) {
		l.continueOnError = true
	}
}

func WithMaxTokens(n int) LoopOption {
	return func(l *Loop) {
		l.maxTokens = n
	}
}

// NewLoop builds a loop for one agent role. The registry holds the
// tools declared to the model; pass an empty registry for a loop
// without tools.
func NewLoop(agent, taskID string, profile Profile, system string, caller Caller, registry tools.Registry, options ...LoopOption) *Loop {
	meta := events.EventMetadata{TaskID: taskID, Agent: agent}
	l := &Loop{
		agent:       agent,
		model:       profile.Model,
		temperature: profile.Temperature,
		maxSteps:    profile.MaxSteps,
		system:      system,
		caller:      caller,
		registry:    registry,
		dispatcher:  tools.NewDispatcher(registry, meta),
		meta:        meta,
	}
	for _, o := range options {
		o(l)
	}
	if l.maxSteps <= 0 {
		l.maxSteps = 1
	}
	return l
}

// RunIterative executes the turn loop on the given task prompt.
//
// Each turn calls the provider with the transcript and the declared
// tools. Tool calls are dispatched sequentially in response order so
// tool messages stay id-correlated with the assistant message that
// requested them, and the loop always continues after tools: the model
// must observe the outputs before it may conclude. A plain stop answer
// has to pass the content-length check and every gate; rejected answers
// come back as user turns. When the budget is exhausted the last
// assistant content is returned as a best-effort result, never an
// error.
func (l *Loop) RunIterative(ctx context.Context, task string) (string, error) {
	transcript := make([]chat.Message, 0, 8)
	if l.system != "" {
		transcript = append(transcript, chat.System(l.system))
	}
	transcript = append(transcript, chat.User(task))

	l.publishStart(ctx, task)

	steps := 0
	for ; steps < l.maxSteps; steps++ {
		if ctx.Err() != nil {
			l.publishEnd(ctx, CancelledResult, steps)
			return CancelledResult, nil
		}

		choice, err := l.step(ctx, transcript)
		if err != nil {
			if !l.continueOnError {
				l.publishEnd(ctx, "", steps+1)
				return "", err
			}
			log.Warn().Err(err).Str("agent", l.agent).Msg("provider call failed, feeding error back")
			transcript = append(transcript,
				chat.User(fmt.Sprintf("An error occurred: %s. Please continue with alternative approaches or debug the issue.", err)))
			continue
		}

		msg := choice.Message
		transcript = append(transcript, msg)

		if len(msg.ToolCalls) > 0 {
			for _, call := range msg.ToolCalls {
				result := l.dispatcher.Execute(ctx, call)
				transcript = append(transcript, chat.ToolResult(call.ID, result))
			}
			continue
		}

		if choice.FinishReason != chat.FinishStop {
			continue
		}

		if l.minContent > 0 && len(msg.Content) <= l.minContent {
			transcript = append(transcript, chat.User(l.elaboratePrompt))
			continue
		}

		if feedback, rejected := l.reject(ctx, msg.Content); rejected {
			transcript = append(transcript, chat.User(feedback))
			continue
		}

		l.publishEnd(ctx, msg.Content, steps+1)
		return msg.Content, nil
	}

	result := chat.LastAssistantContent(transcript)
	if result == "" {
		result = l.fallbackResult
	}
	log.Info().
		Str("agent", l.agent).
		Int("steps", steps).
		Msg("step budget exhausted, returning last assistant content")
	l.publishEnd(ctx, result, steps)
	return result, nil
}

func (l *Loop) reject(ctx context.Context, candidate string) (string, bool) {
	for _, gate := range l.gates {
		if accepted, feedback := gate(ctx, candidate); !accepted {
			return feedback, true
		}
	}
	return "", false
}

// step performs one provider call with the declared tools.
func (l *Loop) step(ctx context.Context, transcript []chat.Message) (chat.Choice, error) {
	temperature := l.temperature
	req := providers.Request{
		Model:       l.model,
		Messages:    transcript,
		Tools:       l.registry.Declarations(),
		Temperature: &temperature,
	}
	if l.maxTokens > 0 {
		maxTokens := l.maxTokens
		req.MaxTokens = &maxTokens
	}
	return callModel(ctx, l.caller, l.meta, req)
}

// callModel issues one provider call, bracketing it with request and
// response events so the full conversation is observable on the bus.
func callModel(ctx context.Context, caller Caller, meta events.EventMetadata, req providers.Request) (chat.Choice, error) {
	meta.ID = uuid.New()
	meta.Model = req.Model
	events.PublishEventToContext(ctx, events.NewLLMRequestEvent(
		meta, len(req.Messages), len(req.Tools), chat.EstimateTokens(req.Messages, req.Model)))

	start := time.Now()
	result, err := caller.Call(ctx, "", req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		meta.ID = uuid.New()
		events.PublishEventToContext(ctx, events.NewErrorEvent(meta, err))
		return chat.Choice{}, err
	}

	choice := result.First()

	meta.ID = uuid.New()
	meta.DurationMs = &durationMs
	meta.Usage = &events.Usage{
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}
	stopReason := string(choice.FinishReason)
	meta.StopReason = &stopReason
	var calls []events.ToolCallInfo
	for _, c := range choice.Message.ToolCalls {
		calls = append(calls, events.ToolCallInfo{ID: c.ID, Name: c.Function.Name})
	}
	events.PublishEventToContext(ctx, events.NewLLMResponseEvent(
		meta, choice.Message.Content, string(choice.FinishReason), calls))

	log.Debug().
		Str("agent", meta.Agent).
		Str("model", req.Model).
		Str("finish_reason", string(choice.FinishReason)).
		Int("tool_calls", len(choice.Message.ToolCalls)).
		Int64("duration_ms", durationMs).
		Msg("provider call returned")

	return choice, nil
}

func (l *Loop) publishStart(ctx context.Context, task string) {
	meta := l.meta
	meta.ID = uuid.New()
	events.PublishEventToContext(ctx, events.NewAgentStartEvent(meta, l.agent, tools.Truncate(task, logLimit)))
}

func (l *Loop) publishEnd(ctx context.Context, result string, steps int) {
	meta := l.meta
	meta.ID = uuid.New()
	events.PublishEventToContext(ctx, events.NewAgentEndEvent(meta, l.agent, tools.Truncate(result, logLimit), steps))
}

// ConfirmsCompletion reports whether a review verdict accepts the
// candidate answer: the verdict starts with CONFIRM, case-insensitive,
// leading whitespace tolerated.
func ConfirmsCompletion(verdict string) bool {
	trimmed := strings.TrimSpace(verdict)
	return len(trimmed) >= len("confirm") && strings.EqualFold(trimmed[:len("confirm")], "confirm")
}

// ReflectionGate reviews candidate answers through the critic. The
// candidate passes when the critique opens with CONFIRM; otherwise the
// critique itself becomes the corrective turn. Review failures accept
// the candidate rather than discard a finished answer.
func ReflectionGate(critic SubAgent, task string) Gate {
	return func(ctx context.Context, candidate string) (bool, string) {
		prompt, err := renderPrompt(reviewTemplate, promptData{Task: task, Context: candidate})
		if err != nil {
			log.Warn().Err(err).Msg("could not render review prompt, accepting candidate")
			return true, ""
		}
		verdict, err := critic.ExecuteTask(ctx, prompt, "")
		if err != nil {
			log.Warn().Err(err).Msg("review failed, accepting candidate answer")
			return true, ""
		}
		if ConfirmsCompletion(verdict) {
			return true, ""
		}
		return false, verdict
	}
}
