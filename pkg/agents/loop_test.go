package agents

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
)

type stubCall struct {
	result *chat.CallResult
	err    error
}

// stubCaller replays scripted responses and records every request it
// received. When the script runs out it keeps returning repeat.
type stubCaller struct {
	mu     sync.Mutex
	calls  []providers.Request
	script []stubCall
	repeat *stubCall
}

func (s *stubCaller) Call(_ context.Context, _ string, req providers.Request) (*chat.CallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.script) > 0 {
		next := s.script[0]
		s.script = s.script[1:]
		return next.result, next.err
	}
	if s.repeat != nil {
		return s.repeat.result, s.repeat.err
	}
	return nil, errors.New("stub caller script exhausted")
}

func (s *stubCaller) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubCaller) lastRequest() providers.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func textResult(content string) *chat.CallResult {
	return &chat.CallResult{Choices: []chat.Choice{{
		Message:      chat.Assistant(content),
		FinishReason: chat.FinishStop,
	}}}
}

func lengthResult(content string) *chat.CallResult {
	return &chat.CallResult{Choices: []chat.Choice{{
		Message:      chat.Assistant(content),
		FinishReason: chat.FinishLength,
	}}}
}

func toolCallResult(id, name, args string) *chat.CallResult {
	return &chat.CallResult{Choices: []chat.Choice{{
		Message: chat.Assistant("", chat.ToolCall{
			ID:       id,
			Function: chat.FunctionCall{Name: name, Arguments: args},
		}),
		FinishReason: chat.FinishToolCalls,
	}}}
}

type echoParams struct {
	Text string `json:"text"`
}

func echoRegistry(t *testing.T) tools.Registry {
	t.Helper()
	registry := tools.NewInMemoryRegistry()
	def, err := tools.NewDefinition("echo", "Echo the text back", echoParams{},
		func(_ context.Context, args json.RawMessage) (interface{}, error) {
			var p echoParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, err
			}
			return p.Text, nil
		})
	require.NoError(t, err)
	require.NoError(t, registry.Register(def))
	return registry
}

func testProfile(maxSteps int) Profile {
	return Profile{Model: "test-model", Temperature: 0.2, MaxSteps: maxSteps}
}

// stubAgent is a scripted reviewer.
type stubAgent struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (s *stubAgent) ExecuteTask(_ context.Context, task, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, task)
	if len(s.replies) == 0 {
		return "", errors.New("stub agent has no reply")
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

func TestLoopReturnsAcceptedAnswer(t *testing.T) {
	caller := &stubCaller{script: []stubCall{{result: textResult("The answer is 42.")}}}
	loop := NewLoop(AgentCoder, "task_1", testProfile(5), "be helpful", caller, tools.NewInMemoryRegistry())

	result, err := loop.RunIterative(context.Background(), "compute the answer")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", result)
	assert.Equal(t, 1, caller.callCount())

	first := caller.calls[0]
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "be helpful", first.Messages[0].Content)
	assert.Equal(t, "compute the answer", first.Messages[1].Content)
	require.NotNil(t, first.Temperature)
	assert.InDelta(t, 0.2, *first.Temperature, 1e-9)
}

func TestLoopDispatchesToolCallsBeforeConcluding(t *testing.T) {
	caller := &stubCaller{script: []stubCall{
		{result: toolCallResult("call_1", "echo", `{"text":"ping"}`)},
		{result: textResult("done")},
	}}
	loop := NewLoop(AgentCoder, "task_1", testProfile(5), "", caller, echoRegistry(t))

	result, err := loop.RunIterative(context.Background(), "use the echo tool")
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	require.Equal(t, 2, caller.callCount())

	// The second request carries the dispatched tool result, correctly
	// paired with the assistant message that asked for it.
	transcript := caller.lastRequest().Messages
	require.NoError(t, chat.ValidateToolPairing(transcript))
	last := transcript[len(transcript)-1]
	assert.Equal(t, chat.RoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Equal(t, "ping", last.Content)
}

func TestLoopStopsWithinStepBudget(t *testing.T) {
	// A model that only ever asks for tools never produces an answer;
	// the loop must still return after exactly maxSteps provider calls.
	caller := &stubCaller{repeat: &stubCall{result: toolCallResult("call_1", "echo", `{"text":"again"}`)}}
	loop := NewLoop(AgentCoder, "task_1", testProfile(4), "", caller, echoRegistry(t),
		WithFallbackResult("Budget exhausted."))

	result, err := loop.RunIterative(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.Equal(t, 4, caller.callCount())
	assert.Equal(t, "Budget exhausted.", result)
}

func TestLoopExhaustionKeepsLastAssistantContent(t *testing.T) {
	caller := &stubCaller{script: []stubCall{
		{result: lengthResult("partial analysis")},
		{result: lengthResult("longer partial analysis")},
	}}
	loop := NewLoop(AgentAnalyst, "task_1", testProfile(2), "", caller, tools.NewInMemoryRegistry(),
		WithFallbackResult("fallback"))

	result, err := loop.RunIterative(context.Background(), "analyze")
	require.NoError(t, err)
	assert.Equal(t, "longer partial analysis", result)
}

func TestLoopCancellationReturnsCancelledResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	caller := &stubCaller{repeat: &stubCall{result: textResult("never used")}}
	loop := NewLoop(AgentManager, "task_1", testProfile(5), "", caller, tools.NewInMemoryRegistry())

	result, err := loop.RunIterative(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, CancelledResult, result)
	assert.Equal(t, 0, caller.callCount())
}

func TestLoopPropagatesProviderErrors(t *testing.T) {
	caller := &stubCaller{script: []stubCall{{err: errors.New("rate limited")}}}
	loop := NewLoop(AgentManager, "task_1", testProfile(5), "", caller, tools.NewInMemoryRegistry())

	_, err := loop.RunIterative(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestLoopContinueOnErrorFeedsErrorBack(t *testing.T) {
	caller := &stubCaller{script: []stubCall{
		{err: errors.New("boom")},
		{result: textResult("recovered answer")},
	}}
	loop := NewLoop(AgentCoder, "task_1", testProfile(5), "", caller, tools.NewInMemoryRegistry(),
		WithContinueOnError())

	result, err := loop.RunIterative(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "recovered answer", result)
	require.Equal(t, 2, caller.callCount())

	transcript := caller.lastRequest().Messages
	last := transcript[len(transcript)-1]
	assert.Equal(t, chat.RoleUser, last.Role)
	assert.Contains(t, last.Content, "An error occurred: boom")
}

func TestLoopAsksToElaborateOnShortAnswers(t *testing.T) {
	caller := &stubCaller{script: []stubCall{
		{result: textResult("done")},
		{result: textResult("a properly detailed final answer")},
	}}
	loop := NewLoop(AgentCritic, "task_1", testProfile(5), "", caller, tools.NewInMemoryRegistry(),
		WithMinContent(10, "Please elaborate."))

	result, err := loop.RunIterative(context.Background(), "evaluate")
	require.NoError(t, err)
	assert.Equal(t, "a properly detailed final answer", result)

	transcript := caller.lastRequest().Messages
	last := transcript[len(transcript)-1]
	assert.Equal(t, "Please elaborate.", last.Content)
}

func TestReflectionGateConfirmAcceptsCandidate(t *testing.T) {
	caller := &stubCaller{script: []stubCall{{result: textResult("The capital is Paris.")}}}
	critic := &stubAgent{replies: []string{"CONFIRM: looks good"}}
	loop := NewLoop(AgentManager, "task_1", testProfile(5), "", caller, tools.NewInMemoryRegistry(),
		WithGates(ReflectionGate(critic, "find the capital of France")))

	result, err := loop.RunIterative(context.Background(), "find the capital of France")
	require.NoError(t, err)
	assert.Equal(t, "The capital is Paris.", result)
	assert.Equal(t, 1, caller.callCount())

	require.Len(t, critic.prompts, 1)
	assert.Contains(t, critic.prompts[0], "find the capital of France")
	assert.Contains(t, critic.prompts[0], "The capital is Paris.")
}

func TestReflectionGateRejectionForcesAnotherTurn(t *testing.T) {
	caller := &stubCaller{script: []stubCall{
		{result: textResult("2 + 2 = 5")},
		{result: textResult("2 + 2 = 4")},
	}}
	critic := &stubAgent{replies: []string{"Fix the math", "CONFIRM"}}
	loop := NewLoop(AgentManager, "task_1", testProfile(5), "", caller, tools.NewInMemoryRegistry(),
		WithGates(ReflectionGate(critic, "add two and two")))

	result, err := loop.RunIterative(context.Background(), "add two and two")
	require.NoError(t, err)
	assert.Equal(t, "2 + 2 = 4", result)
	assert.Equal(t, 2, caller.callCount())

	// The critique came back as a corrective user turn.
	transcript := caller.lastRequest().Messages
	last := transcript[len(transcript)-1]
	assert.Equal(t, chat.RoleUser, last.Role)
	assert.Equal(t, "Fix the math", last.Content)
}

func TestConfirmsCompletion(t *testing.T) {
	cases := []struct {
		verdict string
		want    bool
	}{
		{"CONFIRM", true},
		{"confirm", true},
		{"  Confirm: the answer is complete", true},
		{"CONFIRMED, ship it", true},
		{"I cannot confirm this", false},
		{"CONF", false},
		{"", false},
		{"Fix the math", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ConfirmsCompletion(tc.verdict), "verdict %q", tc.verdict)
	}
}
