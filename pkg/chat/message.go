package chat

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason is the normalized reason a provider stopped generating.
// Provider-specific values are mapped onto these four by the adapters;
// anything unrecognized degrades to FinishStop.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
)

// FunctionCall carries the name and arguments of a requested tool
// invocation. Arguments is always a JSON-encoded string, even when a
// provider returns structured arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a provider request to invoke a registered tool. The ID
// correlates the eventual tool result message back to this call.
type ToolCall struct {
	ID       string       `json:"id"`
	Function FunctionCall `json:"function"`
}

// Message is one entry in a conversation transcript. ToolCalls is only
// set on assistant messages; ToolCallID only on tool messages, where it
// must reference a call from the nearest preceding assistant message.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func Assistant(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResult builds the tool message answering the call with the given id.
func ToolResult(callID string, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

func (m Message) MarshalZerologObject(e *zerolog.Event) {
	e.Str("role", string(m.Role)).Int("content_length", len(m.Content))
	if len(m.ToolCalls) > 0 {
		e.Int("tool_calls", len(m.ToolCalls))
	}
	if m.ToolCallID != "" {
		e.Str("tool_call_id", m.ToolCallID)
	}
}

// ArgumentsMap decodes the call's JSON argument string.
func (c ToolCall) ArgumentsMap() (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if c.Function.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(c.Function.Arguments), &args); err != nil {
		return nil, errors.Wrapf(err, "tool call %s: invalid arguments", c.ID)
	}
	return args, nil
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u Usage) MarshalZerologObject(e *zerolog.Event) {
	e.Int("prompt_tokens", u.PromptTokens).
		Int("completion_tokens", u.CompletionTokens).
		Int("total_tokens", u.TotalTokens)
}

// Choice is one candidate completion.
type Choice struct {
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// CallResult is the normalized result of a provider call. Adapters
// guarantee at least one choice on success.
type CallResult struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// First returns the first choice. Adapters never return an empty choice
// list, but a zero Choice comes back if one does.
func (r *CallResult) First() Choice {
	if r == nil || len(r.Choices) == 0 {
		return Choice{}
	}
	return r.Choices[0]
}

// HasToolCalls reports whether the first choice requests tool invocations.
func (r *CallResult) HasToolCalls() bool {
	return len(r.First().Message.ToolCalls) > 0
}
