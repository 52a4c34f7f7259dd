package events

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

type EventType string

const (
	// Provider call boundaries.
	EventTypeLLMRequest  EventType = "llm-request"
	EventTypeLLMResponse EventType = "llm-response"

	// Tool execution boundaries, emitted by the dispatcher.
	EventTypeToolStart EventType = "tool-start"
	EventTypeToolEnd   EventType = "tool-end"

	// Agent loop lifecycle.
	EventTypeAgentStart EventType = "agent-start"
	EventTypeAgentEnd   EventType = "agent-end"

	// Task level progress, mirrored onto the monitor state.
	EventTypeTaskStatus EventType = "task-status"
	EventTypeRedirect   EventType = "redirect"

	EventTypeError EventType = "error"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Error_    string        `json:"error,omitempty"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw JSON set when the event was decoded from the wire, see NewEventFromJson
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

// SetPayload stores the raw JSON the event was decoded from.
func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	if e.Error_ != "" {
		ev.Str("error", e.Error_)
	}
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

// EventLLMRequest marks a provider call about to be issued.
type EventLLMRequest struct {
	EventImpl
	MessageCount    int `json:"message_count"`
	ToolCount       int `json:"tool_count"`
	EstimatedTokens int `json:"estimated_tokens,omitempty"`
}

func NewLLMRequestEvent(metadata EventMetadata, messageCount, toolCount, estimatedTokens int) *EventLLMRequest {
	return &EventLLMRequest{
		EventImpl: EventImpl{
			Type_:     EventTypeLLMRequest,
			Metadata_: metadata,
		},
		MessageCount:    messageCount,
		ToolCount:       toolCount,
		EstimatedTokens: estimatedTokens,
	}
}

var _ Event = &EventLLMRequest{}

// ToolCallInfo is the id/name pair of one requested tool invocation,
// carried on response events so consumers can follow the call flow.
type ToolCallInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EventLLMResponse marks a provider call that returned.
type EventLLMResponse struct {
	EventImpl
	Content      string         `json:"content,omitempty"`
	FinishReason string         `json:"finish_reason"`
	ToolCalls    []ToolCallInfo `json:"tool_calls,omitempty"`
}

func NewLLMResponseEvent(metadata EventMetadata, content, finishReason string, toolCalls []ToolCallInfo) *EventLLMResponse {
	return &EventLLMResponse{
		EventImpl: EventImpl{
			Type_:     EventTypeLLMResponse,
			Metadata_: metadata,
		},
		Content:      content,
		FinishReason: finishReason,
		ToolCalls:    toolCalls,
	}
}

var _ Event = &EventLLMResponse{}

// EventToolStart marks a tool handler about to run.
type EventToolStart struct {
	EventImpl
	Name      string `json:"name"`
	CallID    string `json:"call_id"`
	Arguments string `json:"arguments,omitempty"`
}

func NewToolStartEvent(metadata EventMetadata, callID, name, arguments string) *EventToolStart {
	return &EventToolStart{
		EventImpl: EventImpl{
			Type_:     EventTypeToolStart,
			Metadata_: metadata,
		},
		Name:      name,
		CallID:    callID,
		Arguments: arguments,
	}
}

var _ Event = &EventToolStart{}

// EventToolEnd marks a tool handler that finished. Result is truncated
// by the dispatcher before it gets here.
type EventToolEnd struct {
	EventImpl
	Name       string `json:"name"`
	CallID     string `json:"call_id"`
	Result     string `json:"result,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Failed     bool   `json:"failed,omitempty"`
}

func NewToolEndEvent(metadata EventMetadata, callID, name, result string, durationMs int64, failed bool) *EventToolEnd {
	return &EventToolEnd{
		EventImpl: EventImpl{
			Type_:     EventTypeToolEnd,
			Metadata_: metadata,
		},
		Name:       name,
		CallID:     callID,
		Result:     result,
		DurationMs: durationMs,
		Failed:     failed,
	}
}

var _ Event = &EventToolEnd{}

// EventAgentStart marks an agent loop starting on a task description.
type EventAgentStart struct {
	EventImpl
	Agent string `json:"agent"`
	Task  string `json:"task"`
}

func NewAgentStartEvent(metadata EventMetadata, agent, task string) *EventAgentStart {
	return &EventAgentStart{
		EventImpl: EventImpl{
			Type_:     EventTypeAgentStart,
			Metadata_: metadata,
		},
		Agent: agent,
		Task:  task,
	}
}

var _ Event = &EventAgentStart{}

// EventAgentEnd marks an agent loop returning, with the step count it used.
type EventAgentEnd struct {
	EventImpl
	Agent  string `json:"agent"`
	Result string `json:"result,omitempty"`
	Steps  int    `json:"steps"`
}

func NewAgentEndEvent(metadata EventMetadata, agent, result string, steps int) *EventAgentEnd {
	return &EventAgentEnd{
		EventImpl: EventImpl{
			Type_:     EventTypeAgentEnd,
			Metadata_: metadata,
		},
		Agent:  agent,
		Result: result,
		Steps:  steps,
	}
}

var _ Event = &EventAgentEnd{}

// EventTaskStatus reports a task status transition.
type EventTaskStatus struct {
	EventImpl
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func NewTaskStatusEvent(metadata EventMetadata, status, detail string) *EventTaskStatus {
	return &EventTaskStatus{
		EventImpl: EventImpl{
			Type_:     EventTypeTaskStatus,
			Metadata_: metadata,
		},
		Status: status,
		Detail: detail,
	}
}

var _ Event = &EventTaskStatus{}

// EventRedirect reports the monitor steering a deviated task back.
type EventRedirect struct {
	EventImpl
	Instructions   string `json:"instructions"`
	DeviationCount int    `json:"deviation_count"`
}

func NewRedirectEvent(metadata EventMetadata, instructions string, deviationCount int) *EventRedirect {
	return &EventRedirect{
		EventImpl: EventImpl{
			Type_:     EventTypeRedirect,
			Metadata_: metadata,
		},
		Instructions:   instructions,
		DeviationCount: deviationCount,
	}
}

var _ Event = &EventRedirect{}

type EventError struct {
	EventImpl
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &EventError{
		EventImpl: EventImpl{
			Type_:     EventTypeError,
			Error_:    msg,
			Metadata_: metadata,
		},
	}
}

func (e *EventError) ErrorString() string {
	return e.Error_
}

var _ Event = &EventError{}

// NewEventFromJson decodes a wire event into its typed form.
func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	e.payload = b

	typed, err := decodeTyped(e)
	if err != nil {
		return nil, err
	}
	// reattach the raw JSON, ToTypedEvent re-unmarshals into a fresh struct
	if setter, ok := typed.(interface{ SetPayload([]byte) }); ok {
		setter.SetPayload(b)
	}
	return typed, nil
}

func decodeTyped(e *EventImpl) (Event, error) {
	switch e.Type_ {
	case EventTypeLLMRequest:
		ret, ok := ToTypedEvent[EventLLMRequest](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventLLMRequest")
		}
		return ret, nil
	case EventTypeLLMResponse:
		ret, ok := ToTypedEvent[EventLLMResponse](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventLLMResponse")
		}
		return ret, nil
	case EventTypeToolStart:
		ret, ok := ToTypedEvent[EventToolStart](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventToolStart")
		}
		return ret, nil
	case EventTypeToolEnd:
		ret, ok := ToTypedEvent[EventToolEnd](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventToolEnd")
		}
		return ret, nil
	case EventTypeAgentStart:
		ret, ok := ToTypedEvent[EventAgentStart](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventAgentStart")
		}
		return ret, nil
	case EventTypeAgentEnd:
		ret, ok := ToTypedEvent[EventAgentEnd](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventAgentEnd")
		}
		return ret, nil
	case EventTypeTaskStatus:
		ret, ok := ToTypedEvent[EventTaskStatus](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventTaskStatus")
		}
		return ret, nil
	case EventTypeRedirect:
		ret, ok := ToTypedEvent[EventRedirect](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventRedirect")
		}
		return ret, nil
	case EventTypeError:
		ret, ok := ToTypedEvent[EventError](e)
		if !ok {
			return nil, fmt.Errorf("could not cast event to EventError")
		}
		return ret, nil
	}

	return e, nil
}

func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	err := json.Unmarshal(e.Payload(), &ret)
	if err != nil {
		return nil, false
	}

	return ret, true
}
