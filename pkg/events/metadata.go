package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Usage carries token accounting normalized across providers.
type Usage struct {
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
}

// LLMCallData consolidates per-call inference metadata for UI and storage.
type LLMCallData struct {
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	StopReason  *string  `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	Usage       *Usage   `json:"usage,omitempty" yaml:"usage,omitempty"`
	DurationMs  *int64   `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

// EventMetadata identifies where an event came from: which task, which
// agent, and for provider calls which model/provider served it.
type EventMetadata struct {
	LLMCallData
	ID       uuid.UUID `json:"id"`
	TaskID   string    `json:"task_id,omitempty"`
	Agent    string    `json:"agent,omitempty"`
	Provider string    `json:"provider,omitempty"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", em.ID.String())
	if em.TaskID != "" {
		e.Str("task_id", em.TaskID)
	}
	if em.Agent != "" {
		e.Str("agent", em.Agent)
	}
	if em.Provider != "" {
		e.Str("provider", em.Provider)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.StopReason != nil {
		e.Str("stop_reason", *em.StopReason)
	}
	if em.Usage != nil {
		e.Int("input_tokens", em.Usage.InputTokens)
		e.Int("output_tokens", em.Usage.OutputTokens)
	}
	if em.DurationMs != nil {
		e.Int64("duration_ms", *em.DurationMs)
	}
	if len(em.Extra) > 0 {
		b, err := json.Marshal(em.Extra)
		if err == nil {
			e.RawJSON("extra", b)
		}
	}
}
