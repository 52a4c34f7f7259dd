package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
)

const (
	defaultTemperature     = 0.7
	defaultMaxOutputTokens = 64000
)

// Adapter serves Google's generateContent endpoint. Gemini has no
// OpenAI-compatible surface, so messages are reshaped both ways: system
// prompts fold into the first user turn and tool declarations are not
// sent at all.
type Adapter struct {
	client       *Client
	defaultModel string
}

type Option func(*Adapter)

func WithClient(c *Client) Option {
	return func(a *Adapter) {
		a.client = c
	}
}

func WithBaseURL(u string) Option {
	return func(a *Adapter) {
		a.client = NewClient(u)
	}
}

func New(defaultModel string, options ...Option) *Adapter {
	a := &Adapter{
		client:       NewClient(),
		defaultModel: defaultModel,
	}
	for _, o := range options {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string            { return providers.ProviderGemini }
func (a *Adapter) DefaultModel() string    { return a.defaultModel }
func (a *Adapter) SupportsToolCalls() bool { return false }

var _ providers.Provider = &Adapter{}

func (a *Adapter) Invoke(ctx context.Context, key string, req providers.Request) (*chat.CallResult, error) {
	greq := &GenerateRequest{
		Contents: toWireContents(req.Messages),
		GenerationConfig: GenerationConfig{
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
	}
	if req.Temperature != nil {
		greq.GenerationConfig.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		greq.GenerationConfig.MaxOutputTokens = *req.MaxTokens
	}
	if len(req.Tools) > 0 {
		log.Debug().
			Int("tools", len(req.Tools)).
			Str("model", req.Model).
			Msg("gemini request drops tool declarations")
	}

	log.Debug().
		Str("model", req.Model).
		Int("contents", len(greq.Contents)).
		Msg("gemini generateContent request")

	resp, err := a.client.Generate(ctx, key, req.Model, greq)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, &providers.RateLimitError{
				Provider: providers.ProviderGemini,
				Message:  apiErr.Error(),
			}
		}
		return nil, errors.Wrap(err, "gemini generateContent failed")
	}

	return fromWireResponse(resp)
}

// toWireContents reshapes an OpenAI-style transcript into Gemini turns.
// The first system prompt is prepended to the first user turn, empty
// assistant turns and tool results are dropped.
func toWireContents(msgs []chat.Message) []Content {
	var system string
	for _, m := range msgs {
		if m.Role == chat.RoleSystem {
			system = m.Content
			break
		}
	}

	out := []Content{}
	for _, m := range msgs {
		switch m.Role {
		case chat.RoleSystem:
			continue
		case chat.RoleUser:
			content := m.Content
			if system != "" && len(out) == 0 {
				content = system + "\n\n" + content
				system = ""
			}
			out = append(out, Content{Role: "user", Parts: []Part{{Text: content}}})
		case chat.RoleAssistant:
			if m.Content != "" {
				out = append(out, Content{Role: "model", Parts: []Part{{Text: m.Content}}})
			}
		case chat.RoleTool:
			// generateContent has no slot for tool results in this shape.
			continue
		}
	}
	return out
}

func fromWireResponse(resp *GenerateResponse) (*chat.CallResult, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			log.Warn().
				Str("block_reason", resp.PromptFeedback.BlockReason).
				Msg("gemini blocked prompt")
			return &chat.CallResult{
				Choices: []chat.Choice{{
					Message:      chat.Message{Role: chat.RoleAssistant},
					FinishReason: chat.FinishContentFilter,
				}},
			}, nil
		}
		return nil, errors.New("no candidates in gemini response")
	}

	candidate := resp.Candidates[0]
	msg := chat.Message{Role: chat.RoleAssistant}
	if candidate.Content != nil {
		var textParts []string
		for _, p := range candidate.Content.Parts {
			if p.Text != "" {
				textParts = append(textParts, p.Text)
			}
			if p.FunctionCall != nil {
				args, err := json.Marshal(p.FunctionCall.Args)
				if err != nil {
					args = []byte("{}")
				}
				msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
					// Gemini does not assign call ids, so one is derived
					// from the function name.
					ID: "call_" + p.FunctionCall.Name,
					Function: chat.FunctionCall{
						Name:      p.FunctionCall.Name,
						Arguments: string(args),
					},
				})
			}
		}
		msg.Content = strings.Join(textParts, " ")
	}

	result := &chat.CallResult{
		Choices: []chat.Choice{{
			Message:      msg,
			FinishReason: normalizeFinishReason(candidate.FinishReason),
		}},
	}
	if resp.UsageMetadata != nil {
		result.Usage = chat.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

func normalizeFinishReason(r string) chat.FinishReason {
	switch r {
	case "STOP", "":
		return chat.FinishStop
	case "MAX_TOKENS":
		return chat.FinishLength
	case "SAFETY":
		return chat.FinishContentFilter
	case "TOOL_CALLS":
		return chat.FinishToolCalls
	default:
		log.Warn().Str("finish_reason", r).Msg("unrecognized finish reason, treating as stop")
		return chat.FinishStop
	}
}
