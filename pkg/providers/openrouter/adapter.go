package openrouter

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultTimeout = 60 * time.Second

	// OpenRouter asks clients to identify themselves on every request.
	refererHeader = "https://github.com/go-go-golems/mangiafuoco"
	titleHeader   = "Mangiafuoco Task Orchestrator"
)

// Adapter serves the OpenAI-compatible OpenRouter endpoint. It proxies
// the non-Gemini model catalog and supports native tool calling.
type Adapter struct {
	baseURL      string
	defaultModel string
	timeout      time.Duration
}

type Option func(*Adapter)

func WithBaseURL(u string) Option {
	return func(a *Adapter) {
		a.baseURL = u
	}
}

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

func New(defaultModel string, options ...Option) *Adapter {
	a := &Adapter{
		baseURL:      DefaultBaseURL,
		defaultModel: defaultModel,
		timeout:      DefaultTimeout,
	}
	for _, o := range options {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string            { return providers.ProviderOpenRouter }
func (a *Adapter) DefaultModel() string    { return a.defaultModel }
func (a *Adapter) SupportsToolCalls() bool { return true }

var _ providers.Provider = &Adapter{}

// headerTransport injects the attribution headers OpenRouter wants on
// top of the default transport.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("HTTP-Referer", refererHeader)
	req.Header.Set("X-Title", titleHeader)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (a *Adapter) client(key string) *go_openai.Client {
	config := go_openai.DefaultConfig(key)
	config.BaseURL = a.baseURL
	config.HTTPClient = &http.Client{
		Timeout:   a.timeout,
		Transport: &headerTransport{},
	}
	return go_openai.NewClientWithConfig(config)
}

func (a *Adapter) Invoke(ctx context.Context, key string, req providers.Request) (*chat.CallResult, error) {
	oreq := go_openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toWireMessages(req.Messages),
	}
	if req.Temperature != nil {
		oreq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		oreq.MaxTokens = *req.MaxTokens
	}
	if len(req.Tools) > 0 {
		oreq.Tools = toWireTools(req.Tools)
		oreq.ToolChoice = "auto"
	}

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(oreq.Messages)).
		Int("tools", len(oreq.Tools)).
		Msg("openrouter chat completion request")

	resp, err := a.client(key).CreateChatCompletion(ctx, oreq)
	if err != nil {
		var apiErr *go_openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return nil, &providers.RateLimitError{
				Provider: providers.ProviderOpenRouter,
				Message:  apiErr.Message,
			}
		}
		return nil, errors.Wrap(err, "openrouter chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openrouter returned no choices")
	}

	return fromWireResponse(&resp), nil
}

func toWireMessages(msgs []chat.Message) []go_openai.ChatCompletionMessage {
	out := make([]go_openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := go_openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, c := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, go_openai.ToolCall{
				ID:   c.ID,
				Type: go_openai.ToolTypeFunction,
				Function: go_openai.FunctionCall{
					Name:      c.Function.Name,
					Arguments: c.Function.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toWireTools(decls []tools.Declaration) []go_openai.Tool {
	out := make([]go_openai.Tool, 0, len(decls))
	for _, d := range decls {
		out = append(out, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

func fromWireResponse(resp *go_openai.ChatCompletionResponse) *chat.CallResult {
	result := &chat.CallResult{
		Usage: chat.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		msg := chat.Message{
			Role:    chat.RoleAssistant,
			Content: c.Message.Content,
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
				ID: tc.ID,
				Function: chat.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		result.Choices = append(result.Choices, chat.Choice{
			Message:      msg,
			FinishReason: normalizeFinishReason(c.FinishReason),
		})
	}
	return result
}

func normalizeFinishReason(r go_openai.FinishReason) chat.FinishReason {
	switch r {
	case go_openai.FinishReasonStop:
		return chat.FinishStop
	case go_openai.FinishReasonLength:
		return chat.FinishLength
	case go_openai.FinishReasonToolCalls, go_openai.FinishReasonFunctionCall:
		return chat.FinishToolCalls
	case go_openai.FinishReasonContentFilter:
		return chat.FinishContentFilter
	default:
		if r != "" && r != go_openai.FinishReasonNull {
			log.Warn().Str("finish_reason", string(r)).Msg("unrecognized finish reason, treating as stop")
		}
		return chat.FinishStop
	}
}
