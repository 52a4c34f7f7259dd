package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
)

// Adapter runs chat completions against a local Ollama daemon. There is
// no API key and no tool calling, which makes it a useful offline stand-in
// for the hosted providers.
type Adapter struct {
	client       *api.Client
	defaultModel string
}

type Option func(*Adapter) error

func WithClient(c *api.Client) Option {
	return func(a *Adapter) error {
		a.client = c
		return nil
	}
}

func WithBaseURL(raw string) Option {
	return func(a *Adapter) error {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.Wrapf(err, "invalid ollama base URL %q", raw)
		}
		a.client = api.NewClient(u, http.DefaultClient)
		return nil
	}
}

func New(defaultModel string, options ...Option) (*Adapter, error) {
	a := &Adapter{defaultModel: defaultModel}
	for _, o := range options {
		if err := o(a); err != nil {
			return nil, err
		}
	}
	if a.client == nil {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, errors.Wrap(err, "could not create ollama client")
		}
		a.client = client
	}
	return a, nil
}

func (a *Adapter) Name() string            { return providers.ProviderOllama }
func (a *Adapter) DefaultModel() string    { return a.defaultModel }
func (a *Adapter) SupportsToolCalls() bool { return false }

var _ providers.Provider = &Adapter{}

// Invoke ignores the credential argument, the daemon is unauthenticated.
func (a *Adapter) Invoke(ctx context.Context, _ string, req providers.Request) (*chat.CallResult, error) {
	if len(req.Tools) > 0 {
		log.Debug().
			Int("tools", len(req.Tools)).
			Str("model", req.Model).
			Msg("ollama request drops tool declarations")
	}

	options := map[string]interface{}{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		options["num_predict"] = *req.MaxTokens
	}

	stream := false
	creq := &api.ChatRequest{
		Model:    req.Model,
		Messages: toWireMessages(req.Messages),
		Stream:   &stream,
		Options:  options,
	}

	var content strings.Builder
	var final api.ChatResponse
	err := a.client.Chat(ctx, creq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "ollama chat failed")
	}

	return &chat.CallResult{
		Choices: []chat.Choice{{
			Message: chat.Message{
				Role:    chat.RoleAssistant,
				Content: content.String(),
			},
			FinishReason: chat.FinishStop,
		}},
		Usage: chat.Usage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
		},
	}, nil
}

func toWireMessages(msgs []chat.Message) []api.Message {
	out := []api.Message{}
	for _, m := range msgs {
		if m.Role == chat.RoleTool {
			continue
		}
		if m.Role == chat.RoleAssistant && m.Content == "" {
			continue
		}
		out = append(out, api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}
