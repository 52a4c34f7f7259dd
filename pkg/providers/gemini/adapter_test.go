package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
)

func TestToWireContentsFoldsSystemIntoFirstUserTurn(t *testing.T) {
	contents := toWireContents([]chat.Message{
		chat.System("You are a researcher."),
		chat.User("Find go docs"),
		chat.User("and examples"),
	})

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "You are a researcher.\n\nFind go docs", contents[0].Parts[0].Text)
	assert.Equal(t, "and examples", contents[1].Parts[0].Text)
}

func TestToWireContentsMapsAssistantToModel(t *testing.T) {
	contents := toWireContents([]chat.Message{
		chat.User("hi"),
		chat.Assistant("hello"),
		chat.User("more"),
	})

	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}

func TestToWireContentsDropsEmptyAssistantAndToolTurns(t *testing.T) {
	contents := toWireContents([]chat.Message{
		chat.User("hi"),
		chat.Assistant("", chat.ToolCall{ID: "call_x", Function: chat.FunctionCall{Name: "x"}}),
		chat.ToolResult("call_x", "result"),
		chat.User("continue"),
	})

	require.Len(t, contents, 2)
	assert.Equal(t, "hi", contents[0].Parts[0].Text)
	assert.Equal(t, "continue", contents[1].Parts[0].Text)
}

func TestFromWireResponseJoinsTextParts(t *testing.T) {
	resp := &GenerateResponse{
		Candidates: []Candidate{{
			Content: &Content{
				Role:  "model",
				Parts: []Part{{Text: "first"}, {Text: "second"}},
			},
			FinishReason: "STOP",
		}},
		UsageMetadata: &UsageMetadata{PromptTokenCount: 5, CandidatesTokenCount: 2, TotalTokenCount: 7},
	}

	result, err := fromWireResponse(resp)
	require.NoError(t, err)

	first := result.First()
	require.NotNil(t, first)
	assert.Equal(t, "first second", first.Message.Content)
	assert.Equal(t, chat.FinishStop, first.FinishReason)
	assert.Equal(t, 5, result.Usage.PromptTokens)
	assert.Equal(t, 2, result.Usage.CompletionTokens)
	assert.Equal(t, 7, result.Usage.TotalTokens)
}

func TestFromWireResponseDerivesToolCallIDs(t *testing.T) {
	resp := &GenerateResponse{
		Candidates: []Candidate{{
			Content: &Content{
				Role: "model",
				Parts: []Part{{
					FunctionCall: &FunctionCall{
						Name: "web_search",
						Args: map[string]interface{}{"query": "golang"},
					},
				}},
			},
			FinishReason: "STOP",
		}},
	}

	result, err := fromWireResponse(resp)
	require.NoError(t, err)

	first := result.First()
	require.NotNil(t, first)
	require.Len(t, first.Message.ToolCalls, 1)
	call := first.Message.ToolCalls[0]
	assert.Equal(t, "call_web_search", call.ID)
	assert.Equal(t, "web_search", call.Function.Name)

	args, err := call.ArgumentsMap()
	require.NoError(t, err)
	assert.Equal(t, "golang", args["query"])
}

func TestFromWireResponseBlockedPromptBecomesContentFilter(t *testing.T) {
	resp := &GenerateResponse{
		PromptFeedback: &PromptFeedback{BlockReason: "SAFETY"},
	}

	result, err := fromWireResponse(resp)
	require.NoError(t, err)

	first := result.First()
	require.NotNil(t, first)
	assert.Equal(t, "", first.Message.Content)
	assert.Equal(t, chat.FinishContentFilter, first.FinishReason)
	assert.Equal(t, 0, result.Usage.TotalTokens)
}

func TestFromWireResponseNoCandidatesIsAnError(t *testing.T) {
	_, err := fromWireResponse(&GenerateResponse{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestNormalizeFinishReason(t *testing.T) {
	assert.Equal(t, chat.FinishStop, normalizeFinishReason("STOP"))
	assert.Equal(t, chat.FinishStop, normalizeFinishReason(""))
	assert.Equal(t, chat.FinishLength, normalizeFinishReason("MAX_TOKENS"))
	assert.Equal(t, chat.FinishContentFilter, normalizeFinishReason("SAFETY"))
	assert.Equal(t, chat.FinishToolCalls, normalizeFinishReason("TOOL_CALLS"))
	assert.Equal(t, chat.FinishStop, normalizeFinishReason("RECITATION"))
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL)
	client.AllowLocalNetworks = true
	return New("gemini-2.0-flash", WithClient(client))
}

func TestInvokeSendsKeyInHeaderAndModelInURL(t *testing.T) {
	var gotPath, gotKey, gotQuery string
	var gotBody GenerateRequest
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
		  "candidates": [{"content": {"role": "model", "parts": [{"text": "ok"}]}, "finishReason": "STOP"}],
		  "usageMetadata": {"promptTokenCount": 1, "candidatesTokenCount": 1, "totalTokenCount": 2}
		}`))
	})

	result, err := a.Invoke(context.Background(), "gm-key", providers.Request{
		Model:    "gemini-2.0-flash",
		Messages: []chat.Message{chat.User("hi")},
	})
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "gm-key", gotKey)
	assert.Empty(t, gotQuery)
	assert.InDelta(t, defaultTemperature, gotBody.GenerationConfig.Temperature, 0.0001)
	assert.Equal(t, defaultMaxOutputTokens, gotBody.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, "ok", result.First().Message.Content)
}

func TestInvokeMapsRateLimitError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`))
	})

	_, err := a.Invoke(context.Background(), "gm-key", providers.Request{
		Model:    "gemini-2.0-flash",
		Messages: []chat.Message{chat.User("hi")},
	})
	require.Error(t, err)
	assert.True(t, providers.IsRateLimit(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestInvokeSurfacesAPIErrors(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "invalid argument", "status": "INVALID_ARGUMENT"}}`))
	})

	_, err := a.Invoke(context.Background(), "gm-key", providers.Request{
		Model:    "gemini-2.0-flash",
		Messages: []chat.Message{chat.User("hi")},
	})
	require.Error(t, err)
	assert.False(t, providers.IsRateLimit(err))
	assert.Contains(t, err.Error(), "invalid argument")
}

func TestTransportErrorsNeverContainTheKey(t *testing.T) {
	// a refused port makes http.Client.Do fail with a *url.Error that
	// quotes the request URL; router retry logs and corrective transcript
	// messages carry that text, so the key must not be part of it
	client := NewClient("http://127.0.0.1:1")
	client.AllowLocalNetworks = true

	_, err := client.Generate(context.Background(), "gm-secret-key-123", "gemini-2.0-flash", &GenerateRequest{
		Contents: toWireContents([]chat.Message{chat.User("hi")}),
	})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "gm-secret-key-123")
}

func TestAdapterIdentity(t *testing.T) {
	a := New("gemini-2.0-flash")
	assert.Equal(t, "gemini", a.Name())
	assert.Equal(t, "gemini-2.0-flash", a.DefaultModel())
	assert.False(t, a.SupportsToolCalls())
}
