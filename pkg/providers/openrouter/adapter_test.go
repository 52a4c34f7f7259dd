package openrouter

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
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
)

type capturedRequest struct {
	header http.Header
	body   map[string]interface{}
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.header = r.Header.Clone()
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		captured.body = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

const simpleResponse = `{
  "id": "gen-1",
  "choices": [
    {"message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}
  ],
  "usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
}`

func TestInvokeSendsAttributionHeaders(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, simpleResponse)
	a := New("openai/gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))

	_, err := a.Invoke(context.Background(), "sk-or-test", providers.Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []chat.Message{chat.User("hi")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-or-test", captured.header.Get("Authorization"))
	assert.Equal(t, refererHeader, captured.header.Get("HTTP-Referer"))
	assert.Equal(t, titleHeader, captured.header.Get("X-Title"))
}

func TestInvokeParsesResponse(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, simpleResponse)
	a := New("openai/gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))

	result, err := a.Invoke(context.Background(), "k", providers.Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []chat.Message{chat.User("hi")},
	})
	require.NoError(t, err)

	first := result.First()
	require.NotNil(t, first)
	assert.Equal(t, "hello there", first.Message.Content)
	assert.Equal(t, chat.FinishStop, first.FinishReason)
	assert.Equal(t, 12, result.Usage.PromptTokens)
	assert.Equal(t, 16, result.Usage.TotalTokens)
}

func TestInvokeOmitsToolsWhenNoneDeclared(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, simpleResponse)
	a := New("openai/gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))

	_, err := a.Invoke(context.Background(), "k", providers.Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []chat.Message{chat.User("hi")},
	})
	require.NoError(t, err)

	_, hasTools := captured.body["tools"]
	assert.False(t, hasTools)
	_, hasChoice := captured.body["tool_choice"]
	assert.False(t, hasChoice)
}

func TestInvokeDeclaresToolsWithAutoChoice(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, simpleResponse)
	a := New("openai/gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))

	type searchParams struct {
		Query string `json:"query" jsonschema:"required"`
	}
	decl := tools.Declaration{
		Name:        "web_search",
		Description: "Search the web",
		Parameters:  tools.ParamsSchema(searchParams{}),
	}

	_, err := a.Invoke(context.Background(), "k", providers.Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []chat.Message{chat.User("hi")},
		Tools:    []tools.Declaration{decl},
	})
	require.NoError(t, err)

	assert.Equal(t, "auto", captured.body["tool_choice"])
	declared, ok := captured.body["tools"].([]interface{})
	require.True(t, ok)
	require.Len(t, declared, 1)
	fn := declared[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "web_search", fn["name"])
	params := fn["parameters"].(map[string]interface{})
	assert.Equal(t, "object", params["type"])
}

func TestInvokeConvertsToolCallMessages(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, simpleResponse)
	a := New("openai/gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))

	call := chat.ToolCall{
		ID:       "call_1",
		Function: chat.FunctionCall{Name: "web_search", Arguments: `{"query":"go"}`},
	}
	_, err := a.Invoke(context.Background(), "k", providers.Request{
		Model: "openai/gpt-4o-mini",
		Messages: []chat.Message{
			chat.User("find go docs"),
			chat.Assistant("", call),
			chat.ToolResult("call_1", "https://go.dev"),
		},
	})
	require.NoError(t, err)

	msgs := captured.body["messages"].([]interface{})
	require.Len(t, msgs, 3)

	assistant := msgs[1].(map[string]interface{})
	calls := assistant["tool_calls"].([]interface{})
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].(map[string]interface{})["id"])

	toolMsg := msgs[2].(map[string]interface{})
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
	assert.Equal(t, "https://go.dev", toolMsg["content"])
}

func TestInvokeParsesToolCallResponse(t *testing.T) {
	response := `{
	  "id": "gen-2",
	  "choices": [
	    {
	      "message": {
	        "role": "assistant",
	        "content": "",
	        "tool_calls": [
	          {"id": "call_abc", "type": "function", "function": {"name": "web_search", "arguments": "{\"query\":\"golang\"}"}}
	        ]
	      },
	      "finish_reason": "tool_calls"
	    }
	  ],
	  "usage": {"prompt_tokens": 30, "completion_tokens": 10, "total_tokens": 40}
	}`
	srv, _ := newTestServer(t, http.StatusOK, response)
	a := New("openai/gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))

	result, err := a.Invoke(context.Background(), "k", providers.Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []chat.Message{chat.User("search golang")},
	})
	require.NoError(t, err)

	first := result.First()
	require.NotNil(t, first)
	assert.Equal(t, chat.FinishToolCalls, first.FinishReason)
	require.Len(t, first.Message.ToolCalls, 1)
	assert.Equal(t, "call_abc", first.Message.ToolCalls[0].ID)
	assert.Equal(t, "web_search", first.Message.ToolCalls[0].Function.Name)
	assert.True(t, result.HasToolCalls())
}

func TestInvokeMapsRateLimitError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusTooManyRequests,
		`{"error": {"message": "rate limit exceeded", "type": "rate_limit_error"}}`)
	a := New("openai/gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))

	_, err := a.Invoke(context.Background(), "k", providers.Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []chat.Message{chat.User("hi")},
	})
	require.Error(t, err)
	assert.True(t, providers.IsRateLimit(err))
}

func TestInvokeWrapsOtherAPIErrors(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError,
		`{"error": {"message": "upstream broke", "type": "server_error"}}`)
	a := New("openai/gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))

	_, err := a.Invoke(context.Background(), "k", providers.Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []chat.Message{chat.User("hi")},
	})
	require.Error(t, err)
	assert.False(t, providers.IsRateLimit(err))
}

func TestInvokeSendsSamplingParameters(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, simpleResponse)
	a := New("openai/gpt-4o-mini", WithBaseURL(srv.URL+"/v1"))

	temp := 0.2
	maxTokens := 1024
	_, err := a.Invoke(context.Background(), "k", providers.Request{
		Model:       "openai/gpt-4o-mini",
		Messages:    []chat.Message{chat.User("hi")},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.2, captured.body["temperature"].(float64), 0.0001)
	assert.Equal(t, float64(1024), captured.body["max_tokens"])
}

func TestNormalizeFinishReason(t *testing.T) {
	assert.Equal(t, chat.FinishStop, normalizeFinishReason("stop"))
	assert.Equal(t, chat.FinishLength, normalizeFinishReason("length"))
	assert.Equal(t, chat.FinishToolCalls, normalizeFinishReason("tool_calls"))
	assert.Equal(t, chat.FinishToolCalls, normalizeFinishReason("function_call"))
	assert.Equal(t, chat.FinishContentFilter, normalizeFinishReason("content_filter"))
	assert.Equal(t, chat.FinishStop, normalizeFinishReason("weird_reason"))
	assert.Equal(t, chat.FinishStop, normalizeFinishReason(""))
}

func TestAdapterIdentity(t *testing.T) {
	a := New("openai/gpt-4o-mini")
	assert.Equal(t, "openrouter", a.Name())
	assert.Equal(t, "openai/gpt-4o-mini", a.DefaultModel())
	assert.True(t, a.SupportsToolCalls())
}
