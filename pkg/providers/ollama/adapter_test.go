package ollama

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

func TestToWireMessagesDropsToolAndEmptyAssistantTurns(t *testing.T) {
	msgs := toWireMessages([]chat.Message{
		chat.System("be brief"),
		chat.User("hi"),
		chat.Assistant("", chat.ToolCall{ID: "call_x", Function: chat.FunctionCall{Name: "x"}}),
		chat.ToolResult("call_x", "result"),
		chat.Assistant("hello"),
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "hello", msgs[2].Content)
}

func TestInvokeAgainstLocalDaemon(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"local answer"},"done":true,"prompt_eval_count":12,"eval_count":3}` + "\n"))
	}))
	t.Cleanup(srv.Close)

	a, err := New("llama3", WithBaseURL(srv.URL))
	require.NoError(t, err)

	temp := 0.3
	result, err := a.Invoke(context.Background(), "", providers.Request{
		Model:       "llama3",
		Messages:    []chat.Message{chat.User("hi")},
		Temperature: &temp,
	})
	require.NoError(t, err)

	first := result.First()
	require.NotNil(t, first)
	assert.Equal(t, "local answer", first.Message.Content)
	assert.Equal(t, chat.FinishStop, first.FinishReason)
	assert.Equal(t, 12, result.Usage.PromptTokens)
	assert.Equal(t, 3, result.Usage.CompletionTokens)
	assert.Equal(t, 15, result.Usage.TotalTokens)

	assert.Equal(t, false, gotBody["stream"])
	options := gotBody["options"].(map[string]interface{})
	assert.InDelta(t, 0.3, options["temperature"].(float64), 0.0001)
}

func TestAdapterIdentity(t *testing.T) {
	a, err := New("llama3", WithBaseURL("http://127.0.0.1:11434"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", a.Name())
	assert.Equal(t, "llama3", a.DefaultModel())
	assert.False(t, a.SupportsToolCalls())
}
