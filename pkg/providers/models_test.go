package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanModelName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"google/gemini-2.0-flash", "gemini-2.0-flash"},
		{"openai/gpt-4o-mini", "gpt-4o-mini"},
		{"gemini-2.0-flash", "gemini-2.0-flash"},
		{"ollama/llama3", "llama3"},
		{"anthropic/claude-3-haiku", "anthropic/claude-3-haiku"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CleanModelName(c.in), "input %q", c.in)
	}
}

func TestProviderForModel(t *testing.T) {
	assert.Equal(t, ProviderGemini, ProviderForModel("gemini-2.0-flash"))
	assert.Equal(t, ProviderGemini, ProviderForModel("google/gemini-1.5-pro"))
	assert.Equal(t, ProviderOpenRouter, ProviderForModel("openai/gpt-4o-mini"))
	assert.Equal(t, ProviderOpenRouter, ProviderForModel("meta-llama/llama-3-8b-instruct"))
	assert.Equal(t, ProviderOllama, ProviderForModel("ollama/llama3"))
	assert.Equal(t, ProviderOpenRouter, ProviderForModel("google/gemma-7b-it"),
		"gemma is not gemini and routes through openrouter")
}
