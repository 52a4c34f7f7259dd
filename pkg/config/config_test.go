package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanAPIKeysSplitsAndFilters(t *testing.T) {
	raw := "sk-or-v1-abcdef123456,\n  sk-or-v1-ghijkl789012 ,key1,short,,key2"
	keys := CleanAPIKeys(raw)
	assert.Equal(t, []string{"sk-or-v1-abcdef123456", "sk-or-v1-ghijkl789012"}, keys)
}

func TestCleanAPIKeysHandlesMultilineEnvFormat(t *testing.T) {
	raw := "AIzaSyFirstKey0001,\nAIzaSySecondKey0002,\n\tAIzaSyThirdKey00003"
	keys := CleanAPIKeys(raw)
	assert.Len(t, keys, 3)
	assert.Equal(t, "AIzaSyFirstKey0001", keys[0])
}

func TestCleanAPIKeysEmpty(t *testing.T) {
	assert.Nil(t, CleanAPIKeys(""))
	assert.Nil(t, CleanAPIKeys("key1,key2"))
}

func TestLoadBindsEnvironment(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEYS", "sk-or-v1-abcdef123456")
	t.Setenv("GEMINI_API_KEYS", "AIzaSyTestKey000001,AIzaSyTestKey000002")
	t.Setenv("DEFAULT_GEMINI_MODEL", "gemini-2.0-flash")
	t.Setenv("DEFAULT_OPENROUTER_MODEL", "qwen/qwen-2.5-72b-instruct")
	t.Setenv("CODER_MODEL", "deepseek/deepseek-chat")
	t.Setenv("MAX_CODE_EXECUTION_TIME", "45")
	t.Setenv("SERVER_PORT", "9001")

	s, err := Load(filepath.Join(t.TempDir(), "missing.env.not-required"))
	require.Error(t, err, "explicit dotenv path must exist")

	s, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"sk-or-v1-abcdef123456"}, s.Providers.OpenRouterKeys)
	assert.Len(t, s.Providers.GeminiKeys, 2)
	assert.Equal(t, 45*time.Second, s.Sandbox.ExecutionTimeout)
	assert.Equal(t, 9001, s.Server.Port)
	assert.Equal(t, DefaultOpenRouterBaseURL, s.Providers.OpenRouterBaseURL)
	assert.Equal(t, DefaultWorkspaceBase, s.WorkspaceBase)

	models := s.Models.ForAgents()
	assert.Equal(t, "gemini-2.0-flash", models["manager"])
	assert.Equal(t, "gemini-2.0-flash", models["researcher"])
	assert.Equal(t, "deepseek/deepseek-chat", models["coder"])
	assert.Equal(t, "qwen/qwen-2.5-72b-instruct", models["analyst"])
}

func TestLoadReadsDotenvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "OPENROUTER_API_KEYS=sk-or-v1-fromdotenv01\nDEFAULT_OPENROUTER_MODEL=mistralai/mistral-large\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-or-v1-fromdotenv01"}, s.Providers.OpenRouterKeys)
	assert.Equal(t, "mistralai/mistral-large", s.Models.DefaultOpenRouter)
}

func TestValidate(t *testing.T) {
	s := &Settings{
		Providers: ProviderSettings{MaxRetries: 3},
		Server:    ServerSettings{Port: 8000},
	}
	assert.Error(t, s.Validate(), "no credentials at all")

	s.Providers.GeminiKeys = []string{"AIzaSyTestKey000001"}
	assert.NoError(t, s.Validate())

	s.Server.Port = 0
	assert.Error(t, s.Validate())

	s.Server.Port = 8000
	s.Providers.MaxRetries = 0
	assert.Error(t, s.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	s := &Settings{Providers: ProviderSettings{OpenRouterKeys: []string{"sk-or-v1-abcdef123456"}}}
	c := s.Clone()
	c.Providers.OpenRouterKeys[0] = "mutated"
	assert.Equal(t, "sk-or-v1-abcdef123456", s.Providers.OpenRouterKeys[0])
}
