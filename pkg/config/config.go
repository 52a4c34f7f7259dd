package config

import (
	"os"
	"time"

	clone "github.com/huandu/go-clone"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Defaults mirror the reference deployment; everything is overridable
// through the environment (or a .env file loaded before binding).
const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"

	DefaultRequestTimeout  = 60 * time.Second
	DefaultMaxRetries      = 3
	DefaultMaxOutputTokens = 64000

	DefaultWorkspaceBase = "workspace"
	DefaultServerPort    = 8000
)

// ProviderSettings configures the provider layer: credential pools,
// endpoints, and the outer retry budget.
type ProviderSettings struct {
	OpenRouterKeys []string `yaml:"openrouter_keys,omitempty"`
	GeminiKeys     []string `yaml:"gemini_keys,omitempty"`

	OpenRouterBaseURL string `yaml:"openrouter_base_url,omitempty"`
	GeminiBaseURL     string `yaml:"gemini_base_url,omitempty"`
	OllamaBaseURL     string `yaml:"ollama_base_url,omitempty"`

	RequestTimeout  time.Duration `yaml:"request_timeout,omitempty"`
	MaxRetries      int           `yaml:"max_retries,omitempty"`
	MaxOutputTokens int           `yaml:"max_output_tokens,omitempty"`
}

// ModelSettings is the per-agent model table plus the two provider
// defaults the table falls back to.
type ModelSettings struct {
	DefaultOpenRouter string `yaml:"default_openrouter,omitempty"`
	DefaultGemini     string `yaml:"default_gemini,omitempty"`

	Manager    string `yaml:"manager,omitempty"`
	Researcher string `yaml:"researcher,omitempty"`
	Coder      string `yaml:"coder,omitempty"`
	Analyst    string `yaml:"analyst,omitempty"`
	Critic     string `yaml:"critic,omitempty"`
}

// ForAgents resolves the role -> model table. Manager and researcher
// fall back to the gemini default, the code-oriented roles to the
// openrouter default. Roles that still resolve to "" are left for the
// adapter's default model.
func (m ModelSettings) ForAgents() map[string]string {
	pick := func(override, fallback string) string {
		if override != "" {
			return override
		}
		return fallback
	}
	return map[string]string{
		"manager":    pick(m.Manager, m.DefaultGemini),
		"researcher": pick(m.Researcher, m.DefaultGemini),
		"coder":      pick(m.Coder, m.DefaultOpenRouter),
		"analyst":    pick(m.Analyst, m.DefaultOpenRouter),
		"critic":     pick(m.Critic, m.DefaultOpenRouter),
	}
}

// ResearchSettings bounds the web research collaborator.
type ResearchSettings struct {
	MaxPages int `yaml:"max_pages,omitempty"`
}

// SandboxSettings bounds subprocess code execution.
type SandboxSettings struct {
	ExecutionTimeout time.Duration `yaml:"execution_timeout,omitempty"`
	PythonBinary     string        `yaml:"python_binary,omitempty"`
}

// MemorySettings configures the vector memory. An empty WeaviateURL
// selects the in-memory store; an empty OpenAIAPIKey disables
// embedding-backed memory tools entirely.
type MemorySettings struct {
	WeaviateURL  string `yaml:"weaviate_url,omitempty"`
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
}

// ServerSettings configures the REST surface.
type ServerSettings struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// Settings is the full process configuration.
type Settings struct {
	Providers ProviderSettings `yaml:"providers"`
	Models    ModelSettings    `yaml:"models"`
	Research  ResearchSettings `yaml:"research"`
	Sandbox   SandboxSettings  `yaml:"sandbox"`
	Memory    MemorySettings   `yaml:"memory"`
	Server    ServerSettings   `yaml:"server"`

	WorkspaceBase string `yaml:"workspace_base,omitempty"`
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// envBindings maps viper keys to the environment variables the
// reference deployment documents.
var envBindings = map[string]string{
	"openrouter-api-keys":      "OPENROUTER_API_KEYS",
	"gemini-api-keys":          "GEMINI_API_KEYS",
	"openrouter-base-url":      "OPENROUTER_BASE_URL",
	"gemini-base-url":          "GEMINI_BASE_URL",
	"ollama-base-url":          "OLLAMA_BASE_URL",
	"request-timeout":          "REQUEST_TIMEOUT",
	"max-retries":              "MAX_RETRIES",
	"max-output-tokens":        "MAX_OUTPUT_TOKENS",
	"default-openrouter-model": "DEFAULT_OPENROUTER_MODEL",
	"default-gemini-model":     "DEFAULT_GEMINI_MODEL",
	"manager-model":            "MANAGER_MODEL",
	"researcher-model":         "RESEARCHER_MODEL",
	"coder-model":              "CODER_MODEL",
	"analyst-model":            "ANALYST_MODEL",
	"critic-model":             "CRITIC_MODEL",
	"web-research-max-pages":   "WEB_RESEARCH_MAX_PAGES",
	"max-code-execution-time":  "MAX_CODE_EXECUTION_TIME",
	"python-binary":            "PYTHON_BINARY",
	"weaviate-url":             "WEAVIATE_URL",
	"openai-api-key":           "OPENAI_API_KEY",
	"workspace-base":           "WORKSPACE_BASE",
	"server-host":              "SERVER_HOST",
	"server-port":              "SERVER_PORT",
}

// Load builds Settings from the environment. dotenvPath seeds the
// environment first; "" means try ./.env and carry on when it is
// absent. A fresh viper instance is used so tests and embedding
// programs never fight over global viper state.
func Load(dotenvPath string) (*Settings, error) {
	path := dotenvPath
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if dotenvPath != "" || !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "could not load env file %s", path)
		}
	} else {
		log.Debug().Str("path", path).Msg("loaded env file")
	}

	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "could not bind %s", env)
		}
	}

	v.SetDefault("openrouter-base-url", DefaultOpenRouterBaseURL)
	v.SetDefault("gemini-base-url", DefaultGeminiBaseURL)
	v.SetDefault("request-timeout", int(DefaultRequestTimeout/time.Second))
	v.SetDefault("max-retries", DefaultMaxRetries)
	v.SetDefault("max-output-tokens", DefaultMaxOutputTokens)
	v.SetDefault("web-research-max-pages", 5)
	v.SetDefault("max-code-execution-time", 30)
	v.SetDefault("workspace-base", DefaultWorkspaceBase)
	v.SetDefault("server-host", "0.0.0.0")
	v.SetDefault("server-port", DefaultServerPort)

	s := &Settings{
		Providers: ProviderSettings{
			OpenRouterKeys:    CleanAPIKeys(v.GetString("openrouter-api-keys")),
			GeminiKeys:        CleanAPIKeys(v.GetString("gemini-api-keys")),
			OpenRouterBaseURL: v.GetString("openrouter-base-url"),
			GeminiBaseURL:     v.GetString("gemini-base-url"),
			OllamaBaseURL:     v.GetString("ollama-base-url"),
			RequestTimeout:    time.Duration(v.GetInt("request-timeout")) * time.Second,
			MaxRetries:        v.GetInt("max-retries"),
			MaxOutputTokens:   v.GetInt("max-output-tokens"),
		},
		Models: ModelSettings{
			DefaultOpenRouter: v.GetString("default-openrouter-model"),
			DefaultGemini:     v.GetString("default-gemini-model"),
			Manager:           v.GetString("manager-model"),
			Researcher:        v.GetString("researcher-model"),
			Coder:             v.GetString("coder-model"),
			Analyst:           v.GetString("analyst-model"),
			Critic:            v.GetString("critic-model"),
		},
		Research: ResearchSettings{
			MaxPages: v.GetInt("web-research-max-pages"),
		},
		Sandbox: SandboxSettings{
			ExecutionTimeout: time.Duration(v.GetInt("max-code-execution-time")) * time.Second,
			PythonBinary:     v.GetString("python-binary"),
		},
		Memory: MemorySettings{
			WeaviateURL:  v.GetString("weaviate-url"),
			OpenAIAPIKey: v.GetString("openai-api-key"),
		},
		Server: ServerSettings{
			Host: v.GetString("server-host"),
			Port: v.GetInt("server-port"),
		},
		WorkspaceBase: v.GetString("workspace-base"),
	}
	return s, nil
}

// Validate reports configuration that cannot serve any task. Missing
// key pools for a single provider are tolerated (the router falls back
// to the other one); having neither is fatal.
func (s *Settings) Validate() error {
	if len(s.Providers.OpenRouterKeys) == 0 && len(s.Providers.GeminiKeys) == 0 {
		return errors.New("no provider credentials configured: set OPENROUTER_API_KEYS or GEMINI_API_KEYS")
	}
	if len(s.Providers.OpenRouterKeys) == 0 {
		log.Warn().Msg("no openrouter keys configured, openrouter models will fail over to gemini")
	}
	if len(s.Providers.GeminiKeys) == 0 {
		log.Warn().Msg("no gemini keys configured, gemini models will fail over to openrouter")
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", s.Server.Port)
	}
	if s.Providers.MaxRetries <= 0 {
		return errors.Errorf("max retries must be positive, got %d", s.Providers.MaxRetries)
	}
	return nil
}
