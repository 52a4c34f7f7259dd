package providers

import "strings"

// Provider names used across configuration, routing and health reports.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
)

// CleanModelName strips routing prefixes so the backend receives the
// bare model identifier ("google/gemini-2.0-flash" -> "gemini-2.0-flash",
// "ollama/llama3" -> "llama3").
func CleanModelName(model string) string {
	model = strings.TrimPrefix(model, "google/")
	model = strings.TrimPrefix(model, "openai/")
	model = strings.TrimPrefix(model, "ollama/")
	return model
}

// ProviderForModel infers which provider serves a model name. Gemini
// models route to the gemini backend, an explicit "ollama/" prefix to
// the local daemon; everything else goes through openrouter, which
// proxies the rest of the catalog.
func ProviderForModel(model string) string {
	if strings.HasPrefix(model, "gemini-") || strings.HasPrefix(model, "google/gemini-") {
		return ProviderGemini
	}
	if strings.HasPrefix(model, "ollama/") {
		return ProviderOllama
	}
	return ProviderOpenRouter
}
