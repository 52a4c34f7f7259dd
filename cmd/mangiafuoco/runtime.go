package main

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/config"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/monitor"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
	"github.com/go-go-golems/mangiafuoco/pkg/providers/gemini"
	"github.com/go-go-golems/mangiafuoco/pkg/providers/ollama"
	"github.com/go-go-golems/mangiafuoco/pkg/providers/openrouter"
	"github.com/go-go-golems/mangiafuoco/pkg/providers/ratelimit"
	"github.com/go-go-golems/mangiafuoco/pkg/server"
)

// Fallback models when the environment does not pin any. openrouter/auto
// lets the proxy pick; the gemini default matches the hosted free tier.
const (
	fallbackOpenRouterModel = "openrouter/auto"
	fallbackGeminiModel     = "gemini-2.0-flash"
)

// runtime is the process-wide stack shared by serve and run: one
// credential pool, one limiter, one router, one event bus, one
// orchestrator.
type runtime struct {
	cfg          *config.Settings
	limiter      *ratelimit.Limiter
	bus          *events.Bus
	monitors     *monitor.Registry
	orchestrator *server.Orchestrator
}

func loadSettings() (*config.Settings, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildRuntime(cfg *config.Settings) (*runtime, error) {
	pool := providers.NewPool()
	pool.Add(providers.ProviderOpenRouter, cfg.Providers.OpenRouterKeys...)
	pool.Add(providers.ProviderGemini, cfg.Providers.GeminiKeys...)

	limiter := ratelimit.NewLimiter()

	openRouterModel := cfg.Models.DefaultOpenRouter
	if openRouterModel == "" {
		openRouterModel = fallbackOpenRouterModel
	}
	geminiModel := cfg.Models.DefaultGemini
	if geminiModel == "" {
		geminiModel = fallbackGeminiModel
	}

	providerList := []providers.Provider{
		openrouter.New(openRouterModel,
			openrouter.WithBaseURL(cfg.Providers.OpenRouterBaseURL),
			openrouter.WithTimeout(cfg.Providers.RequestTimeout),
		),
		gemini.New(geminiModel,
			gemini.WithBaseURL(cfg.Providers.GeminiBaseURL),
		),
	}

	// the local daemon is opt-in: only registered when OLLAMA_BASE_URL
	// is set, and reached through "ollama/"-prefixed role models
	if cfg.Providers.OllamaBaseURL != "" {
		ollamaAdapter, err := ollama.New("llama3", ollama.WithBaseURL(cfg.Providers.OllamaBaseURL))
		if err != nil {
			log.Warn().Err(err).Msg("ollama provider unavailable")
		} else {
			providerList = append(providerList, ollamaAdapter)
		}
	}

	router := providers.NewRouter(pool, limiter, providerList,
		providers.WithMaxRetries(cfg.Providers.MaxRetries),
	)

	bus := events.NewBus()
	monitors := monitor.NewRegistry()

	orchestrator, err := server.NewOrchestrator(cfg, router, bus, monitors)
	if err != nil {
		return nil, errors.Wrap(err, "could not build orchestrator")
	}

	return &runtime{
		cfg:          cfg,
		limiter:      limiter,
		bus:          bus,
		monitors:     monitors,
		orchestrator: orchestrator,
	}, nil
}

func (r *runtime) Close() {
	if err := r.bus.Close(); err != nil {
		log.Warn().Err(err).Msg("could not close event bus")
	}
}
