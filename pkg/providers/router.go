package providers

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/chat"
	"github.com/go-go-golems/mangiafuoco/pkg/providers/ratelimit"
)

// DefaultMaxRetries is how many attempts the primary provider gets
// before the router falls back.
const DefaultMaxRetries = 3

// Router drives provider calls: credential rotation, retry with
// exponential backoff, rate-limit short-circuiting, and a single
// bounded fallback to the paired provider. When both providers fail the
// caller sees the PRIMARY provider's error; the fallback failure is
// only logged.
type Router struct {
	providers map[string]Provider
	pool      *Pool
	limiter   *ratelimit.Limiter

	maxRetries int
	fallback   map[string]string
	sleep      func(context.Context, time.Duration) error
}

type RouterOption func(*Router)

func WithMaxRetries(n int) RouterOption {
	return func(r *Router) {
		r.maxRetries = n
	}
}

// WithFallback overrides which provider backs another one up.
func WithFallback(from, to string) RouterOption {
	return func(r *Router) {
		r.fallback[from] = to
	}
}

// WithRetrySleep replaces the between-attempts sleep, for tests.
func WithRetrySleep(sleep func(context.Context, time.Duration) error) RouterOption {
	return func(r *Router) {
		r.sleep = sleep
	}
}

func NewRouter(pool *Pool, limiter *ratelimit.Limiter, providerList []Provider, options ...RouterOption) *Router {
	r := &Router{
		providers:  map[string]Provider{},
		pool:       pool,
		limiter:    limiter,
		maxRetries: DefaultMaxRetries,
		fallback: map[string]string{
			ProviderOpenRouter: ProviderGemini,
			ProviderGemini:     ProviderOpenRouter,
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
	for _, p := range providerList {
		r.providers[p.Name()] = p
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Provider returns the registered adapter for a provider name.
func (r *Router) Provider(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Call routes one request. An empty provider is inferred from the model
// name; the model name is cleaned of routing prefixes either way.
// Fallback is bounded at depth one: the fallback attempt itself never
// falls back again.
func (r *Router) Call(ctx context.Context, provider string, req Request) (*chat.CallResult, error) {
	return r.call(ctx, provider, req, 1)
}

func (r *Router) call(ctx context.Context, provider string, req Request, fallbackDepth int) (*chat.CallResult, error) {
	if provider == "" {
		provider = ProviderForModel(req.Model)
	}
	req.Model = CleanModelName(req.Model)

	p, ok := r.providers[provider]
	if !ok {
		return nil, errors.Errorf("unknown provider: %s", provider)
	}
	if len(req.Tools) > 0 && !p.SupportsToolCalls() {
		log.Warn().
			Str("provider", provider).
			Int("tools", len(req.Tools)).
			Msg("provider does not support tool calls, tools will be dropped")
	}

	var primaryErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		result, err := r.attempt(ctx, provider, p, req)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		primaryErr = err

		if IsRateLimit(err) {
			// backoff already slept inside attempt; retrying the same
			// provider immediately would just burn quota
			log.Warn().
				Str("provider", provider).
				Str("model", req.Model).
				Int("attempt", attempt).
				Msg("rate limited, abandoning retries")
			break
		}

		log.Warn().
			Err(err).
			Str("provider", provider).
			Str("model", req.Model).
			Int("attempt", attempt).
			Msg("provider call failed")
		if attempt < r.maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if serr := r.sleep(ctx, backoff); serr != nil {
				return nil, serr
			}
		}
	}

	if fallbackDepth > 0 {
		if result, ok := r.tryFallback(ctx, provider, req); ok {
			return result, nil
		}
	}

	return nil, primaryErr
}

// attempt performs one provider call: pick a credential, honor the
// provider's spacing, invoke, and settle the accounting.
func (r *Router) attempt(ctx context.Context, provider string, p Provider, req Request) (*chat.CallResult, error) {
	key := ""
	if r.pool.Count(provider) > 0 {
		var err error
		key, err = r.pool.Next(provider, func(k string) int {
			return r.limiter.Hits(provider, k)
		})
		if err != nil {
			return nil, err
		}
	}

	if err := r.limiter.Wait(ctx, provider); err != nil {
		return nil, err
	}

	result, err := p.Invoke(ctx, key, req)
	if err == nil {
		r.limiter.RecordSuccess(provider, key)
		return result, nil
	}

	if IsRateLimit(err) {
		if _, serr := r.limiter.RecordFailure(ctx, provider, key); serr != nil {
			return nil, serr
		}
		return nil, err
	}
	r.limiter.NoteFailure(provider)
	return nil, err
}

// tryFallback gives the paired provider exactly one attempt with its
// own default model.
func (r *Router) tryFallback(ctx context.Context, provider string, req Request) (*chat.CallResult, bool) {
	fbName := r.fallback[provider]
	if fbName == "" {
		return nil, false
	}
	fb, ok := r.providers[fbName]
	if !ok {
		return nil, false
	}

	fbReq := req
	fbReq.Model = fb.DefaultModel()
	log.Info().
		Str("from", provider).
		Str("to", fbName).
		Str("model", fbReq.Model).
		Msg("falling back to paired provider")

	result, err := r.attempt(ctx, fbName, fb, fbReq)
	if err != nil {
		log.Warn().
			Err(err).
			Str("provider", fbName).
			Msg("fallback provider failed as well")
		return nil, false
	}
	return result, true
}
