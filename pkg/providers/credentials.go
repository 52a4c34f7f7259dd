package providers

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Credential is one API key for one provider.
type Credential struct {
	Provider string
	Key      string
}

// Pool hands out credentials round-robin per provider, skipping keys
// whose rate-limit hit count has reached the provider's threshold. When
// every key is hot it hands out the next one anyway: a throttled call
// beats no call.
type Pool struct {
	mu            sync.Mutex
	keys          map[string][]string
	next          map[string]int
	skipThreshold map[string]int
}

// Default hit thresholds above which a key is skipped during rotation.
// Gemini keys go cold faster because its free-tier quotas are tighter.
const (
	DefaultSkipThreshold           = 3
	defaultGeminiSkipThreshold     = 2
	defaultOpenRouterSkipThreshold = 3
)

type PoolOption func(*Pool)

func WithSkipThreshold(provider string, threshold int) PoolOption {
	return func(p *Pool) {
		p.skipThreshold[provider] = threshold
	}
}

func NewPool(options ...PoolOption) *Pool {
	p := &Pool{
		keys: map[string][]string{},
		next: map[string]int{},
		skipThreshold: map[string]int{
			ProviderOpenRouter: defaultOpenRouterSkipThreshold,
			ProviderGemini:     defaultGeminiSkipThreshold,
		},
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Add appends keys to the provider's rotation.
func (p *Pool) Add(provider string, keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[provider] = append(p.keys[provider], keys...)
}

// Count returns how many keys the provider has.
func (p *Pool) Count(provider string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys[provider])
}

// Next returns the next credential for the provider. hits reports the
// current rate-limit hit count for a key; keys at or over the
// provider's threshold are passed over unless every key is hot.
func (p *Pool) Next(provider string, hits func(key string) int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.keys[provider]
	if len(keys) == 0 {
		return "", errors.Errorf("no credentials configured for provider %s", provider)
	}

	threshold, ok := p.skipThreshold[provider]
	if !ok {
		threshold = DefaultSkipThreshold
	}

	for range keys {
		key := keys[p.next[provider]%len(keys)]
		p.next[provider]++
		if hits(key) < threshold {
			return key, nil
		}
	}

	// every key is over threshold
	key := keys[p.next[provider]%len(keys)]
	p.next[provider]++
	log.Warn().
		Str("provider", provider).
		Int("keys", len(keys)).
		Msg("all credentials over rate-limit threshold, using next anyway")
	return key, nil
}
