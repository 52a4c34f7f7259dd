package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Limiter spaces outbound provider calls and tracks per-credential
// rate-limit backoff. One limiter is shared by all providers in a
// process; all state is guarded by a single mutex.
type Limiter struct {
	mu sync.Mutex

	minInterval map[string]time.Duration
	lastCall    map[string]time.Time
	hits        map[string]int
	stats       map[string]*providerStats
	backoffCap  time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

type providerStats struct {
	successCount        int
	failureCount        int
	consecutiveFailures int
	lastSuccess         time.Time
	lastFailure         time.Time
}

const (
	// DefaultMinInterval applies to providers without an explicit interval.
	DefaultMinInterval = 100 * time.Millisecond
	// DefaultBackoffCap bounds the exponential backoff sleep.
	DefaultBackoffCap = 30 * time.Second
)

type Option func(*Limiter)

func WithMinInterval(provider string, d time.Duration) Option {
	return func(l *Limiter) {
		l.minInterval[provider] = d
	}
}

func WithBackoffCap(d time.Duration) Option {
	return func(l *Limiter) {
		l.backoffCap = d
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSleep replaces the context-aware sleep, for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) {
		l.sleep = sleep
	}
}

func NewLimiter(options ...Option) *Limiter {
	l := &Limiter{
		minInterval: map[string]time.Duration{
			"openrouter": 100 * time.Millisecond,
			"gemini":     1 * time.Second,
		},
		lastCall:   map[string]time.Time{},
		hits:       map[string]int{},
		stats:      map[string]*providerStats{},
		backoffCap: DefaultBackoffCap,
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, o := range options {
		o(l)
	}
	return l
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func credentialKey(provider, key string) string {
	return provider + "\x00" + key
}

// Wait blocks until the provider's minimum spacing since its previous
// call has elapsed, then claims the slot. Concurrent waiters serialize
// in claim order.
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	l.mu.Lock()
	interval, ok := l.minInterval[provider]
	if !ok {
		interval = DefaultMinInterval
	}
	now := l.now()
	next := l.lastCall[provider].Add(interval)
	if next.Before(now) {
		next = now
	}
	l.lastCall[provider] = next
	l.mu.Unlock()

	if wait := next.Sub(now); wait > 0 {
		log.Trace().Str("provider", provider).Dur("wait", wait).Msg("spacing provider call")
		return l.sleep(ctx, wait)
	}
	return nil
}

// RecordFailure notes a rate-limit hit for the credential, sleeps the
// exponential backoff min(2^hits, cap), and returns the delay it slept.
func (l *Limiter) RecordFailure(ctx context.Context, provider, key string) (time.Duration, error) {
	l.mu.Lock()
	ck := credentialKey(provider, key)
	l.hits[ck]++
	hits := l.hits[ck]
	st := l.providerStatsLocked(provider)
	st.failureCount++
	st.consecutiveFailures++
	st.lastFailure = l.now()
	cap_ := l.backoffCap
	l.mu.Unlock()

	backoff := time.Duration(math.Min(math.Pow(2, float64(hits)), cap_.Seconds())) * time.Second
	log.Warn().
		Str("provider", provider).
		Int("hits", hits).
		Dur("backoff", backoff).
		Msg("rate limit hit, backing off")
	if err := l.sleep(ctx, backoff); err != nil {
		return backoff, err
	}
	return backoff, nil
}

// NoteFailure updates the provider's health accounting for a failure
// that was not a rate limit. No backoff, no hit counters.
func (l *Limiter) NoteFailure(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.providerStatsLocked(provider)
	st.failureCount++
	st.consecutiveFailures++
	st.lastFailure = l.now()
}

// RecordSuccess resets the credential's hit counter and updates the
// provider's health accounting.
func (l *Limiter) RecordSuccess(provider, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, credentialKey(provider, key))
	st := l.providerStatsLocked(provider)
	st.successCount++
	st.consecutiveFailures = 0
	st.lastSuccess = l.now()
}

// Hits returns the credential's current rate-limit hit count.
func (l *Limiter) Hits(provider, key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hits[credentialKey(provider, key)]
}

func (l *Limiter) providerStatsLocked(provider string) *providerStats {
	st, ok := l.stats[provider]
	if !ok {
		st = &providerStats{}
		l.stats[provider] = st
	}
	return st
}
