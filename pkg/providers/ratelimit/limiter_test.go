package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTime drives the limiter without real sleeping. Sleeps advance the
// clock and are recorded for assertions.
type fakeTime struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestLimiter(ft *fakeTime, options ...Option) *Limiter {
	options = append(options, WithClock(ft.Now), WithSleep(ft.Sleep))
	return NewLimiter(options...)
}

func TestWaitSpacesCalls(t *testing.T) {
	ft := newFakeTime()
	l := newTestLimiter(ft, WithMinInterval("gemini", time.Second))
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "gemini"))
	assert.Empty(t, ft.sleeps, "first call should not wait")

	require.NoError(t, l.Wait(ctx, "gemini"))
	require.Len(t, ft.sleeps, 1)
	assert.Equal(t, time.Second, ft.sleeps[0])
}

func TestWaitAfterIntervalElapsed(t *testing.T) {
	ft := newFakeTime()
	l := newTestLimiter(ft, WithMinInterval("openrouter", 100*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "openrouter"))
	ft.Advance(200 * time.Millisecond)
	require.NoError(t, l.Wait(ctx, "openrouter"))
	assert.Empty(t, ft.sleeps)
}

func TestWaitUnknownProviderUsesDefault(t *testing.T) {
	ft := newFakeTime()
	l := newTestLimiter(ft)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "something-else"))
	require.NoError(t, l.Wait(ctx, "something-else"))
	require.Len(t, ft.sleeps, 1)
	assert.Equal(t, DefaultMinInterval, ft.sleeps[0])
}

func TestBackoffGrowsExponentiallyToCap(t *testing.T) {
	ft := newFakeTime()
	l := newTestLimiter(ft)
	ctx := context.Background()

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	var got []time.Duration
	for range want {
		d, err := l.RecordFailure(ctx, "openrouter", "key-1")
		require.NoError(t, err)
		got = append(got, d)
	}
	assert.Equal(t, want, got)

	// monotone non-decreasing up to the cap
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i], got[i-1])
	}
}

func TestSuccessResetsBackoff(t *testing.T) {
	ft := newFakeTime()
	l := newTestLimiter(ft)
	ctx := context.Background()

	_, err := l.RecordFailure(ctx, "gemini", "key-1")
	require.NoError(t, err)
	_, err = l.RecordFailure(ctx, "gemini", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Hits("gemini", "key-1"))

	l.RecordSuccess("gemini", "key-1")
	assert.Equal(t, 0, l.Hits("gemini", "key-1"))

	d, err := l.RecordFailure(ctx, "gemini", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d, "backoff restarts after a success")
}

func TestHitsAreScopedPerCredential(t *testing.T) {
	ft := newFakeTime()
	l := newTestLimiter(ft)
	ctx := context.Background()

	_, err := l.RecordFailure(ctx, "openrouter", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Hits("openrouter", "key-1"))
	assert.Equal(t, 0, l.Hits("openrouter", "key-2"))
	assert.Equal(t, 0, l.Hits("gemini", "key-1"))
}

func TestHealthReport(t *testing.T) {
	ft := newFakeTime()
	l := newTestLimiter(ft)
	ctx := context.Background()

	l.RecordSuccess("openrouter", "key-1")
	l.RecordSuccess("openrouter", "key-1")
	_, err := l.RecordFailure(ctx, "openrouter", "key-1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.RecordFailure(ctx, "gemini", "key-2")
		require.NoError(t, err)
	}

	report := l.HealthReport()
	or := report["openrouter"]
	assert.Equal(t, 3, or.TotalCalls)
	assert.InDelta(t, 2.0/3.0, or.SuccessRate, 1e-9)
	assert.Equal(t, 1, or.ConsecutiveFailures)
	assert.True(t, or.IsHealthy)

	gm := report["gemini"]
	assert.Equal(t, 3, gm.ConsecutiveFailures)
	assert.False(t, gm.IsHealthy)
	assert.Zero(t, gm.SuccessRate)
}

func TestWaitHonorsCancellation(t *testing.T) {
	l := NewLimiter(WithMinInterval("gemini", time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Wait(ctx, "gemini"))
	cancel()
	err := l.Wait(ctx, "gemini")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
