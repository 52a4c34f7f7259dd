package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noHits(string) int { return 0 }

func TestPoolRoundRobinFairness(t *testing.T) {
	p := NewPool()
	keys := []string{"key-a", "key-b", "key-c", "key-d"}
	p.Add(ProviderOpenRouter, keys...)

	counts := map[string]int{}
	for i := 0; i < 100; i++ {
		k, err := p.Next(ProviderOpenRouter, noHits)
		require.NoError(t, err)
		counts[k]++
	}

	for _, k := range keys {
		assert.Equal(t, 25, counts[k], "key %s should be drawn evenly", k)
	}
}

func TestPoolSkipsHotKeys(t *testing.T) {
	p := NewPool()
	p.Add(ProviderOpenRouter, "hot", "cold")

	hits := func(key string) int {
		if key == "hot" {
			return defaultOpenRouterSkipThreshold
		}
		return 0
	}

	for i := 0; i < 6; i++ {
		k, err := p.Next(ProviderOpenRouter, hits)
		require.NoError(t, err)
		assert.Equal(t, "cold", k)
	}
}

func TestPoolGeminiThresholdIsTighter(t *testing.T) {
	p := NewPool()
	p.Add(ProviderGemini, "warm", "cold")

	// two hits is enough to sideline a gemini key
	hits := func(key string) int {
		if key == "warm" {
			return 2
		}
		return 0
	}
	k, err := p.Next(ProviderGemini, hits)
	require.NoError(t, err)
	assert.Equal(t, "cold", k)
}

func TestPoolAllHotUsesNextAnyway(t *testing.T) {
	p := NewPool()
	p.Add(ProviderOpenRouter, "k1", "k2")

	everythingHot := func(string) int { return 99 }

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		k, err := p.Next(ProviderOpenRouter, everythingHot)
		require.NoError(t, err)
		seen[k] = true
	}
	assert.Len(t, seen, 2, "rotation continues even when all keys are hot")
}

func TestPoolNoKeys(t *testing.T) {
	p := NewPool()
	_, err := p.Next(ProviderOpenRouter, noHits)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestPoolCustomThreshold(t *testing.T) {
	p := NewPool(WithSkipThreshold("custom", 1))
	p.Add("custom", "a", "b")

	hits := func(key string) int {
		if key == "a" {
			return 1
		}
		return 0
	}
	k, err := p.Next("custom", hits)
	require.NoError(t, err)
	assert.Equal(t, "b", k)
}
