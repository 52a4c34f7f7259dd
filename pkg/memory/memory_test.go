package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	vecs  map[string][]float32
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return nil, errors.Errorf("no vector for %q", text)
}

func (f *fakeEmbedder) GetModel() EmbeddingModel {
	return EmbeddingModel{Name: "fake", Dimensions: 3}
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestInMemoryUpsertAssignsIDs(t *testing.T) {
	s := NewInMemoryStore(&fakeEmbedder{})

	ids, err := s.Upsert(context.Background(),
		Entry{Namespace: "research", Content: "a", Vector: []float32{1, 0, 0}},
		Entry{Namespace: "research", Content: "b", Vector: []float32{0, 1, 0}},
	)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, 2, s.Count("research"))
}

func TestInMemoryUpsertRequiresNamespace(t *testing.T) {
	s := NewInMemoryStore(&fakeEmbedder{})

	_, err := s.Upsert(context.Background(), Entry{Content: "a", Vector: []float32{1}})
	require.Error(t, err)
}

func TestInMemoryUpsertEmbedsMissingVectors(t *testing.T) {
	f := &fakeEmbedder{vecs: map[string][]float32{
		"solar power": {1, 0, 0},
	}}
	s := NewInMemoryStore(f)

	_, err := s.Upsert(context.Background(), Entry{Namespace: "research", Content: "solar power"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.callCount())
}

func TestInMemoryUpsertReplacesByID(t *testing.T) {
	s := NewInMemoryStore(&fakeEmbedder{vecs: map[string][]float32{
		"query": {1, 0, 0},
	}})

	ids, err := s.Upsert(context.Background(),
		Entry{Namespace: "research", Content: "first draft", Vector: []float32{1, 0, 0}})
	require.NoError(t, err)

	_, err = s.Upsert(context.Background(),
		Entry{ID: ids[0], Namespace: "research", Content: "second draft", Vector: []float32{1, 0, 0}})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Count("research"))

	hits, err := s.Query(context.Background(), "research", "query", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "second draft", hits[0].Entry.Content)
}

func TestInMemoryQueryRanksByCosine(t *testing.T) {
	f := &fakeEmbedder{vecs: map[string][]float32{
		"solar trends": {1, 0, 0},
	}}
	s := NewInMemoryStore(f)

	_, err := s.Upsert(context.Background(),
		Entry{Namespace: "research", Content: "solar power growth", Vector: []float32{1, 0, 0}},
		Entry{Namespace: "research", Content: "ev charging", Vector: []float32{0.9, 0.1, 0}},
		Entry{Namespace: "research", Content: "battery chemistry", Vector: []float32{0, 1, 0}},
		Entry{Namespace: "other", Content: "unrelated namespace", Vector: []float32{1, 0, 0}},
	)
	require.NoError(t, err)

	hits, err := s.Query(context.Background(), "research", "solar trends", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "solar power growth", hits[0].Entry.Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "ev charging", hits[1].Entry.Content)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestInMemoryQueryDefaultTopK(t *testing.T) {
	f := &fakeEmbedder{vecs: map[string][]float32{"q": {1, 0, 0}}}
	s := NewInMemoryStore(f)

	for i := 0; i < DefaultTopK+2; i++ {
		_, err := s.Upsert(context.Background(),
			Entry{Namespace: "research", Content: "entry", Vector: []float32{1, 0, 0}})
		require.NoError(t, err)
	}

	hits, err := s.Query(context.Background(), "research", "q", 0)
	require.NoError(t, err)
	assert.Len(t, hits, DefaultTopK)
}

func TestCachedEmbedderCachesRepeats(t *testing.T) {
	f := &fakeEmbedder{vecs: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
	}}
	c := NewCachedEmbedder(f, 10)

	for i := 0; i < 3; i++ {
		v, err := c.GenerateEmbedding(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0, 0}, v)
	}
	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, 1, c.Size())

	_, err := c.GenerateEmbedding(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount())
	assert.Equal(t, 2, c.Size())
}

func TestCachedEmbedderEvictsLeastRecentlyUsed(t *testing.T) {
	f := &fakeEmbedder{vecs: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
	}}
	c := NewCachedEmbedder(f, 2)

	for _, text := range []string{"a", "b", "c"} {
		_, err := c.GenerateEmbedding(context.Background(), text)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Size())

	// "a" was evicted and must be recomputed.
	_, err := c.GenerateEmbedding(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 4, f.callCount())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}

func TestEntryProperties(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	props, err := entryProperties(Entry{
		Namespace: "research",
		Content:   "finding",
		Metadata:  map[string]interface{}{"source": "web"},
		CreatedAt: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, "research", props["namespace"])
	assert.Equal(t, "finding", props["content"])
	assert.Equal(t, "2026-03-01T10:00:00Z", props["created_at"])
	assert.JSONEq(t, `{"source": "web"}`, props["metadata_json"].(string))

	props, err = entryProperties(Entry{Namespace: "n", Content: "c", CreatedAt: ts})
	require.NoError(t, err)
	_, hasMeta := props["metadata_json"]
	assert.False(t, hasMeta)
}

func TestHitFromObject(t *testing.T) {
	obj := map[string]interface{}{
		"namespace":     "research",
		"content":       "finding",
		"metadata_json": `{"source": "web"}`,
		"created_at":    "2026-03-01T10:00:00Z",
		"_additional": map[string]interface{}{
			"id":       "abc-123",
			"distance": 0.25,
		},
	}

	hit, ok := hitFromObject(obj)
	require.True(t, ok)
	assert.Equal(t, "abc-123", hit.Entry.ID)
	assert.Equal(t, "research", hit.Entry.Namespace)
	assert.Equal(t, "finding", hit.Entry.Content)
	assert.Equal(t, "web", hit.Entry.Metadata["source"])
	assert.Equal(t, 2026, hit.Entry.CreatedAt.Year())
	assert.InDelta(t, 0.75, hit.Score, 1e-9)

	_, ok = hitFromObject(map[string]interface{}{"content": "no additional block"})
	assert.False(t, ok)
}

func TestWeaviateUpsertValidatesBeforeNetwork(t *testing.T) {
	s := NewWeaviateStore("localhost:8080", "http", &fakeEmbedder{})

	_, err := s.Upsert(context.Background(), Entry{Content: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace required")

	// Embedding failures surface before any client call.
	_, err = s.Upsert(context.Background(), Entry{Namespace: "n", Content: "unknown text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed")
}
