package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// InMemoryStore keeps entries per namespace and ranks queries by
// cosine similarity. It is the default store when no vector database
// is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	embedder Embedder
	entries  map[string][]Entry
	now      func() time.Time
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore(embedder Embedder) *InMemoryStore {
	return &InMemoryStore{
		embedder: embedder,
		entries:  map[string][]Entry{},
		now:      time.Now,
	}
}

func (s *InMemoryStore) Upsert(ctx context.Context, entries ...Entry) ([]string, error) {
	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.Namespace == "" {
			return ids, errors.New("entry namespace required")
		}
		if len(entry.Vector) == 0 {
			vector, err := s.embedder.GenerateEmbedding(ctx, entry.Content)
			if err != nil {
				return ids, errors.Wrapf(err, "failed to embed entry for namespace %s", entry.Namespace)
			}
			entry.Vector = vector
		}
		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = s.now()
		}

		s.mu.Lock()
		bucket := s.entries[entry.Namespace]
		replaced := false
		for i := range bucket {
			if bucket[i].ID == entry.ID {
				bucket[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			bucket = append(bucket, entry)
		}
		s.entries[entry.Namespace] = bucket
		s.mu.Unlock()

		ids = append(ids, entry.ID)
	}

	return ids, nil
}

func (s *InMemoryStore) Query(ctx context.Context, namespace, text string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	s.mu.RLock()
	bucket := s.entries[namespace]
	hits := make([]Hit, 0, len(bucket))
	for _, entry := range bucket {
		hits = append(hits, Hit{
			Entry: entry,
			Score: cosineSimilarity(vector, entry.Vector),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count returns how many entries a namespace holds.
func (s *InMemoryStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[namespace])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
