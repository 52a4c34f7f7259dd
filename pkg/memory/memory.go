package memory

import (
	"context"
	"time"
)

// Entry is one remembered item. Vector may be left empty; stores
// embed Content on upsert when it is.
type Entry struct {
	ID        string                 `json:"id"`
	Namespace string                 `json:"namespace"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Vector    []float32              `json:"-"`
	CreatedAt time.Time              `json:"created_at"`
}

// Hit is one query match. Score is cosine similarity, 1.0 for an
// identical direction.
type Hit struct {
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}

// Store holds research findings for semantic recall.
type Store interface {
	// Upsert stores entries and returns their ids, assigning ids to
	// entries that have none.
	Upsert(ctx context.Context, entries ...Entry) ([]string, error)
	// Query returns up to topK entries from one namespace ranked by
	// similarity to text.
	Query(ctx context.Context, namespace, text string, topK int) ([]Hit, error)
}

// DefaultTopK matches the query tool's default result count.
const DefaultTopK = 5
