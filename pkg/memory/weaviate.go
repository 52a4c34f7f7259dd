package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
)

// DefaultClass is the Weaviate class holding memory entries. Weaviate
// auto-schema creates it on first write.
const DefaultClass = "MemoryEntry"

// WeaviateStore persists entries in a Weaviate instance. Vectors are
// supplied by the embedder, not Weaviate's own vectorizer, so the
// same embedder serves queries.
type WeaviateStore struct {
	client   *weaviate.Client
	embedder Embedder
	class    string
	now      func() time.Time
}

var _ Store = &WeaviateStore{}

type WeaviateOption func(*WeaviateStore)

func WithClass(class string) WeaviateOption {
	return func(s *WeaviateStore) {
		s.class = class
	}
}

func NewWeaviateStore(host, scheme string, embedder Embedder, options ...WeaviateOption) *WeaviateStore {
	s := &WeaviateStore{
		client:   weaviate.New(weaviate.Config{Host: host, Scheme: scheme}),
		embedder: embedder,
		class:    DefaultClass,
		now:      time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Upsert writes entries one by one: fresh entries are created under a
// new id, entries carrying an id replace the stored object.
func (s *WeaviateStore) Upsert(ctx context.Context, entries ...Entry) ([]string, error) {
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
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = s.now()
		}

		update := entry.ID != ""
		if !update {
			entry.ID = uuid.New().String()
		}

		props, err := entryProperties(entry)
		if err != nil {
			return ids, err
		}

		if update {
			err = s.client.Data().Updater().
				WithClassName(s.class).
				WithID(entry.ID).
				WithProperties(props).
				WithVector(entry.Vector).
				Do(ctx)
		} else {
			_, err = s.client.Data().Creator().
				WithClassName(s.class).
				WithID(entry.ID).
				WithProperties(props).
				WithVector(entry.Vector).
				Do(ctx)
		}
		if err != nil {
			return ids, errors.Wrapf(err, "failed to store entry %s", entry.ID)
		}

		ids = append(ids, entry.ID)
	}

	log.Debug().Int("count", len(ids)).Str("class", s.class).Msg("entries stored")
	return ids, nil
}

func (s *WeaviateStore) Query(ctx context.Context, namespace, text string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	fields := []graphql.Field{
		{Name: "namespace"},
		{Name: "content"},
		{Name: "metadata_json"},
		{Name: "created_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "distance"},
		}},
	}
	where := filters.Where().
		WithPath([]string{"namespace"}).
		WithOperator(filters.Equal).
		WithValueString(namespace)
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	resp, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "weaviate query failed")
	}
	if len(resp.Errors) > 0 {
		return nil, errors.Errorf("weaviate query failed: %s", resp.Errors[0].Message)
	}

	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return []Hit{}, nil
	}
	objects, ok := get[s.class].([]interface{})
	if !ok {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(objects))
	for _, raw := range objects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if hit, ok := hitFromObject(obj); ok {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// entryProperties flattens an entry into Weaviate properties.
// Metadata is carried as a JSON string to keep auto-schema stable.
func entryProperties(entry Entry) (map[string]interface{}, error) {
	props := map[string]interface{}{
		"namespace":  entry.Namespace,
		"content":    entry.Content,
		"created_at": entry.CreatedAt.Format(time.RFC3339),
	}
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode entry metadata")
		}
		props["metadata_json"] = string(b)
	}
	return props, nil
}

// hitFromObject rebuilds a Hit from one GraphQL result object.
func hitFromObject(obj map[string]interface{}) (Hit, bool) {
	entry := Entry{}
	entry.Namespace, _ = obj["namespace"].(string)
	entry.Content, _ = obj["content"].(string)

	if raw, ok := obj["metadata_json"].(string); ok && raw != "" {
		meta := map[string]interface{}{}
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			entry.Metadata = meta
		}
	}
	if raw, ok := obj["created_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			entry.CreatedAt = ts
		}
	}

	score := 0.0
	additional, ok := obj["_additional"].(map[string]interface{})
	if !ok {
		return Hit{}, false
	}
	entry.ID, _ = additional["id"].(string)
	if distance, ok := additional["distance"].(float64); ok {
		// Weaviate reports cosine distance; flip it back to similarity.
		score = 1 - distance
	}

	return Hit{Entry: entry, Score: score}, true
}
