package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// EmbeddingModel describes the embedding model behind an Embedder.
type EmbeddingModel struct {
	Name       string
	Dimensions int
}

// Embedder turns text into a vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GetModel() EmbeddingModel
}

// OpenAIEmbedder embeds with the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

var _ Embedder = &OpenAIEmbedder{}

func NewOpenAIEmbedder(apiKey string, model openai.EmbeddingModel, dimensions int) *OpenAIEmbedder {
	if model == "" {
		model = openai.SmallEmbedding3
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(apiKey),
		model:      model,
		dimensions: dimensions,
	}
}

func (e *OpenAIEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, errors.Wrap(err, "embedding request failed")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data in response")
	}
	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) GetModel() EmbeddingModel {
	return EmbeddingModel{
		Name:       string(e.model),
		Dimensions: e.dimensions,
	}
}

type cacheEntry struct {
	embedding []float32
	element   *list.Element
}

// CachedEmbedder wraps an Embedder with an LRU cache. Research loops
// embed the same task text over and over; the cache keeps that off
// the wire.
type CachedEmbedder struct {
	embedder Embedder
	cache    map[string]cacheEntry
	lruList  *list.List
	maxSize  int
	mu       sync.Mutex
}

// NewCachedEmbedder caches up to maxSize embeddings (1000 when <= 0).
func NewCachedEmbedder(embedder Embedder, maxSize int) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &CachedEmbedder{
		embedder: embedder,
		cache:    make(map[string]cacheEntry),
		lruList:  list.New(),
		maxSize:  maxSize,
	}
}

func (c *CachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if entry, ok := c.cache[text]; ok {
		c.lruList.MoveToFront(entry.element)
		c.mu.Unlock()
		return entry.embedding, nil
	}
	c.mu.Unlock()

	embedding, err := c.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cache[text]; ok {
		return embedding, nil
	}
	if c.lruList.Len() >= c.maxSize {
		oldest := c.lruList.Back()
		if oldest != nil {
			delete(c.cache, oldest.Value.(string))
			c.lruList.Remove(oldest)
		}
	}
	element := c.lruList.PushFront(text)
	c.cache[text] = cacheEntry{embedding: embedding, element: element}

	return embedding, nil
}

func (c *CachedEmbedder) GetModel() EmbeddingModel {
	return c.embedder.GetModel()
}

// Size returns how many embeddings are cached.
func (c *CachedEmbedder) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}
