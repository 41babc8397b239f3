package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/models"
)

// ChunkIndex is the searchable index of one conversation's chunks. It pairs each
// chunk with its embedding in insertion order and ranks by raw inner product.
type ChunkIndex struct {
	embedder embedding.Embedder
	backend  VectorIndex
	chunks   []models.Chunk
	mu       sync.RWMutex
}

// NewChunkIndex returns an empty index that embeds with embedder and stores
// vectors in backend. The backend must match the embedder's dimensions.
func NewChunkIndex(embedder embedding.Embedder, backend VectorIndex) *ChunkIndex {
	return &ChunkIndex{
		embedder: embedder,
		backend:  backend,
		chunks:   make([]models.Chunk, 0),
	}
}

// Clear removes all entries. Clearing an empty index is a no-op.
func (c *ChunkIndex) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend.Reset()
	c.chunks = make([]models.Chunk, 0)
}

// Add embeds chunks in one batch and appends them in order. If embedding or
// storing fails the index is left unchanged.
func (c *ChunkIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if err := c.backend.Add(ctx, vectors); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	c.chunks = append(c.chunks, chunks...)
	return nil
}

// Search returns up to topK chunks ordered by descending inner product with the
// query embedding. Ties keep insertion order. An empty index returns an empty
// result without embedding the query.
func (c *ChunkIndex) Search(ctx context.Context, query string, topK int) ([]models.Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.chunks) == 0 || topK <= 0 {
		return []models.Chunk{}, nil
	}
	q, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := c.backend.Search(ctx, q, topK)
	if err != nil {
		return nil, err
	}
	results := make([]models.Chunk, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(c.chunks) {
			continue
		}
		results = append(results, c.chunks[h.Position])
	}
	return results, nil
}

// Size returns the number of indexed chunks.
func (c *ChunkIndex) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// Close releases the backend.
func (c *ChunkIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = nil
	return c.backend.Close()
}
