// Package vector provides vector index backends and the chunk-level index used for retrieval.
package vector

import "context"

// VectorIndex stores raw vectors in insertion order and ranks them against a query.
// Positions are assigned sequentially from zero by Add and reset by Reset.
type VectorIndex interface {
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns up to k hits by descending inner product. Equal scores are
	// ordered by ascending position.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Reset()
	Size() int
	Type() string
	Close() error
}

// Hit is a single vector search result.
type Hit struct {
	Position int
	Score    float64 // raw inner product
}
