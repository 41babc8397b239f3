// Package embedding provides sentence embedders (ONNX, Gemini, hashing) and an LRU cache wrapper.
package embedding

import "context"

// Embedder produces fixed-dimension vector embeddings for text. Implementations
// must be deterministic for a given model: the same text always yields the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
