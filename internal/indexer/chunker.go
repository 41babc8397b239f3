// Package indexer turns uploaded files and web pages into context chunks.
package indexer

import "github.com/hyperjump/tanya/internal/models"

// DefaultChunkSize is the window length in code points.
const DefaultChunkSize = 500

// Chunker splits text into fixed, non-overlapping windows of code points.
type Chunker struct {
	size int
}

// NewChunker creates a chunker with the given window size. Sizes below 1 use
// DefaultChunkSize.
func NewChunker(size int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Chunker{size: size}
}

// Size returns the window length.
func (c *Chunker) Size() int { return c.size }

// Chunk splits text into windows of Size code points, the last possibly
// shorter, each labelled with source. Text is not normalized, so joining the
// chunk texts in order yields text again. Empty text yields no chunks.
func (c *Chunker) Chunk(text, source string) []models.Chunk {
	if text == "" {
		return nil
	}
	var chunks []models.Chunk
	start, n := 0, 0
	for i := range text {
		if n == c.size {
			chunks = append(chunks, models.Chunk{Text: text[start:i], Source: source})
			start, n = i, 0
		}
		n++
	}
	return append(chunks, models.Chunk{Text: text[start:], Source: source})
}
