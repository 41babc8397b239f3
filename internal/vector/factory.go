package vector

import (
	"errors"
	"fmt"
)

// IndexType names a vector index backend.
type IndexType string

const (
	// IndexTypeMemory is exhaustive in-process search.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS is a FAISS flat inner-product index. It needs the FAISS
	// library and the faiss build tag.
	IndexTypeFAISS IndexType = "faiss"
)

// ErrUnavailable is returned for a backend that was not compiled in.
var ErrUnavailable = errors.New("vector backend not available")

// NewVectorIndex creates an empty index of the given type ("" is memory).
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type %q (supported: memory, faiss)", indexType)
	}
}

// Resolve returns the index type to use for indexType. When that backend
// cannot be created it returns memory together with the reason.
func Resolve(indexType string, dimensions int) (IndexType, error) {
	idx, err := NewVectorIndex(indexType, dimensions)
	if err != nil {
		return IndexTypeMemory, err
	}
	defer idx.Close()
	return IndexType(idx.Type()), nil
}

// IsFAISSAvailable reports whether FAISS support is compiled in.
func IsFAISSAvailable() bool {
	_, err := Resolve(string(IndexTypeFAISS), 1)
	return err == nil
}
