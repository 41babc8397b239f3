//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"fmt"
)

var errNoFAISS = fmt.Errorf("%w: faiss (build with -tags=faiss and install the FAISS library)", ErrUnavailable)

// FAISSIndex stands in for the FAISS backend in builds without it. Every
// constructor call fails with ErrUnavailable.
type FAISSIndex struct{}

// NewFAISSIndex always fails in this build.
func NewFAISSIndex(int) (*FAISSIndex, error) {
	return nil, errNoFAISS
}

func (*FAISSIndex) Add(context.Context, [][]float32) error { return errNoFAISS }

func (*FAISSIndex) Search(context.Context, []float32, int) ([]Hit, error) { return nil, errNoFAISS }

func (*FAISSIndex) Reset() {}

func (*FAISSIndex) Size() int { return 0 }

func (*FAISSIndex) Close() error { return nil }

func (*FAISSIndex) Type() string { return string(IndexTypeFAISS) }
