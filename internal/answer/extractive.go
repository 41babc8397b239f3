package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/tanya/pkg/utils"
)

const (
	extractiveChunks  = 3
	extractiveExcerpt = 300
)

// Extractive answers offline by quoting the best-ranked chunks.
type Extractive struct{}

// NewExtractive returns an Extractive generator.
func NewExtractive() *Extractive { return &Extractive{} }

// Name implements Generator.
func (*Extractive) Name() string { return "extractive" }

// Answer implements Generator.
func (*Extractive) Answer(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Chunks) == 0 {
		return NotFound, nil
	}
	n := min(len(req.Chunks), extractiveChunks)
	var b strings.Builder
	b.WriteString("Most relevant passages:")
	for _, c := range req.Chunks[:n] {
		excerpt := strings.Join(strings.Fields(c.Text), " ")
		fmt.Fprintf(&b, "\n- %s: %s", c.Source, utils.Truncate(excerpt, extractiveExcerpt))
	}
	return b.String(), nil
}
