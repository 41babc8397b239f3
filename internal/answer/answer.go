// Package answer turns ranked evidence into an answer to a user's question.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
)

// ErrUnavailable is returned when a generator cannot be used, for example
// because no API key is configured.
var ErrUnavailable = errors.New("answer generator unavailable")

// NotFound is the reply when the context holds nothing relevant.
const NotFound = "I cannot answer that based on the provided context. If a certain piece of information is missing, please provide it."

// Request carries a question and the evidence retrieved for it.
type Request struct {
	Question string
	Chunks   []models.Chunk
	Tables   []models.TableDescriptor
	Images   []models.ImageAttachment
}

// Generator produces an answer for a Request.
type Generator interface {
	Answer(ctx context.Context, req Request) (string, error)
	Name() string
}

// New builds the generator named by cfg.Provider. apiKey is only consulted by
// providers that call a hosted model.
func New(ctx context.Context, cfg config.AnswerConfig, apiKey string) (Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, apiKey, cfg.Model, cfg.Timeout())
	case "extractive":
		return NewExtractive(), nil
	default:
		return nil, fmt.Errorf("unknown answer provider %q", cfg.Provider)
	}
}

// BuildPrompt assembles the instructions, the table descriptors, the context
// chunks in rank order and the question.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are a document analyst assistant. Answer the user's question using only the provided context.\n\n")
	b.WriteString("The context contains:\n")
	b.WriteString("- Textual information extracted from documents, images and web pages\n")
	if len(req.Tables) > 0 {
		b.WriteString("- Descriptions of uploaded tabular data files\n")
	} else {
		b.WriteString("- No structured data was provided\n")
	}
	if len(req.Images) > 0 {
		b.WriteString("- Attached images\n")
	}
	b.WriteString("- The user's question at the end\n")

	if len(req.Tables) > 0 {
		b.WriteString("\nYou have access to the following tables (from uploaded files):\n")
		for _, t := range req.Tables {
			fmt.Fprintf(&b, "- `%s` (from file '%s'): %d rows, columns = [%s]\n",
				t.Name, t.Filename, t.Rows, strings.Join(t.Columns, ", "))
		}
	}

	b.WriteString("\nWhen answering:\n")
	b.WriteString("- If the answer can be found in the context, provide it directly and mention its source.\n")
	fmt.Fprintf(&b, "- If the answer is not in the context, say: %q\n", NotFound)

	b.WriteString("\nContext:\n")
	for i, c := range req.Chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", c.Source, c.Text)
	}
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(req.Question)
	b.WriteString("\n")
	return b.String()
}
