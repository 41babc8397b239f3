// Package keyword provides keyword search over a user's conversations.
package keyword

import (
	"strings"

	"github.com/hyperjump/tanya/internal/models"
)

// ChatDocument is the searchable form of one conversation.
type ChatDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// DocumentFor renders a conversation's transcript and context sources as a
// ChatDocument.
func DocumentFor(conv *models.Conversation) ChatDocument {
	var b strings.Builder
	for _, m := range conv.Messages {
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	for _, s := range conv.Context.Sources {
		b.WriteString(strings.ReplaceAll(s, "_", " "))
		b.WriteByte('\n')
	}
	return ChatDocument{Title: conv.Title, Content: b.String()}
}

// SearchOptions tunes a keyword search. Nil means exact matching.
type SearchOptions struct {
	// Fuzzy matches terms within Fuzziness edits.
	Fuzzy bool
	// Fuzziness is the maximum edit distance (1 or 2); default 1.
	Fuzziness int
}

// Hit is a single keyword search hit.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
