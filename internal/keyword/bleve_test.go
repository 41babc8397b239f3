package keyword

import (
	"context"
	"testing"

	"github.com/hyperjump/tanya/internal/models"
)

func newTestIndex(t *testing.T) *ChatIndex {
	t.Helper()
	idx, err := NewChatIndex()
	if err != nil {
		t.Fatalf("NewChatIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func indexConversations(t *testing.T, idx *ChatIndex, convs ...*models.Conversation) {
	t.Helper()
	for _, c := range convs {
		if err := idx.Index(context.Background(), c.ID, DocumentFor(c)); err != nil {
			t.Fatalf("Index %s: %v", c.ID, err)
		}
	}
}

func conversation(id, title string, contents ...string) *models.Conversation {
	c := models.NewConversation(id)
	c.Title = title
	for i, content := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		c.Messages = append(c.Messages, models.Message{Role: role, Content: content})
	}
	return c
}

func TestChatIndex_SearchTranscriptAndTitle(t *testing.T) {
	idx := newTestIndex(t)
	budget := conversation("chat_20240101000000", "Budget review", "What is the marketing spend?", "It is $4M.")
	travel := conversation("chat_20240102000000", "Trip", "Which hotel did we book for the budget trip?")
	travel.Context.Sources = []string{"hotel_confirmation.pdf"}
	indexConversations(t, idx, budget, travel)

	ctx := context.Background()
	hits, err := idx.Search(ctx, "marketing", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != budget.ID {
		t.Fatalf("hits = %+v", hits)
	}

	// Both mention "budget"; the title match ranks first.
	hits, err = idx.Search(ctx, "budget", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != budget.ID {
		t.Fatalf("hits = %+v", hits)
	}

	// Source file names are searchable with underscores split.
	hits, err = idx.Search(ctx, "confirmation", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != travel.ID {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestChatIndex_FuzzyAndDelete(t *testing.T) {
	idx := newTestIndex(t)
	c := conversation("chat_20240101000000", "Quarterly report", "summarize the revenue")
	indexConversations(t, idx, c)
	ctx := context.Background()

	hits, err := idx.Search(ctx, "revenu", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("exact search matched misspelling: %+v", hits)
	}
	hits, err = idx.Search(ctx, "revenu", 10, &SearchOptions{Fuzzy: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("fuzzy search hits = %+v", hits)
	}

	if err := idx.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := idx.DocCount()
	if err != nil || n != 0 {
		t.Errorf("DocCount = %d, %v", n, err)
	}
	hits, _ = idx.Search(ctx, "revenue", 10, nil)
	if len(hits) != 0 {
		t.Errorf("deleted conversation still found: %+v", hits)
	}
}

func TestChatIndex_SearchEmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "   ", 10, nil)
	if err != nil || len(hits) != 0 {
		t.Errorf("hits = %+v, err = %v", hits, err)
	}
}

func TestChatIndex_Suggest(t *testing.T) {
	idx := newTestIndex(t)
	indexConversations(t, idx,
		conversation("chat_20240101000000", "Invoices", "list the invoices from march"),
		conversation("chat_20240102000000", "More invoices", "invoices again"),
	)

	got, err := idx.Suggest("invoces march")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got != "invoices march" {
		t.Errorf("Suggest = %q", got)
	}

	got, _ = idx.Suggest("march invoices")
	if got != "" {
		t.Errorf("known terms should not be corrected, got %q", got)
	}

	// The cache is refreshed after new documents are indexed.
	indexConversations(t, idx, conversation("chat_20240103000000", "Payroll", "payroll totals"))
	got, _ = idx.Suggest("payrol")
	if got != "payroll" {
		t.Errorf("Suggest after reindex = %q", got)
	}
}
