package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	req := Request{
		Question: "What was Q3 revenue?",
		Chunks: []models.Chunk{
			{Text: "Revenue grew to $4M in Q3.", Source: "report.pdf"},
			{Text: "Headcount was 40.", Source: "Link: https://example.com/about"},
		},
		Tables: []models.TableDescriptor{{Name: "sales", Filename: "sales.csv", Columns: []string{"region", "revenue"}, Rows: 12}},
	}
	prompt := BuildPrompt(req)

	assert.Contains(t, prompt, "- `sales` (from file 'sales.csv'): 12 rows, columns = [region, revenue]")
	assert.Contains(t, prompt, "[report.pdf]\nRevenue grew to $4M in Q3.\n\n[Link: https://example.com/about]\nHeadcount was 40.")
	assert.True(t, strings.HasSuffix(prompt, "Question:\nWhat was Q3 revenue?\n"))
	assert.Less(t, strings.Index(prompt, "report.pdf"), strings.Index(prompt, "Link: https"), "chunks keep rank order")
	assert.NotContains(t, prompt, "No structured data")
	assert.NotContains(t, prompt, "Attached images")
}

func TestBuildPrompt_noTablesWithImages(t *testing.T) {
	prompt := BuildPrompt(Request{Question: "q", Images: []models.ImageAttachment{{Filename: "a.png"}}})
	assert.Contains(t, prompt, "No structured data was provided")
	assert.Contains(t, prompt, "Attached images")
}

func TestExtractive(t *testing.T) {
	g := NewExtractive()
	got, err := g.Answer(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, NotFound, got)

	chunks := []models.Chunk{
		{Text: "alpha  one\nline", Source: "a.txt"},
		{Text: strings.Repeat("b", 400), Source: "b.txt"},
		{Text: "gamma", Source: "c.txt"},
		{Text: "delta", Source: "d.txt"},
	}
	got, err = g.Answer(context.Background(), Request{Question: "q", Chunks: chunks})
	require.NoError(t, err)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "- a.txt: alpha one line", lines[1])
	assert.Equal(t, "- b.txt: "+strings.Repeat("b", 300)+"...", lines[2])
	assert.NotContains(t, got, "delta")
}

func TestExtractive_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractive().Answer(ctx, Request{Question: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	g, err := New(context.Background(), config.AnswerConfig{Provider: "extractive"}, "")
	require.NoError(t, err)
	assert.Equal(t, "extractive", g.Name())

	_, err = New(context.Background(), config.AnswerConfig{Provider: "gemini", Model: "m"}, " ")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = New(context.Background(), config.AnswerConfig{Provider: "oracle"}, "")
	assert.Error(t, err)
}
