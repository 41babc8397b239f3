// Package cli renders tanya results for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/session"
	"github.com/hyperjump/tanya/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	rule           = "─────────────────────────────────────────────────────────"
	excerptLength  = 200
	sourcesPerLine = 3
)

// ParseFormat maps a flag value to an OutputFormat. Unknown values are text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and, in text form, the evidence it used.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	if resp.Degraded {
		fmt.Fprintln(w, "(answer generation failed)")
	}
	if len(resp.Chunks) == 0 {
		fmt.Fprintln(w, "No context was retrieved.")
		return nil
	}
	fmt.Fprintf(w, "Sources: %s\n", strings.Join(resp.Sources, ", "))
	for i, c := range resp.Chunks {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "[%d] %s\n", i+1, c.Source)
		fmt.Fprintf(w, "%s\n", utils.Truncate(c.Text, excerptLength))
	}
	fmt.Fprintln(w)
	return nil
}

// WriteConversations writes conversation summaries, one per line.
func WriteConversations(w io.Writer, convs []models.ConversationSummary, format OutputFormat) error {
	if format == OutputJSON {
		if convs == nil {
			convs = []models.ConversationSummary{}
		}
		return writeJSON(w, map[string]interface{}{"conversations": convs})
	}
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations.")
		return nil
	}
	for _, c := range convs {
		fmt.Fprintf(w, "%s  %-30s  %d messages, %d chunks%s\n",
			c.ID, utils.Truncate(c.Title, 30), c.Messages, c.Chunks, sourceList(c.Sources))
	}
	return nil
}

func sourceList(sources []string) string {
	switch {
	case len(sources) == 0:
		return ""
	case len(sources) <= sourcesPerLine:
		return " [" + strings.Join(sources, ", ") + "]"
	default:
		return fmt.Sprintf(" [%s, +%d more]", strings.Join(sources[:sourcesPerLine], ", "), len(sources)-sourcesPerLine)
	}
}

// WriteUploadReport writes the per-file outcome of an upload.
func WriteUploadReport(w io.Writer, rep *models.UploadReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, rep)
	}
	for _, f := range rep.Files {
		if f.Error != "" {
			fmt.Fprintf(w, "  ✗ %s: %s\n", f.Name, f.Error)
			continue
		}
		fmt.Fprintf(w, "  ✓ %s (%d chunks)\n", f.Name, f.Chunks)
	}
	fmt.Fprintf(w, "Added %d chunks to conversation %s\n", rep.Added, rep.ConversationID)
	return nil
}

// WriteFindResult writes chat search results.
func WriteFindResult(w io.Writer, res *session.FindResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if res.Suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", res.Suggestion)
	}
	fmt.Fprintf(w, "Found %d conversations for %q\n", len(res.Conversations), res.Query)
	return WriteConversations(w, res.Conversations, OutputText)
}
