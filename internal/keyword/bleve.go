package keyword

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const titleBoost = 3.0

// ChatIndex is an in-memory Bleve index of one user's conversations, keyed by
// conversation id.
type ChatIndex struct {
	index bleve.Index

	termsMu    sync.Mutex
	termsValid bool
	terms      map[string]int
}

// NewChatIndex creates an empty in-memory index.
func NewChatIndex() (*ChatIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lowercases and tokenizes without stemming so short
	// queries match the exact word.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &ChatIndex{index: index}, nil
}

// Index adds or replaces the document for id.
func (c *ChatIndex) Index(ctx context.Context, id string, doc ChatDocument) error {
	c.invalidateTerms()
	if err := c.index.Index(id, doc); err != nil {
		return fmt.Errorf("index conversation %s: %w", id, err)
	}
	return nil
}

// Delete removes the document for id.
func (c *ChatIndex) Delete(ctx context.Context, id string) error {
	c.invalidateTerms()
	if err := c.index.Delete(id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

// Search matches query against titles (boosted) and transcripts. Results are
// ordered by score, then id.
func (c *ChatIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []Hit{}, nil
	}
	fuzziness := 0
	if opts != nil && opts.Fuzzy {
		fuzziness = 1
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}
	q := bleve.NewDisjunctionQuery(
		fieldQuery(query, "title", fuzziness, titleBoost),
		fieldQuery(query, "content", fuzziness, 1),
	)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.SortBy([]string{"-_score", "_id"})
	results, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Hit, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = Hit{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// fieldQuery builds a match query on field, or a disjunction of per-term fuzzy
// queries when fuzziness > 0.
func fieldQuery(query, field string, fuzziness int, boost float64) blevequery.Query {
	terms := tokenizeQuery(query)
	if fuzziness == 0 || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// DocCount returns the number of indexed conversations.
func (c *ChatIndex) DocCount() (uint64, error) {
	return c.index.DocCount()
}

// Close closes the index.
func (c *ChatIndex) Close() error {
	return c.index.Close()
}

func (c *ChatIndex) invalidateTerms() {
	c.termsMu.Lock()
	c.termsValid = false
	c.termsMu.Unlock()
}

// termFrequencies returns every indexed term with its document frequency,
// summed over the title and content fields. The result is cached until the
// next Index or Delete.
func (c *ChatIndex) termFrequencies() (map[string]int, error) {
	c.termsMu.Lock()
	defer c.termsMu.Unlock()
	if c.termsValid {
		return c.terms, nil
	}
	terms := make(map[string]int)
	for _, field := range []string{"title", "content"} {
		dict, err := c.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("read %s terms: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			terms[entry.Term] += int(entry.Count)
		}
		_ = dict.Close()
	}
	c.terms = terms
	c.termsValid = true
	return terms, nil
}
