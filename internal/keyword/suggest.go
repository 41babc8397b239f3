package keyword

import (
	"sort"
	"strings"
)

const maxSuggestDistance = 2

// Suggest returns query with each unknown term replaced by the closest indexed
// term (fewest edits, then most frequent, then alphabetical). It returns ""
// when every term is known or no replacement is within two edits.
func (c *ChatIndex) Suggest(query string) (string, error) {
	dict, err := c.termFrequencies()
	if err != nil {
		return "", err
	}
	terms := tokenizeQuery(query)
	changed := false
	for i, term := range terms {
		if _, ok := dict[term]; ok {
			continue
		}
		if best, ok := closestTerm(term, dict); ok {
			terms[i] = best
			changed = true
		}
	}
	if !changed {
		return "", nil
	}
	return strings.Join(terms, " "), nil
}

func closestTerm(term string, dict map[string]int) (string, bool) {
	type candidate struct {
		term     string
		distance int
		freq     int
	}
	var cands []candidate
	n := len([]rune(term))
	for t, freq := range dict {
		if diff := len([]rune(t)) - n; diff > maxSuggestDistance || diff < -maxSuggestDistance {
			continue
		}
		if d := EditDistance(term, t); d <= maxSuggestDistance {
			cands = append(cands, candidate{term: t, distance: d, freq: freq})
		}
	}
	if len(cands) == 0 {
		return "", false
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].distance != cands[j].distance {
			return cands[i].distance < cands[j].distance
		}
		if cands[i].freq != cands[j].freq {
			return cands[i].freq > cands[j].freq
		}
		return cands[i].term < cands[j].term
	})
	return cands[0].term, true
}
