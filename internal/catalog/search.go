package catalog

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

// similarityFloor drops weak fuzzy matches so a one-word query does not pull
// in half the catalog.
const similarityFloor = 0.2

type fingerprint struct {
	tokens map[string]float64
	norm   float64
}

func newFingerprint(text string) *fingerprint {
	raw := tokenSplitPattern.Split(strings.ToLower(text), -1)
	counts := make(map[string]float64, len(raw))
	for _, token := range raw {
		if len(token) < 2 {
			continue
		}
		counts[token]++
	}
	if len(counts) == 0 {
		return nil
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &fingerprint{tokens: counts, norm: math.Sqrt(norm)}
}

func cosine(a, b *fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// Search filters and ranks catalog entries against a free-text query. Entries
// containing the query as a substring always match and outrank fuzzy hits;
// the rest are ranked by token similarity over id, name, author, and tags.
// An empty query returns the index unchanged.
func Search(index []Descriptor, query string) []Descriptor {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return index
	}
	queryPrint := newFingerprint(query)

	type scored struct {
		desc  Descriptor
		score float64
	}
	matches := make([]scored, 0, len(index))
	for _, desc := range index {
		haystack := strings.ToLower(desc.ID + " " + desc.Name + " " + desc.Author + " " + strings.Join(desc.Tags, " "))
		if strings.Contains(haystack, query) {
			// Above any possible cosine score.
			matches = append(matches, scored{desc: desc, score: 2})
			continue
		}
		if score := cosine(queryPrint, newFingerprint(haystack)); score >= similarityFloor {
			matches = append(matches, scored{desc: desc, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	out := make([]Descriptor, 0, len(matches))
	for _, match := range matches {
		out = append(out, match.desc)
	}
	return out
}
