package rag

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero
// vector. The vectors must have the same length.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Rank scores every entry against query and returns the topK nearest,
// highest similarity first. Equal scores are ordered by ID so results are
// stable across calls.
func Rank(entries []Entry, query []float32, topK int) ([]Match, error) {
	if topK <= 0 || len(entries) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		if len(e.Embedding) != len(query) {
			return nil, fmt.Errorf("rag: entry %s has %d dimensions, query has %d", e.ID, len(e.Embedding), len(query))
		}
		matches = append(matches, Match{
			ID:       e.ID,
			Content:  e.Content,
			Metadata: e.Metadata,
			Score:    Cosine(e.Embedding, query),
		})
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
