// Package budget estimates token counts and trims retrieved context so the
// prompt handed to the chat model stays inside its context window. Backends
// use different tokenizers, so the estimate is a character heuristic:
// 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget for retrieved context.
	// It fits 8k-context models with room left for the question and answer.
	DefaultMaxContextTokens = 6000

	// separatorTokens accounts for the blank line placed between chunks.
	separatorTokens = 1
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of a prompt, including
// a per-message overhead of 4 tokens.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimTexts keeps the longest prefix of texts whose combined estimate fits
// within maxTokens. texts are expected in relevance order, so the least
// relevant chunks are the ones dropped. The first text is always kept, even
// when it alone exceeds the budget, so a non-empty input never trims to
// nothing. maxTokens <= 0 disables trimming.
func TrimTexts(texts []string, maxTokens int) []string {
	if maxTokens <= 0 || len(texts) == 0 {
		return texts
	}
	used := Estimate(texts[0])
	n := 1
	for ; n < len(texts); n++ {
		cost := separatorTokens + Estimate(texts[n])
		if used+cost > maxTokens {
			break
		}
		used += cost
	}
	return texts[:n]
}
