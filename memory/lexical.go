package memory

import (
	"strings"
	"unicode"
)

// tokenize lowercases text and splits it on non-letter, non-digit
// runes. Shared by the lexical relevance scorer and topic extraction.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// lexicalOverlap scores how much of the query's vocabulary appears in
// text, in [0,1]. This is deliberately simple: the window, episodic
// and summary tiers rank with token overlap while the long-term tier
// ranks with vector similarity, and the engine does not normalize
// across the two scales.
func lexicalOverlap(query, text string) float64 {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}

	textSet := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		textSet[tok] = struct{}{}
	}

	matched := 0
	seen := make(map[string]struct{}, len(queryTokens))
	unique := 0
	for _, tok := range queryTokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		unique++
		if _, ok := textSet[tok]; ok {
			matched++
		}
	}
	if unique == 0 {
		return 0
	}
	return float64(matched) / float64(unique)
}

// extractTopics picks up to max distinct content-bearing tokens
// (5+ runes) as coarse topic tags for a message.
func extractTopics(content string, max int) []string {
	if max <= 0 {
		max = 3
	}
	seen := make(map[string]struct{})
	var topics []string
	for _, tok := range tokenize(content) {
		if len([]rune(tok)) < 5 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		topics = append(topics, tok)
		if len(topics) == max {
			break
		}
	}
	return topics
}
