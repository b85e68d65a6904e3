// Package index provides the two in-memory retrieval indexes: an
// inverted keyword index with conjunctive matching and a flat vector
// index ranked by cosine similarity. Both are rebuilt from the metadata
// store on startup and mutated incrementally during scans.
package index

import (
	"strings"
	"unicode"
)

// Tokenize case-folds text and splits it on non-alphanumeric boundaries,
// dropping empty tokens. Indexing and querying must use the same rules
// or conjunctive matching silently breaks.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return fields
}

// TermFrequencies tokenizes text and counts occurrences per token.
func TermFrequencies(text string) map[string]int {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}
	return freq
}
