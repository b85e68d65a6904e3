package index

import (
	"sort"
	"sync"
	"time"
)

// KeywordIndex is an inverted index over normalized tokens from
// filenames and extracted text. A file qualifies for a query only if it
// contains every query token; the score is the summed term frequency.
//
// KeywordIndex is safe for concurrent use. Readers may observe a
// partially updated index while a scan is running; no snapshot
// isolation is promised.
type KeywordIndex struct {
	mu sync.RWMutex

	// postings maps token -> file id -> term frequency.
	postings map[string]map[string]int

	// fileTokens tracks which tokens each file contributed, so Remove
	// can prune postings without scanning every token.
	fileTokens map[string][]string

	// modTimes holds each file's modification time for tie-breaking.
	modTimes map[string]time.Time
}

// KeywordResult is one ranked keyword match.
type KeywordResult struct {
	FileID string
	Score  int
}

// NewKeywordIndex creates an empty keyword index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{
		postings:   make(map[string]map[string]int),
		fileTokens: make(map[string][]string),
		modTimes:   make(map[string]time.Time),
	}
}

// Upsert tokenizes the filename and text and atomically replaces any
// prior postings for fileID.
func (k *KeywordIndex) Upsert(fileID, filename, text string, modifiedAt time.Time) {
	freq := TermFrequencies(filename + " " + text)

	k.mu.Lock()
	defer k.mu.Unlock()

	k.removeLocked(fileID)

	if len(freq) == 0 {
		return
	}

	tokens := make([]string, 0, len(freq))
	for tok, tf := range freq {
		posting, ok := k.postings[tok]
		if !ok {
			posting = make(map[string]int)
			k.postings[tok] = posting
		}
		posting[fileID] = tf
		tokens = append(tokens, tok)
	}
	k.fileTokens[fileID] = tokens
	k.modTimes[fileID] = modifiedAt
}

// Remove deletes all postings referencing fileID, pruning tokens left
// with empty posting lists.
func (k *KeywordIndex) Remove(fileID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.removeLocked(fileID)
}

func (k *KeywordIndex) removeLocked(fileID string) {
	for _, tok := range k.fileTokens[fileID] {
		posting := k.postings[tok]
		delete(posting, fileID)
		if len(posting) == 0 {
			delete(k.postings, tok)
		}
	}
	delete(k.fileTokens, fileID)
	delete(k.modTimes, fileID)
}

// Rename re-keys a file's postings without retokenizing, preserving
// term frequencies. Used when a scan detects a moved file.
func (k *KeywordIndex) Rename(oldID, newID string, modifiedAt time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	tokens, ok := k.fileTokens[oldID]
	if !ok {
		return
	}
	for _, tok := range tokens {
		posting := k.postings[tok]
		posting[newID] = posting[oldID]
		delete(posting, oldID)
	}
	k.fileTokens[newID] = tokens
	delete(k.fileTokens, oldID)
	k.modTimes[newID] = modifiedAt
	delete(k.modTimes, oldID)
}

// Query returns files containing every token, ranked by summed term
// frequency, ties broken by most recent modification time then file id
// ascending. An empty token list returns nil.
func (k *KeywordIndex) Query(tokens []string, limit int) []KeywordResult {
	tokens = dedupe(tokens)
	if len(tokens) == 0 {
		return nil
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	// Intersect posting lists, accumulating scores.
	scores := make(map[string]int)
	for i, tok := range tokens {
		posting, ok := k.postings[tok]
		if !ok {
			return nil // conjunctive: one missing token empties the result
		}
		if i == 0 {
			for id, tf := range posting {
				scores[id] = tf
			}
			continue
		}
		for id := range scores {
			tf, ok := posting[id]
			if !ok {
				delete(scores, id)
			} else {
				scores[id] += tf
			}
		}
		if len(scores) == 0 {
			return nil
		}
	}

	results := make([]KeywordResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, KeywordResult{FileID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		mi, mj := k.modTimes[results[i].FileID], k.modTimes[results[j].FileID]
		if !mi.Equal(mj) {
			return mi.After(mj)
		}
		return results[i].FileID < results[j].FileID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// dedupe drops repeated tokens, keeping first-seen order, so a
// repeated query term is scored once.
func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, tok := range tokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// TokenCount returns the number of distinct tokens in the index.
func (k *KeywordIndex) TokenCount() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.postings)
}

// FileCount returns the number of indexed files.
func (k *KeywordIndex) FileCount() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.fileTokens)
}

// Contains reports whether fileID has any postings.
func (k *KeywordIndex) Contains(fileID string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.fileTokens[fileID]
	return ok
}
