package index

import (
	"math"
	"sort"
	"sync"
	"time"
)

// VectorIndex is a flat collection of (file id, embedding) pairs ranked
// by cosine similarity. Brute-force scan; fine at personal-collection
// scale.
//
// VectorIndex is safe for concurrent use.
type VectorIndex struct {
	mu       sync.RWMutex
	entries  map[string][]float32
	modTimes map[string]time.Time
}

// VectorResult is one ranked similarity match.
type VectorResult struct {
	FileID string
	Score  float64 // cosine similarity in [-1, 1]
}

// NewVectorIndex creates an empty vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		entries:  make(map[string][]float32),
		modTimes: make(map[string]time.Time),
	}
}

// Upsert stores an embedding for fileID, replacing any prior entry.
func (v *VectorIndex) Upsert(fileID string, embedding []float32, modifiedAt time.Time) {
	if len(embedding) == 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[fileID] = embedding
	v.modTimes[fileID] = modifiedAt
}

// Remove deletes the entry for fileID if present.
func (v *VectorIndex) Remove(fileID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, fileID)
	delete(v.modTimes, fileID)
}

// Rename re-keys an entry. Used when a scan detects a moved file.
func (v *VectorIndex) Rename(oldID, newID string, modifiedAt time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	emb, ok := v.entries[oldID]
	if !ok {
		return
	}
	v.entries[newID] = emb
	delete(v.entries, oldID)
	v.modTimes[newID] = modifiedAt
	delete(v.modTimes, oldID)
}

// Query returns up to topK entries with similarity >= minScore, ranked
// by similarity descending, ties broken by most recent modification
// time then file id ascending. Entries below the floor never appear,
// even when fewer than topK qualify.
func (v *VectorIndex) Query(embedding []float32, topK int, minScore float64) []VectorResult {
	if len(embedding) == 0 {
		return nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	results := make([]VectorResult, 0, len(v.entries))
	for id, stored := range v.entries {
		score := CosineSimilarity(embedding, stored)
		if score < minScore {
			continue
		}
		results = append(results, VectorResult{FileID: id, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		mi, mj := v.modTimes[results[i].FileID], v.modTimes[results[j].FileID]
		if !mi.Equal(mj) {
			return mi.After(mj)
		}
		return results[i].FileID < results[j].FileID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Count returns the number of stored entries.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Contains reports whether fileID has an entry.
func (v *VectorIndex) Contains(fileID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.entries[fileID]
	return ok
}

// CosineSimilarity computes the cosine of the angle between two
// vectors. Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
