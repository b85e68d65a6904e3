package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0.0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestVectorQuery_RanksBySimilarity(t *testing.T) {
	v := NewVectorIndex()
	v.Upsert("close", []float32{1, 0.1}, t0)
	v.Upsert("far", []float32{0.1, 1}, t0)

	results := v.Query([]float32{1, 0}, 10, 0.0)

	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].FileID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestVectorQuery_RelevanceFloorFiltersNoise(t *testing.T) {
	// Given: the best match scores below the floor
	v := NewVectorIndex()
	v.Upsert("weak", []float32{0.1, 1}, t0)

	// When: querying with a floor above the weak match's score
	results := v.Query([]float32{1, 0}, 10, 0.5)

	// Then: an empty list, not a low-confidence guess
	assert.Empty(t, results)
}

func TestVectorQuery_TopKApplies(t *testing.T) {
	v := NewVectorIndex()
	v.Upsert("a", []float32{1, 0}, t0)
	v.Upsert("b", []float32{0.9, 0.1}, t0)
	v.Upsert("c", []float32{0.8, 0.2}, t0)

	assert.Len(t, v.Query([]float32{1, 0}, 2, 0.0), 2)
}

func TestVectorUpsert_ReplacesEntry(t *testing.T) {
	v := NewVectorIndex()
	v.Upsert("a", []float32{1, 0}, t0)
	v.Upsert("a", []float32{0, 1}, t0)

	assert.Equal(t, 1, v.Count(), "at most one entry per file id")
	results := v.Query([]float32{0, 1}, 1, 0.9)
	require.Len(t, results, 1)
}

func TestVectorRemove(t *testing.T) {
	v := NewVectorIndex()
	v.Upsert("a", []float32{1, 0}, t0)

	v.Remove("a")

	assert.False(t, v.Contains("a"))
	assert.Zero(t, v.Count())
}

func TestVectorRename_PreservesEmbedding(t *testing.T) {
	v := NewVectorIndex()
	v.Upsert("old", []float32{1, 0}, t0)

	v.Rename("old", "new", t1)

	assert.False(t, v.Contains("old"))
	results := v.Query([]float32{1, 0}, 1, 0.99)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].FileID)
}

func TestVectorQuery_TieBreaksByModTimeThenID(t *testing.T) {
	v := NewVectorIndex()
	// Same vector, identical scores.
	v.Upsert("older", []float32{1, 0}, t0)
	v.Upsert("newer", []float32{1, 0}, t1)
	v.Upsert("alpha", []float32{1, 0}, t0)

	results := v.Query([]float32{1, 0}, 10, 0.0)

	require.Len(t, results, 3)
	assert.Equal(t, "newer", results[0].FileID)
	assert.Equal(t, "alpha", results[1].FileID)
	assert.Equal(t, "older", results[2].FileID)
}
