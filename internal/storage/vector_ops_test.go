package storage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/manualrag/pkg/types"
)

func TestSearchText_RanksBestMatchFirst(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID,
		"Engine oil capacity with filter: 4.8 qt. Use SAE 5W-30 engine oil.",
		"Do not overfill the engine oil. Check the dipstick.",
		"Tire pressure: 35 psi front and rear.",
	)
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	// no chunk contains "type", so the query widens to any term
	results, err := storage.SearchText(ctx, "5W-30 oil type", m.ID, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, chunks[1].ID, results[0].ChunkID)
	assert.Equal(t, chunks[2].ID, results[1].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)

	// every term present: only the 5W-30 chunk
	results, err = storage.SearchText(ctx, "5W-30 oil", m.ID, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[1].ID, results[0].ChunkID)
}

func TestSearchText_PhraseForHyphenatedTerm(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID,
		"Recommended viscosity 0W-20.",
		"Page 30 lists 5W accessories.",
	)
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	results, err := storage.SearchText(ctx, "5w-30", m.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchText_ManualFilter(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	camryManual := createTestManual(t, storage, camry())
	civic := createTestManual(t, storage, types.Vehicle{Year: 2023, Make: "Honda", Model: "Civic"})

	a := makeChunks(camryManual.ID, "Wiper blade replacement for the Camry.")
	b := makeChunks(civic.ID, "Wiper blade replacement for the Civic.")
	_, err := storage.UpsertChunks(ctx, a, vectorsFor(len(a), 4))
	require.NoError(t, err)
	_, err = storage.UpsertChunks(ctx, b, vectorsFor(len(b), 4))
	require.NoError(t, err)

	results, err := storage.SearchText(ctx, "wiper blade", civic.ID, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, b[1].ID, results[0].ChunkID)

	all, err := storage.SearchText(ctx, "wiper blade", "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSearchText_EmptyAndLimit(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "brake fluid one", "brake fluid two", "brake fluid three")
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	results, err := storage.SearchText(ctx, "   ", m.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = storage.SearchText(ctx, `"brake" OR NEAR(`, m.ID, 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = storage.SearchText(ctx, "brake", m.ID, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = storage.SearchText(ctx, "brake", m.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"What oil should I use?", []string{`"oil"`, `"use"`}},
		{"5W-30 oil type", []string{`"5w-30"`, `"oil"`, `"type"`}},
		{"the the", []string{`"the"`}},
		{"tire tire pressure", []string{`"tire"`, `"pressure"`}},
		{"", nil},
		{"?!", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, queryTerms(tt.query))
		})
	}
}

func TestSearchVector(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "near", "close", "far")
	vectors := [][]float32{
		{0, 0, 1},
		{1, 0, 0},
		{0.9, 0.3, 0},
		{0, 1, 0},
	}
	_, err := storage.UpsertChunks(ctx, chunks, vectors)
	require.NoError(t, err)

	results, err := storage.SearchVector(ctx, []float32{1, 0, 0}, m.ID, 10, DefaultSimilarityThreshold)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, chunks[1].ID, results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
	assert.Equal(t, chunks[2].ID, results[1].ChunkID)
	assert.InDelta(t, 0.9/math.Sqrt(0.9), results[1].SimilarityScore, 1e-5)

	results, err = storage.SearchVector(ctx, []float32{1, 0, 0}, m.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[1].ID, results[0].ChunkID)
}

func TestSearchVector_NoMatches(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "only")
	_, err := storage.UpsertChunks(ctx, chunks, [][]float32{{1, 0, 0}, {0, 1, 0}})
	require.NoError(t, err)

	// wrong dimension
	results, err := storage.SearchVector(ctx, []float32{1, 0}, m.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	// below threshold
	results, err = storage.SearchVector(ctx, []float32{0, 0, 1}, m.ID, 10, 0.65)
	require.NoError(t, err)
	assert.Empty(t, results)

	// other manual
	results, err = storage.SearchVector(ctx, []float32{1, 0, 0}, "other", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSerializeVector(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	blob := serializeVector(v)
	assert.Len(t, blob, 12)
	assert.Equal(t, v, deserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 1}, []float32{-1, -1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 1}))
}

func TestSortCandidates_TieBreakByID(t *testing.T) {
	c := []candidate{{"b", 0.5}, {"a", 0.5}, {"c", 0.9}}
	sortCandidates(c)
	assert.Equal(t, []candidate{{"c", 0.9}, {"a", 0.5}, {"b", 0.5}}, c)
}
