package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/manualrag/pkg/types"
)

func setupTestDB(t *testing.T, opts ...Option) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func camry() types.Vehicle {
	return types.Vehicle{Year: 2022, Make: "Toyota", Model: "Camry", Trim: "LE"}
}

func createTestManual(t *testing.T, s *SQLiteStorage, v types.Vehicle) *types.Manual {
	t.Helper()
	m := &types.Manual{
		ID:      uuid.NewString(),
		Vehicle: v,
		Title:   v.String() + " Owner's Manual",
		Source:  types.SourceOEMFallback,
	}
	require.NoError(t, s.CreateManual(context.Background(), m))
	return m
}

func chunkID(manualID string, seq int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%d", manualID, seq))).String()
}

// makeChunks builds one chapter followed by sections whose text comes from contents
func makeChunks(manualID string, contents ...string) []types.Chunk {
	chapterID := chunkID(manualID, 0)
	chunks := []types.Chunk{{
		ID:            chapterID,
		ManualID:      manualID,
		Level:         types.LevelChapter,
		Content:       "Chapter 1 Maintenance",
		TokenCount:    5,
		SectionTitle:  "Chapter 1 Maintenance",
		ContentType:   types.ContentGeneral,
		SequenceIndex: 0,
	}}
	for i, content := range contents {
		parent := chapterID
		page := 100 + i
		chunks = append(chunks, types.Chunk{
			ID:            chunkID(manualID, i+1),
			ManualID:      manualID,
			ParentID:      &parent,
			Level:         types.LevelSection,
			Content:       content,
			TokenCount:    types.EstimateTokens(content),
			PageNumber:    &page,
			SectionTitle:  fmt.Sprintf("1.%d", i+1),
			ContentType:   types.ContentGeneral,
			SequenceIndex: i + 1,
		})
	}
	return chunks
}

func vectorsFor(n int, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		v[i%dim] = 1
		out[i] = v
	}
	return out
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
	assert.Equal(t, UpsertBatchSize, storage.batchSize)
}

func TestCreateManual(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	m := createTestManual(t, storage, camry())
	assert.Equal(t, "2022:toyota:camry:le", m.VehicleKey)
	assert.Equal(t, types.StatusPending, m.Status)
	assert.False(t, m.CreatedAt.IsZero())

	duplicate := &types.Manual{ID: uuid.NewString(), Vehicle: camry()}
	err := storage.CreateManual(ctx, duplicate)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = storage.CreateManual(ctx, &types.Manual{Vehicle: camry()})
	assert.ErrorIs(t, err, types.ErrInvalidManualID)
}

func TestGetManual(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	created := createTestManual(t, storage, camry())

	got, err := storage.GetManual(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, camry(), got.Vehicle)
	assert.Equal(t, types.SourceOEMFallback, got.Source)
	assert.Equal(t, created.Title, got.Title)

	byKey, err := storage.GetManualByVehicleKey(ctx, "2022:toyota:camry:le")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byKey.ID)

	_, err = storage.GetManual(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetManualByVehicleKey(ctx, "1999:ford:pinto")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertManual_KeepsExistingID(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	created := createTestManual(t, storage, camry())

	again := &types.Manual{
		ID:        uuid.NewString(),
		Vehicle:   camry(),
		Title:     "Updated title",
		Source:    types.SourceCommercialAPI,
		SourceURL: "https://example.com/camry.pdf",
	}
	require.NoError(t, storage.UpsertManual(ctx, again))

	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "Updated title", again.Title)
	assert.Equal(t, types.SourceCommercialAPI, again.Source)
	assert.Equal(t, "https://example.com/camry.pdf", again.SourceURL)

	manuals, err := storage.ListManuals(ctx)
	require.NoError(t, err)
	assert.Len(t, manuals, 1)
}

func TestUpsertManual_ReferenceOnlyKeepsMirror(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	mirrored := &types.Manual{
		ID:        uuid.NewString(),
		Vehicle:   camry(),
		Source:    types.SourceOEMFallback,
		SourceURL: "https://example.com/camry.pdf",
		BlobURL:   "https://blobs.example.com/2022-toyota-camry.pdf",
	}
	require.NoError(t, storage.UpsertManual(ctx, mirrored))

	refOnly := &types.Manual{
		ID:           uuid.NewString(),
		Vehicle:      camry(),
		Source:       types.SourceOEMFallback,
		SourceURL:    "https://example.com/camry.pdf",
		ErrorMessage: types.ManualNotMirrored,
	}
	require.NoError(t, storage.UpsertManual(ctx, refOnly))

	assert.Equal(t, mirrored.ID, refOnly.ID)
	assert.Equal(t, "https://blobs.example.com/2022-toyota-camry.pdf", refOnly.BlobURL)
	assert.Empty(t, refOnly.ErrorMessage)
}

func TestUpsertManual_NotMirrored(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	refOnly := &types.Manual{
		ID:           uuid.NewString(),
		Vehicle:      camry(),
		Source:       types.SourceAIDiscovered,
		SourceURL:    "https://example.com/camry.pdf",
		ErrorMessage: types.ManualNotMirrored,
	}
	require.NoError(t, storage.UpsertManual(ctx, refOnly))
	assert.Empty(t, refOnly.BlobURL)
	assert.Equal(t, types.ManualNotMirrored, refOnly.ErrorMessage)

	// a later mirrored acquisition clears the marker
	mirrored := &types.Manual{
		ID:        uuid.NewString(),
		Vehicle:   camry(),
		Source:    types.SourceOEMFallback,
		SourceURL: "https://example.com/camry.pdf",
		BlobURL:   "https://blobs.example.com/2022-toyota-camry.pdf",
	}
	require.NoError(t, storage.UpsertManual(ctx, mirrored))
	assert.Equal(t, refOnly.ID, mirrored.ID)
	assert.Equal(t, "https://blobs.example.com/2022-toyota-camry.pdf", mirrored.BlobURL)
	assert.Empty(t, mirrored.ErrorMessage)
}

func TestUpdateManual(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	m.Status = types.StatusFailed
	m.ErrorMessage = "content_mismatch"
	m.PageCount = 12
	require.NoError(t, storage.UpdateManual(ctx, m))

	got, err := storage.GetManual(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "content_mismatch", got.ErrorMessage)
	assert.Equal(t, 12, got.PageCount)

	err = storage.UpdateManual(ctx, &types.Manual{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListManuals_OrderedByVehicleKey(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	createTestManual(t, storage, types.Vehicle{Year: 2023, Make: "Honda", Model: "Civic"})
	createTestManual(t, storage, types.Vehicle{Year: 2021, Make: "Ford", Model: "F-150"})

	manuals, err := storage.ListManuals(ctx)
	require.NoError(t, err)
	require.Len(t, manuals, 2)
	assert.Equal(t, "2021:ford:f-150", manuals[0].VehicleKey)
	assert.Equal(t, "2023:honda:civic", manuals[1].VehicleKey)
}

func TestUpsertChunks(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "Check the engine oil level monthly.", "Tire pressure is listed on the door placard.")
	stored, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)
	assert.Equal(t, 3, stored)

	got, err := storage.ListChunksByManual(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.SequenceIndex)
		assert.Equal(t, chunks[i].ID, c.ID)
		assert.Equal(t, chunks[i].Content, c.Content)
	}
	assert.Nil(t, got[0].ParentID)
	require.NotNil(t, got[1].ParentID)
	assert.Equal(t, chunks[0].ID, *got[1].ParentID)
	require.NotNil(t, got[2].PageNumber)
	assert.Equal(t, 101, *got[2].PageNumber)
}

func TestUpsertChunks_Idempotent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "Original oil text.")
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	chunks[1].Content = "Replacement coolant text."
	chunks[1].TokenCount = types.EstimateTokens(chunks[1].Content)
	stored, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	got, err := storage.ListChunksByManual(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Replacement coolant text.", got[1].Content)

	// FTS follows the update
	results, err := storage.SearchText(ctx, "coolant", m.ID, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[1].ID, results[0].ChunkID)

	results, err = storage.SearchText(ctx, "original", m.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpsertChunks_LengthMismatch(t *testing.T) {
	storage := setupTestDB(t)
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "one", "two")
	_, err := storage.UpsertChunks(context.Background(), chunks, vectorsFor(2, 4))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestUpsertChunks_DimensionPinned(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "first")
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	_, err = storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 8))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	mixed := [][]float32{{1, 0, 0, 0}, {1, 0}}
	_, err = storage.UpsertChunks(ctx, chunks, mixed)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestUpsertChunks_SkipsFailedBatch(t *testing.T) {
	storage := setupTestDB(t, WithBatchSize(2))
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "a section", "bad section", "another", "last one")
	chunks[2].ContentType = "bogus" // second batch: indexes 2 and 3

	stored, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)
	assert.Equal(t, 3, stored)

	got, err := storage.ListChunksByManual(ctx, m.ID)
	require.NoError(t, err)
	seqs := make([]int, 0, len(got))
	for _, c := range got {
		seqs = append(seqs, c.SequenceIndex)
	}
	assert.Equal(t, []int{0, 1, 4}, seqs)
}

func TestWithBatchSize_Bounds(t *testing.T) {
	storage := setupTestDB(t, WithBatchSize(500))
	assert.Equal(t, UpsertBatchSize, storage.batchSize)

	storage = setupTestDB(t, WithBatchSize(0))
	assert.Equal(t, UpsertBatchSize, storage.batchSize)
}

func TestUpsertChunks_ManyBatches(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	contents := make([]string, 120)
	for i := range contents {
		contents[i] = fmt.Sprintf("Section %d text", i)
	}
	chunks := makeChunks(m.ID, contents...)

	stored, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 8))
	require.NoError(t, err)
	assert.Equal(t, 121, stored)
}

func TestGetChunksByIDs(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "alpha", "beta")
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	got, err := storage.GetChunksByIDs(ctx, []string{chunks[2].ID, "missing", chunks[0].ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "beta", got[chunks[2].ID].Content)

	empty, err := storage.GetChunksByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteChunksFrom(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "keep this", "drop brake fluid", "drop coolant")
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	deleted, err := storage.DeleteChunksFrom(ctx, m.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	got, err := storage.ListChunksByManual(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	results, err := storage.SearchText(ctx, "drop", "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	status, err := storage.GetStatus(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.EmbeddingsCount)
}

func TestDeleteChunksByManual(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "text")
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	require.NoError(t, storage.DeleteChunksByManual(ctx, m.ID))
	got, err := storage.ListChunksByManual(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, "one", "two", "three")
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	m.Status = types.StatusCompleted
	m.ChunkCount = len(chunks)
	require.NoError(t, storage.UpdateManual(ctx, m))

	status, err := storage.GetStatus(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, status.ChunksCount)
	assert.Equal(t, 1, status.ChunksByLevel[types.LevelChapter])
	assert.Equal(t, 3, status.ChunksByLevel[types.LevelSection])
	assert.Equal(t, 4, status.EmbeddingsCount)
	assert.Equal(t, 4, status.EmbeddingDimension)
	assert.False(t, status.LastIndexedAt.IsZero())
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.EmbeddingsComplete)

	_, err = storage.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManualDeleteCascades(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	m := createTestManual(t, storage, camry())

	chunks := makeChunks(m.ID, strings.Repeat("wiper ", 10))
	_, err := storage.UpsertChunks(ctx, chunks, vectorsFor(len(chunks), 4))
	require.NoError(t, err)

	_, err = storage.db.ExecContext(ctx, "DELETE FROM manuals WHERE id = ?", m.ID)
	require.NoError(t, err)

	var n int
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n))
	assert.Zero(t, n)
}
