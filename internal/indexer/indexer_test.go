package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/manualrag/internal/chunker"
	"github.com/dshills/manualrag/internal/storage"
	"github.com/dshills/manualrag/pkg/types"
)

// fakeEmbedder returns deterministic vectors; gate, when set, blocks Embed until closed
type fakeEmbedder struct {
	err     error
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once

	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		sum := h.Sum32()
		v := make([]float32, 8)
		v[sum%8] = 1
		v[(sum/8)%8] += 0.5
		out[i] = v
	}
	return out, nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte) (string, error) {
	return f.text, f.err
}

var camry = types.Vehicle{Year: 2022, Make: "Toyota", Model: "Camry"}

func manualText() string {
	var b strings.Builder
	b.WriteString("TOYOTA CAMRY OWNER'S MANUAL\n\n")
	b.WriteString("Chapter 1 Safety\n\n")
	b.WriteString("1.1 Seat Belts\n")
	b.WriteString(strings.Repeat("Always wear your seat belt and adjust it for every occupant. ", 10))
	b.WriteString("\nPage 12\n")
	b.WriteString("Chapter 2 Maintenance\n\n")
	b.WriteString("2.1 Engine Oil\n")
	b.WriteString("Use SAE 5W-30 engine oil. Oil capacity with filter is 4.8 quarts.\n")
	b.WriteString("2.2 Replacing the Air Filter\n")
	for i := 1; i <= 60; i++ {
		fmt.Fprintf(&b, "Step %d: remove fastener number %d from the air filter housing cover.\n", i, i)
	}
	b.WriteString("Page 214\n")
	return b.String()
}

func shortManualText() string {
	return "TOYOTA CAMRY OWNER'S MANUAL\n\nChapter 1 Safety\n\n" +
		strings.Repeat("Always wear your seat belt and adjust it for every occupant. ", 10)
}

func setupIndexer(t *testing.T, emb Embedder, source types.Source, opts ...Option) (*Indexer, *storage.SQLiteStorage, *types.Manual) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	manual := &types.Manual{ID: uuid.NewString(), Vehicle: camry, Source: source}
	require.NoError(t, store.CreateManual(context.Background(), manual))

	return New(store, emb, opts...), store, manual
}

func TestIndexManual(t *testing.T) {
	var indexed []string
	idx, store, manual := setupIndexer(t, &fakeEmbedder{}, types.SourceOEMFallback,
		OnIndexed(func(id string) { indexed = append(indexed, id) }))
	ctx := context.Background()

	stats, err := idx.IndexManual(ctx, manual.ID, manualText())
	require.NoError(t, err)
	assert.Greater(t, stats.ChunksCreated, 0)
	assert.Equal(t, stats.ChunksCreated, stats.ChunksStored)
	assert.Zero(t, stats.ChunksDeleted)
	assert.Equal(t, 214, stats.PageCount)

	got, err := store.GetManual(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, stats.ChunksStored, got.ChunkCount)
	assert.Equal(t, 214, got.PageCount)
	assert.Empty(t, got.ErrorMessage)

	chunks, err := store.ListChunksByManual(ctx, manual.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, stats.ChunksCreated)

	status, err := store.GetStatus(ctx, manual.ID)
	require.NoError(t, err)
	assert.True(t, status.Health.EmbeddingsComplete)
	assert.Equal(t, []string{manual.ID}, indexed)
}

func TestIndexManual_ReprocessDropsStaleChunks(t *testing.T) {
	idx, store, manual := setupIndexer(t, &fakeEmbedder{}, types.SourceOEMFallback)
	ctx := context.Background()

	first, err := idx.IndexManual(ctx, manual.ID, manualText())
	require.NoError(t, err)

	expected, err := chunker.New().Chunk(shortManualText(), manual.ID, camry)
	require.NoError(t, err)
	require.Less(t, len(expected), first.ChunksCreated)

	second, err := idx.IndexManual(ctx, manual.ID, shortManualText())
	require.NoError(t, err)
	assert.Equal(t, len(expected), second.ChunksStored)
	assert.Equal(t, first.ChunksCreated-len(expected), second.ChunksDeleted)

	chunks, err := store.ListChunksByManual(ctx, manual.ID)
	require.NoError(t, err)
	require.Len(t, chunks, len(expected))
	for i, c := range chunks {
		assert.Equal(t, expected[i].ID, c.ID)
	}
}

func TestIndexManual_Idempotent(t *testing.T) {
	idx, store, manual := setupIndexer(t, &fakeEmbedder{}, types.SourceOEMFallback)
	ctx := context.Background()

	first, err := idx.IndexManual(ctx, manual.ID, manualText())
	require.NoError(t, err)
	second, err := idx.IndexManual(ctx, manual.ID, manualText())
	require.NoError(t, err)

	assert.Equal(t, first.ChunksCreated, second.ChunksStored)
	assert.Zero(t, second.ChunksDeleted)

	chunks, err := store.ListChunksByManual(ctx, manual.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, first.ChunksCreated)
}

func TestIndexManual_EmbeddingFailureStoresNothing(t *testing.T) {
	idx, store, manual := setupIndexer(t, &fakeEmbedder{err: errors.New("upstream 503")}, types.SourceOEMFallback)
	ctx := context.Background()

	_, err := idx.IndexManual(ctx, manual.ID, manualText())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 503")

	got, err := store.GetManual(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "upstream 503")

	chunks, err := store.ListChunksByManual(ctx, manual.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIndexManual_TextTooShort(t *testing.T) {
	emb := &fakeEmbedder{}
	idx, store, manual := setupIndexer(t, emb, types.SourceOEMFallback)
	ctx := context.Background()

	_, err := idx.IndexManual(ctx, manual.ID, "Camry oil: 5W-30")
	assert.ErrorIs(t, err, types.ErrTextTooShort)
	assert.Zero(t, emb.calls)

	got, err := store.GetManual(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
}

func TestIndexManual_ContentMismatch(t *testing.T) {
	idx, store, manual := setupIndexer(t, &fakeEmbedder{}, types.SourceAIDiscovered)
	ctx := context.Background()

	honda := strings.ReplaceAll(strings.ReplaceAll(manualText(), "TOYOTA", "HONDA"), "CAMRY", "CIVIC")
	_, err := idx.IndexManual(ctx, manual.ID, honda)
	assert.ErrorIs(t, err, ErrContentMismatch)

	got, err := store.GetManual(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "content_mismatch", got.ErrorMessage)

	// text naming the vehicle passes
	_, err = idx.IndexManual(ctx, manual.ID, manualText())
	require.NoError(t, err)
}

func TestIndexManual_MissingManual(t *testing.T) {
	idx, _, _ := setupIndexer(t, &fakeEmbedder{}, types.SourceOEMFallback)
	_, err := idx.IndexManual(context.Background(), "missing", manualText())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexManual_RejectsConcurrentRun(t *testing.T) {
	emb := &fakeEmbedder{gate: make(chan struct{}), entered: make(chan struct{})}
	idx, _, manual := setupIndexer(t, emb, types.SourceOEMFallback)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := idx.IndexManual(ctx, manual.ID, manualText())
		done <- err
	}()

	select {
	case <-emb.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached embedding")
	}

	_, err := idx.IndexManual(ctx, manual.ID, manualText())
	assert.ErrorIs(t, err, ErrIndexInProgress)

	close(emb.gate)
	require.NoError(t, <-done)
}

func TestIndexPDF(t *testing.T) {
	idx, store, manual := setupIndexer(t, &fakeEmbedder{}, types.SourceOEMFallback,
		WithExtractor(&fakeExtractor{text: manualText()}))
	ctx := context.Background()

	stats, err := idx.IndexPDF(ctx, manual.ID, []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Greater(t, stats.ChunksStored, 0)

	got, err := store.GetManual(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
}

func TestIndexPDF_ExtractionFailure(t *testing.T) {
	idx, store, manual := setupIndexer(t, &fakeEmbedder{}, types.SourceOEMFallback,
		WithExtractor(&fakeExtractor{err: errors.New("scanned pages only")}))
	ctx := context.Background()

	_, err := idx.IndexPDF(ctx, manual.ID, []byte("%PDF-1.7"))
	require.Error(t, err)

	got, err := store.GetManual(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "scanned pages only")
}

func TestIndexPDF_NoExtractor(t *testing.T) {
	idx, _, manual := setupIndexer(t, &fakeEmbedder{}, types.SourceOEMFallback)
	_, err := idx.IndexPDF(context.Background(), manual.ID, []byte("%PDF-1.7"))
	assert.Error(t, err)
}

func TestMentionsVehicle(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"2022 CAMRY Owner's Manual", true},
		{"toyota motor corporation", true},
		{"Honda Civic Owner's Manual", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MentionsVehicle(tt.text, camry), tt.text)
	}
	assert.False(t, MentionsVehicle("anything", types.Vehicle{}))
}

// TestIndexLock_ConcurrentAcquisition checks only one goroutine wins the lock.
func TestIndexLock_ConcurrentAcquisition(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "TryAcquire fails when lock is held",
			testFunc: func(t *testing.T) {
				var lock IndexLock
				require.True(t, lock.TryAcquire())
				assert.False(t, lock.TryAcquire())
				lock.Release()
				assert.True(t, lock.TryAcquire())
				lock.Release()
			},
		},
		{
			name: "Concurrent goroutines attempting acquisition",
			testFunc: func(t *testing.T) {
				var lock IndexLock
				const numGoroutines = 100

				acquired := make([]bool, numGoroutines)
				var wg sync.WaitGroup
				wg.Add(numGoroutines)
				for i := 0; i < numGoroutines; i++ {
					go func(idx int) {
						defer wg.Done()
						acquired[idx] = lock.TryAcquire()
					}(i)
				}
				wg.Wait()

				successCount := 0
				for _, success := range acquired {
					if success {
						successCount++
					}
				}
				assert.Equal(t, 1, successCount, "Exactly one goroutine should acquire the lock")
			},
		},
		{
			name: "Locks are per manual",
			testFunc: func(t *testing.T) {
				var locks manualLocks
				a := locks.get("a")
				require.True(t, a.TryAcquire())
				assert.Same(t, a, locks.get("a"))
				assert.True(t, locks.get("b").TryAcquire())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
