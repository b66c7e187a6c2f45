package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/manualrag/internal/chunker"
	"github.com/dshills/manualrag/internal/logger"
	"github.com/dshills/manualrag/internal/storage"
	"github.com/dshills/manualrag/pkg/types"
)

var (
	// ErrIndexInProgress is returned when the manual is already being indexed
	ErrIndexInProgress = errors.New("manual is already being indexed")
	// ErrContentMismatch is returned when discovered text does not mention the vehicle
	ErrContentMismatch = errors.New("content_mismatch")
	// ErrNothingStored is returned when every storage batch failed
	ErrNothingStored = errors.New("no chunks stored")
)

// Embedder produces one vector per text, same order; *embedder.Client satisfies it
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor turns PDF bytes into plain text; *extract.PDFToText satisfies it
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) (string, error)
}

// Indexer coordinates the indexing pipeline: chunk -> embed -> store
type Indexer struct {
	chunker   *chunker.Chunker
	embedder  Embedder
	storage   storage.Storage
	extractor Extractor
	logger    *slog.Logger
	locks     manualLocks

	onIndexed func(manualID string)
}

// Statistics contains statistics about one indexing run
type Statistics struct {
	ChunksCreated int
	ChunksStored  int
	ChunksDeleted int
	PageCount     int
	Duration      time.Duration
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the indexer logger
func WithLogger(l *slog.Logger) Option {
	return func(idx *Indexer) {
		idx.logger = logger.OrNop(l)
	}
}

// WithChunker replaces the default chunker
func WithChunker(c *chunker.Chunker) Option {
	return func(idx *Indexer) {
		if c != nil {
			idx.chunker = c
		}
	}
}

// WithExtractor sets the PDF text extractor used by IndexPDF
func WithExtractor(e Extractor) Option {
	return func(idx *Indexer) {
		idx.extractor = e
	}
}

// OnIndexed registers a hook run after a manual completes, e.g. to drop cached searches
func OnIndexed(fn func(manualID string)) Option {
	return func(idx *Indexer) {
		idx.onIndexed = fn
	}
}

// New creates a new Indexer instance
func New(store storage.Storage, emb Embedder, opts ...Option) *Indexer {
	idx := &Indexer{
		chunker:  chunker.New(),
		embedder: emb,
		storage:  store,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexManual chunks rawText, embeds every chunk and stores the result under
// manualID. The manual moves to processing, then completed or failed. An
// embedding failure stores nothing. Chunks left over from a previous, longer
// run are deleted.
func (idx *Indexer) IndexManual(ctx context.Context, manualID, rawText string) (*Statistics, error) {
	lock := idx.locks.get(manualID)
	if !lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer lock.Release()

	startTime := time.Now()

	manual, err := idx.storage.GetManual(ctx, manualID)
	if err != nil {
		return nil, fmt.Errorf("failed to load manual %s: %w", manualID, err)
	}

	manual.Status = types.StatusProcessing
	manual.ErrorMessage = ""
	if err := idx.storage.UpdateManual(ctx, manual); err != nil {
		return nil, fmt.Errorf("failed to mark manual processing: %w", err)
	}

	stats, err := idx.index(ctx, manual, rawText)
	if err != nil {
		idx.fail(manual, err)
		return nil, err
	}
	stats.Duration = time.Since(startTime)

	manual.Status = types.StatusCompleted
	manual.ChunkCount = stats.ChunksStored
	manual.PageCount = stats.PageCount
	if stats.ChunksStored < stats.ChunksCreated {
		manual.ErrorMessage = fmt.Sprintf("stored %d of %d chunks", stats.ChunksStored, stats.ChunksCreated)
	}
	if err := idx.storage.UpdateManual(ctx, manual); err != nil {
		return nil, fmt.Errorf("failed to mark manual completed: %w", err)
	}

	if idx.onIndexed != nil {
		idx.onIndexed(manualID)
	}

	idx.logger.Info("manual_indexed",
		slog.String("manual_id", manualID),
		slog.String("vehicle", manual.VehicleKey),
		slog.Int("chunks", stats.ChunksStored),
		slog.Int("deleted", stats.ChunksDeleted),
		slog.Int("pages", stats.PageCount),
		slog.Duration("duration", stats.Duration))

	return stats, nil
}

// IndexPDF extracts text from pdf and indexes it. Extraction failures mark
// the manual failed.
func (idx *Indexer) IndexPDF(ctx context.Context, manualID string, pdf []byte) (*Statistics, error) {
	if idx.extractor == nil {
		return nil, errors.New("no PDF extractor configured")
	}

	text, err := idx.extractor.Extract(ctx, pdf)
	if err != nil {
		err = fmt.Errorf("failed to extract text: %w", err)
		if manual, getErr := idx.storage.GetManual(ctx, manualID); getErr == nil {
			idx.fail(manual, err)
		}
		return nil, err
	}

	return idx.IndexManual(ctx, manualID, text)
}

func (idx *Indexer) index(ctx context.Context, manual *types.Manual, rawText string) (*Statistics, error) {
	if manual.Source == types.SourceAIDiscovered && !MentionsVehicle(rawText, manual.Vehicle) {
		return nil, fmt.Errorf("%w: text does not mention %s", ErrContentMismatch, manual.Vehicle)
	}

	chunks, err := idx.chunker.Chunk(rawText, manual.ID, manual.Vehicle)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	stored, err := idx.storage.UpsertChunks(ctx, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	if stored == 0 {
		return nil, ErrNothingStored
	}

	deleted, err := idx.storage.DeleteChunksFrom(ctx, manual.ID, len(chunks))
	if err != nil {
		return nil, fmt.Errorf("failed to delete stale chunks: %w", err)
	}

	return &Statistics{
		ChunksCreated: len(chunks),
		ChunksStored:  stored,
		ChunksDeleted: deleted,
		PageCount:     chunker.EstimatePageCount(rawText),
	}, nil
}

// fail records the error on the manual; it runs even when ctx is done
func (idx *Indexer) fail(manual *types.Manual, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	manual.Status = types.StatusFailed
	manual.ErrorMessage = cause.Error()
	if errors.Is(cause, ErrContentMismatch) {
		manual.ErrorMessage = ErrContentMismatch.Error()
	}
	if err := idx.storage.UpdateManual(ctx, manual); err != nil {
		idx.logger.Error("manual_status_update_failed",
			slog.String("manual_id", manual.ID),
			slog.String("error", err.Error()))
	}

	idx.logger.Warn("manual_index_failed",
		slog.String("manual_id", manual.ID),
		slog.String("error", cause.Error()))
}

// MentionsVehicle reports whether text names the vehicle's make or model
func MentionsVehicle(text string, v types.Vehicle) bool {
	lower := strings.ToLower(text)
	for _, name := range []string{v.Make, v.Model} {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && strings.Contains(lower, name) {
			return true
		}
	}
	return false
}
