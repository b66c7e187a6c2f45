package storage

import (
	"context"
	"time"

	"github.com/dshills/manualrag/pkg/types"
)

// Storage defines the interface for persisting manuals, chunks and embeddings
// and querying them lexically and by vector similarity
type Storage interface {
	// Manual operations
	CreateManual(ctx context.Context, manual *types.Manual) error
	UpsertManual(ctx context.Context, manual *types.Manual) error
	GetManual(ctx context.Context, id string) (*types.Manual, error)
	GetManualByVehicleKey(ctx context.Context, vehicleKey string) (*types.Manual, error)
	UpdateManual(ctx context.Context, manual *types.Manual) error
	ListManuals(ctx context.Context) ([]*types.Manual, error)

	// Chunk operations
	UpsertChunks(ctx context.Context, chunks []types.Chunk, embeddings [][]float32) (stored int, err error)
	GetChunksByIDs(ctx context.Context, ids []string) (map[string]*types.Chunk, error)
	ListChunksByManual(ctx context.Context, manualID string) ([]*types.Chunk, error)
	DeleteChunksByManual(ctx context.Context, manualID string) error
	DeleteChunksFrom(ctx context.Context, manualID string, fromSequence int) (deletedCount int, err error)

	// Search operations
	SearchText(ctx context.Context, query string, manualID string, limit int) ([]TextResult, error)
	SearchVector(ctx context.Context, vector []float32, manualID string, limit int, threshold float64) ([]VectorResult, error)

	// Status operations
	GetStatus(ctx context.Context, manualID string) (*IndexStatus, error)

	// Database operations
	Close() error
}

// Write batching and search defaults
const (
	// UpsertBatchSize bounds rows per write transaction
	UpsertBatchSize = 50

	// DefaultSimilarityThreshold discards weak vector matches
	DefaultSimilarityThreshold = 0.65
)

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID         string
	SimilarityScore float64
}

// TextResult represents a result from full-text search
type TextResult struct {
	ChunkID string
	Score   float64 // negated FTS5 bm25, higher is better
}

// IndexStatus contains statistics about one manual's index
type IndexStatus struct {
	Manual             *types.Manual
	ChunksCount        int
	ChunksByLevel      map[types.ChunkLevel]int
	EmbeddingsCount    int
	EmbeddingDimension int
	IndexSizeMB        float64
	LastIndexedAt      time.Time
	Health             HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
	EmbeddingsComplete  bool // every chunk has a vector
}
