package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/manualrag/internal/logger"
)

// Client turns lists of texts into vectors through an Embedder, batching
// requests to stay within upstream limits.
type Client struct {
	embedder  Embedder
	batchSize int
	logger    *slog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBatchSize sets the number of texts per upstream call (capped at MaxBatchSize)
func WithBatchSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 && n <= MaxBatchSize {
			c.batchSize = n
		}
	}
}

// WithLogger sets the client logger
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient wraps an Embedder
func NewClient(e Embedder, opts ...ClientOption) *Client {
	c := &Client{
		embedder:  e,
		batchSize: DefaultBatchSize,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns one vector per text, in input order. Batches are sent one after
// another; if any batch fails the whole call fails with a *RetryableError and
// no vectors are returned.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	dimension := 0

	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch := start / c.batchSize

		resp, err := c.embedder.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts[start:end]})
		if err != nil {
			if errors.Is(err, ErrInvalidInput) {
				return nil, fmt.Errorf("batch %d: %w", batch, err)
			}
			c.logger.Warn("embedding_batch_failed",
				slog.Int("batch", batch),
				slog.Int("size", end-start),
				slog.String("error", err.Error()))
			return nil, &RetryableError{Batch: batch, Err: err}
		}

		if len(resp.Embeddings) != end-start {
			return nil, &RetryableError{Batch: batch, Err: fmt.Errorf("%w: got %d embeddings for %d texts",
				ErrBadResponse, len(resp.Embeddings), end-start)}
		}

		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Vector) == 0 {
				return nil, &RetryableError{Batch: batch, Err: fmt.Errorf("%w: missing vector for text %d", ErrBadResponse, start+i)}
			}
			if dimension == 0 {
				dimension = len(emb.Vector)
			} else if len(emb.Vector) != dimension {
				return nil, fmt.Errorf("%w: %d and %d", ErrDimensionMismatch, dimension, len(emb.Vector))
			}
			vectors[start+i] = emb.Vector
		}

		c.logger.Debug("embedding_batch_done", slog.Int("batch", batch), slog.Int("size", end-start))
	}

	return vectors, nil
}

// EmbedOne embeds a single text
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the vector length produced by the underlying embedder
func (c *Client) Dimension() int {
	return c.embedder.Dimension()
}

// Model returns the underlying embedding model name
func (c *Client) Model() string {
	return c.embedder.Model()
}
