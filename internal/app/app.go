// Package app wires configuration into the running components shared by
// the CLI and the MCP server.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/manualrag/internal/acquisition"
	"github.com/dshills/manualrag/internal/blobstore"
	"github.com/dshills/manualrag/internal/cache"
	"github.com/dshills/manualrag/internal/chunker"
	"github.com/dshills/manualrag/internal/commercial"
	"github.com/dshills/manualrag/internal/config"
	"github.com/dshills/manualrag/internal/embedder"
	"github.com/dshills/manualrag/internal/extract"
	"github.com/dshills/manualrag/internal/indexer"
	"github.com/dshills/manualrag/internal/llm"
	"github.com/dshills/manualrag/internal/logger"
	"github.com/dshills/manualrag/internal/searcher"
	"github.com/dshills/manualrag/internal/storage"
)

// App holds the wired components
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Storage      *storage.SQLiteStorage
	Embedder     *embedder.Client
	Searcher     *searcher.Searcher
	Indexer      *indexer.Indexer
	Queue        *indexer.Queue
	Cache        cache.Cache
	Orchestrator *acquisition.Orchestrator
}

// New builds every component from cfg. Close releases them.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	log = logger.OrNop(log)
	a := &App{Config: cfg, Logger: log}

	if err := ensureParent(cfg.Storage.DBPath); err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DBPath, storage.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = store

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		CacheSize: cfg.Embedding.CacheSize,
		Timeout:   cfg.Embedding.Timeout,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.Embedder = embedder.NewClient(emb, embedder.WithLogger(log))

	a.Searcher = searcher.NewSearcher(store, a.Embedder,
		searcher.WithCache(cfg.Retrieval.CacheSize, cfg.Retrieval.CacheTTL),
		searcher.WithLogger(log))

	a.Indexer = indexer.New(store, a.Embedder,
		indexer.WithLogger(log),
		indexer.WithChunker(chunker.NewWithOptions(chunker.Options{
			MinTextLength: cfg.Chunking.MinTextLength,
			OverlapTokens: cfg.Chunking.OverlapTokens,
		})),
		indexer.WithExtractor(extract.New().WithBinary(cfg.Indexing.PDFToText)),
		indexer.OnIndexed(a.Searcher.InvalidateCache))

	a.Queue = indexer.NewQueue(a.Indexer, indexer.QueueConfig{
		Workers:     cfg.Indexing.Workers,
		Size:        cfg.Indexing.QueueSize,
		TaskTimeout: cfg.Indexing.TaskTimeout,
	}, log)

	a.Cache, err = openCache(cfg.Acquisition)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	orch, err := a.newOrchestrator()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Orchestrator = orch

	return a, nil
}

func (a *App) newOrchestrator() (*acquisition.Orchestrator, error) {
	acq := a.Config.Acquisition
	t := acq.Timeouts

	opts := []acquisition.Option{
		acquisition.WithLogger(a.Logger),
		acquisition.WithManualStore(a.Storage),
		acquisition.WithIndexQueue(a.Queue),
		acquisition.WithCacheTTL(acq.CacheTTL),
		acquisition.WithSearchURL(acq.SearchURL),
		acquisition.WithTimeouts(acquisition.Timeouts{
			Commercial:   t.Commercial,
			Manufacturer: t.Manufacturer,
			AIDiscovery:  t.AIDiscovery,
			Verify:       t.Verify,
			Download:     t.Download,
		}),
	}

	if acq.BlobDir != "" {
		blobs, err := blobstore.NewLocalStore(acq.BlobDir, acq.BlobBaseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, acquisition.WithBlobStore(blobs))
	}

	if !acq.Manufacturers {
		opts = append(opts, acquisition.WithTemplates(acquisition.Templates{}))
	}

	comm := commercial.New(commercial.Config{
		BaseURL:           acq.Commercial.BaseURL,
		APIKey:            acq.Commercial.APIKey,
		Timeout:           t.Commercial,
		RequestsPerSecond: acq.Commercial.RequestsPerSecond,
		Burst:             acq.Commercial.Burst,
		Logger:            a.Logger,
	})
	if comm.Enabled() {
		opts = append(opts, acquisition.WithCommercial(comm))
	}

	if key := a.Config.LLM.APIKey; key != "" {
		client, err := llm.New(llm.Config{
			APIKey:  key,
			BaseURL: a.Config.LLM.BaseURL,
			Model:   a.Config.LLM.Model,
			Timeout: a.Config.LLM.Timeout,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, acquisition.WithLLM(client))
	}

	return acquisition.New(a.Cache, opts...), nil
}

func openCache(acq config.AcquisitionConfig) (cache.Cache, error) {
	switch acq.CacheBackend {
	case config.CacheBolt:
		if err := ensureParent(acq.CachePath); err != nil {
			return nil, err
		}
		c, err := cache.NewBoltCache(acq.CachePath)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		c, err := cache.NewMemoryCache(cache.DefaultMemorySize)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// SearchOptions returns request options from the retrieval config
func (a *App) SearchOptions() searcher.Options {
	r := a.Config.Retrieval
	return searcher.Options{
		LexicalWeight:  r.LexicalWeight,
		SemanticWeight: r.SemanticWeight,
		Threshold:      r.Threshold,
		RRFConstant:    float64(r.RRFConstant),
		UseCache:       true,
	}
}

// Close drains the index queue and closes the cache and storage
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	return errors.Join(errs...)
}

func ensureParent(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}
