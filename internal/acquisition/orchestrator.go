package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/manualrag/internal/blobstore"
	"github.com/dshills/manualrag/internal/cache"
	"github.com/dshills/manualrag/internal/commercial"
	"github.com/dshills/manualrag/internal/indexer"
	"github.com/dshills/manualrag/internal/llm"
	"github.com/dshills/manualrag/internal/logger"
	"github.com/dshills/manualrag/pkg/types"
)

// DefaultSearchURL is the web search used by the last-resort stage
const DefaultSearchURL = "https://www.google.com/search"

// Timeouts bound each external call in the waterfall
type Timeouts struct {
	Commercial   time.Duration
	Manufacturer time.Duration
	AIDiscovery  time.Duration
	Verify       time.Duration
	Download     time.Duration
}

// DefaultTimeouts returns the per-stage defaults
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Commercial:   10 * time.Second,
		Manufacturer: 8 * time.Second,
		AIDiscovery:  20 * time.Second,
		Verify:       8 * time.Second,
		Download:     20 * time.Second,
	}
}

// ManualStore persists the Manual record for a mirrored manual
type ManualStore interface {
	UpsertManual(ctx context.Context, manual *types.Manual) error
}

// IndexQueue accepts background indexing jobs
type IndexQueue interface {
	Submit(job indexer.Job) *indexer.Task
}

// Outcome is what Acquire returns. Manual and IndexTask are nil unless a
// PDF was found and recorded.
type Outcome struct {
	Result    types.ManualRetrievalResult
	Manual    *types.Manual
	IndexTask *indexer.Task
}

// Orchestrator walks the acquisition waterfall for a vehicle
type Orchestrator struct {
	cache      cache.Cache
	cacheTTL   time.Duration
	commercial commercial.Lookuper
	completer  llm.Completer
	blobs      blobstore.Store
	store      ManualStore
	queue      IndexQueue
	templates  Templates
	verifier   *Verifier
	timeouts   Timeouts
	searchURL  string
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithCommercial(c commercial.Lookuper) Option {
	return func(o *Orchestrator) { o.commercial = c }
}

func WithLLM(c llm.Completer) Option {
	return func(o *Orchestrator) { o.completer = c }
}

func WithBlobStore(s blobstore.Store) Option {
	return func(o *Orchestrator) { o.blobs = s }
}

func WithManualStore(s ManualStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

func WithIndexQueue(q IndexQueue) Option {
	return func(o *Orchestrator) { o.queue = q }
}

// WithTemplates replaces the manufacturer URL templates
func WithTemplates(t Templates) Option {
	return func(o *Orchestrator) { o.templates = t }
}

// WithHTTPClient sets the client used for verification and download
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.verifier = NewVerifier(c) }
}

func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) { o.timeouts = t }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.cacheTTL = ttl }
}

func WithSearchURL(u string) Option {
	return func(o *Orchestrator) { o.searchURL = u }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger.OrNop(l) }
}

// New creates an orchestrator backed by c. Every other collaborator is
// optional; a missing one skips its stage.
func New(c cache.Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:     c,
		cacheTTL:  cache.DefaultTTL,
		templates: DefaultTemplates(),
		verifier:  NewVerifier(nil),
		timeouts:  DefaultTimeouts(),
		searchURL: DefaultSearchURL,
		logger:    logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Acquire locates a manual for v. It fails only for an invalid vehicle;
// otherwise the worst case is a web_search result.
func (o *Orchestrator) Acquire(ctx context.Context, v types.Vehicle, progress ProgressFunc) (*Outcome, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	bus := newProgressBus(progress, o.logger)
	defer bus.close()

	key := v.Key()
	start := o.now()

	out := o.waterfall(ctx, v, key, bus)

	bus.emit(types.StageDone, string(out.Result.Source))
	o.logger.Info("acquisition_finished",
		slog.String("vehicle_key", key),
		slog.String("source", string(out.Result.Source)),
		slog.String("manual_url", out.Result.ManualURL),
		slog.Bool("indexing", out.IndexTask != nil),
		slog.Duration("duration", o.now().Sub(start)))
	return out, nil
}

func (o *Orchestrator) waterfall(ctx context.Context, v types.Vehicle, key string, bus *progressBus) *Outcome {
	bus.emit(types.StageCheckingCache, key)
	if res, ok := o.cached(ctx, key); ok {
		return &Outcome{Result: res}
	}

	if o.commercial != nil {
		bus.emit(types.StageCommercialAPI, "")
		if res, ok := o.tryCommercial(ctx, v, key); ok {
			return &Outcome{Result: res}
		}
	}

	if candidate, ok := o.templates.URL(v); ok {
		bus.emit(types.StageManufacturer, candidate)
		if o.verify(ctx, o.timeouts.Manufacturer, candidate, types.StageManufacturer) {
			if out, ok := o.persist(ctx, v, key, candidate, defaultTitle(v), types.SourceOEMFallback, bus); ok {
				return out
			}
		}
	} else {
		o.logger.Debug("manufacturer_unknown", slog.String("make", v.Make))
	}

	if o.completer != nil {
		bus.emit(types.StageAskingAI, "")
		aiCtx, cancel := context.WithTimeout(ctx, o.timeouts.AIDiscovery)
		d := discover(aiCtx, o.completer, v)
		cancel()

		if d.Found {
			bus.emit(types.StageVerifyingURL, d.URL)
			if o.verify(ctx, o.timeouts.Verify, d.URL, types.StageVerifyingURL) {
				title := d.Title
				if title == "" {
					title = defaultTitle(v)
				}
				if out, ok := o.persist(ctx, v, key, d.URL, title, types.SourceAIDiscovered, bus); ok {
					return out
				}
			}
		} else {
			o.logger.Warn("ai_discovery_skipped", slog.String("vehicle_key", key), slog.String("reason", string(d.Reason)))
		}
	}

	bus.emit(types.StageWebSearchFallback, "")
	return &Outcome{Result: o.webSearchResult(v)}
}

func (o *Orchestrator) cached(ctx context.Context, key string) (types.ManualRetrievalResult, bool) {
	if o.cache == nil {
		return types.ManualRetrievalResult{}, false
	}
	res, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.logger.Warn("cache_read_failed", slog.String("vehicle_key", key), slog.String("error", err.Error()))
		return types.ManualRetrievalResult{}, false
	}
	if !ok {
		return types.ManualRetrievalResult{}, false
	}

	hit := *res
	hit.Source = types.SourceCache
	hit.Cached = true
	return hit, true
}

func (o *Orchestrator) remember(ctx context.Context, key string, res types.ManualRetrievalResult) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(ctx, key, res, o.cacheTTL); err != nil {
		o.logger.Warn("cache_write_failed", slog.String("vehicle_key", key), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) tryCommercial(ctx context.Context, v types.Vehicle, key string) (types.ManualRetrievalResult, bool) {
	lookupCtx, cancel := context.WithTimeout(ctx, o.timeouts.Commercial)
	defer cancel()

	found := o.commercial.Lookup(lookupCtx, v)
	if !found.Found {
		o.logger.Warn("commercial_lookup_skipped", slog.String("vehicle_key", key), slog.String("reason", string(found.Reason)))
		return types.ManualRetrievalResult{}, false
	}

	title := found.Title
	if title == "" {
		title = defaultTitle(v)
	}
	res := o.result(v, types.SourceCommercialAPI, found.URL, title)
	o.remember(ctx, key, res)
	return res, true
}

func (o *Orchestrator) verify(ctx context.Context, timeout time.Duration, candidate string, stage types.Stage) bool {
	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.verifier.Verify(vctx, candidate); err != nil {
		o.logger.Warn("url_rejected",
			slog.String("stage", string(stage)),
			slog.String("url", candidate),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// persist downloads and mirrors the PDF, records the Manual and queues it
// for indexing. A body that is not a PDF rejects the candidate (ok is
// false); other download and upload failures degrade to a reference-only
// result.
func (o *Orchestrator) persist(ctx context.Context, v types.Vehicle, key, sourceURL, title string, source types.Source, bus *progressBus) (*Outcome, bool) {
	bus.emit(types.StageDownloading, sourceURL)

	dctx, cancel := context.WithTimeout(ctx, o.timeouts.Download)
	pdf, err := o.verifier.Download(dctx, sourceURL)
	cancel()
	if errors.Is(err, ErrNotPDF) {
		o.logger.Warn("url_rejected",
			slog.String("stage", string(types.StageDownloading)),
			slog.String("url", sourceURL),
			slog.String("error", err.Error()))
		return nil, false
	}
	if err != nil {
		o.logger.Warn("manual_download_failed", slog.String("url", sourceURL), slog.String("error", err.Error()))
		pdf = nil
	}

	var blobURL string
	if pdf != nil && o.blobs != nil {
		blobURL, err = o.blobs.Upload(ctx, v.FileName(), pdf, "application/pdf")
		if err != nil {
			o.logger.Warn("manual_upload_failed", slog.String("vehicle_key", key), slog.String("error", err.Error()))
			blobURL = ""
		}
	}

	out := &Outcome{}
	manualURL := sourceURL
	if blobURL != "" {
		manualURL = blobURL
	}
	out.Result = o.result(v, source, manualURL, title)

	if o.store != nil {
		manual := &types.Manual{
			ID:         uuid.NewString(),
			VehicleKey: key,
			Vehicle:    v,
			Title:      title,
			Source:     source,
			SourceURL:  sourceURL,
			BlobURL:    blobURL,
			Status:     types.StatusPending,
		}
		if pdf == nil {
			manual.ErrorMessage = types.ManualNotMirrored
		}
		if err := o.store.UpsertManual(ctx, manual); err != nil {
			o.logger.Warn("manual_record_failed", slog.String("vehicle_key", key), slog.String("error", err.Error()))
		} else {
			out.Manual = manual
		}
	}

	if out.Manual != nil && pdf != nil && o.queue != nil {
		out.IndexTask = o.queue.Submit(indexer.Job{ManualID: out.Manual.ID, PDF: pdf})
	}

	o.remember(ctx, key, out.Result)
	return out, true
}

func (o *Orchestrator) webSearchResult(v types.Vehicle) types.ManualRetrievalResult {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("%s owner's manual pdf", v.String()))
	return o.result(v, types.SourceWebSearch, o.searchURL+"?"+q.Encode(),
		fmt.Sprintf("Search: %s owner's manual (unverified)", v.String()))
}

func (o *Orchestrator) result(v types.Vehicle, source types.Source, manualURL, title string) types.ManualRetrievalResult {
	return types.ManualRetrievalResult{
		Source:      source,
		Vehicle:     v,
		ManualURL:   manualURL,
		ManualTitle: title,
		RetrievedAt: o.now().UTC(),
	}
}

func defaultTitle(v types.Vehicle) string {
	return v.String() + " Owner's Manual"
}
