package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dshills/manualrag/internal/logger"
	"github.com/dshills/manualrag/internal/storage"
	"github.com/dshills/manualrag/pkg/types"
)

// Fusion defaults
const (
	DefaultLexicalWeight  = 0.4
	DefaultSemanticWeight = 0.6
	DefaultRRFConstant    = 60
	DefaultLimit          = 10
	MaxLimit              = 100

	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

var (
	// ErrNoScope is returned when a request names neither a manual nor a vehicle
	ErrNoScope = errors.New("search requires a manual ID or vehicle")
	// ErrInvalidWeights is returned for negative fusion weights
	ErrInvalidWeights = errors.New("fusion weights must not be negative")
)

// QueryEmbedder turns a query into a vector; *embedder.Client satisfies it
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Options tunes one search
type Options struct {
	DisableLexical bool    // vector-only ranking
	LexicalWeight  float64 // both weights zero selects the defaults
	SemanticWeight float64
	Threshold      float64 // minimum cosine similarity; zero selects storage.DefaultSimilarityThreshold
	RRFConstant    float64
	UseCache       bool
}

// DefaultOptions returns the standard hybrid configuration
func DefaultOptions() Options {
	return Options{
		LexicalWeight:  DefaultLexicalWeight,
		SemanticWeight: DefaultSemanticWeight,
		Threshold:      storage.DefaultSimilarityThreshold,
		RRFConstant:    DefaultRRFConstant,
		UseCache:       true,
	}
}

// SearchRequest scopes a query to one manual, named directly or by vehicle
type SearchRequest struct {
	Query    string
	ManualID string
	Vehicle  *types.Vehicle
	Limit    int
	Options  Options
}

// SearchResponse contains ranked results and metadata
type SearchResponse struct {
	Results         []types.RetrievalResult
	ManualID        string
	Duration        time.Duration
	CacheHit        bool
	LexicalResults  int
	SemanticResults int
}

// Searcher fuses lexical and vector search with weighted Reciprocal Rank Fusion
type Searcher struct {
	storage  storage.Storage
	embedder QueryEmbedder
	cache    *expirable.LRU[[32]byte, *SearchResponse]
	logger   *slog.Logger
}

// Option configures a Searcher
type Option func(*searcherConfig)

type searcherConfig struct {
	cacheSize int
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// WithCache sets the response cache size and entry lifetime
func WithCache(size int, ttl time.Duration) Option {
	return func(c *searcherConfig) {
		if size > 0 {
			c.cacheSize = size
		}
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithLogger sets the searcher logger
func WithLogger(l *slog.Logger) Option {
	return func(c *searcherConfig) {
		c.logger = l
	}
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, emb QueryEmbedder, opts ...Option) *Searcher {
	cfg := searcherConfig{cacheSize: DefaultCacheSize, cacheTTL: DefaultCacheTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Searcher{
		storage:  store,
		embedder: emb,
		cache:    expirable.NewLRU[[32]byte, *SearchResponse](cfg.cacheSize, nil, cfg.cacheTTL),
		logger:   logger.OrNop(cfg.logger),
	}
}

// Search runs lexical and vector search concurrently and fuses them. Upstream
// failures degrade to fewer (possibly zero) results; only a malformed request
// or a cancelled context returns an error.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if strings.TrimSpace(req.Query) == "" {
		return &SearchResponse{Results: []types.RetrievalResult{}, ManualID: req.ManualID}, nil
	}

	manualID, err := s.resolveManual(ctx, req)
	if err != nil {
		return nil, err
	}
	if manualID == "" {
		return &SearchResponse{Results: []types.RetrievalResult{}, Duration: time.Since(startTime)}, nil
	}
	req.ManualID = manualID

	var hash [32]byte
	if req.Options.UseCache {
		hash = computeQueryHash(req)
		if cached, ok := s.cache.Get(hash); ok {
			response := copySearchResponse(cached)
			response.CacheHit = true
			response.Duration = time.Since(startTime)
			return response, nil
		}
	}

	response, err := s.hybridSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	response.ManualID = manualID
	response.Duration = time.Since(startTime)

	if req.Options.UseCache && len(response.Results) > 0 {
		s.cache.Add(hash, copySearchResponse(response))
	}

	return response, nil
}

// resolveManual returns the manual to search, or "" when the vehicle has no manual yet
func (s *Searcher) resolveManual(ctx context.Context, req SearchRequest) (string, error) {
	if req.ManualID != "" {
		return req.ManualID, nil
	}

	manual, err := s.storage.GetManualByVehicleKey(ctx, req.Vehicle.Key())
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn("manual_lookup_failed",
			slog.String("vehicle", req.Vehicle.Key()),
			slog.String("error", err.Error()))
		return "", nil
	}
	return manual.ID, nil
}

// searchResult holds results from concurrent search operations
type searchResult struct {
	vectorResults []storage.VectorResult
	textResults   []storage.TextResult
	err           error
}

// runVectorSearch executes vector search in a goroutine
func (s *Searcher) runVectorSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	vector, err := s.embedder.EmbedOne(ctx, req.Query)
	if err != nil {
		res.err = fmt.Errorf("failed to generate query embedding: %w", err)
	} else {
		res.vectorResults, res.err = s.storage.SearchVector(ctx, vector, req.ManualID, req.Limit*2, req.Options.Threshold)
	}
	resultChan <- res
}

// runTextSearch executes text search in a goroutine
func (s *Searcher) runTextSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	res.textResults, res.err = s.storage.SearchText(ctx, req.Query, req.ManualID, req.Limit*2)
	resultChan <- res
}

// hybridSearch combines vector and BM25 search using Reciprocal Rank Fusion
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)

	go s.runVectorSearch(ctx, req, vectorChan)
	textDone := req.Options.DisableLexical
	if !textDone {
		go s.runTextSearch(ctx, req, textChan)
	}

	var vectorRes, textRes searchResult
	vectorDone := false
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if vectorRes.err != nil {
		s.logger.Warn("semantic_search_failed",
			slog.String("manual_id", req.ManualID),
			slog.String("error", vectorRes.err.Error()))
	}
	if textRes.err != nil {
		s.logger.Warn("lexical_search_failed",
			slog.String("manual_id", req.ManualID),
			slog.String("error", textRes.err.Error()))
	}

	fused := fuse(textRes.textResults, vectorRes.vectorResults, req.Options)
	results, err := s.fetchResults(ctx, fused, req.Limit)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search_complete",
		slog.String("manual_id", req.ManualID),
		slog.Int("lexical", len(textRes.textResults)),
		slog.Int("semantic", len(vectorRes.vectorResults)),
		slog.Int("results", len(results)))

	return &SearchResponse{
		Results:         results,
		LexicalResults:  len(textRes.textResults),
		SemanticResults: len(vectorRes.vectorResults),
	}, nil
}

// rankedResult is a fused chunk with its accumulated score
type rankedResult struct {
	chunkID  string
	score    float64
	method   types.RetrievalMethod
	bestRank int // lowest 0-indexed rank in either list
}

// fuse applies weighted RRF: each list contributes weight/(k+r+1) at 0-indexed
// rank r. A chunk found by both lists is tagged hybrid.
func fuse(textResults []storage.TextResult, vectorResults []storage.VectorResult, opts Options) []rankedResult {
	byID := make(map[string]*rankedResult, len(textResults)+len(vectorResults))
	order := make([]*rankedResult, 0, len(textResults)+len(vectorResults))

	add := func(chunkID string, rank int, weight float64, method types.RetrievalMethod) {
		partial := weight / (opts.RRFConstant + float64(rank) + 1)
		if rr, ok := byID[chunkID]; ok {
			rr.score += partial
			if rr.method != method {
				rr.method = types.MethodHybrid
			}
			rr.bestRank = min(rr.bestRank, rank)
			return
		}
		rr := &rankedResult{chunkID: chunkID, score: partial, method: method, bestRank: rank}
		byID[chunkID] = rr
		order = append(order, rr)
	}

	if !opts.DisableLexical {
		for rank, tr := range textResults {
			add(tr.ChunkID, rank, opts.LexicalWeight, types.MethodBM25)
		}
	}
	for rank, vr := range vectorResults {
		add(vr.ChunkID, rank, opts.SemanticWeight, types.MethodSemantic)
	}

	results := make([]rankedResult, len(order))
	for i, rr := range order {
		results[i] = *rr
	}
	sortRankedResults(results)
	return results
}

// sortRankedResults orders by score descending, then best single-list rank, then chunk ID
func sortRankedResults(results []rankedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].bestRank != results[j].bestRank {
			return results[i].bestRank < results[j].bestRank
		}
		return results[i].chunkID < results[j].chunkID
	})
}

// fetchResults hydrates ranked chunks in order until limit results are
// filled. Chunks that vanished are skipped and the next candidates fetched.
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, limit int) ([]types.RetrievalResult, error) {
	results := make([]types.RetrievalResult, 0, min(limit, len(ranked)))

	for next := 0; len(results) < limit && next < len(ranked); {
		end := min(next+limit-len(results), len(ranked))
		window := ranked[next:end]
		next = end

		ids := make([]string, len(window))
		for i, rr := range window {
			ids[i] = rr.chunkID
		}

		chunks, err := s.storage.GetChunksByIDs(ctx, ids)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("chunk_hydration_failed", slog.String("error", err.Error()))
			return results, nil
		}

		for _, rr := range window {
			chunk, ok := chunks[rr.chunkID]
			if !ok {
				continue
			}
			results = append(results, types.RetrievalResult{
				ChunkID:      chunk.ID,
				ManualID:     chunk.ManualID,
				Text:         chunk.Content,
				PageNumber:   chunk.PageNumber,
				SectionTitle: chunk.SectionTitle,
				Score:        rr.score,
				Method:       rr.method,
			})
		}
	}

	return results, nil
}

// validateRequest applies defaults and rejects malformed requests
func validateRequest(req *SearchRequest) error {
	if req.ManualID == "" && req.Vehicle == nil {
		return ErrNoScope
	}
	if req.ManualID == "" {
		if err := req.Vehicle.Validate(); err != nil {
			return err
		}
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	opts := &req.Options
	if opts.LexicalWeight < 0 || opts.SemanticWeight < 0 {
		return ErrInvalidWeights
	}
	if opts.LexicalWeight == 0 && opts.SemanticWeight == 0 {
		opts.LexicalWeight = DefaultLexicalWeight
		opts.SemanticWeight = DefaultSemanticWeight
	}
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = DefaultRRFConstant
	}
	if opts.Threshold == 0 {
		opts.Threshold = storage.DefaultSimilarityThreshold
	}

	return nil
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	dst := *src
	dst.Results = make([]types.RetrievalResult, len(src.Results))
	for i, r := range src.Results {
		dst.Results[i] = r
		if r.PageNumber != nil {
			page := *r.PageNumber
			dst.Results[i].PageNumber = &page
		}
	}
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(req.ManualID)
	fmt.Fprintf(&data, "|%d|%t|%.4f|%.4f|%.4f|%.1f",
		req.Limit,
		req.Options.DisableLexical,
		req.Options.LexicalWeight,
		req.Options.SemanticWeight,
		req.Options.Threshold,
		req.Options.RRFConstant)

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops cached responses after a manual is (re)indexed. The
// LRU cannot filter by manual, so the whole cache is purged.
func (s *Searcher) InvalidateCache(manualID string) {
	s.cache.Purge()
	s.logger.Debug("search_cache_purged", slog.String("manual_id", manualID))
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	return s.cache.Len()
}
