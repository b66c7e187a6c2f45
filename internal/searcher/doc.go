// Package searcher answers questions against one indexed manual by fusing
// lexical (FTS5 bm25) and semantic (cosine) rankings.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, embedClient)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:    "5W-30 oil type",
//	    ManualID: manualID,
//	    Limit:    5,
//	    Options:  searcher.DefaultOptions(),
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%s p.%v %.4f\n", r.Method, r.PageNumber, r.Score)
//	}
//
// A request may name a vehicle instead of a manual; a vehicle with no indexed
// manual yields an empty result.
//
// # Fusion
//
// Both searches request 2×limit candidates and run concurrently. Each list
// contributes weight/(60+r+1) at 0-indexed rank r, with lexical weight 0.4 and
// semantic weight 0.6. Chunks found by both lists are tagged hybrid. Equal
// scores fall back to the best single-list rank, then chunk ID.
//
// Setting Options.DisableLexical ranks by vector similarity alone.
//
// # Degradation
//
// An empty query, no matches above the similarity threshold, an embedding
// outage or a storage error all produce an empty (or lexical-only) result
// rather than an error; callers treat "no sources" as a normal answer.
//
// # Caching
//
// Responses are cached in an expiring LRU keyed by query, manual and options.
// InvalidateCache is called by the indexer when a manual is re-indexed.
package searcher
