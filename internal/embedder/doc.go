// Package embedder generates vector embeddings for manual chunks and queries.
//
// Providers implement Embedder: Jina AI and OpenAI through the shared
// OpenAI-compatible /embeddings format, and a local hashing provider that needs
// no network access.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai", APIKey: key, CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	client := embedder.NewClient(emb)
//	vectors, err := client.Embed(ctx, texts)
//	if embedder.IsRetryable(err) {
//	    // a batch failed; nothing was embedded
//	}
//
// # Batching and Ordering
//
// Client.Embed sends at most MaxBatchSize texts per call, one batch at a time,
// and returns vectors in input order. Upstream APIs may return their data array
// in any order, so providers place each vector by the index the API reports.
//
// # Caching
//
// Providers keep an LRU cache keyed by model and text hash, so re-embedding
// unchanged chunks does not call the API again.
//
// # Retries
//
// API calls retry with exponential backoff (100ms doubling to 5s, 3 attempts)
// on network errors, 429 and 5xx responses.
package embedder
