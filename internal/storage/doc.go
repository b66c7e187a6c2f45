// Package storage provides SQLite-based persistence for manuals, their
// hierarchical chunks and chunk embeddings.
//
// # Database Schema
//
// Tables:
//   - manuals: one row per vehicle key with acquisition source and status
//   - chunks: chapter/section/procedure chunks keyed by deterministic ID
//   - chunks_fts: FTS5 external-content index over chunk text and titles
//   - embeddings: little-endian float32 vectors, one per chunk
//   - store_meta: pinned embedding dimension
//
// # Writing
//
// UpsertChunks takes chunks paired 1:1 with embeddings and writes them in
// transactions of UpsertBatchSize rows. A failing batch is rolled back and
// skipped; the stored count reports what was committed.
//
//	stored, err := db.UpsertChunks(ctx, chunks, vectors)
//
// Re-running with the same chunk IDs updates rows in place. When reprocessing
// yields fewer chunks, DeleteChunksFrom drops the tail.
//
// # Searching
//
// SearchText ranks with FTS5 bm25 and returns a higher-is-better score.
// SearchVector ranks by cosine similarity and drops matches below threshold.
// Both take an optional manual ID filter ("" searches every manual).
//
// # Build Tags
//
// CGO build (sqlite_vec tag) uses github.com/mattn/go-sqlite3 with
// vec_distance_cosine registered as a SQL function:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5"
//
// Pure Go build (default) uses modernc.org/sqlite and scores vectors in Go:
//
//	CGO_ENABLED=0 go build -tags "purego"
package storage
