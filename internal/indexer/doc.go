// Package indexer turns a manual's raw text into stored, searchable chunks.
//
// # Basic Usage
//
//	idx := indexer.New(store, embedClient,
//	    indexer.WithExtractor(extract.New()),
//	    indexer.OnIndexed(srch.InvalidateCache),
//	)
//
//	stats, err := idx.IndexManual(ctx, manualID, text)
//	fmt.Printf("stored %d chunks over %d pages\n", stats.ChunksStored, stats.PageCount)
//
// # Pipeline
//
//  1. Mark the manual processing
//  2. Chunk into chapter/section/procedure levels
//  3. Embed every chunk; any embedding failure aborts with nothing stored
//  4. Upsert chunks with their vectors in batches
//  5. Delete chunks past the new sequence range
//  6. Mark the manual completed with chunk and page counts
//
// Failures mark the manual failed with the error message. Manuals found by
// AI discovery must mention the vehicle's make or model, otherwise they fail
// with content_mismatch.
//
// Chunk IDs derive from manual ID and position, so re-running the same text
// rewrites the same rows and tops up any batch that was skipped before.
//
// # Background Queue
//
// Queue runs jobs on a worker pool and returns a Task per submission:
//
//	q := indexer.NewQueue(idx, indexer.QueueConfig{Workers: 2}, log)
//	task := q.Submit(indexer.Job{ManualID: id, PDF: data})
//	stats, err := task.Wait(ctx)
//
// Submit never blocks. Only one indexing run per manual is active at a time.
package indexer
