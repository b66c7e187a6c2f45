package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, queryVector []float32, manualID string, limit int, threshold float64) ([]VectorResult, error) {
	if limit <= 0 || len(queryVector) == 0 {
		return []VectorResult{}, nil
	}
	// SQL-side distance when the cosine function is registered on the connection
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, queryVector, manualID, limit, threshold)
	}
	return searchVectorFallback(ctx, db, queryVector, manualID, limit, threshold)
}

// searchVectorOptimized computes similarity, filtering and ordering in SQL
func searchVectorOptimized(ctx context.Context, db *sql.DB, queryVector []float32, manualID string, limit int, threshold float64) ([]VectorResult, error) {
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns distance (lower is better)
	query := `
		SELECT chunk_id, similarity FROM (
			SELECT
				c.id AS chunk_id,
				1.0 - vec_distance_cosine(e.vector, ?) AS similarity
			FROM chunks c
			INNER JOIN embeddings e ON c.id = e.chunk_id
			WHERE e.dimension = ?
	`
	args := []interface{}{queryVectorBlob, len(queryVector)}

	if manualID != "" {
		query += " AND c.manual_id = ?"
		args = append(args, manualID)
	}

	query += `
		)
		WHERE similarity >= ?
		ORDER BY similarity DESC, chunk_id
		LIMIT ?`
	args = append(args, threshold, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.ChunkID, &result.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// searchVectorFallback scores every candidate vector in Go
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, manualID string, limit int, threshold float64) ([]VectorResult, error) {
	query := `
		SELECT c.id, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		WHERE e.dimension = ?
	`
	args := []interface{}{len(queryVector)}
	if manualID != "" {
		query += " AND c.manual_id = ?"
		args = append(args, manualID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector, threshold)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5. A query without
// usable terms yields no results rather than an error.
func searchText(ctx context.Context, db *sql.DB, query string, manualID string, limit int) ([]TextResult, error) {
	if limit <= 0 {
		return []TextResult{}, nil
	}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return []TextResult{}, nil
	}

	results, err := runTextQuery(ctx, db, strings.Join(terms, " "), manualID, limit)
	if err != nil || len(results) > 0 || len(terms) == 1 {
		return results, err
	}

	// No chunk holds every term; widen to any term
	return runTextQuery(ctx, db, strings.Join(terms, " OR "), manualID, limit)
}

func runTextQuery(ctx context.Context, db *sql.DB, match string, manualID string, limit int) ([]TextResult, error) {
	sqlQuery := `
		SELECT
			c.id AS chunk_id,
			bm25(chunks_fts) AS score
		FROM chunks_fts
		INNER JOIN chunks c ON c.seq = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
	`
	args := []interface{}{match}

	if manualID != "" {
		sqlQuery += " AND c.manual_id = ?"
		args = append(args, manualID)
	}

	// bm25 is negative; lower is better
	sqlQuery += " ORDER BY score, c.id LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows)
}

var termRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:[-'./][\p{L}\p{N}]+)*`)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "can": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"my": {}, "of": {}, "on": {}, "or": {}, "should": {}, "the": {}, "this": {}, "to": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "with": {}, "you": {}, "your": {},
}

// queryTerms lower-cases the query, drops stop words and quotes each term for
// FTS5. Hyphenated tokens such as "5w-30" become phrase queries. If every
// term is a stop word the terms are kept.
func queryTerms(query string) []string {
	words := termRe.FindAllString(strings.ToLower(query), -1)
	if len(words) == 0 {
		return nil
	}

	kept := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop || seen[w] {
			continue
		}
		seen[w] = true
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		for _, w := range words {
			if !seen[w] {
				seen[w] = true
				kept = append(kept, w)
			}
		}
	}

	for i, w := range kept {
		kept[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return kept
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32, threshold float64) ([]candidate, error) {
	var candidates []candidate

	for rows.Next() {
		var chunkID string
		var vectorBlob []byte
		if err := rows.Scan(&chunkID, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue
		}

		similarity := cosineSimilarity(queryVector, vector)
		if similarity < threshold {
			continue
		}

		candidates = append(candidates, candidate{chunkID: chunkID, score: similarity})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates VectorResult slice from the top candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// collectTextResults converts bm25 (lower is better) to a higher-is-better score
func collectTextResults(rows *sql.Rows) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var result TextResult
		var bm25 float64
		if err := rows.Scan(&result.ChunkID, &bm25); err != nil {
			return nil, err
		}
		result.Score = -bm25
		results = append(results, result)
	}

	return results, rows.Err()
}

type candidate struct {
	chunkID string
	score   float64
}

// sortCandidates orders by score descending, then chunk ID
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
