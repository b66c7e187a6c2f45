package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/manualrag/internal/logger"
	"github.com/dshills/manualrag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrDimensionMismatch is returned when vectors differ in length from the stored index
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrLengthMismatch is returned when chunks and embeddings are not paired 1:1
	ErrLengthMismatch = errors.New("chunks and embeddings differ in length")
)

const metaEmbeddingDimension = "embedding_dimension"

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db        *sql.DB
	logger    *slog.Logger
	batchSize int
}

// Option configures SQLiteStorage
type Option func(*SQLiteStorage)

// WithLogger sets the logger used for skipped batches
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStorage) {
		s.logger = logger.OrNop(l)
	}
}

// WithBatchSize sets rows per write transaction (capped at UpsertBatchSize)
func WithBatchSize(n int) Option {
	return func(s *SQLiteStorage) {
		if n > 0 && n <= UpsertBatchSize {
			s.batchSize = n
		}
	}
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: logger.Nop(), batchSize: UpsertBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Manual operations

const manualColumns = `id, vehicle_key, year, make, model, trim, vin, title, source, source_url,
	blob_url, status, page_count, chunk_count, error_message, created_at, updated_at`

func (s *SQLiteStorage) CreateManual(ctx context.Context, manual *types.Manual) error {
	if manual.ID == "" {
		return types.ErrInvalidManualID
	}
	if manual.VehicleKey == "" {
		manual.VehicleKey = manual.Vehicle.Key()
	}
	if manual.Status == "" {
		manual.Status = types.StatusPending
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manuals (`+manualColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, manual.ID, manual.VehicleKey, manual.Vehicle.Year, manual.Vehicle.Make, manual.Vehicle.Model,
		manual.Vehicle.Trim, manual.Vehicle.VIN, manual.Title, string(manual.Source), manual.SourceURL,
		manual.BlobURL, string(manual.Status), manual.PageCount, manual.ChunkCount, manual.ErrorMessage, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: manual for %s", ErrAlreadyExists, manual.VehicleKey)
	}
	if err != nil {
		return fmt.Errorf("failed to create manual: %w", err)
	}

	manual.CreatedAt = now
	manual.UpdatedAt = now
	return nil
}

// UpsertManual inserts the manual or, when its vehicle key already exists,
// refreshes the acquisition fields and keeps the existing ID. manual is
// reloaded from the stored row.
func (s *SQLiteStorage) UpsertManual(ctx context.Context, manual *types.Manual) error {
	if manual.ID == "" {
		return types.ErrInvalidManualID
	}
	if manual.VehicleKey == "" {
		manual.VehicleKey = manual.Vehicle.Key()
	}
	if manual.Status == "" {
		manual.Status = types.StatusPending
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manuals (`+manualColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vehicle_key) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			source_url = excluded.source_url,
			blob_url = COALESCE(NULLIF(excluded.blob_url, ''), manuals.blob_url),
			error_message = CASE
				WHEN excluded.blob_url = '' AND (manuals.blob_url != '' OR manuals.status = 'completed') THEN manuals.error_message
				ELSE excluded.error_message
			END,
			vin = COALESCE(NULLIF(excluded.vin, ''), manuals.vin),
			updated_at = excluded.updated_at
	`, manual.ID, manual.VehicleKey, manual.Vehicle.Year, manual.Vehicle.Make, manual.Vehicle.Model,
		manual.Vehicle.Trim, manual.Vehicle.VIN, manual.Title, string(manual.Source), manual.SourceURL,
		manual.BlobURL, string(manual.Status), manual.PageCount, manual.ChunkCount, manual.ErrorMessage, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert manual: %w", err)
	}

	stored, err := s.GetManualByVehicleKey(ctx, manual.VehicleKey)
	if err != nil {
		return fmt.Errorf("failed to reload manual: %w", err)
	}
	*manual = *stored
	return nil
}

func (s *SQLiteStorage) GetManual(ctx context.Context, id string) (*types.Manual, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+manualColumns+` FROM manuals WHERE id = ?`, id)
	return scanManual(row)
}

func (s *SQLiteStorage) GetManualByVehicleKey(ctx context.Context, vehicleKey string) (*types.Manual, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+manualColumns+` FROM manuals WHERE vehicle_key = ?`, vehicleKey)
	return scanManual(row)
}

func (s *SQLiteStorage) UpdateManual(ctx context.Context, manual *types.Manual) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE manuals SET
			title = ?, source = ?, source_url = ?, blob_url = ?, status = ?,
			page_count = ?, chunk_count = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, manual.Title, string(manual.Source), manual.SourceURL, manual.BlobURL, string(manual.Status),
		manual.PageCount, manual.ChunkCount, manual.ErrorMessage, now, manual.ID)
	if err != nil {
		return fmt.Errorf("failed to update manual: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	manual.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) ListManuals(ctx context.Context) ([]*types.Manual, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+manualColumns+` FROM manuals ORDER BY vehicle_key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var manuals []*types.Manual
	for rows.Next() {
		m, err := scanManual(rows)
		if err != nil {
			return nil, err
		}
		manuals = append(manuals, m)
	}
	return manuals, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanManual(row scanner) (*types.Manual, error) {
	var m types.Manual
	var trim, vin, title, source, sourceURL, blobURL, errMsg sql.NullString
	err := row.Scan(&m.ID, &m.VehicleKey, &m.Vehicle.Year, &m.Vehicle.Make, &m.Vehicle.Model,
		&trim, &vin, &title, &source, &sourceURL, &blobURL, (*string)(&m.Status),
		&m.PageCount, &m.ChunkCount, &errMsg, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Vehicle.Trim = trim.String
	m.Vehicle.VIN = vin.String
	m.Title = title.String
	m.Source = types.Source(source.String)
	m.SourceURL = sourceURL.String
	m.BlobURL = blobURL.String
	m.ErrorMessage = errMsg.String
	return &m, nil
}

// Chunk operations

// UpsertChunks stores chunks with their embeddings in transactions of at most
// UpsertBatchSize rows. A failed batch is rolled back, logged and skipped; the
// returned count covers only committed chunks.
func (s *SQLiteStorage) UpsertChunks(ctx context.Context, chunks []types.Chunk, embeddings [][]float32) (int, error) {
	if len(chunks) != len(embeddings) {
		return 0, fmt.Errorf("%w: %d chunks, %d embeddings", ErrLengthMismatch, len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	dimension := len(embeddings[0])
	for i, v := range embeddings {
		if len(v) != dimension || dimension == 0 {
			return 0, fmt.Errorf("%w: vector %d has %d values, expected %d", ErrDimensionMismatch, i, len(v), dimension)
		}
	}
	if err := s.ensureDimension(ctx, dimension); err != nil {
		return 0, err
	}

	stored := 0
	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		if err := s.upsertBatch(ctx, chunks[start:end], embeddings[start:end]); err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			s.logger.Warn("chunk_batch_skipped",
				slog.Int("batch_start", start),
				slog.Int("batch_size", end-start),
				slog.String("error", err.Error()))
			continue
		}
		stored += end - start
	}

	return stored, nil
}

func (s *SQLiteStorage) upsertBatch(ctx context.Context, chunks []types.Chunk, embeddings [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for i := range chunks {
		if err := upsertChunkWithQuerier(ctx, tx, &chunks[i]); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := upsertEmbeddingWithQuerier(ctx, tx, chunks[i].ID, embeddings[i]); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func upsertChunkWithQuerier(ctx context.Context, q querier, chunk *types.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return fmt.Errorf("chunk %d: %w", chunk.SequenceIndex, err)
	}

	var parentID sql.NullString
	if chunk.ParentID != nil {
		parentID = sql.NullString{String: *chunk.ParentID, Valid: true}
	}
	var page sql.NullInt64
	if chunk.PageNumber != nil {
		page = sql.NullInt64{Int64: int64(*chunk.PageNumber), Valid: true}
	}
	hash := chunk.ContentHash()
	now := time.Now().UTC()

	_, err := q.ExecContext(ctx, `
		INSERT INTO chunks (id, manual_id, parent_id, level, content, content_hash, token_count,
			page_number, section_title, content_type, sequence_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			manual_id = excluded.manual_id,
			parent_id = excluded.parent_id,
			level = excluded.level,
			content = excluded.content,
			content_hash = excluded.content_hash,
			token_count = excluded.token_count,
			page_number = excluded.page_number,
			section_title = excluded.section_title,
			content_type = excluded.content_type,
			sequence_index = excluded.sequence_index,
			updated_at = excluded.updated_at
	`, chunk.ID, chunk.ManualID, parentID, int(chunk.Level), chunk.Content, hash[:], chunk.TokenCount,
		page, chunk.SectionTitle, string(chunk.ContentType), chunk.SequenceIndex, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

func upsertEmbeddingWithQuerier(ctx context.Context, q querier, chunkID string, vector []float32) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dimension, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			created_at = excluded.created_at
	`, chunkID, serializeVector(vector), len(vector), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for %s: %w", chunkID, err)
	}
	return nil
}

// ensureDimension records the first vector length written and rejects any other
func (s *SQLiteStorage) ensureDimension(ctx context.Context, dimension int) error {
	stored, err := s.embeddingDimension(ctx)
	if err != nil {
		return err
	}
	if stored == 0 {
		_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO store_meta (key, value) VALUES (?, ?)`,
			metaEmbeddingDimension, strconv.Itoa(dimension))
		return err
	}
	if stored != dimension {
		return fmt.Errorf("%w: index holds %d-dimension vectors, got %d; reindex required",
			ErrDimensionMismatch, stored, dimension)
	}
	return nil
}

func (s *SQLiteStorage) embeddingDimension(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, metaEmbeddingDimension).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

const chunkColumns = `id, manual_id, parent_id, level, content, token_count, page_number,
	section_title, content_type, sequence_index`

func (s *SQLiteStorage) GetChunksByIDs(ctx context.Context, ids []string) (map[string]*types.Chunk, error) {
	result := make(map[string]*types.Chunk, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		result[c.ID] = c
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) ListChunksByManual(ctx context.Context, manualID string) ([]*types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE manual_id = ? ORDER BY sequence_index`, manualID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chunks []*types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func scanChunk(row scanner) (*types.Chunk, error) {
	var c types.Chunk
	var parentID, sectionTitle sql.NullString
	var page sql.NullInt64
	var level int
	err := row.Scan(&c.ID, &c.ManualID, &parentID, &level, &c.Content, &c.TokenCount, &page,
		&sectionTitle, (*string)(&c.ContentType), &c.SequenceIndex)
	if err != nil {
		return nil, err
	}
	c.Level = types.ChunkLevel(level)
	if parentID.Valid {
		p := parentID.String
		c.ParentID = &p
	}
	if page.Valid {
		n := int(page.Int64)
		c.PageNumber = &n
	}
	c.SectionTitle = sectionTitle.String
	return &c, nil
}

func (s *SQLiteStorage) DeleteChunksByManual(ctx context.Context, manualID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE manual_id = ?", manualID)
	return err
}

// DeleteChunksFrom removes a manual's chunks at or beyond fromSequence, which
// drops leftovers when reprocessing produces fewer chunks than before.
func (s *SQLiteStorage) DeleteChunksFrom(ctx context.Context, manualID string, fromSequence int) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE manual_id = ? AND sequence_index >= ?", manualID, fromSequence)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Search operations

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, manualID string, limit int) ([]TextResult, error) {
	return searchText(ctx, s.db, query, manualID, limit)
}

func (s *SQLiteStorage) SearchVector(ctx context.Context, vector []float32, manualID string, limit int, threshold float64) ([]VectorResult, error) {
	return searchVector(ctx, s.db, vector, manualID, limit, threshold)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context, manualID string) (*IndexStatus, error) {
	manual, err := s.GetManual(ctx, manualID)
	if err != nil {
		return nil, err
	}

	status := &IndexStatus{
		Manual:        manual,
		ChunksByLevel: make(map[types.ChunkLevel]int),
	}
	if manual.Status == types.StatusCompleted {
		status.LastIndexedAt = manual.UpdatedAt
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT level, COUNT(*) FROM chunks WHERE manual_id = ? GROUP BY level", manualID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var level, count int
		if err := rows.Scan(&level, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.ChunksByLevel[types.ChunkLevel(level)] = count
		status.ChunksCount += count
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings e
		JOIN chunks c ON e.chunk_id = c.id
		WHERE c.manual_id = ?
	`, manualID).Scan(&status.EmbeddingsCount)
	if err != nil {
		return nil, err
	}

	status.EmbeddingDimension, err = s.embeddingDimension(ctx)
	if err != nil {
		return nil, err
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     true, // FTS indexes are created with migrations
		EmbeddingsComplete:  status.EmbeddingsCount == status.ChunksCount,
	}

	return status, nil
}
