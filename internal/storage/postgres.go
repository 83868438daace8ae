package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/dshills/docrag/pkg/types"
)

// PostgresConfig configures the PostgreSQL connection pool
type PostgresConfig struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PostgresStorage implements the Storage interface on PostgreSQL with pgvector
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage runs migrations and opens a connection pool.
func NewPostgresStorage(ctx context.Context, cfg PostgresConfig) (*PostgresStorage, error) {
	if err := RunPostgresMigrations(cfg.URL); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Close closes the connection pool
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// BeginTx starts a new transaction
func (s *PostgresStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresTx{ctx: ctx, tx: tx, storage: s}, nil
}

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type postgresTx struct {
	ctx     context.Context
	tx      pgx.Tx
	storage *PostgresStorage
}

func (t *postgresTx) Commit() error {
	return t.tx.Commit(t.ctx)
}

// Rollback runs on a background context; the transaction's own context may already be cancelled.
func (t *postgresTx) Rollback() error {
	err := t.tx.Rollback(context.Background())
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *postgresTx) querier() pgQuerier {
	return t.tx
}

func (s *PostgresStorage) querier() pgQuerier {
	return s.pool
}

// parseUUID converts an id string; malformed ids are reported as not found.
func parseUUID(id string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func uuidString(id pgtype.UUID) string {
	return uuid.UUID(id.Bytes).String()
}

func pgInt(v int) pgtype.Int4 {
	return pgtype.Int4{Int32: int32(v), Valid: v > 0}
}

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// Document operations

func (s *PostgresStorage) insertDocumentWithQuerier(ctx context.Context, q pgQuerier, doc *Document) error {
	prepareDocument(doc, uuid.NewString)
	id, err := parseUUID(doc.ID)
	if err != nil {
		return fmt.Errorf("invalid document id %q", doc.ID)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO documents (id, filename, original_name, storage_path, mime_type, file_size, uploaded_at, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, doc.Filename, doc.OriginalName, doc.StoragePath,
		doc.MimeType, doc.FileSize, doc.UploadedAt, pgText(doc.UploadedBy))
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *PostgresStorage) InsertDocument(ctx context.Context, doc *Document) error {
	return s.insertDocumentWithQuerier(ctx, s.querier(), doc)
}

func scanPgDocument(row pgx.Row, extra ...any) (*Document, error) {
	var (
		doc        Document
		id         pgtype.UUID
		uploadedBy pgtype.Text
	)
	dest := append([]any{
		&id, &doc.Filename, &doc.OriginalName, &doc.StoragePath,
		&doc.MimeType, &doc.FileSize, &doc.UploadedAt, &uploadedBy,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	doc.ID = uuidString(id)
	doc.UploadedBy = uploadedBy.String
	return &doc, nil
}

func (s *PostgresStorage) getDocumentWithQuerier(ctx context.Context, q pgQuerier, id string) (*Document, error) {
	pgID, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	doc, err := scanPgDocument(q.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, pgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStorage) GetDocument(ctx context.Context, id string) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), id)
}

func (s *PostgresStorage) findDocumentsByNameWithQuerier(ctx context.Context, q pgQuerier, originalName string) ([]*Document, error) {
	rows, err := q.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE original_name = $1 ORDER BY uploaded_at, id`,
		originalName)
	if err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStorage) FindDocumentsByName(ctx context.Context, originalName string) ([]*Document, error) {
	return s.findDocumentsByNameWithQuerier(ctx, s.querier(), originalName)
}

func (s *PostgresStorage) listDocumentsWithQuerier(ctx context.Context, q pgQuerier) ([]*DocumentSummary, error) {
	rows, err := q.Query(ctx, `
		SELECT d.id, d.filename, d.original_name, d.storage_path, d.mime_type, d.file_size,
		       d.uploaded_at, d.uploaded_by, COUNT(c.id)
		FROM documents d
		LEFT JOIN chunks c ON c.document_id = d.id
		GROUP BY d.id
		ORDER BY d.uploaded_at DESC, d.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	summaries := make([]*DocumentSummary, 0)
	for rows.Next() {
		var count int64
		doc, err := scanPgDocument(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		summaries = append(summaries, &DocumentSummary{Document: *doc, ChunkCount: int(count)})
	}
	return summaries, rows.Err()
}

func (s *PostgresStorage) ListDocuments(ctx context.Context) ([]*DocumentSummary, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

func (s *PostgresStorage) deleteDocumentWithQuerier(ctx context.Context, q pgQuerier, id string) error {
	pgID, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM documents WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStorage) DeleteDocument(ctx context.Context, id string) error {
	return s.deleteDocumentWithQuerier(ctx, s.querier(), id)
}

// Chunk operations

func (s *PostgresStorage) insertChunksWithQuerier(ctx context.Context, q pgQuerier, documentID string, chunks []types.Chunk) error {
	if err := validateChunks(chunks); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	docID, err := parseUUID(documentID)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO chunks (id, document_id, content, embedding, chunk_index,
		                    page_number, line_start, line_end, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i := range chunks {
		c := &chunks[i]
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d: %w", i, ErrMissingEmbedding)
		}
		if len(c.Embedding) != PostgresDimension {
			return fmt.Errorf("chunk %d: embedding has %d dimensions, schema requires %d", i, len(c.Embedding), PostgresDimension)
		}
		metadata, err := encodeMetadata(c.Metadata)
		if err != nil {
			return fmt.Errorf("chunk %d: failed to encode metadata: %w", i, err)
		}
		batch.Queue(query,
			pgtype.UUID{Bytes: uuid.New(), Valid: true}, docID, c.Content,
			pgvector.NewVector(c.Embedding), c.ChunkIndex,
			pgInt(c.PageNumber), pgInt(c.LineStart), pgInt(c.LineEnd),
			metadata, now)
	}

	results := q.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return results.Close()
}

func (s *PostgresStorage) InsertChunks(ctx context.Context, documentID string, chunks []types.Chunk) error {
	return s.insertChunksWithQuerier(ctx, s.querier(), documentID, chunks)
}

func (s *PostgresStorage) countChunksWithQuerier(ctx context.Context, q pgQuerier, documentID string) (int, error) {
	docID, err := parseUUID(documentID)
	if err != nil {
		return 0, nil
	}
	var count int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = $1`, docID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return int(count), nil
}

func (s *PostgresStorage) CountChunks(ctx context.Context, documentID string) (int, error) {
	return s.countChunksWithQuerier(ctx, s.querier(), documentID)
}

// pgChunkRow mirrors chunkRow with pgx column types.
type pgChunkRow struct {
	id         pgtype.UUID
	documentID pgtype.UUID
	content    string
	embedding  pgvector.Vector
	chunkIndex int32
	pageNumber pgtype.Int4
	lineStart  pgtype.Int4
	lineEnd    pgtype.Int4
	metadata   []byte
	createdAt  time.Time
}

func (r *pgChunkRow) dest() []any {
	return []any{
		&r.id, &r.documentID, &r.content, &r.embedding, &r.chunkIndex,
		&r.pageNumber, &r.lineStart, &r.lineEnd, &r.metadata, &r.createdAt,
	}
}

func (r *pgChunkRow) chunk() (types.Chunk, error) {
	metadata, err := decodeMetadata(r.metadata)
	if err != nil {
		return types.Chunk{}, fmt.Errorf("failed to decode metadata for chunk %s: %w", uuidString(r.id), err)
	}
	return types.Chunk{
		Content:    r.content,
		ChunkIndex: int(r.chunkIndex),
		PageNumber: int(r.pageNumber.Int32),
		LineStart:  int(r.lineStart.Int32),
		LineEnd:    int(r.lineEnd.Int32),
		Metadata:   metadata,
		Embedding:  r.embedding.Slice(),
	}, nil
}

func (s *PostgresStorage) listChunksWithQuerier(ctx context.Context, q pgQuerier, documentID string) ([]*StoredChunk, error) {
	docID, err := parseUUID(documentID)
	if err != nil {
		return nil, nil
	}
	rows, err := q.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks c WHERE c.document_id = $1 ORDER BY c.chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*StoredChunk
	for rows.Next() {
		var row pgChunkRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk, err := row.chunk()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, &StoredChunk{
			ID:         uuidString(row.id),
			DocumentID: uuidString(row.documentID),
			CreatedAt:  row.createdAt,
			Chunk:      chunk,
		})
	}
	return chunks, rows.Err()
}

func (s *PostgresStorage) ListChunks(ctx context.Context, documentID string) ([]*StoredChunk, error) {
	return s.listChunksWithQuerier(ctx, s.querier(), documentID)
}

// Search operations

func (s *PostgresStorage) searchSimilarWithQuerier(ctx context.Context, q pgQuerier, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error) {
	if len(vector) != PostgresDimension {
		return nil, fmt.Errorf("query vector has %d dimensions, schema requires %d", len(vector), PostgresDimension)
	}

	// LIMIT NULL is LIMIT ALL.
	rows, err := q.Query(ctx, `
		SELECT `+chunkColumns+`, d.original_name, 1 - (c.embedding <=> $1) AS similarity
		FROM chunks c
		INNER JOIN documents d ON d.id = c.document_id
		WHERE 1 - (c.embedding <=> $1) > $2
		ORDER BY c.embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(vector), threshold, pgtype.Int8{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer rows.Close()

	results := make([]types.RetrievedChunk, 0)
	for rows.Next() {
		var (
			row        pgChunkRow
			name       string
			similarity float64
		)
		if err := rows.Scan(append(row.dest(), &name, &similarity)...); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		chunk, err := row.chunk()
		if err != nil {
			return nil, err
		}
		results = append(results, types.RetrievedChunk{
			ID:           uuidString(row.id),
			DocumentID:   uuidString(row.documentID),
			DocumentName: name,
			Similarity:   similarity,
			CreatedAt:    row.createdAt,
			Chunk:        chunk,
		})
	}
	return results, rows.Err()
}

func (s *PostgresStorage) SearchSimilar(ctx context.Context, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error) {
	return s.searchSimilarWithQuerier(ctx, s.querier(), vector, threshold, limit)
}

// Transaction methods - delegate to storage methods with transaction querier

func (t *postgresTx) InsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.insertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *postgresTx) GetDocument(ctx context.Context, id string) (*Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *postgresTx) FindDocumentsByName(ctx context.Context, originalName string) ([]*Document, error) {
	return t.storage.findDocumentsByNameWithQuerier(ctx, t.querier(), originalName)
}

func (t *postgresTx) ListDocuments(ctx context.Context) ([]*DocumentSummary, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *postgresTx) DeleteDocument(ctx context.Context, id string) error {
	return t.storage.deleteDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *postgresTx) InsertChunks(ctx context.Context, documentID string, chunks []types.Chunk) error {
	return t.storage.insertChunksWithQuerier(ctx, t.querier(), documentID, chunks)
}

func (t *postgresTx) CountChunks(ctx context.Context, documentID string) (int, error) {
	return t.storage.countChunksWithQuerier(ctx, t.querier(), documentID)
}

func (t *postgresTx) ListChunks(ctx context.Context, documentID string) ([]*StoredChunk, error) {
	return t.storage.listChunksWithQuerier(ctx, t.querier(), documentID)
}

func (t *postgresTx) SearchSimilar(ctx context.Context, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error) {
	return t.storage.searchSimilarWithQuerier(ctx, t.querier(), vector, threshold, limit)
}

func (t *postgresTx) Close() error {
	return fmt.Errorf("cannot close storage from within transaction")
}

func (t *postgresTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}
