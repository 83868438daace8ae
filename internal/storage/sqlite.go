package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/docrag/pkg/types"
)

// ErrMissingEmbedding is returned when a chunk reaches the store without a vector
var ErrMissingEmbedding = errors.New("chunk has no embedding")

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL is unavailable for :memory: databases; the pragma is a no-op there.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single connection: SQLite has one writer, and :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// DB exposes the underlying handle for maintenance commands.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Document operations

func (s *SQLiteStorage) insertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	prepareDocument(doc, uuid.NewString)

	query := `
		INSERT INTO documents (id, filename, original_name, storage_path, mime_type, file_size, uploaded_at, uploaded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		doc.ID, doc.Filename, doc.OriginalName, doc.StoragePath,
		doc.MimeType, doc.FileSize, doc.UploadedAt, nullString(doc.UploadedBy))
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) InsertDocument(ctx context.Context, doc *Document) error {
	return s.insertDocumentWithQuerier(ctx, s.querier(), doc)
}

const documentColumns = `id, filename, original_name, storage_path, mime_type, file_size, uploaded_at, uploaded_by`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner, extra ...interface{}) (*Document, error) {
	var doc Document
	var uploadedBy sql.NullString
	dest := append([]interface{}{
		&doc.ID, &doc.Filename, &doc.OriginalName, &doc.StoragePath,
		&doc.MimeType, &doc.FileSize, &doc.UploadedAt, &uploadedBy,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	doc.UploadedBy = uploadedBy.String
	return &doc, nil
}

func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, id string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) findDocumentsByNameWithQuerier(ctx context.Context, q querier, originalName string) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE original_name = ? ORDER BY uploaded_at, id`
	rows, err := q.QueryContext(ctx, query, originalName)
	if err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) FindDocumentsByName(ctx context.Context, originalName string) ([]*Document, error) {
	return s.findDocumentsByNameWithQuerier(ctx, s.querier(), originalName)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*DocumentSummary, error) {
	query := `
		SELECT d.id, d.filename, d.original_name, d.storage_path, d.mime_type, d.file_size,
		       d.uploaded_at, d.uploaded_by, COUNT(c.id)
		FROM documents d
		LEFT JOIN chunks c ON c.document_id = d.id
		GROUP BY d.id
		ORDER BY d.uploaded_at DESC, d.id
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := make([]*DocumentSummary, 0)
	for rows.Next() {
		var count int
		doc, err := scanDocument(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		summaries = append(summaries, &DocumentSummary{Document: *doc, ChunkCount: count})
	}
	return summaries, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*DocumentSummary, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) deleteDocumentWithQuerier(ctx context.Context, q querier, id string) error {
	result, err := q.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	return s.deleteDocumentWithQuerier(ctx, s.querier(), id)
}

// Chunk operations

func (s *SQLiteStorage) insertChunksWithQuerier(ctx context.Context, q querier, documentID string, chunks []types.Chunk) error {
	if err := validateChunks(chunks); err != nil {
		return err
	}

	query := `
		INSERT INTO chunks (id, document_id, content, embedding, dimension, chunk_index,
		                    page_number, line_start, line_end, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	for i := range chunks {
		c := &chunks[i]
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d: %w", i, ErrMissingEmbedding)
		}
		metadata, err := encodeMetadata(c.Metadata)
		if err != nil {
			return fmt.Errorf("chunk %d: failed to encode metadata: %w", i, err)
		}

		_, err = q.ExecContext(ctx, query,
			uuid.NewString(), documentID, c.Content,
			serializeVector(c.Embedding), len(c.Embedding), c.ChunkIndex,
			nullInt(c.PageNumber), nullInt(c.LineStart), nullInt(c.LineEnd),
			metadata, now)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) InsertChunks(ctx context.Context, documentID string, chunks []types.Chunk) error {
	return s.insertChunksWithQuerier(ctx, s.querier(), documentID, chunks)
}

func (s *SQLiteStorage) countChunksWithQuerier(ctx context.Context, q querier, documentID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) CountChunks(ctx context.Context, documentID string) (int, error) {
	return s.countChunksWithQuerier(ctx, s.querier(), documentID)
}

// chunkRow is the raw column set shared by listing and search.
type chunkRow struct {
	id         string
	documentID string
	content    string
	embedding  []byte
	chunkIndex int
	pageNumber sql.NullInt64
	lineStart  sql.NullInt64
	lineEnd    sql.NullInt64
	metadata   sql.NullString
	createdAt  time.Time
}

func (r *chunkRow) dest() []interface{} {
	return []interface{}{
		&r.id, &r.documentID, &r.content, &r.embedding, &r.chunkIndex,
		&r.pageNumber, &r.lineStart, &r.lineEnd, &r.metadata, &r.createdAt,
	}
}

func (r *chunkRow) chunk() (types.Chunk, error) {
	metadata, err := decodeMetadata([]byte(r.metadata.String))
	if err != nil {
		return types.Chunk{}, fmt.Errorf("failed to decode metadata for chunk %s: %w", r.id, err)
	}
	return types.Chunk{
		Content:    r.content,
		ChunkIndex: r.chunkIndex,
		PageNumber: int(r.pageNumber.Int64),
		LineStart:  int(r.lineStart.Int64),
		LineEnd:    int(r.lineEnd.Int64),
		Metadata:   metadata,
		Embedding:  deserializeVector(r.embedding),
	}, nil
}

const chunkColumns = `c.id, c.document_id, c.content, c.embedding, c.chunk_index,
	c.page_number, c.line_start, c.line_end, c.metadata, c.created_at`

func (s *SQLiteStorage) listChunksWithQuerier(ctx context.Context, q querier, documentID string) ([]*StoredChunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks c WHERE c.document_id = ? ORDER BY c.chunk_index`
	rows, err := q.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*StoredChunk
	for rows.Next() {
		var row chunkRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk, err := row.chunk()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, &StoredChunk{
			ID:         row.id,
			DocumentID: row.documentID,
			CreatedAt:  row.createdAt,
			Chunk:      chunk,
		})
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunks(ctx context.Context, documentID string) ([]*StoredChunk, error) {
	return s.listChunksWithQuerier(ctx, s.querier(), documentID)
}

// Search operations

func (s *SQLiteStorage) searchSimilarWithQuerier(ctx context.Context, q querier, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if VectorExtensionAvailable {
		return searchOptimized(ctx, q, vector, threshold, limit)
	}
	return searchFallback(ctx, q, vector, threshold, limit)
}

func (s *SQLiteStorage) SearchSimilar(ctx context.Context, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error) {
	return s.searchSimilarWithQuerier(ctx, s.querier(), vector, threshold, limit)
}

// searchOptimized pushes scoring into SQL via sqlite-vec.
func searchOptimized(ctx context.Context, q querier, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error) {
	blob := serializeVector(vector)
	query := `
		SELECT ` + chunkColumns + `, d.original_name,
		       1.0 - vec_distance_cosine(c.embedding, ?) AS similarity
		FROM chunks c
		INNER JOIN documents d ON d.id = c.document_id
		WHERE c.dimension = ?
		  AND 1.0 - vec_distance_cosine(c.embedding, ?) > ?
		ORDER BY similarity DESC
	`
	args := []interface{}{blob, len(vector), blob, threshold}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.RetrievedChunk, 0)
	for rows.Next() {
		var row chunkRow
		var name string
		var similarity float64
		if err := rows.Scan(append(row.dest(), &name, &similarity)...); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		rc, err := toRetrieved(&row, name, similarity)
		if err != nil {
			return nil, err
		}
		results = append(results, rc)
	}
	return results, rows.Err()
}

// searchFallback scores every stored vector in Go.
func searchFallback(ctx context.Context, q querier, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error) {
	query := `
		SELECT ` + chunkColumns + `, d.original_name
		FROM chunks c
		INNER JOIN documents d ON d.id = c.document_id
		WHERE c.dimension = ?
		ORDER BY d.uploaded_at, c.document_id, c.chunk_index
	`
	rows, err := q.QueryContext(ctx, query, len(vector))
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		stored     []chunkRow
		names      []string
		candidates []candidate
	)
	for rows.Next() {
		var row chunkRow
		var name string
		if err := rows.Scan(append(row.dest(), &name)...); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		score := cosineSimilarity(vector, deserializeVector(row.embedding))
		if score <= threshold {
			continue
		}
		candidates = append(candidates, candidate{pos: len(stored), score: score})
		stored = append(stored, row)
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := rankCandidates(candidates, threshold, limit)
	results := make([]types.RetrievedChunk, 0, len(ranked))
	for _, c := range ranked {
		rc, err := toRetrieved(&stored[c.pos], names[c.pos], c.score)
		if err != nil {
			return nil, err
		}
		results = append(results, rc)
	}
	return results, nil
}

func toRetrieved(row *chunkRow, documentName string, similarity float64) (types.RetrievedChunk, error) {
	chunk, err := row.chunk()
	if err != nil {
		return types.RetrievedChunk{}, err
	}
	return types.RetrievedChunk{
		ID:           row.id,
		DocumentID:   row.documentID,
		DocumentName: documentName,
		Similarity:   similarity,
		CreatedAt:    row.createdAt,
		Chunk:        chunk,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v > 0}
}

// Transaction methods - delegate to storage methods with transaction querier

func (t *sqliteTx) InsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.insertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) GetDocument(ctx context.Context, id string) (*Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) FindDocumentsByName(ctx context.Context, originalName string) ([]*Document, error) {
	return t.storage.findDocumentsByNameWithQuerier(ctx, t.querier(), originalName)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*DocumentSummary, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, id string) error {
	return t.storage.deleteDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) InsertChunks(ctx context.Context, documentID string, chunks []types.Chunk) error {
	return t.storage.insertChunksWithQuerier(ctx, t.querier(), documentID, chunks)
}

func (t *sqliteTx) CountChunks(ctx context.Context, documentID string) (int, error) {
	return t.storage.countChunksWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) ListChunks(ctx context.Context, documentID string) ([]*StoredChunk, error) {
	return t.storage.listChunksWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) SearchSimilar(ctx context.Context, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error) {
	return t.storage.searchSimilarWithQuerier(ctx, t.querier(), vector, threshold, limit)
}

func (t *sqliteTx) Close() error {
	return fmt.Errorf("cannot close storage from within transaction")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}
