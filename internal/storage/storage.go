package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/docrag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrNestedTx is returned by BeginTx on a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
)

// Storage defines the interface for persisting documents and their chunks
type Storage interface {
	// Document operations
	InsertDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	FindDocumentsByName(ctx context.Context, originalName string) ([]*Document, error)
	ListDocuments(ctx context.Context) ([]*DocumentSummary, error)
	DeleteDocument(ctx context.Context, id string) error

	// Chunk operations
	InsertChunks(ctx context.Context, documentID string, chunks []types.Chunk) error
	CountChunks(ctx context.Context, documentID string) (int, error)
	ListChunks(ctx context.Context, documentID string) ([]*StoredChunk, error)

	// SearchSimilar returns chunks whose cosine similarity to vector is
	// strictly greater than threshold, best first, at most limit rows.
	// A limit <= 0 means no cap.
	SearchSimilar(ctx context.Context, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// Document is one ingested file.
type Document struct {
	ID           string
	Filename     string
	OriginalName string
	StoragePath  string
	MimeType     string
	FileSize     int64
	UploadedAt   time.Time
	UploadedBy   string
}

// DocumentSummary is a Document with its chunk count.
type DocumentSummary struct {
	Document
	ChunkCount int
}

// StoredChunk is a persisted chunk with its identity.
type StoredChunk struct {
	ID         string
	DocumentID string
	CreatedAt  time.Time
	types.Chunk
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, s Storage, fn func(tx Tx) error) (err error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && err == nil {
			err = fmt.Errorf("failed to rollback transaction: %w", rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// prepareDocument fills the generated fields of doc.
func prepareDocument(doc *Document, newID func() string) {
	if doc.ID == "" {
		doc.ID = newID()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Filename == "" {
		doc.Filename = doc.OriginalName
	}
	if doc.OriginalName == "" {
		doc.OriginalName = doc.Filename
	}
}

// validateChunks checks every chunk before any row is written.
func validateChunks(chunks []types.Chunk) error {
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if chunks[i].ChunkIndex != i {
			return fmt.Errorf("chunk %d: %w: got index %d", i, types.ErrInvalidChunkIndex, chunks[i].ChunkIndex)
		}
	}
	return nil
}
