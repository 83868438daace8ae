package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docrag/internal/chunker"
	"github.com/dshills/docrag/internal/embedder"
	"github.com/dshills/docrag/internal/logging"
	"github.com/dshills/docrag/internal/parser"
	"github.com/dshills/docrag/internal/storage"
	"github.com/dshills/docrag/pkg/types"
)

// ErrInProgress is returned when the same path is already being ingested
var ErrInProgress = errors.New("ingestion already in progress for this file")

// Config holds ingestion policies
type Config struct {
	Duplicates DuplicatePolicy
	Empty      EmptyPolicy
	Timeout    time.Duration // Per document; zero means no deadline
	UploadedBy string
}

// Service runs the write path: parse, chunk, embed and store.
type Service struct {
	parser   *parser.Parser
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	store    storage.Storage
	cfg      Config
	inflight pathGuard
}

// New creates a Service. A nil chunker uses the defaults.
func New(store storage.Storage, emb embedder.Embedder, ch *chunker.Chunker, cfg Config) *Service {
	if ch == nil {
		ch = chunker.New()
	}
	if cfg.Duplicates == "" {
		cfg.Duplicates = DuplicateAllow
	}
	if cfg.Empty == "" {
		cfg.Empty = EmptyStore
	}
	return &Service{
		parser:   parser.New(),
		chunker:  ch,
		embedder: emb,
		store:    store,
		cfg:      cfg,
	}
}

// Result describes one stored document
type Result struct {
	DocumentID    string
	OriginalName  string
	ChunksCreated int
	Replaced      []string // IDs removed by DuplicateReplace
	Duration      time.Duration
}

// FileOutcome is the result of one file in a batch: exactly one of Result
// and Err is set.
type FileOutcome struct {
	Path   string
	Result *Result
	Err    error
}

// DeleteResult reports a removed document
type DeleteResult struct {
	DocumentID    string
	OriginalName  string
	ChunksDeleted int
}

// Ingest stores one file. Embedding completes before the transaction opens,
// so a failed embedding call writes nothing. The document, any replaced
// duplicates and all chunks commit together.
func (s *Service) Ingest(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrIOFailure, path, err)
	}

	release, ok := s.inflight.tryAcquire(absPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInProgress, absPath)
	}
	defer release()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	ctx = logging.AddFields(logging.WithAction(ctx, "ingest"), zap.String("path", absPath))
	logger := logging.FromContext(ctx)

	doc, err := s.parser.ParseFile(absPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrIOFailure, absPath, err)
	}

	chunks := s.chunker.Chunk(doc)
	if len(chunks) == 0 && s.cfg.Empty == EmptyReject {
		return nil, fmt.Errorf("%w: %s", types.ErrEmptyDocument, filepath.Base(absPath))
	}

	if err := s.embedChunks(ctx, chunks); err != nil {
		return nil, err
	}

	name := filepath.Base(absPath)
	record := &storage.Document{
		Filename:     name,
		OriginalName: name,
		StoragePath:  absPath,
		MimeType:     doc.Metadata.MimeType,
		FileSize:     info.Size(),
		UploadedAt:   time.Now().UTC(),
		UploadedBy:   s.cfg.UploadedBy,
	}

	var replaced []string
	err = storage.WithTx(ctx, s.store, func(tx storage.Tx) error {
		var err error
		replaced, err = s.applyDuplicatePolicy(ctx, tx, name)
		if err != nil {
			return err
		}
		if err := tx.InsertDocument(ctx, record); err != nil {
			return err
		}
		return tx.InsertChunks(ctx, record.ID, chunks)
	})
	if err != nil {
		if errors.Is(err, types.ErrDuplicateDocument) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailure, err)
	}

	result := &Result{
		DocumentID:    record.ID,
		OriginalName:  record.OriginalName,
		ChunksCreated: len(chunks),
		Replaced:      replaced,
		Duration:      time.Since(start),
	}

	logger.Info("document ingested",
		zap.String("document_id", result.DocumentID),
		zap.Int("chunks", result.ChunksCreated),
		zap.Int("replaced", len(replaced)),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// embedChunks fills every chunk's Embedding in one batched call.
func (s *Service) embedChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if s.embedder == nil {
		return fmt.Errorf("%w: embedder not initialized", types.ErrEmbeddingFailure)
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors, err := embedder.EmbedTexts(ctx, s.embedder, texts)
	if err != nil {
		return err
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return nil
}

func (s *Service) applyDuplicatePolicy(ctx context.Context, tx storage.Tx, name string) ([]string, error) {
	if s.cfg.Duplicates == DuplicateAllow {
		return nil, nil
	}

	existing, err := tx.FindDocumentsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, nil
	}

	if s.cfg.Duplicates == DuplicateReject {
		return nil, fmt.Errorf("%w: %s (id %s)", types.ErrDuplicateDocument, name, existing[0].ID)
	}

	replaced := make([]string, 0, len(existing))
	for _, doc := range existing {
		if err := tx.DeleteDocument(ctx, doc.ID); err != nil {
			return nil, err
		}
		replaced = append(replaced, doc.ID)
	}
	return replaced, nil
}

// IngestFiles ingests paths with at most concurrency files in flight and
// returns one outcome per path in input order. A failing file never stops
// the others.
func (s *Service) IngestFiles(ctx context.Context, paths []string, concurrency int) []FileOutcome {
	if concurrency <= 0 {
		concurrency = 1
	}

	outcomes := make([]FileOutcome, len(paths))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			result, err := s.Ingest(ctx, path)
			outcomes[i] = FileOutcome{Path: path, Result: result, Err: err}
			if err != nil {
				logging.FromContext(ctx).Warn("ingestion failed", zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Delete removes a document and its chunks. Unknown or malformed ids return
// types.ErrDocumentNotFound and change nothing.
func (s *Service) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	ctx = logging.AddFields(logging.WithAction(ctx, "delete"), zap.String("document_id", id))

	var result *DeleteResult
	err := storage.WithTx(ctx, s.store, func(tx storage.Tx) error {
		doc, err := tx.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.CountChunks(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteDocument(ctx, id); err != nil {
			return err
		}
		result = &DeleteResult{DocumentID: doc.ID, OriginalName: doc.OriginalName, ChunksDeleted: count}
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailure, err)
	}

	logging.FromContext(ctx).Info("document deleted",
		zap.String("name", result.OriginalName),
		zap.Int("chunks", result.ChunksDeleted))
	return result, nil
}

// List returns stored documents with their chunk counts, newest first.
func (s *Service) List(ctx context.Context) ([]*storage.DocumentSummary, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailure, err)
	}
	return docs, nil
}
