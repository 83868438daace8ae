package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/docrag/internal/assembler"
	"github.com/dshills/docrag/internal/chunker"
	"github.com/dshills/docrag/internal/config"
	"github.com/dshills/docrag/internal/embedder"
	"github.com/dshills/docrag/internal/ingest"
	"github.com/dshills/docrag/internal/retriever"
	"github.com/dshills/docrag/internal/storage"
)

// app holds the components shared by every command
type app struct {
	store     storage.Storage
	embedder  embedder.Embedder
	retriever *retriever.Retriever
	assembler *assembler.Assembler
	ingest    *ingest.Service
}

func newApp(ctx context.Context, c *config.Config, uploadedBy string) (*app, error) {
	store, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	emb, err := embedder.New(c.EmbedderConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	logger.Debug("components ready",
		zap.String("store", c.Store.Backend),
		zap.String("embedding_provider", emb.Provider()),
		zap.String("embedding_model", emb.Model()),
		zap.Int("dimensions", emb.Dimension()))

	return &app{
		store:     store,
		embedder:  emb,
		retriever: retriever.New(store, emb, c.RetrieverConfig()),
		assembler: assembler.New(assembler.WithSnippetLength(c.Retrieval.SnippetLength)),
		ingest:    ingest.New(store, emb, chunker.New(c.ChunkerOptions()...), c.IngestConfig(uploadedBy)),
	}, nil
}

// newStoreApp opens only the store, for commands that never embed. The
// embedder, retriever and assembler stay nil.
func newStoreApp(ctx context.Context, c *config.Config) (*app, error) {
	store, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}
	return &app{
		store:  store,
		ingest: ingest.New(store, nil, nil, c.IngestConfig("")),
	}, nil
}

func openStore(ctx context.Context, c *config.Config) (storage.Storage, error) {
	switch c.Store.Backend {
	case config.StorePostgres:
		store, err := storage.NewPostgresStorage(ctx, c.PostgresConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	default:
		path := c.Store.SQLitePath
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := storage.NewSQLiteStorage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	}
}

// Close releases the embedder, when one was built, and the store
func (a *app) Close() error {
	var embErr error
	if a.embedder != nil {
		embErr = a.embedder.Close()
	}
	return errors.Join(embErr, a.store.Close())
}
