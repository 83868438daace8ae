package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/dshills/docrag/internal/embedder"
	"github.com/dshills/docrag/pkg/types"
)

const (
	// DefaultThreshold is the minimum similarity a chunk must exceed
	DefaultThreshold = 0.6
	// DefaultMaxChunks caps the number of chunks returned per query
	DefaultMaxChunks = 5
	// DefaultCacheTTL is how long a query vector stays cached
	DefaultCacheTTL = 10 * time.Minute
)

// Store is the read side of the document store used at query time.
type Store interface {
	SearchSimilar(ctx context.Context, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error)
}

// Config controls ranking and caching
type Config struct {
	Threshold float64
	MaxChunks int
	CacheTTL  time.Duration // Zero disables the query-vector cache
}

// DefaultConfig returns the default retrieval settings
func DefaultConfig() Config {
	return Config{
		Threshold: DefaultThreshold,
		MaxChunks: DefaultMaxChunks,
		CacheTTL:  DefaultCacheTTL,
	}
}

// Retriever embeds queries and returns the most similar stored chunks.
// It holds no per-request state and is safe for concurrent use.
type Retriever struct {
	store     Store
	embedder  embedder.Embedder
	threshold float64
	maxChunks int
	vectors   *cache.Cache
}

// New creates a Retriever. A non-positive MaxChunks falls back to DefaultMaxChunks.
func New(store Store, emb embedder.Embedder, cfg Config) *Retriever {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = DefaultMaxChunks
	}

	r := &Retriever{
		store:     store,
		embedder:  emb,
		threshold: cfg.Threshold,
		maxChunks: cfg.MaxChunks,
	}
	if cfg.CacheTTL > 0 {
		r.vectors = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return r
}

// Threshold returns the similarity threshold in use
func (r *Retriever) Threshold() float64 {
	return r.threshold
}

// MaxChunks returns the result cap in use
func (r *Retriever) MaxChunks() int {
	return r.maxChunks
}

// Retrieve returns chunks whose similarity to query is strictly above the
// threshold, highest first, at most MaxChunks of them. A blank query or no
// chunk clearing the threshold yields an empty slice and no error.
//
// Embedding failures wrap types.ErrEmbeddingFailure and store failures wrap
// types.ErrStoreFailure; callers answering a user are expected to degrade.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]types.RetrievedChunk, error) {
	logger := ctxzap.Extract(ctx)
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return []types.RetrievedChunk{}, nil
	}
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not initialized", types.ErrEmbeddingFailure)
	}

	vector, cacheHit, err := r.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := r.store.SearchSimilar(ctx, vector, r.threshold, r.maxChunks)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %w", types.ErrStoreFailure, err)
	}
	results = rank(results, r.threshold, r.maxChunks)

	logger.Debug("retrieved chunks",
		zap.Int("results", len(results)),
		zap.Float64("threshold", r.threshold),
		zap.Bool("cache_hit", cacheHit),
		zap.Duration("duration", time.Since(start)))

	return results, nil
}

func (r *Retriever) queryVector(ctx context.Context, query string) ([]float32, bool, error) {
	key := r.embedder.Model() + "\x00" + query
	if r.vectors != nil {
		if cached, ok := r.vectors.Get(key); ok {
			return cached.([]float32), true, nil
		}
	}

	vector, err := embedder.EmbedQuery(ctx, r.embedder, query)
	if err != nil {
		return nil, false, err
	}

	if r.vectors != nil {
		r.vectors.Set(key, vector, cache.DefaultExpiration)
	}
	return vector, false, nil
}

// rank re-applies the threshold, ordering and cap so results hold the same
// guarantees whichever backend produced them.
func rank(results []types.RetrievedChunk, threshold float64, limit int) []types.RetrievedChunk {
	kept := make([]types.RetrievedChunk, 0, len(results))
	for _, rc := range results {
		if rc.Similarity > threshold {
			kept = append(kept, rc)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})

	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
