// Package embedder generates vector embeddings for document chunks and queries.
//
// Three providers implement the Embedder interface:
//
//	openai  OpenAI embeddings API (default model text-embedding-3-small, 1536 dimensions)
//	jina    Jina AI embeddings API (jina-embeddings-v3, up to 1024 dimensions)
//	local   offline feature hashing, useful for tests and air-gapped setups
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:   embedder.ProviderOpenAI,
//	    Dimensions: 1536,
//	    CacheSize:  10000,
//	    Retry:      embedder.DefaultRetryConfig(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vectors, err := embedder.EmbedTexts(ctx, emb, chunkTexts)
//
// EmbedTexts sends all texts in a single request when they fit within
// MaxBatchSize, returns exactly one vector per input in input order, and
// checks every vector against the provider's dimension. Empty input makes no
// request. Failures wrap types.ErrEmbeddingFailure.
//
// # Caching
//
// Providers consult an optional LRU cache keyed by model and text hash before
// calling the API, so only cache misses are sent. Cached vectors are copied on
// read.
//
// # Retries and Rate Limits
//
// API calls are retried with exponential backoff (avast/retry-go). Client
// errors other than 429 and context cancellation are returned immediately.
// Config.RateLimit wraps the provider in RateLimited, a token bucket that
// every request waits on.
package embedder
