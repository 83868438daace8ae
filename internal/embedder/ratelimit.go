package embedder

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps an Embedder with a client-side request rate limit.
// Each GenerateEmbedding or GenerateBatch call consumes one token.
type RateLimited struct {
	Embedder
	limiter *rate.Limiter
}

// NewRateLimited limits e to requestsPerSecond with the given burst
func NewRateLimited(e Embedder, requestsPerSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		Embedder: e,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (r *RateLimited) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Embedder.GenerateEmbedding(ctx, req)
}

func (r *RateLimited) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Embedder.GenerateBatch(ctx, req)
}
