package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string // Optional: override the provider endpoint
	Timeout    time.Duration
	CacheSize  int     // Zero disables the cache
	RateLimit  float64 // Requests per second, zero disables limiting
	RateBurst  int
	Retry      RetryConfig
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	var (
		e   Embedder
		err error
	)

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		e, err = NewOpenAIProvider(cfg, cache)
	case ProviderJina:
		e, err = NewJinaProvider(cfg, cache)
	case ProviderLocal:
		e, err = NewLocalProvider(cfg, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		e = NewRateLimited(e, cfg.RateLimit, cfg.RateBurst)
	}

	return e, nil
}
