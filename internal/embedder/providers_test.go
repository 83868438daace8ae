package embedder

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{Attempts: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// embeddingServer answers embedding requests with vectors whose first element
// is the input's length. Data entries are returned in reverse order.
func embeddingServer(t *testing.T, dim int, calls *atomic.Int32, failFirst int, failStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if int(n) <= failFirst {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(failStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"try again","type":"server_error"}}`))
			return
		}

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[0] = float32(len(req.Input[i]))
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": vec,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
}

func TestOpenAIProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("batch preserves input order", func(t *testing.T) {
		var calls atomic.Int32
		var gotDims atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req embeddingsRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			gotDims.Store(int32(req.Dimensions))
			calls.Add(1)
			data := []map[string]interface{}{}
			for i := len(req.Input) - 1; i >= 0; i-- {
				vec := make([]float32, 8)
				vec[0] = float32(len(req.Input[i]))
				data = append(data, map[string]interface{}{"object": "embedding", "index": i, "embedding": vec})
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "model": req.Model, "data": data})
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(Config{
			APIKey:     "test-key",
			Dimensions: 8,
			BaseURL:    server.URL + "/v1",
			Retry:      fastRetry,
		}, NewCache(10))
		require.NoError(t, err)

		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "bbb"}})
		require.NoError(t, err)

		require.Len(t, resp.Embeddings, 2)
		assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
		assert.Equal(t, float32(3), resp.Embeddings[1].Vector[0])
		assert.Equal(t, ProviderOpenAI, resp.Provider)
		assert.Equal(t, DefaultOpenAIModel, resp.Model)
		assert.Equal(t, int32(8), gotDims.Load())
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cached texts skip the api", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 8, &calls, 0, 0)
		defer server.Close()

		provider, err := NewOpenAIProvider(Config{
			APIKey: "test-key", Dimensions: 8, BaseURL: server.URL + "/v1", Retry: fastRetry,
		}, NewCache(10))
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		emb, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)

		assert.Equal(t, float32(5), emb.Vector[0])
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 8, &calls, 1, http.StatusInternalServerError)
		defer server.Close()

		provider, err := NewOpenAIProvider(Config{
			APIKey: "test-key", Dimensions: 8, BaseURL: server.URL + "/v1", Retry: fastRetry,
		}, nil)
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 8, &calls, 10, http.StatusBadRequest)
		defer server.Close()

		provider, err := NewOpenAIProvider(Config{
			APIKey: "test-key", Dimensions: 8, BaseURL: server.URL + "/v1", Retry: fastRetry,
		}, nil)
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("metadata", func(t *testing.T) {
		provider, err := NewOpenAIProvider(Config{APIKey: "test-key"}, nil)
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, provider.Provider())
		assert.Equal(t, OpenAIDimension, provider.Dimension())
		assert.Equal(t, DefaultOpenAIModel, provider.Model())
		assert.NoError(t, provider.Close())
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv(EnvOpenAIAPIKey, "")
		_, err := NewOpenAIProvider(Config{}, nil)
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("unknown model needs explicit dimensions", func(t *testing.T) {
		_, err := NewOpenAIProvider(Config{APIKey: "k", Model: "custom-model"}, nil)
		assert.ErrorIs(t, err, ErrUnsupportedModel)

		provider, err := NewOpenAIProvider(Config{APIKey: "k", Model: "custom-model", Dimensions: 64}, nil)
		require.NoError(t, err)
		assert.Equal(t, 64, provider.Dimension())
	})
}

func TestJinaProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("successful batch", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 16, &calls, 0, 0)
		defer server.Close()

		provider, err := NewJinaProvider(Config{
			APIKey: "test-key", Dimensions: 16, BaseURL: server.URL, Retry: fastRetry,
		}, NewCache(10))
		require.NoError(t, err)
		defer provider.Close()

		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"xx", "y"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)
		assert.Equal(t, float32(2), resp.Embeddings[0].Vector[0])
		assert.Equal(t, float32(1), resp.Embeddings[1].Vector[0])
		assert.Equal(t, ProviderJina, resp.Provider)
	})

	t.Run("rate limited responses are retried", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 16, &calls, 2, http.StatusTooManyRequests)
		defer server.Close()

		provider, err := NewJinaProvider(Config{
			APIKey: "test-key", Dimensions: 16, BaseURL: server.URL, Retry: fastRetry,
		}, nil)
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 16, &calls, 100, http.StatusBadGateway)
		defer server.Close()

		provider, err := NewJinaProvider(Config{
			APIKey: "test-key", Dimensions: 16, BaseURL: server.URL, Retry: fastRetry,
		}, nil)
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		assert.ErrorIs(t, err, ErrProviderFailed)

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadGateway, statusErr.Code)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("cancelled context is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := embeddingServer(t, 16, &calls, 0, 0)
		defer server.Close()

		provider, err := NewJinaProvider(Config{
			APIKey: "test-key", Dimensions: 16, BaseURL: server.URL, Retry: fastRetry,
		}, nil)
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err = provider.GenerateEmbedding(cancelled, EmbeddingRequest{Text: "hello"})
		assert.Error(t, err)
		assert.Zero(t, calls.Load())
	})

	t.Run("defaults", func(t *testing.T) {
		provider, err := NewJinaProvider(Config{APIKey: "k"}, nil)
		require.NoError(t, err)
		assert.Equal(t, JinaDimension, provider.Dimension())
		assert.Equal(t, DefaultJinaModel, provider.Model())
	})
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	provider, err := NewLocalProvider(Config{Dimensions: 256}, NewCache(10))
	require.NoError(t, err)

	assert.Equal(t, ProviderLocal, provider.Provider())
	assert.Equal(t, 256, provider.Dimension())
	assert.Equal(t, DefaultLocalModel, provider.Model())

	a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "The mitochondria produce ATP for the cell"})
	require.NoError(t, err)
	b, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "The mitochondria produce ATP for the cell"})
	require.NoError(t, err)
	assert.Equal(t, a.Vector, b.Vector, "deterministic")
	assert.Len(t, a.Vector, 256)
	assert.InDelta(t, 1.0, cosine(a.Vector, a.Vector), 1e-6)

	related, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "how do mitochondria produce ATP"})
	require.NoError(t, err)
	unrelated, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "tax law in medieval Venice"})
	require.NoError(t, err)
	assert.Greater(t, cosine(a.Vector, related.Vector), cosine(a.Vector, unrelated.Vector))

	punct, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "..."})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cosine(punct.Vector, punct.Vector), 1e-6)
}

func TestLocalProvider_DefaultDimension(t *testing.T) {
	provider, err := NewLocalProvider(Config{Model: DefaultOpenAIModel}, nil)
	require.NoError(t, err)
	assert.Equal(t, LocalDimension, provider.Dimension())
	assert.Equal(t, DefaultLocalModel, provider.Model())
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		got, err := retryWithBackoff(ctx, fastRetry, func() (int, error) {
			attempts++
			if attempts < 3 {
				return 0, &StatusError{Code: http.StatusServiceUnavailable}
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(ctx, RetryConfig{}, func() (int, error) {
			attempts++
			return 0, &StatusError{Code: http.StatusServiceUnavailable}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("client errors stop immediately", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(ctx, fastRetry, func() (int, error) {
			attempts++
			return 0, &StatusError{Code: http.StatusUnauthorized}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(context.DeadlineExceeded))
	assert.True(t, isRetryable(&StatusError{Code: 500}))
	assert.True(t, isRetryable(&StatusError{Code: 429}))
	assert.False(t, isRetryable(&StatusError{Code: 404}))
}
