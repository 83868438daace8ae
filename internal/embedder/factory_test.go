package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantProvider string
		wantErr      error
	}{
		{"local", Config{Provider: "local"}, ProviderLocal, nil},
		{"case insensitive", Config{Provider: "LOCAL"}, ProviderLocal, nil},
		{"openai", Config{Provider: "openai", APIKey: "k"}, ProviderOpenAI, nil},
		{"jina", Config{Provider: "jina", APIKey: "k"}, ProviderJina, nil},
		{"unknown", Config{Provider: "word2vec"}, "", ErrUnsupportedModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, e.Provider())
		})
	}
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvJinaAPIKey, "")

	_, err := New(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = New(Config{Provider: "jina"})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestNew_RateLimited(t *testing.T) {
	e, err := New(Config{Provider: "local", Dimensions: 32, RateLimit: 1000, RateBurst: 5})
	require.NoError(t, err)

	limited, ok := e.(*RateLimited)
	require.True(t, ok)
	assert.Equal(t, 32, limited.Dimension())

	emb, err := e.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Len(t, emb.Vector, 32)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"hello"}})
	assert.ErrorIs(t, err, context.Canceled)
}
