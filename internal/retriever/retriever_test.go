package retriever

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docrag/internal/embedder"
	"github.com/dshills/docrag/internal/storage"
	"github.com/dshills/docrag/pkg/types"
)

// mockEmbedder returns a fixed vector and counts calls
type mockEmbedder struct {
	mu     sync.Mutex
	calls  int
	vector []float32
	err    error
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &embedder.Embedding{Vector: m.vector, Dimension: len(m.vector), Model: "mock-model", Provider: "mock"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Texts[i]})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: embeddings, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) Dimension() int   { return len(m.vector) }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeStore returns canned results, ignoring the requested threshold and limit
type fakeStore struct {
	results []types.RetrievedChunk
	err     error
	gotArgs struct {
		threshold float64
		limit     int
	}
}

func (f *fakeStore) SearchSimilar(ctx context.Context, vector []float32, threshold float64, limit int) ([]types.RetrievedChunk, error) {
	f.gotArgs.threshold = threshold
	f.gotArgs.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.RetrievedChunk, len(f.results))
	copy(out, f.results)
	return out, nil
}

func scored(similarities ...float64) []types.RetrievedChunk {
	out := make([]types.RetrievedChunk, len(similarities))
	for i, s := range similarities {
		out[i] = types.RetrievedChunk{
			ID:           fmt.Sprintf("chunk-%d", i),
			DocumentName: "doc.txt",
			Similarity:   s,
			Chunk:        types.Chunk{Content: fmt.Sprintf("content %d", i), ChunkIndex: i},
		}
	}
	return out
}

func TestRetrieve_CapKeepsTopN(t *testing.T) {
	store := &fakeStore{results: scored(0.61, 0.95, 0.7, 0.8, 0.65, 0.99, 0.75)}
	r := New(store, &mockEmbedder{vector: []float32{1, 0}}, Config{Threshold: 0.6, MaxChunks: 5})

	results, err := r.Retrieve(context.Background(), "question")
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, 0.99, results[0].Similarity)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
	assert.Equal(t, []float64{0.99, 0.95, 0.8, 0.75, 0.7}, similarities(results))

	assert.Equal(t, 0.6, store.gotArgs.threshold)
	assert.Equal(t, 5, store.gotArgs.limit)
}

func TestRetrieve_ThresholdIsStrict(t *testing.T) {
	store := &fakeStore{results: scored(0.6, 0.59, 0.61)}
	r := New(store, &mockEmbedder{vector: []float32{1}}, Config{Threshold: 0.6, MaxChunks: 5})

	results, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.61}, similarities(results))
}

func TestRetrieve_NothingClears(t *testing.T) {
	store := &fakeStore{results: scored(0.1, 0.2)}
	r := New(store, &mockEmbedder{vector: []float32{1}}, Config{Threshold: 0.6, MaxChunks: 5})

	results, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetrieve_ThresholdMonotonicity(t *testing.T) {
	base := scored(0.1, 0.35, 0.5, 0.62, 0.7, 0.81, 0.9, 0.97)
	prev := len(base) + 1
	for _, threshold := range []float64{0, 0.3, 0.5, 0.6, 0.7, 0.8, 0.95, 1} {
		r := New(&fakeStore{results: base}, &mockEmbedder{vector: []float32{1}},
			Config{Threshold: threshold, MaxChunks: 100})
		results, err := r.Retrieve(context.Background(), "q")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), prev, "threshold %v", threshold)
		prev = len(results)
	}
}

func TestRetrieve_BlankQuery(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{1}}
	r := New(&fakeStore{results: scored(0.9)}, emb, DefaultConfig())

	results, err := r.Retrieve(context.Background(), "  \n ")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, emb.callCount())
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("quota exceeded")}
	r := New(&fakeStore{}, emb, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbeddingFailure)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestRetrieve_StoreFailure(t *testing.T) {
	boom := errors.New("database is locked")
	r := New(&fakeStore{err: boom}, &mockEmbedder{vector: []float32{1}}, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, types.ErrStoreFailure)
	assert.ErrorIs(t, err, boom)
}

func TestRetrieve_NilEmbedder(t *testing.T) {
	r := New(&fakeStore{}, nil, DefaultConfig())

	_, err := r.Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, types.ErrEmbeddingFailure)
}

func TestRetrieve_CachesQueryVector(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{1}}
	r := New(&fakeStore{results: scored(0.9)}, emb, Config{Threshold: 0.5, MaxChunks: 5, CacheTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Retrieve(ctx, "same question")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, emb.callCount())

	_, err := r.Retrieve(ctx, "different question")
	require.NoError(t, err)
	assert.Equal(t, 2, emb.callCount())
}

func TestRetrieve_CacheDisabled(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{1}}
	r := New(&fakeStore{}, emb, Config{Threshold: 0.5, MaxChunks: 5})

	for i := 0; i < 2; i++ {
		_, err := r.Retrieve(context.Background(), "q")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, emb.callCount())
}

func TestNew_Defaults(t *testing.T) {
	r := New(&fakeStore{}, &mockEmbedder{vector: []float32{1}}, Config{Threshold: 0.7})
	assert.Equal(t, DefaultMaxChunks, r.MaxChunks())
	assert.Equal(t, 0.7, r.Threshold())
}

func TestRetrieve_ConcurrentUse(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{1}}
	r := New(&fakeStore{results: scored(0.9, 0.8)}, emb, DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results, err := r.Retrieve(context.Background(), fmt.Sprintf("q%d", i%4))
			assert.NoError(t, err)
			assert.Len(t, results, 2)
		}(i)
	}
	wg.Wait()
}

// TestRetrieve_SQLite runs the full query path against a real store.
func TestRetrieve_SQLite(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	emb, err := embedder.NewLocalProvider(embedder.Config{Dimensions: 64}, nil)
	require.NoError(t, err)

	texts := []string{
		"refund policy for damaged goods",
		"refund policy for damaged goods and returns",
		"quarterly revenue grew in the north region",
	}
	vectors, err := embedder.EmbedTexts(context.Background(), emb, texts)
	require.NoError(t, err)

	chunks := make([]types.Chunk, len(texts))
	for i := range texts {
		chunks[i] = types.Chunk{Content: texts[i], ChunkIndex: i, LineStart: i + 1, LineEnd: i + 1, Embedding: vectors[i]}
	}
	doc := &storage.Document{OriginalName: "policy.txt", StoragePath: "/tmp/policy.txt", MimeType: "text/plain"}
	ctx := context.Background()
	require.NoError(t, store.InsertDocument(ctx, doc))
	require.NoError(t, store.InsertChunks(ctx, doc.ID, chunks))

	r := New(store, emb, Config{Threshold: 0.3, MaxChunks: 2})
	results, err := r.Retrieve(ctx, "refund policy for damaged goods")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "refund policy for damaged goods", results[0].Content)
	assert.Equal(t, "policy.txt", results[0].DocumentName)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
	assert.LessOrEqual(t, len(results), 2)
}

func similarities(rcs []types.RetrievedChunk) []float64 {
	out := make([]float64, len(rcs))
	for i, rc := range rcs {
		out[i] = rc.Similarity
	}
	return out
}
