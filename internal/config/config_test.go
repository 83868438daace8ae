package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docrag/internal/ingest"
)

// chdir moves into a temp dir so no stray .env.local is picked up
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, "docrag.db", cfg.Store.SQLitePath)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 0.6, cfg.Retrieval.Threshold)
	assert.Equal(t, 5, cfg.Retrieval.MaxChunks)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, "allow", cfg.Ingest.DuplicatePolicy)
	assert.Equal(t, "store", cfg.Ingest.EmptyPolicy)
	assert.Equal(t, "gpt-4o", cfg.Chat.Model)
	assert.Equal(t, 10*time.Second, cfg.Retrieval.Timeout.Std())
	assert.Equal(t, uint(3), cfg.Embedding.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Embedding.Retry.Delay)
}

func TestLoad_Environment(t *testing.T) {
	chdir(t)
	t.Setenv("SIMILARITY_THRESHOLD", "0.75")
	t.Setenv("MAX_RETRIEVAL_CHUNKS", "8")
	t.Setenv("DUPLICATE_POLICY", "replace")
	t.Setenv("EMBEDDING_RETRY_ATTEMPTS", "5")
	t.Setenv("INGEST_TIMEOUT", "45s")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.Retrieval.Threshold)
	assert.Equal(t, 8, cfg.Retrieval.MaxChunks)
	assert.Equal(t, uint(5), cfg.Embedding.Retry.Attempts)
	assert.Equal(t, 45*time.Second, cfg.Ingest.Timeout.Std())

	ic := cfg.IngestConfig("alice")
	assert.Equal(t, ingest.DuplicateReplace, ic.Duplicates)
	assert.Equal(t, ingest.EmptyStore, ic.Empty)
	assert.Equal(t, "alice", ic.UploadedBy)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.staging"), []byte("CHUNK_SIZE=500\nCHUNK_OVERLAP=50\n"), 0644))
	t.Cleanup(func() {
		_ = os.Unsetenv("CHUNK_SIZE")
		_ = os.Unsetenv("CHUNK_OVERLAP")
	})

	cfg, err := Load(LoadOptions{Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 500, cfg.Ingest.ChunkSize)
	assert.Equal(t, 50, cfg.Ingest.ChunkOverlap)
}

func TestLoad_TOMLOverlay(t *testing.T) {
	dir := chdir(t)
	t.Setenv("MAX_RETRIEVAL_CHUNKS", "7")

	path := filepath.Join(dir, "docrag.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[store]
sqlite_path = "/var/lib/docrag/docs.db"

[embedding]
provider = "local"
dimensions = 256

[retrieval]
threshold = 0.7
timeout = "3s"
`), 0644))

	cfg, err := Load(LoadOptions{File: path})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/docrag/docs.db", cfg.Store.SQLitePath)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	assert.Equal(t, 0.7, cfg.Retrieval.Threshold)
	assert.Equal(t, 3*time.Second, cfg.Retrieval.Timeout.Std())
	assert.Equal(t, 7, cfg.Retrieval.MaxChunks, "keys absent from the file keep their env value")
}

func TestLoad_Errors(t *testing.T) {
	dir := chdir(t)

	_, err := Load(LoadOptions{File: filepath.Join(dir, "missing.toml")})
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[retrieval\nthreshold = "), 0644))
	_, err = Load(LoadOptions{File: bad})
	assert.Error(t, err)

	t.Setenv("SIMILARITY_THRESHOLD", "not-a-number")
	_, err = Load(LoadOptions{})
	assert.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	chdir(t)
	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"threshold above one", func(c *Config) { c.Retrieval.Threshold = 1.2 }, "SIMILARITY_THRESHOLD"},
		{"threshold negative", func(c *Config) { c.Retrieval.Threshold = -0.1 }, "SIMILARITY_THRESHOLD"},
		{"zero cap", func(c *Config) { c.Retrieval.MaxChunks = 0 }, "MAX_RETRIEVAL_CHUNKS"},
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }, "CHUNK_SIZE"},
		{"overlap not below size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }, "CHUNK_OVERLAP"},
		{"unknown duplicate policy", func(c *Config) { c.Ingest.DuplicatePolicy = "merge" }, "duplicate policy"},
		{"unknown empty policy", func(c *Config) { c.Ingest.EmptyPolicy = "skip" }, "empty document policy"},
		{"unknown store", func(c *Config) { c.Store.Backend = "mysql" }, "DOCRAG_STORE"},
		{"postgres without url", func(c *Config) { c.Store.Backend = StorePostgres }, "DATABASE_URL"},
		{"postgres dimension", func(c *Config) {
			c.Store.Backend = StorePostgres
			c.Store.DatabaseURL = "postgres://localhost/docrag"
			c.Embedding.Dimensions = 768
		}, "EMBEDDING_DIMENSIONS must be 1536"},
		{"jina dimension", func(c *Config) { c.Embedding.Provider = "jina" }, "at most 1024"},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "EMBEDDING_PROVIDER"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Retrieval.Threshold = 2
	cfg.Retrieval.MaxChunks = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIMILARITY_THRESHOLD")
	assert.Contains(t, err.Error(), "MAX_RETRIEVAL_CHUNKS")
}

func TestConversions(t *testing.T) {
	cfg := validConfig(t)
	cfg.Embedding.OpenAIKey = "sk-openai"
	cfg.Embedding.JinaKey = "jina-key"

	ec := cfg.EmbedderConfig()
	assert.Equal(t, "sk-openai", ec.APIKey)
	assert.Equal(t, 1536, ec.Dimensions)
	assert.Equal(t, 30*time.Second, ec.Timeout)

	cfg.Embedding.Provider = "jina"
	assert.Equal(t, "jina-key", cfg.EmbedderConfig().APIKey)

	rc := cfg.RetrieverConfig()
	assert.Equal(t, 0.6, rc.Threshold)
	assert.Equal(t, 5, rc.MaxChunks)
	assert.Equal(t, 10*time.Minute, rc.CacheTTL)

	pc := cfg.PostgresConfig()
	assert.Equal(t, int32(10), pc.MaxConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)

	assert.Len(t, cfg.ChunkerOptions(), 2)
	assert.Equal(t, 10*time.Second, cfg.ChatConfig().RetrievalTimeout)
	assert.Equal(t, "gpt-4o", cfg.CompleterConfig().Model)
}

func TestEnvFile(t *testing.T) {
	assert.Equal(t, ".env.prod", EnvFile("production"))
	assert.Equal(t, ".env.local", EnvFile("dev"))
	assert.Equal(t, ".env.ci", EnvFile("ci"))
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
