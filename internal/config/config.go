// Package config loads docrag settings from the environment, optional
// .env files and an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/docrag/internal/chat"
	"github.com/dshills/docrag/internal/chunker"
	"github.com/dshills/docrag/internal/embedder"
	"github.com/dshills/docrag/internal/ingest"
	"github.com/dshills/docrag/internal/logging"
	"github.com/dshills/docrag/internal/retriever"
	"github.com/dshills/docrag/internal/storage"
)

// Store backends
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds the application configuration
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Ingest    IngestConfig    `toml:"ingest"`
	Chat      ChatConfig      `toml:"chat"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`

	// Environment selects the .env file; set by Load, not from env vars
	Environment string `toml:"-"`
}

// StoreConfig selects and sizes the document store
type StoreConfig struct {
	Backend           string   `env:"DOCRAG_STORE" envDefault:"sqlite" toml:"backend"`
	SQLitePath        string   `env:"DOCRAG_SQLITE_PATH" envDefault:"docrag.db" toml:"sqlite_path"`
	DatabaseURL       string   `env:"DATABASE_URL" toml:"database_url"`
	MaxConns          int32    `env:"DB_MAX_CONNS" envDefault:"10" toml:"max_conns"`
	MinConns          int32    `env:"DB_MIN_CONNS" envDefault:"1" toml:"min_conns"`
	MaxConnLifetime   Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h" toml:"max_conn_lifetime"`
	MaxConnIdleTime   Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m" toml:"max_conn_idle_time"`
	HealthCheckPeriod Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m" toml:"health_check_period"`
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	Provider   string               `env:"EMBEDDING_PROVIDER" envDefault:"openai" toml:"provider"`
	Model      string               `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small" toml:"model"`
	Dimensions int                  `env:"EMBEDDING_DIMENSIONS" envDefault:"1536" toml:"dimensions"`
	BaseURL    string               `env:"EMBEDDING_BASE_URL" toml:"base_url"`
	Timeout    Duration             `env:"EMBEDDING_TIMEOUT" envDefault:"30s" toml:"timeout"`
	CacheSize  int                  `env:"EMBEDDING_CACHE_SIZE" envDefault:"1000" toml:"cache_size"`
	RateLimit  float64              `env:"EMBEDDING_RATE_LIMIT" envDefault:"0" toml:"rate_limit"`
	RateBurst  int                  `env:"EMBEDDING_RATE_BURST" envDefault:"1" toml:"rate_burst"`
	Retry      embedder.RetryConfig `envPrefix:"EMBEDDING_RETRY_" toml:"-"`
	OpenAIKey  string               `env:"OPENAI_API_KEY" toml:"-"`
	JinaKey    string               `env:"JINA_API_KEY" toml:"-"`
}

// RetrievalConfig controls ranking
type RetrievalConfig struct {
	Threshold     float64  `env:"SIMILARITY_THRESHOLD" envDefault:"0.6" toml:"threshold"`
	MaxChunks     int      `env:"MAX_RETRIEVAL_CHUNKS" envDefault:"5" toml:"max_chunks"`
	Timeout       Duration `env:"RETRIEVAL_TIMEOUT" envDefault:"10s" toml:"timeout"`
	CacheTTL      Duration `env:"QUERY_CACHE_TTL" envDefault:"10m" toml:"cache_ttl"`
	SnippetLength int      `env:"SNIPPET_LENGTH" envDefault:"300" toml:"snippet_length"`
}

// IngestConfig controls chunking and ingestion policies
type IngestConfig struct {
	ChunkSize       int      `env:"CHUNK_SIZE" envDefault:"1000" toml:"chunk_size"`
	ChunkOverlap    int      `env:"CHUNK_OVERLAP" envDefault:"200" toml:"chunk_overlap"`
	DuplicatePolicy string   `env:"DUPLICATE_POLICY" envDefault:"allow" toml:"duplicate_policy"`
	EmptyPolicy     string   `env:"EMPTY_DOCUMENT_POLICY" envDefault:"store" toml:"empty_document_policy"`
	Timeout         Duration `env:"INGEST_TIMEOUT" envDefault:"2m" toml:"timeout"`
	Concurrency     int      `env:"INGEST_CONCURRENCY" envDefault:"4" toml:"concurrency"`
}

// ChatConfig configures the completion service
type ChatConfig struct {
	Model        string   `env:"COMPLETION_MODEL" envDefault:"gpt-4o" toml:"model"`
	SystemPrompt string   `env:"SYSTEM_PROMPT" toml:"system_prompt"`
	Timeout      Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s" toml:"timeout"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr            string   `env:"HTTP_ADDR" envDefault:":8080" toml:"addr"`
	RequestTimeout  Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"90s" toml:"request_timeout"`
	ShutdownTimeout Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s" toml:"shutdown_timeout"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info" toml:"level"`
	Format string `env:"LOG_FORMAT" envDefault:"json" toml:"format"`
}

// LoadOptions locate the optional configuration files
type LoadOptions struct {
	Environment string // Selects .env.<environment>; "" means local
	File        string // Optional TOML file applied over the environment
}

// Load reads the .env file for the environment when it exists, parses
// environment variables and overlays the TOML file.
func Load(opts LoadOptions) (*Config, error) {
	if opts.Environment == "" {
		opts.Environment = "local"
	}

	envFile := EnvFile(opts.Environment)
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Environment = opts.Environment

	if opts.File != "" {
		if err := cfg.applyFile(opts.File); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// EnvFile returns the .env file name for an environment
func EnvFile(environment string) string {
	switch environment {
	case "prod", "production":
		return ".env.prod"
	case "local", "dev", "development":
		return ".env.local"
	default:
		return fmt.Sprintf(".env.%s", environment)
	}
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, "DOCRAG_SQLITE_PATH must not be empty")
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres store")
		}
		if c.Embedding.Dimensions != storage.PostgresDimension {
			errs = append(errs, fmt.Sprintf("EMBEDDING_DIMENSIONS must be %d for the postgres store, got %d",
				storage.PostgresDimension, c.Embedding.Dimensions))
		}
		if c.Store.MaxConns < 1 {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS must be positive, got %d", c.Store.MaxConns))
		}
		if c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
			errs = append(errs, fmt.Sprintf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS(%d), got %d",
				c.Store.MaxConns, c.Store.MinConns))
		}
	default:
		errs = append(errs, fmt.Sprintf("DOCRAG_STORE must be %s or %s, got %q", StoreSQLite, StorePostgres, c.Store.Backend))
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case embedder.ProviderOpenAI, embedder.ProviderLocal:
	case embedder.ProviderJina:
		if c.Embedding.Dimensions > embedder.JinaDimension {
			errs = append(errs, fmt.Sprintf("EMBEDDING_DIMENSIONS must be at most %d for jina, got %d",
				embedder.JinaDimension, c.Embedding.Dimensions))
		}
	default:
		errs = append(errs, fmt.Sprintf("EMBEDDING_PROVIDER must be openai, jina or local, got %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 1 {
		errs = append(errs, fmt.Sprintf("EMBEDDING_DIMENSIONS must be positive, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("EMBEDDING_RATE_LIMIT must not be negative, got %v", c.Embedding.RateLimit))
	}

	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("SIMILARITY_THRESHOLD must be between 0 and 1, got %v", c.Retrieval.Threshold))
	}
	if c.Retrieval.MaxChunks < 1 {
		errs = append(errs, fmt.Sprintf("MAX_RETRIEVAL_CHUNKS must be positive, got %d", c.Retrieval.MaxChunks))
	}
	if c.Retrieval.Timeout <= 0 {
		errs = append(errs, "RETRIEVAL_TIMEOUT must be positive")
	}

	if c.Ingest.ChunkSize < 1 {
		errs = append(errs, fmt.Sprintf("CHUNK_SIZE must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Sprintf("CHUNK_OVERLAP must be between 0 and CHUNK_SIZE(%d) exclusive, got %d",
			c.Ingest.ChunkSize, c.Ingest.ChunkOverlap))
	}
	if _, err := ingest.ParseDuplicatePolicy(c.Ingest.DuplicatePolicy); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := ingest.ParseEmptyPolicy(c.Ingest.EmptyPolicy); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Ingest.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("INGEST_CONCURRENCY must be positive, got %d", c.Ingest.Concurrency))
	}

	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be %s or %s, got %q", logging.FormatJSON, logging.FormatConsole, c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.New("configuration validation errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// EmbedderConfig converts the embedding settings for embedder.New
func (c *Config) EmbedderConfig() embedder.Config {
	apiKey := c.Embedding.OpenAIKey
	if strings.ToLower(c.Embedding.Provider) == embedder.ProviderJina {
		apiKey = c.Embedding.JinaKey
	}
	return embedder.Config{
		Provider:   c.Embedding.Provider,
		APIKey:     apiKey,
		Model:      c.Embedding.Model,
		Dimensions: c.Embedding.Dimensions,
		BaseURL:    c.Embedding.BaseURL,
		Timeout:    c.Embedding.Timeout.Std(),
		CacheSize:  c.Embedding.CacheSize,
		RateLimit:  c.Embedding.RateLimit,
		RateBurst:  c.Embedding.RateBurst,
		Retry:      c.Embedding.Retry,
	}
}

// PostgresConfig converts the store settings for storage.NewPostgresStorage
func (c *Config) PostgresConfig() storage.PostgresConfig {
	return storage.PostgresConfig{
		URL:               c.Store.DatabaseURL,
		MaxConns:          c.Store.MaxConns,
		MinConns:          c.Store.MinConns,
		MaxConnLifetime:   c.Store.MaxConnLifetime.Std(),
		MaxConnIdleTime:   c.Store.MaxConnIdleTime.Std(),
		HealthCheckPeriod: c.Store.HealthCheckPeriod.Std(),
	}
}

// RetrieverConfig converts the retrieval settings for retriever.New
func (c *Config) RetrieverConfig() retriever.Config {
	return retriever.Config{
		Threshold: c.Retrieval.Threshold,
		MaxChunks: c.Retrieval.MaxChunks,
		CacheTTL:  c.Retrieval.CacheTTL.Std(),
	}
}

// ChunkerOptions converts the chunking settings for chunker.New
func (c *Config) ChunkerOptions() []chunker.Option {
	return []chunker.Option{
		chunker.WithChunkSize(c.Ingest.ChunkSize),
		chunker.WithOverlap(c.Ingest.ChunkOverlap),
	}
}

// IngestConfig converts the ingestion settings for ingest.New. Policies are
// already validated.
func (c *Config) IngestConfig(uploadedBy string) ingest.Config {
	dup, _ := ingest.ParseDuplicatePolicy(c.Ingest.DuplicatePolicy)
	empty, _ := ingest.ParseEmptyPolicy(c.Ingest.EmptyPolicy)
	return ingest.Config{
		Duplicates: dup,
		Empty:      empty,
		Timeout:    c.Ingest.Timeout.Std(),
		UploadedBy: uploadedBy,
	}
}

// ChatConfig converts the chat settings for chat.New
func (c *Config) ChatConfig() chat.Config {
	return chat.Config{
		SystemPrompt:     c.Chat.SystemPrompt,
		RetrievalTimeout: c.Retrieval.Timeout.Std(),
	}
}

// CompleterConfig converts the completion settings for chat.NewOpenAICompleter
func (c *Config) CompleterConfig() chat.OpenAIConfig {
	return chat.OpenAIConfig{
		APIKey:  c.Embedding.OpenAIKey,
		Model:   c.Chat.Model,
		Timeout: c.Chat.Timeout.Std(),
	}
}

// Duration is a time.Duration read from "1m30s" style text in both the
// environment and the TOML file.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
