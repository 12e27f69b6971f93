// Package config loads repoindex configuration from YAML with environment
// variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/victorgambert/repoindex/internal/errors"
)

// Config is the complete repoindex configuration.
type Config struct {
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Generation  GenerationConfig  `yaml:"generation"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Metadata    MetadataConfig    `yaml:"metadata"`
	Cache       CacheConfig       `yaml:"cache"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	// UnitPrice is the cost per token of the embedding model, used for
	// CodebaseIndex cost accounting.
	UnitPrice float64 `yaml:"unit_price"`
	// MaxBatchTokens caps the token count of one embedding request.
	MaxBatchTokens int `yaml:"max_batch_tokens"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// GenerationConfig configures the generation provider used by the reranker.
type GenerationConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// VectorStoreConfig configures the qdrant connection.
type VectorStoreConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
}

// MetadataConfig configures the SQLite metadata store.
type MetadataConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig configures the query cache.
type CacheConfig struct {
	// Backend selects "redis" (shared) or "memory" (per-process).
	Backend string        `yaml:"backend"`
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	TTL     time.Duration `yaml:"ttl"`
}

// RetrievalConfig configures retrieval defaults.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	// SemanticWeight and KeywordWeight combine hybrid scores. They favor
	// the semantic score; the keyword match contributes a smaller boost.
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	// RerankCandidates bounds how many candidates go into one rerank
	// prompt, capping token cost.
	RerankCandidates int `yaml:"rerank_candidates"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	MaxChunkChars      int `yaml:"max_chunk_chars"`
	FallbackChunkChars int `yaml:"fallback_chunk_chars"`
	OverlapChars       int `yaml:"overlap_chars"`
}

// IndexingConfig configures the indexing write path.
type IndexingConfig struct {
	// Workers bounds concurrent per-file chunk+embed pipelines, chosen to
	// respect embedding-provider rate limits.
	Workers int `yaml:"workers"`
	// Include and Exclude are watch/ignore globs applied to repository
	// file listings.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			BaseURL:        "http://localhost:11434/v1",
			Model:          "text-embedding-3-small",
			BatchSize:      32,
			MaxBatchTokens: 8000,
			UnitPrice:      0.00000002,
			TimeoutSeconds: 60,
		},
		Generation: GenerationConfig{
			BaseURL:        "http://localhost:11434/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
		VectorStore: VectorStoreConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "repoindex_chunks",
			Dimensions: 1536,
		},
		Metadata: MetadataConfig{
			Path: "repoindex.db",
		},
		Cache: CacheConfig{
			Backend: "memory",
			Host:    "localhost",
			Port:    6379,
			TTL:     5 * time.Minute,
		},
		Retrieval: RetrievalConfig{
			TopK:             10,
			ScoreThreshold:   0.0,
			SemanticWeight:   0.85,
			KeywordWeight:    0.15,
			RerankCandidates: 20,
		},
		Chunking: ChunkingConfig{
			MaxChunkChars:      1500,
			FallbackChunkChars: 100,
			OverlapChars:       20,
		},
		Indexing: IndexingConfig{
			Workers: 4,
			Include: []string{"**"},
			Exclude: []string{
				"**/node_modules/**", "**/vendor/**", "**/.git/**",
				"**/dist/**", "**/build/**", "**/*.min.js",
			},
			MaxFileSize: 1 << 20,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path, applies defaults for unset fields,
// then applies environment overrides. A missing file is not an error when
// path is empty; an explicit path that does not exist is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.New(errors.ErrCodeConfigNotFound,
					fmt.Sprintf("config file %s not found", path), err)
			}
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid config file %s", path), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secret-bearing fields from the environment so keys
// do not have to live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("REPOINDEX_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("REPOINDEX_GENERATION_API_KEY"); v != "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("REPOINDEX_EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Chunking.MaxChunkChars <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "chunking.max_chunk_chars must be positive", nil)
	}
	if c.Chunking.FallbackChunkChars <= c.Chunking.OverlapChars {
		return errors.New(errors.ErrCodeConfigInvalid,
			"chunking.fallback_chunk_chars must exceed chunking.overlap_chars", nil)
	}
	if c.Indexing.Workers <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "indexing.workers must be positive", nil)
	}
	if c.Retrieval.TopK <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "retrieval.top_k must be positive", nil)
	}
	if c.Retrieval.SemanticWeight <= 0 || c.Retrieval.KeywordWeight < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "retrieval weights must be positive", nil)
	}
	return nil
}
