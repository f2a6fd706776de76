package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the RAG core.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkConfig holds chunking configuration. Sizes are in words.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // "hashing", "ollama", "openai"
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Dimension         int           `yaml:"dimension"`
	BatchSize         int           `yaml:"batch_size"`
	Concurrency       int           `yaml:"concurrency"`
	CacheSize         int           `yaml:"cache_size"` // 0 disables the cache
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	Timeout           time.Duration `yaml:"timeout"`
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	Backend         string        `yaml:"backend"` // "bolt", "postgres", "memory"
	Path            string        `yaml:"path"`    // bolt file, relative to the root dir
	DSN             string        `yaml:"dsn"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	OpenTimeout     time.Duration `yaml:"open_timeout"`
	Index           string        `yaml:"index"` // "flat" or "ivf"; in-process backends only
	IVF             IVFConfig     `yaml:"ivf"`
}

// IVFConfig tunes the inverted-file index. For Postgres, Lists sizes the
// ivfflat index and Probes sets ivfflat.probes.
type IVFConfig struct {
	Lists  int `yaml:"lists"`
	Probes int `yaml:"probes"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK                int           `yaml:"top_k"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	MaxContextChars     int           `yaml:"max_context_chars"`
	CacheSize           int           `yaml:"cache_size"` // 0 disables the cache
	CacheTTL            time.Duration `yaml:"cache_ttl"`
}

// IngestConfig holds content ingestion configuration.
type IngestConfig struct {
	Includes   []string `yaml:"includes"`
	Excludes   []string `yaml:"excludes"`
	SourceType string   `yaml:"source_type"`
	Schedule   string   `yaml:"schedule"`
	MaxRetries int      `yaml:"max_retries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunk: ChunkConfig{
			Size:    200,
			Overlap: 40,
		},
		Embedding: EmbeddingConfig{
			Provider:    "hashing",
			Model:       "all-minilm",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   384,
			BatchSize:   32,
			Concurrency: 4,
			CacheSize:   4096,
			CacheTTL:    time.Hour,
			Timeout:     120 * time.Second,
		},
		Store: StoreConfig{
			Backend:         "bolt",
			Path:            filepath.Join(".rag", "vectors.db"),
			DSNEnv:          "DATABASE_URL",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    60 * time.Second,
			OpenTimeout:     time.Second,
			Index:           "flat",
			IVF: IVFConfig{
				Lists:  16,
				Probes: 4,
			},
		},
		Retrieve: RetrieveConfig{
			TopK:                5,
			SimilarityThreshold: 0,
			MaxContextChars:     4000,
			CacheSize:           256,
			CacheTTL:            5 * time.Minute,
		},
		Ingest: IngestConfig{
			Includes:   []string{"**/*.md", "**/*.txt"},
			Excludes:   []string{"**/.git/**", "**/.rag/**", "**/node_modules/**"},
			SourceType: "page_content",
			Schedule:   "@every 15m",
			MaxRetries: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (rag.yaml, then
// .rag/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "rag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk.overlap must be in [0, %d), got %d", c.Chunk.Size, c.Chunk.Overlap)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	switch c.Embedding.Provider {
	case "hashing", "ollama", "openai":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	switch c.Store.Backend {
	case "bolt", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	switch c.Store.Index {
	case "flat", "ivf":
	default:
		return fmt.Errorf("unsupported store index: %s", c.Store.Index)
	}
	if c.Store.Index == "ivf" && (c.Store.IVF.Lists <= 0 || c.Store.IVF.Probes <= 0) {
		return fmt.Errorf("store.ivf.lists and store.ivf.probes must be positive")
	}
	if c.Retrieve.TopK < 0 {
		return fmt.Errorf("retrieve.top_k must not be negative, got %d", c.Retrieve.TopK)
	}
	if c.Retrieve.SimilarityThreshold < -1 || c.Retrieve.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieve.similarity_threshold must be in [-1, 1], got %g", c.Retrieve.SimilarityThreshold)
	}
	if c.Retrieve.MaxContextChars < 0 {
		return fmt.Errorf("retrieve.max_context_chars must not be negative, got %d", c.Retrieve.MaxContextChars)
	}
	return nil
}

// ResolveDSN returns the Postgres DSN, preferring the explicit setting over
// the environment variable named by DSNEnv.
func (s StoreConfig) ResolveDSN() (string, error) {
	if s.DSN != "" {
		return s.DSN, nil
	}
	if s.DSNEnv != "" {
		if dsn := strings.TrimSpace(os.Getenv(s.DSNEnv)); dsn != "" {
			return dsn, nil
		}
	}
	return "", fmt.Errorf("postgres DSN not configured: set store.dsn or %s", s.DSNEnv)
}

// StorePath returns the bolt file location for the given root directory.
func (c *Config) StorePath(dir string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(dir, c.Store.Path)
}

// EnsureRAGDir ensures the .rag directory exists.
func EnsureRAGDir(dir string) error {
	ragDir := filepath.Join(dir, ".rag")
	return os.MkdirAll(ragDir, 0755)
}
