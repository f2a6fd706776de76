package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Embedding.Dimension != 384 {
		t.Errorf("expected Dimension=384, got %d", cfg.Embedding.Dimension)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.SimilarityThreshold != 0 {
		t.Errorf("expected SimilarityThreshold=0, got %f", cfg.Retrieve.SimilarityThreshold)
	}
	if cfg.Store.MaxOpenConns != 10 || cfg.Store.MaxIdleConns != 2 {
		t.Errorf("expected pool 2..10, got %d..%d", cfg.Store.MaxIdleConns, cfg.Store.MaxOpenConns)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "rag.yaml")

	content := `
chunk:
  size: 50
  overlap: 10
embedding:
  provider: ollama
  cache_ttl: 10m
store:
  backend: postgres
  index: ivf
retrieve:
  top_k: 3
  similarity_threshold: 0.25
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunk.Size != 50 || cfg.Chunk.Overlap != 10 {
		t.Errorf("expected chunk 50/10, got %d/%d", cfg.Chunk.Size, cfg.Chunk.Overlap)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("expected provider ollama, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.CacheTTL != 10*time.Minute {
		t.Errorf("expected CacheTTL=10m, got %s", cfg.Embedding.CacheTTL)
	}
	if cfg.Embedding.Dimension != 384 {
		t.Errorf("unset fields should keep defaults, got Dimension=%d", cfg.Embedding.Dimension)
	}
	if cfg.Store.Backend != "postgres" || cfg.Store.Index != "ivf" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Retrieve.TopK != 3 || cfg.Retrieve.SimilarityThreshold != 0.25 {
		t.Errorf("unexpected retrieve config: %+v", cfg.Retrieve)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "rag.yaml")

	content := `
chunk:
  size: 10
  overlap: 10
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected overlap >= size to be rejected")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"provider":  func(c *Config) { c.Embedding.Provider = "word2vec" },
		"backend":   func(c *Config) { c.Store.Backend = "redis" },
		"index":     func(c *Config) { c.Store.Index = "hnsw" },
		"dimension": func(c *Config) { c.Embedding.Dimension = 0 },
		"threshold": func(c *Config) { c.Retrieve.SimilarityThreshold = 1.5 },
		"ivf":       func(c *Config) { c.Store.Index = "ivf"; c.Store.IVF.Probes = 0 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureRAGDir(tmpDir); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, ".rag", "config.yaml")

	content := `
retrieve:
  max_context_chars: 8000
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Retrieve.MaxContextChars != 8000 {
		t.Errorf("expected MaxContextChars=8000, got %d", cfg.Retrieve.MaxContextChars)
	}
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "rag.yaml")

	cfg := DefaultConfig()
	cfg.Embedding.CacheTTL = 90 * time.Second
	cfg.Store.Backend = "memory"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Embedding.CacheTTL != 90*time.Second {
		t.Errorf("expected CacheTTL=90s, got %s", loaded.Embedding.CacheTTL)
	}
	if loaded.Store.Backend != "memory" {
		t.Errorf("expected backend memory, got %s", loaded.Store.Backend)
	}
}

func TestResolveDSN(t *testing.T) {
	t.Setenv("RAG_TEST_DSN", "postgres://localhost/rag")

	s := StoreConfig{DSNEnv: "RAG_TEST_DSN"}
	dsn, err := s.ResolveDSN()
	if err != nil || dsn != "postgres://localhost/rag" {
		t.Errorf("expected DSN from env, got %q (%v)", dsn, err)
	}

	s.DSN = "postgres://explicit/rag"
	if dsn, _ := s.ResolveDSN(); dsn != "postgres://explicit/rag" {
		t.Errorf("explicit DSN should win, got %q", dsn)
	}

	if _, err := (StoreConfig{DSNEnv: "RAG_TEST_DSN_UNSET"}).ResolveDSN(); err == nil {
		t.Error("expected error when no DSN is configured")
	}
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	path := cfg.StorePath("/home/user/shop")
	expected := filepath.Join("/home/user/shop", ".rag", "vectors.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}
}
