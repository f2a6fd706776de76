package embedding

import (
	"fmt"

	"github.com/vanessasara/full-stack-Devops/config"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// NewModel builds the backend model named by cfg.Provider, wrapped in the
// configured cache.
func NewModel(cfg config.EmbeddingConfig) (port.EmbeddingModel, error) {
	var (
		model port.EmbeddingModel
		err   error
	)

	switch cfg.Provider {
	case "hashing":
		model = NewHashingModel(cfg.Dimension)
	case "ollama":
		model, err = NewOllamaModel(cfg.Model, cfg.BaseURL, cfg.Dimension, cfg.Timeout)
	case "openai":
		model, err = NewOpenAIModel(OpenAIOptions{
			APIKeyEnv:         cfg.APIKeyEnv,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			Dimension:         cfg.Dimension,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return WithCache(model, cfg.CacheSize, cfg.CacheTTL), nil
}

// NewGeneratorFromConfig builds the process-wide generator.
func NewGeneratorFromConfig(cfg config.EmbeddingConfig) (*Generator, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewGenerator(model,
		WithDimension(cfg.Dimension),
		WithBatchSize(cfg.BatchSize),
		WithConcurrency(cfg.Concurrency),
	), nil
}
