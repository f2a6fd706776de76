package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/vanessasara/full-stack-Devops/config"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/cache"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/chunker"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/embedding"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/store"
	"github.com/vanessasara/full-stack-Devops/internal/port"
	"github.com/vanessasara/full-stack-Devops/internal/usecase"
)

const defaultRetryDelay = 200 * time.Millisecond

// app holds the components one command needs.
type app struct {
	cfg       *config.Config
	store     port.VectorStore
	embedder  *embedding.Generator
	ingest    *usecase.IngestUseCase
	retrieve  *usecase.RetrieveUseCase
	retriever port.ContextRetriever
}

// openApp opens the configured store, checks its schema and builds the use
// cases on top of it. Callers must Close the result.
func openApp(ctx context.Context) (*app, error) {
	cfg := GetConfig()

	st, err := store.Open(ctx, cfg, GetRootDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	if err := store.EnsureSchema(ctx, st, cfg); err != nil {
		st.Close()
		return nil, err
	}

	gen, err := embedding.NewGeneratorFromConfig(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, err
	}

	chk, err := chunker.NewWordChunker(cfg.Chunk.Size, cfg.Chunk.Overlap)
	if err != nil {
		st.Close()
		return nil, err
	}

	retrieve := usecase.NewRetrieveUseCase(gen, st, usecase.RetrieveDefaults{
		TopK:      cfg.Retrieve.TopK,
		Threshold: cfg.Retrieve.SimilarityThreshold,
		MaxChars:  cfg.Retrieve.MaxContextChars,
	})
	var retriever port.ContextRetriever = retrieve
	opts := []usecase.IngestOption{usecase.WithRetry(cfg.Ingest.MaxRetries, defaultRetryDelay)}
	if cfg.Retrieve.CacheSize > 0 {
		cached := cache.NewCachedRetriever(retrieve, cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL))
		retriever = cached
		opts = append(opts, usecase.WithInvalidator(cached))
	}
	ingest := usecase.NewIngestUseCase(chk, gen, st, opts...)

	return &app{
		cfg:       cfg,
		store:     st,
		embedder:  gen,
		ingest:    ingest,
		retrieve:  retrieve,
		retriever: retriever,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
