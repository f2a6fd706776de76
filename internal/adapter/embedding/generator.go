package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/logging"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

const (
	defaultBatchSize   = 32
	defaultConcurrency = 4
)

// Generator is the embedding generator shared by every caller in the
// process. It validates input, batches requests to the backend model and
// checks every vector against the configured dimension.
type Generator struct {
	model       port.EmbeddingModel
	dimension   int
	batchSize   int
	concurrency int

	loadMu sync.Mutex
	loaded bool
}

type GeneratorOption func(*Generator)

// WithBatchSize sets how many texts go into one backend call.
func WithBatchSize(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of backend calls in flight for one
// EmbedBatch.
func WithConcurrency(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithDimension overrides the expected vector length. By default it is the
// model's own Dimension().
func WithDimension(d int) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.dimension = d
		}
	}
}

func NewGenerator(model port.EmbeddingModel, opts ...GeneratorOption) *Generator {
	g := &Generator{
		model:       model,
		dimension:   model.Dimension(),
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Dimension() int    { return g.dimension }
func (g *Generator) ModelName() string { return g.model.ModelName() }

// EmbedOne embeds a single text.
func (g *Generator) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in input order. Blank texts are rejected before
// any backend call.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", domain.ErrInvalidInput, i)
		}
	}
	if err := g.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		eg.Go(func() error {
			vecs, err := g.model.EmbedTexts(egCtx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed texts %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("model %s returned %d vectors for %d texts", g.model.ModelName(), len(vecs), end-start)
			}
			for i, v := range vecs {
				if err := domain.CheckDimension(g.dimension, v); err != nil {
					return fmt.Errorf("model %s: %w", g.model.ModelName(), err)
				}
				out[start+i] = v
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ensureLoaded runs the model's one-time warm-up. A failed load is retried
// by the next caller.
func (g *Generator) ensureLoaded(ctx context.Context) error {
	loader, ok := g.model.(port.Loader)
	if !ok {
		return nil
	}

	g.loadMu.Lock()
	defer g.loadMu.Unlock()
	if g.loaded {
		return nil
	}

	logger := logging.FromContext(ctx).With(zap.String("model", g.model.ModelName()))
	if err := loader.Load(ctx); err != nil {
		logger.Error("embedding model load failed", zap.Error(err))
		return fmt.Errorf("load embedding model %s: %w", g.model.ModelName(), err)
	}
	g.loaded = true
	logger.Info("embedding model loaded", zap.Int("dimension", g.dimension))
	return nil
}
