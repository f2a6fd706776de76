package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/logging"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// RetrieveDefaults fill in request fields left at zero.
type RetrieveDefaults struct {
	TopK      int
	Threshold float64
	MaxChars  int
}

// RetrieveUseCase handles search and context assembly.
type RetrieveUseCase struct {
	embedder port.Embedder
	store    port.VectorStore
	defaults RetrieveDefaults
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(embedder port.Embedder, store port.VectorStore, defaults RetrieveDefaults) *RetrieveUseCase {
	return &RetrieveUseCase{
		embedder: embedder,
		store:    store,
		defaults: defaults,
	}
}

// Search embeds query and returns the nearest records.
func (u *RetrieveUseCase) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if opts.K < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", domain.ErrInvalidInput, opts.K)
	}
	if opts.K == 0 {
		return nil, nil
	}
	vec, err := u.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := u.store.Search(ctx, vec, opts)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}

// RetrieveContext builds a context bundle for req. No match is not an
// error: the bundle is simply empty.
func (u *RetrieveUseCase) RetrieveContext(ctx context.Context, req domain.ContextRequest) (domain.ContextBundle, error) {
	k := req.K
	if k == 0 {
		k = u.defaults.TopK
	}
	maxChars := req.MaxChars
	if maxChars == 0 {
		maxChars = u.defaults.MaxChars
	}
	if maxChars < 0 {
		return domain.ContextBundle{}, fmt.Errorf("%w: max chars must not be negative, got %d", domain.ErrInvalidInput, maxChars)
	}

	results, err := u.Search(ctx, req.Query, domain.SearchOptions{
		K:          k,
		SourceType: req.SourceType,
		Threshold:  u.defaults.Threshold,
	})
	if err != nil {
		return domain.ContextBundle{}, err
	}

	bundle := Assemble(req.Query, results, maxChars)
	logging.FromContext(ctx).Debug("assembled context",
		zap.String("query", req.Query),
		zap.Int("candidates", len(results)),
		zap.Int("items", len(bundle.Items)),
		zap.Int("chars", bundle.TotalChars))
	return bundle, nil
}

// Assemble packs results, already in descending similarity order, into a
// bundle of at most maxChars characters of passage text. A passage that
// would overflow is dropped whole and later, shorter ones are still tried.
func Assemble(query string, results []domain.SearchResult, maxChars int) domain.ContextBundle {
	bundle := domain.ContextBundle{
		Query:    query,
		Items:    []domain.ContextItem{},
		MaxChars: maxChars,
	}
	for _, r := range results {
		n := domain.CharCount(r.Record.Chunk.Text)
		if bundle.TotalChars+n > maxChars {
			continue
		}
		bundle.Items = append(bundle.Items, domain.ContextItem{
			Text:       r.Record.Chunk.Text,
			SourceType: r.Record.Chunk.SourceType,
			SourceID:   r.Record.Chunk.SourceID,
			Position:   r.Record.Chunk.Position,
			Similarity: r.Similarity,
		})
		bundle.TotalChars += n
	}
	return bundle
}
