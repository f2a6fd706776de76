package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/cache"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/chunker"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/embedding"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/memstore"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

const osloText = "The Oslo sofa is a three-seat leather sofa available in brown and grey."

const testDim = 256

type fixture struct {
	store    *memstore.MemoryStore
	embedder *embedding.Generator
	ingest   *IngestUseCase
	retrieve *RetrieveUseCase
}

func newFixture(t *testing.T, size, overlap int, opts ...IngestOption) *fixture {
	t.Helper()
	chk, err := chunker.NewWordChunker(size, overlap)
	require.NoError(t, err)
	gen := embedding.NewGenerator(embedding.NewHashingModel(testDim))
	st := memstore.NewMemoryStore(testDim, nil)
	return &fixture{
		store:    st,
		embedder: gen,
		ingest:   NewIngestUseCase(chk, gen, st, opts...),
		retrieve: NewRetrieveUseCase(gen, st, RetrieveDefaults{TopK: 5, MaxChars: 4000}),
	}
}

func TestEndToEndOsloSofa(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 10)

	res, err := f.ingest.Ingest(ctx, domain.SourceDocument{
		SourceType: domain.SourceProduct,
		SourceID:   "oslo-sofa",
		Text:       osloText,
		Metadata:   domain.Metadata{"title": domain.String("Oslo sofa")},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Zero(t, res.Replaced)

	_, err = f.ingest.Ingest(ctx, domain.SourceDocument{
		SourceType: domain.SourceFAQ,
		SourceID:   "delivery",
		Text:       "Delivery takes five to seven working days within Norway.",
	}, false)
	require.NoError(t, err)

	results, err := f.retrieve.Search(ctx, "brown leather three-seat couch", domain.SearchOptions{K: 3, SourceType: domain.SourceProduct})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, "oslo-sofa", top.Record.Chunk.SourceID)
	assert.Equal(t, osloText, top.Record.Chunk.Text)
	assert.Greater(t, top.Similarity, 0.3)
	title, _ := top.Record.Metadata.GetString("title")
	assert.Equal(t, "Oslo sofa", title)
	hash, _ := top.Record.Metadata.GetString(MetaContentHash)
	assert.NotEmpty(t, hash)

	bundle, err := f.retrieve.RetrieveContext(ctx, domain.ContextRequest{Query: "brown leather three-seat couch", K: 3})
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Items)
	assert.Equal(t, "oslo-sofa", bundle.Items[0].SourceID)
	assert.Contains(t, bundle.Render(), "[product:oslo-sofa] "+osloText)
}

func TestIngestSkipsUnchangedDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, 1)
	doc := domain.SourceDocument{
		SourceType: domain.SourcePolicy,
		SourceID:   "returns",
		Text:       "You can return any item within thirty days of delivery for a full refund.",
	}

	first, err := f.ingest.Ingest(ctx, doc, false)
	require.NoError(t, err)
	assert.Greater(t, first.Chunks, 1)

	again, err := f.ingest.Ingest(ctx, doc, false)
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	forced, err := f.ingest.Ingest(ctx, doc, true)
	require.NoError(t, err)
	assert.False(t, forced.Skipped)
	assert.Equal(t, first.Chunks, forced.Replaced)

	doc.Text = "Returns are accepted within fourteen days."
	changed, err := f.ingest.Ingest(ctx, doc, false)
	require.NoError(t, err)
	assert.False(t, changed.Skipped)

	recs, err := f.store.ListBySource(ctx, domain.SourcePolicy, "returns")
	require.NoError(t, err)
	assert.Len(t, recs, changed.Chunks)
	for i, r := range recs {
		assert.Equal(t, i, r.Chunk.Position)
	}
}

// renamedModel reports a different model name while producing the same
// vectors, like swapping between two models of equal dimension.
type renamedModel struct {
	port.EmbeddingModel
	name string
}

func (m renamedModel) ModelName() string { return m.name }

func TestIngestReembedsAfterModelChange(t *testing.T) {
	ctx := context.Background()
	chk, err := chunker.NewWordChunker(50, 10)
	require.NoError(t, err)
	st := memstore.NewMemoryStore(testDim, nil)
	doc := domain.SourceDocument{SourceType: domain.SourceProduct, SourceID: "oslo-sofa", Text: osloText}

	before := embedding.NewGenerator(renamedModel{embedding.NewHashingModel(testDim), "model-a"})
	first, err := NewIngestUseCase(chk, before, st).Ingest(ctx, doc, false)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	again, err := NewIngestUseCase(chk, before, st).Ingest(ctx, doc, false)
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	after := embedding.NewGenerator(renamedModel{embedding.NewHashingModel(testDim), "model-b"})
	switched, err := NewIngestUseCase(chk, after, st).Ingest(ctx, doc, false)
	require.NoError(t, err)
	assert.False(t, switched.Skipped)
	assert.Equal(t, first.Chunks, switched.Replaced)
}

func TestIngestRejectsUnencodableMetadata(t *testing.T) {
	f := newFixture(t, 50, 10)
	_, err := f.ingest.Ingest(context.Background(), domain.SourceDocument{
		SourceType: domain.SourceProduct,
		SourceID:   "oslo-sofa",
		Text:       osloText,
		Metadata:   domain.Metadata{"price": domain.Number(math.Inf(1))},
	}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestBlankTextRemovesSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 10)
	doc := domain.SourceDocument{SourceType: domain.SourceProduct, SourceID: "oslo-sofa", Text: osloText}
	_, err := f.ingest.Ingest(ctx, doc, false)
	require.NoError(t, err)

	doc.Text = "   "
	res, err := f.ingest.Ingest(ctx, doc, false)
	require.NoError(t, err)
	assert.Zero(t, res.Chunks)
	assert.Equal(t, 1, res.Replaced)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestRejectsInvalidDocuments(t *testing.T) {
	f := newFixture(t, 50, 10)
	for _, doc := range []domain.SourceDocument{
		{SourceType: "blog", SourceID: "x", Text: "hello"},
		{SourceType: domain.SourceFAQ, SourceID: " ", Text: "hello"},
	} {
		_, err := f.ingest.Ingest(context.Background(), doc, false)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

// flakyStore fails the first n replaces as unavailable.
type flakyStore struct {
	port.VectorStore
	failures int
	calls    int
}

func (s *flakyStore) ReplaceSource(ctx context.Context, t domain.SourceType, id string, recs []domain.NewRecord) (int, []string, error) {
	s.calls++
	if s.calls <= s.failures {
		return 0, nil, domain.Unavailable("replace", errors.New("connection reset"))
	}
	return s.VectorStore.ReplaceSource(ctx, t, id, recs)
}

func TestIngestRetriesUnavailableStore(t *testing.T) {
	chk, err := chunker.NewWordChunker(50, 10)
	require.NoError(t, err)
	gen := embedding.NewGenerator(embedding.NewHashingModel(testDim))
	doc := domain.SourceDocument{SourceType: domain.SourceProduct, SourceID: "oslo-sofa", Text: osloText}

	st := &flakyStore{VectorStore: memstore.NewMemoryStore(testDim, nil), failures: 2}
	u := NewIngestUseCase(chk, gen, st, WithRetry(3, time.Millisecond))
	_, err = u.Ingest(context.Background(), doc, false)
	require.NoError(t, err)
	assert.Equal(t, 3, st.calls)

	st = &flakyStore{VectorStore: memstore.NewMemoryStore(testDim, nil), failures: 10}
	u = NewIngestUseCase(chk, gen, st, WithRetry(2, time.Millisecond))
	_, err = u.Ingest(context.Background(), doc, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 3, st.calls)
}

func TestIngestRetryStopsOnCancel(t *testing.T) {
	chk, err := chunker.NewWordChunker(50, 10)
	require.NoError(t, err)
	gen := embedding.NewGenerator(embedding.NewHashingModel(testDim))
	st := &flakyStore{VectorStore: memstore.NewMemoryStore(testDim, nil), failures: 10}
	u := NewIngestUseCase(chk, gen, st, WithRetry(5, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = u.Ingest(ctx, domain.SourceDocument{SourceType: domain.SourceProduct, SourceID: "p", Text: osloText}, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, st.calls)
}

func TestIngestInvalidatesQueryCache(t *testing.T) {
	ctx := context.Background()
	chk, err := chunker.NewWordChunker(50, 10)
	require.NoError(t, err)
	gen := embedding.NewGenerator(embedding.NewHashingModel(testDim))
	st := memstore.NewMemoryStore(testDim, nil)
	cached := cache.NewCachedRetriever(
		NewRetrieveUseCase(gen, st, RetrieveDefaults{TopK: 5, MaxChars: 1000}),
		cache.NewQueryCache(16, time.Minute),
	)
	ingest := NewIngestUseCase(chk, gen, st, WithInvalidator(cached))

	req := domain.ContextRequest{Query: "leather sofa"}
	bundle, err := cached.RetrieveContext(ctx, req)
	require.NoError(t, err)
	assert.True(t, bundle.Empty())

	_, err = ingest.Ingest(ctx, domain.SourceDocument{SourceType: domain.SourceProduct, SourceID: "oslo-sofa", Text: osloText}, false)
	require.NoError(t, err)

	bundle, err = cached.RetrieveContext(ctx, req)
	require.NoError(t, err)
	assert.False(t, bundle.Empty(), "stale empty bundle served after ingest")

	n, err := ingest.Remove(ctx, domain.SourceProduct, "oslo-sofa")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	bundle, err = cached.RetrieveContext(ctx, req)
	require.NoError(t, err)
	assert.True(t, bundle.Empty())

	n, err = ingest.Remove(ctx, domain.SourceProduct, "oslo-sofa")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestAllCollectsFailures(t *testing.T) {
	f := newFixture(t, 50, 10)
	docs := []domain.SourceDocument{
		{SourceType: domain.SourceProduct, SourceID: "oslo-sofa", Text: osloText},
		{SourceType: domain.SourceProduct, SourceID: "", Text: "no id"},
		{SourceType: domain.SourceFAQ, SourceID: "delivery", Text: "Delivery takes five days."},
	}
	var ticks []int
	res, err := f.ingest.IngestAll(context.Background(), docs, false, func(done, total int) {
		assert.Equal(t, 3, total)
		ticks = append(ticks, done)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Ingested)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Chunks)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "product/")
	assert.Equal(t, []int{1, 2, 3}, ticks)

	res, err = f.ingest.IngestAll(context.Background(), docs[:1], false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
}

func TestAssembleBudget(t *testing.T) {
	mk := func(id string, n int, sim float64) domain.SearchResult {
		return domain.SearchResult{
			Record: domain.EmbeddingRecord{Chunk: domain.Chunk{
				SourceType: domain.SourcePageContent,
				SourceID:   id,
				Text:       strings.Repeat("x", n),
			}},
			Similarity: sim,
		}
	}
	results := []domain.SearchResult{mk("c1", 40, 0.9), mk("c2", 80, 0.8), mk("c3", 90, 0.7)}

	bundle := Assemble("q", results, 100)
	require.Len(t, bundle.Items, 1)
	assert.Equal(t, "c1", bundle.Items[0].SourceID)
	assert.Equal(t, 40, bundle.TotalChars)
	assert.Equal(t, 100, bundle.MaxChars)

	// a later, shorter candidate still fits after a skip
	results = append(results, mk("c4", 60, 0.6))
	bundle = Assemble("q", results, 100)
	require.Len(t, bundle.Items, 2)
	assert.Equal(t, "c4", bundle.Items[1].SourceID)
	assert.Equal(t, 100, bundle.TotalChars)

	empty := Assemble("q", nil, 100)
	assert.True(t, empty.Empty())
	assert.Zero(t, empty.TotalChars)
}

func TestAssembleCountsCharactersNotBytes(t *testing.T) {
	text := strings.Repeat("ø", 10)
	bundle := Assemble("q", []domain.SearchResult{{Record: domain.EmbeddingRecord{Chunk: domain.Chunk{Text: text}}}}, 10)
	require.Len(t, bundle.Items, 1)
	assert.Equal(t, 10, bundle.TotalChars)
}

func TestRetrieveContextBudgetThroughStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 200, 0)
	// three pages sharing the query terms, lengths 40, 80 and 90
	texts := map[string]string{
		"short":  padTo("sofa leather brown", 40),
		"medium": padTo("sofa leather", 80),
		"long":   padTo("sofa", 90),
	}
	for id, text := range texts {
		_, err := f.ingest.Ingest(ctx, domain.SourceDocument{SourceType: domain.SourcePageContent, SourceID: id, Text: text}, false)
		require.NoError(t, err)
	}

	bundle, err := f.retrieve.RetrieveContext(ctx, domain.ContextRequest{Query: "sofa leather brown", K: 3, MaxChars: 100})
	require.NoError(t, err)
	require.Len(t, bundle.Items, 1)
	assert.Equal(t, "short", bundle.Items[0].SourceID)
	assert.Equal(t, 40, bundle.TotalChars)
	assert.LessOrEqual(t, bundle.TotalChars, 100)
}

func TestRetrieveEdgeCases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 10)

	_, err := f.retrieve.Search(ctx, "   ", domain.SearchOptions{K: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.retrieve.Search(ctx, "sofa", domain.SearchOptions{K: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	results, err := f.retrieve.Search(ctx, "sofa", domain.SearchOptions{K: 0})
	require.NoError(t, err)
	assert.Empty(t, results)

	bundle, err := f.retrieve.RetrieveContext(ctx, domain.ContextRequest{Query: "anything at all"})
	require.NoError(t, err)
	assert.True(t, bundle.Empty())
	assert.Equal(t, 4000, bundle.MaxChars)

	_, err = f.retrieve.RetrieveContext(ctx, domain.ContextRequest{Query: "sofa", MaxChars: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// padTo extends words with distinct filler words to exactly n characters.
func padTo(words string, n int) string {
	s := words
	for i := 0; len(s) < n; i++ {
		s += fmt.Sprintf(" f%d", i)
	}
	s = s[:n]
	if strings.HasSuffix(s, " ") {
		s = s[:n-1] + "z"
	}
	return s
}
