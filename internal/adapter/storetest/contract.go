// Package storetest holds the behaviour every port.VectorStore must show,
// run against each backend by its own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// Dim is the vector length used by the contract.
const Dim = 4

// Factory returns an empty store of dimension Dim.
type Factory func(t *testing.T) port.VectorStore

type clockSetter interface {
	SetClock(now func() time.Time)
}

// Record builds a NewRecord for tests.
func Record(st domain.SourceType, id string, pos int, vec ...float32) domain.NewRecord {
	return domain.NewRecord{
		Chunk: domain.Chunk{
			SourceType: st,
			SourceID:   id,
			Text:       fmt.Sprintf("%s %s chunk %d", st, id, pos),
			Position:   pos,
		},
		Vector: vec,
	}
}

// Run executes the full contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("DimensionInvariant", func(t *testing.T) { testDimensionInvariant(t, newStore(t)) })
	t.Run("BatchInsertPerItem", func(t *testing.T) { testBatchInsertPerItem(t, newStore(t)) })
	t.Run("BatchInsertCancelled", func(t *testing.T) { testBatchInsertCancelled(t, newStore(t)) })
	t.Run("SearchOrdering", func(t *testing.T) { testSearchOrdering(t, newStore(t)) })
	t.Run("FilterBeforeRank", func(t *testing.T) { testFilterBeforeRank(t, newStore(t)) })
	t.Run("Threshold", func(t *testing.T) { testThreshold(t, newStore(t)) })
	t.Run("SearchArguments", func(t *testing.T) { testSearchArguments(t, newStore(t)) })
	t.Run("TieBreakNewestFirst", func(t *testing.T) { testTieBreak(t, newStore(t)) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDeleteIdempotent(t, newStore(t)) })
	t.Run("ReplaceSource", func(t *testing.T) { testReplaceSource(t, newStore(t)) })
	t.Run("ReplaceIsAtomicToReaders", func(t *testing.T) { testReplaceAtomic(t, newStore(t)) })
}

func testInsertAndGet(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	rec := Record(domain.SourceProduct, "oslo-sofa", 0, 1, 0, 0, 0)
	rec.Metadata = domain.Metadata{
		"title": domain.String("Oslo sofa"),
		"price": domain.Number(1299),
		"attrs": domain.Map(domain.Metadata{"leather": domain.Bool(true)}),
	}

	id1, err := s.Insert(ctx, rec)
	require.NoError(t, err)
	id2, err := s.Insert(ctx, rec)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	got, err := s.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, id1, got.ID)
	assert.Equal(t, rec.Chunk, got.Chunk)
	assert.Equal(t, rec.Vector, got.Vector)
	assert.True(t, rec.Metadata.Equal(got.Metadata), "metadata %v", got.Metadata)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, Dim, s.Dimension())
}

func testDimensionInvariant(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	_, err := s.Insert(ctx, Record(domain.SourceProduct, "p1", 0, 1, 0, 0, 0))
	require.NoError(t, err)

	for _, bad := range [][]float32{{1, 0, 0}, {1, 0, 0, 0, 0}, nil} {
		_, err := s.Insert(ctx, Record(domain.SourceProduct, "p2", 0, bad...))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a rejected write must leave the store unchanged")

	recs, err := s.ListBySource(ctx, domain.SourceProduct, "p2")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func testBatchInsertPerItem(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	recs := []domain.NewRecord{
		Record(domain.SourceFAQ, "delivery", 0, 1, 0, 0, 0),
		Record(domain.SourceFAQ, "delivery", 1, 1, 1),
		Record(domain.SourceFAQ, "delivery", 2, 0, 1, 0, 0),
	}

	results, err := s.BatchInsert(ctx, recs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].ID)
	assert.ErrorIs(t, results[1].Err, domain.ErrDimensionMismatch)
	assert.Empty(t, results[1].ID)
	assert.NoError(t, results[2].Err)

	stored, err := s.ListBySource(ctx, domain.SourceFAQ, "delivery")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, results[0].ID, stored[0].ID)
	assert.Equal(t, results[2].ID, stored[1].ID)
}

func testBatchInsertCancelled(t *testing.T, s port.VectorStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := s.BatchInsert(ctx, []domain.NewRecord{
		Record(domain.SourcePolicy, "returns", 0, 1, 0, 0, 0),
		Record(domain.SourcePolicy, "returns", 1, 0, 1, 0, 0),
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testSearchOrdering(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	vecs := [][]float32{
		{1, 0, 0, 0}, {0.9, 0.1, 0, 0}, {0.5, 0.5, 0, 0}, {0.2, 0.8, 0, 0},
		{0, 1, 0, 0}, {0.7, 0, 0.7, 0}, {0.1, 0, 0, 1},
	}
	for i, v := range vecs {
		_, err := s.Insert(ctx, Record(domain.SourcePageContent, fmt.Sprintf("page-%d", i), 0, v...))
		require.NoError(t, err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: 5})
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, "page-0", results[0].Record.Chunk.SourceID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
		assert.LessOrEqual(t, results[i].Similarity, 1.0)
		assert.GreaterOrEqual(t, results[i].Similarity, -1.0)
	}
}

func testFilterBeforeRank(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	// ten page records almost identical to the query, six products less so
	for i := 0; i < 10; i++ {
		_, err := s.Insert(ctx, Record(domain.SourcePageContent, fmt.Sprintf("page-%d", i), 0, 1, 0.01*float32(i), 0, 0))
		require.NoError(t, err)
	}
	for i := 0; i < 6; i++ {
		_, err := s.Insert(ctx, Record(domain.SourceProduct, fmt.Sprintf("product-%d", i), 0, 0.5, 1, float32(i)*0.1, 0))
		require.NoError(t, err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: 5, SourceType: domain.SourceProduct})
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, domain.SourceProduct, r.Record.Chunk.SourceType)
	}
	assert.Equal(t, "product-0", results[0].Record.Chunk.SourceID)
	assert.Equal(t, "product-4", results[4].Record.Chunk.SourceID)
}

func testThreshold(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	for i, v := range [][]float32{{1, 0, 0, 0}, {0.6, 0.8, 0, 0}, {-1, 0, 0, 0}} {
		_, err := s.Insert(ctx, Record(domain.SourceFAQ, fmt.Sprintf("faq-%d", i), 0, v...))
		require.NoError(t, err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: 10})
	require.NoError(t, err)
	assert.Len(t, results, 2, "default threshold 0 excludes negative similarity")

	results, err = s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: 10, Threshold: 0.7})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "faq-0", results[0].Record.Chunk.SourceID)

	results, err = s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: 10, Threshold: -1})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func testSearchArguments(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	_, err := s.Insert(ctx, Record(domain.SourceProduct, "p", 0, 1, 0, 0, 0))
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: 0})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.Search(ctx, []float32{1, 0}, domain.SearchOptions{K: 3})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: 3, SourceType: "blog"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	results, err = s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: 3, SourceType: domain.SourcePolicy})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func testTieBreak(t *testing.T, s port.VectorStore) {
	cs, ok := s.(clockSetter)
	if !ok {
		t.Skip("store has no controllable clock")
	}
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	tick := 0
	cs.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	for _, id := range []string{"older", "middle", "newest"} {
		_, err := s.Insert(ctx, Record(domain.SourceProduct, id, 0, 0, 1, 0, 0))
		require.NoError(t, err)
	}

	results, err := s.Search(ctx, []float32{0, 1, 0, 0}, domain.SearchOptions{K: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "newest", results[0].Record.Chunk.SourceID)
	assert.Equal(t, "middle", results[1].Record.Chunk.SourceID)
	assert.Equal(t, "older", results[2].Record.Chunk.SourceID)
}

func testDeleteIdempotent(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Insert(ctx, Record(domain.SourceProduct, "oslo-sofa", i, 1, 0, 0, 0))
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, Record(domain.SourceProduct, "bergen-chair", 0, 1, 0, 0, 0))
	require.NoError(t, err)

	n, err := s.DeleteBySource(ctx, domain.SourceProduct, "oslo-sofa")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.DeleteBySource(ctx, domain.SourceProduct, "oslo-sofa")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteBySource(ctx, domain.SourceFAQ, "never-existed")
	require.NoError(t, err)
	assert.Zero(t, n)

	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func testReplaceSource(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	_, _, err := s.ReplaceSource(ctx, domain.SourceProduct, "oslo-sofa", []domain.NewRecord{
		Record(domain.SourceProduct, "oslo-sofa", 0, 1, 0, 0, 0),
		Record(domain.SourceProduct, "oslo-sofa", 1, 0, 1, 0, 0),
	})
	require.NoError(t, err)

	replaced, ids, err := s.ReplaceSource(ctx, domain.SourceProduct, "oslo-sofa", []domain.NewRecord{
		Record(domain.SourceProduct, "oslo-sofa", 1, 0, 0, 1, 0),
		Record(domain.SourceProduct, "oslo-sofa", 0, 0, 0, 0, 1),
		Record(domain.SourceProduct, "oslo-sofa", 2, 1, 1, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, replaced)
	require.Len(t, ids, 3)

	recs, err := s.ListBySource(ctx, domain.SourceProduct, "oslo-sofa")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, i, r.Chunk.Position)
	}
	assert.Equal(t, ids[1], recs[0].ID)

	// a bad record aborts the replace and keeps the current version
	_, _, err = s.ReplaceSource(ctx, domain.SourceProduct, "oslo-sofa", []domain.NewRecord{
		Record(domain.SourceProduct, "oslo-sofa", 0, 1, 0, 0, 0),
		Record(domain.SourceProduct, "oslo-sofa", 1, 1, 0),
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, _, err = s.ReplaceSource(ctx, domain.SourceProduct, "oslo-sofa", []domain.NewRecord{
		Record(domain.SourceFAQ, "other", 0, 1, 0, 0, 0),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	recs, err = s.ListBySource(ctx, domain.SourceProduct, "oslo-sofa")
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	replaced, ids, err = s.ReplaceSource(ctx, domain.SourceProduct, "oslo-sofa", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, replaced)
	assert.Empty(t, ids)
}

func testReplaceAtomic(t *testing.T, s port.VectorStore) {
	ctx := context.Background()
	const generations = 20

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for g := 0; g < generations; g++ {
			recs := make([]domain.NewRecord, 3)
			for i := range recs {
				recs[i] = Record(domain.SourceProduct, "oslo-sofa", i, 1, float32(i), 0, 0)
				recs[i].Metadata = domain.Metadata{"generation": domain.Number(float64(g))}
			}
			_, _, err := s.ReplaceSource(ctx, domain.SourceProduct, "oslo-sofa", recs)
			assert.NoError(t, err)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < generations; i++ {
				results, err := s.Search(ctx, []float32{1, 0, 0, 0}, domain.SearchOptions{K: 10, SourceType: domain.SourceProduct})
				if !assert.NoError(t, err) {
					return
				}
				if len(results) == 0 {
					continue
				}
				assert.Len(t, results, 3, "a reader saw a partially applied replace")
				gen := results[0].Record.Metadata["generation"]
				for _, res := range results {
					assert.True(t, gen.Equal(res.Record.Metadata["generation"]), "mixed generations")
				}
			}
		}()
	}
	wg.Wait()
}
