package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/index"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// MemoryStore is a non-persistent VectorStore. Writes take the store lock,
// so searches never see a half-applied replace.
type MemoryStore struct {
	mu      sync.RWMutex
	catalog *Catalog
	closed  bool
}

// NewMemoryStore creates a store over idx; a nil idx means exact search.
func NewMemoryStore(dimension int, idx port.VectorIndex) *MemoryStore {
	if idx == nil {
		idx = index.NewFlat()
	}
	return &MemoryStore{catalog: NewCatalog(dimension, idx)}
}

// SetClock replaces the timestamp source; used by tests that need
// deterministic created_at ordering.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog.SetClock(now)
}

func (s *MemoryStore) Insert(ctx context.Context, rec domain.NewRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	prepared, err := s.catalog.Prepare(rec)
	if err != nil {
		return "", err
	}
	s.catalog.Put(prepared)
	return prepared.ID, nil
}

func (s *MemoryStore) BatchInsert(ctx context.Context, recs []domain.NewRecord) ([]domain.InsertResult, error) {
	return InsertEach(ctx, recs, s.Insert)
}

func (s *MemoryStore) ReplaceSource(ctx context.Context, sourceType domain.SourceType, sourceID string, recs []domain.NewRecord) (int, []string, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, nil, err
	}

	prepared, err := s.catalog.PrepareReplacement(sourceType, sourceID, recs)
	if err != nil {
		return 0, nil, err
	}

	removed := s.catalog.DeleteSource(sourceType, sourceID)
	ids := make([]string, len(prepared))
	for i, rec := range prepared {
		s.catalog.Put(rec)
		ids[i] = rec.ID
	}
	return len(removed), ids, nil
}

func (s *MemoryStore) DeleteBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return len(s.catalog.DeleteSource(sourceType, sourceID)), nil
}

func (s *MemoryStore) Search(ctx context.Context, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.catalog.Search(query, opts)
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return domain.EmbeddingRecord{}, err
	}
	rec, ok := s.catalog.Get(id)
	if !ok {
		return domain.EmbeddingRecord{}, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]domain.EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.catalog.List(sourceType, sourceID), nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Len(), nil
}

func (s *MemoryStore) Dimension() int {
	return s.catalog.Dimension()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) checkOpen() error {
	if s.closed {
		return domain.Unavailable("memory store", fmt.Errorf("store is closed"))
	}
	return nil
}

// InsertEach writes recs one at a time with insert. A failed item does not
// stop the batch; cancellation does, and every item not yet attempted
// carries the context error.
func InsertEach(ctx context.Context, recs []domain.NewRecord, insert func(context.Context, domain.NewRecord) (string, error)) ([]domain.InsertResult, error) {
	results := make([]domain.InsertResult, len(recs))
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(recs); j++ {
				results[j].Err = err
			}
			return results, err
		}
		id, err := insert(ctx, rec)
		results[i] = domain.InsertResult{ID: id, Err: err}
	}
	return results, nil
}
