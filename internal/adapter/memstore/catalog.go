package memstore

import (
	"fmt"
	"sort"
	"time"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

type sourceKey struct {
	sourceType domain.SourceType
	sourceID   string
}

// Catalog is the in-memory record set shared by the memory and bolt
// stores: records by id, a (source_type, source_id) secondary index and a
// pluggable similarity index. It is not safe for concurrent use; owners
// guard it with their own lock.
type Catalog struct {
	dimension int
	records   map[string]domain.EmbeddingRecord
	bySource  map[sourceKey]map[string]struct{}
	index     port.VectorIndex
	prep      Preparer
}

func NewCatalog(dimension int, index port.VectorIndex) *Catalog {
	return &Catalog{
		dimension: dimension,
		records:   make(map[string]domain.EmbeddingRecord),
		bySource:  make(map[sourceKey]map[string]struct{}),
		index:     index,
		prep:      NewPreparer(dimension),
	}
}

// SetClock replaces the timestamp source.
func (c *Catalog) SetClock(now func() time.Time) {
	c.prep.Now = now
}

func (c *Catalog) Dimension() int { return c.dimension }

func (c *Catalog) Len() int { return len(c.records) }

func (c *Catalog) IndexName() string { return c.index.Name() }

// Prepare validates rec and stamps it; it does not add it.
func (c *Catalog) Prepare(rec domain.NewRecord) (domain.EmbeddingRecord, error) {
	return c.prep.Prepare(rec)
}

// PrepareReplacement prepares every record of a replace before anything
// is removed.
func (c *Catalog) PrepareReplacement(sourceType domain.SourceType, sourceID string, recs []domain.NewRecord) ([]domain.EmbeddingRecord, error) {
	return c.prep.PrepareReplacement(sourceType, sourceID, recs)
}

// Put adds or overwrites a prepared record.
func (c *Catalog) Put(rec domain.EmbeddingRecord) {
	if old, ok := c.records[rec.ID]; ok {
		c.unlink(old)
	}
	c.records[rec.ID] = rec
	key := sourceKey{rec.Chunk.SourceType, rec.Chunk.SourceID}
	ids, ok := c.bySource[key]
	if !ok {
		ids = make(map[string]struct{})
		c.bySource[key] = ids
	}
	ids[rec.ID] = struct{}{}
	c.index.Add(rec.ID, rec.Vector)
}

// DeleteSource removes every record of the source and returns their ids.
func (c *Catalog) DeleteSource(sourceType domain.SourceType, sourceID string) []string {
	ids := c.SourceRecordIDs(sourceType, sourceID)
	for _, id := range ids {
		c.Delete(id)
	}
	return ids
}

// Delete removes one record; unknown ids are ignored.
func (c *Catalog) Delete(id string) {
	rec, ok := c.records[id]
	if !ok {
		return
	}
	c.unlink(rec)
	delete(c.records, id)
}

func (c *Catalog) unlink(rec domain.EmbeddingRecord) {
	key := sourceKey{rec.Chunk.SourceType, rec.Chunk.SourceID}
	if ids, ok := c.bySource[key]; ok {
		delete(ids, rec.ID)
		if len(ids) == 0 {
			delete(c.bySource, key)
		}
	}
	c.index.Remove(rec.ID)
}

// SourceRecordIDs returns the ids of a source's records, sorted.
func (c *Catalog) SourceRecordIDs(sourceType domain.SourceType, sourceID string) []string {
	set := c.bySource[sourceKey{sourceType, sourceID}]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Catalog) Get(id string) (domain.EmbeddingRecord, bool) {
	rec, ok := c.records[id]
	if !ok {
		return domain.EmbeddingRecord{}, false
	}
	return copyRecord(rec), true
}

// List returns a source's records ordered by position.
func (c *Catalog) List(sourceType domain.SourceType, sourceID string) []domain.EmbeddingRecord {
	ids := c.SourceRecordIDs(sourceType, sourceID)
	out := make([]domain.EmbeddingRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyRecord(c.records[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Chunk.Position < out[j].Chunk.Position
	})
	return out
}

// Reset drops every record.
func (c *Catalog) Reset() {
	for id := range c.records {
		c.index.Remove(id)
	}
	c.records = make(map[string]domain.EmbeddingRecord)
	c.bySource = make(map[sourceKey]map[string]struct{})
}

// Search filters by source type, ranks by descending similarity with ties
// going to the newest record, and cuts to opts.K.
func (c *Catalog) Search(query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if err := ValidateSearch(c.dimension, query, opts); err != nil {
		return nil, err
	}
	if opts.K == 0 || len(c.records) == 0 {
		return nil, nil
	}

	q := port.IndexQuery{
		Vector:   query,
		K:        opts.K,
		MinScore: opts.Threshold,
	}
	if opts.SourceType != "" {
		q.Accept = func(id string) bool {
			return c.records[id].Chunk.SourceType == opts.SourceType
		}
	}

	cands := c.index.Search(q)
	results := make([]domain.SearchResult, 0, len(cands))
	for _, cand := range cands {
		rec, ok := c.records[cand.ID]
		if !ok {
			continue
		}
		results = append(results, domain.SearchResult{Record: rec, Similarity: cand.Score})
	}

	Rank(results)
	if len(results) > opts.K {
		results = results[:opts.K]
	}
	for i := range results {
		results[i].Record = copyRecord(results[i].Record)
	}
	return results, nil
}

// ValidateSearch checks the parts of a search request every backend shares.
func ValidateSearch(dimension int, query []float32, opts domain.SearchOptions) error {
	if opts.K < 0 {
		return fmt.Errorf("%w: k must not be negative, got %d", domain.ErrInvalidInput, opts.K)
	}
	if opts.SourceType != "" && !opts.SourceType.Valid() {
		return fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidInput, opts.SourceType)
	}
	if opts.K == 0 {
		return nil
	}
	return domain.CheckDimension(dimension, query)
}

// Rank sorts results by descending similarity, then newest CreatedAt,
// then id.
func Rank(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.ID < b.Record.ID
	})
}

func copyRecord(rec domain.EmbeddingRecord) domain.EmbeddingRecord {
	rec.Vector = cloneVector(rec.Vector)
	rec.Metadata = rec.Metadata.Clone()
	return rec
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
