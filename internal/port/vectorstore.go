package port

import (
	"context"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

// VectorStore persists embedding records and answers similarity queries.
// Every write validates the vector dimension.
type VectorStore interface {
	// Insert writes one record and returns its generated id.
	Insert(ctx context.Context, rec domain.NewRecord) (string, error)

	// BatchInsert writes records one after another. The result slice has
	// one entry per input, in input order. Cancellation is honoured between
	// writes; records already written stay.
	BatchInsert(ctx context.Context, recs []domain.NewRecord) ([]domain.InsertResult, error)

	// ReplaceSource atomically deletes every record of the source and writes
	// recs in its place. Writes to the same source are serialized.
	ReplaceSource(ctx context.Context, sourceType domain.SourceType, sourceID string, recs []domain.NewRecord) (int, []string, error)

	// DeleteBySource removes every record of the source and returns how many
	// were removed. Removing an unknown source returns 0.
	DeleteBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) (int, error)

	// Search returns up to opts.K records by descending cosine similarity.
	Search(ctx context.Context, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// Get returns the record with the given id or domain.ErrNotFound.
	Get(ctx context.Context, id string) (domain.EmbeddingRecord, error)

	// ListBySource returns the records of a source ordered by position.
	ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]domain.EmbeddingRecord, error)

	Count(ctx context.Context) (int, error)

	Dimension() int

	Close() error
}

// Candidate is a raw index hit before ranking.
type Candidate struct {
	ID    string
	Score float64
}

// IndexQuery parameterizes a VectorIndex search.
type IndexQuery struct {
	Vector []float32
	// K is the number of accepted candidates the caller needs.
	K int
	// MinScore drops candidates scoring below it.
	MinScore float64
	// Accept filters candidates before ranking; nil accepts everything.
	Accept func(id string) bool
}

// VectorIndex is the similarity-search strategy behind in-process stores.
// Implementations need not be safe for concurrent writes; callers hold the
// store lock.
type VectorIndex interface {
	Add(id string, vector []float32)
	Remove(id string)
	// Search returns accepted candidates scoring at least MinScore. It
	// returns at least min(K, accepted) candidates when that many exist.
	Search(q IndexQuery) []Candidate
	Len() int
	Name() string
}
