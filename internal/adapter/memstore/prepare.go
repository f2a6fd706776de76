package memstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

// Preparer validates new records and stamps them with an id and
// timestamps. Every backend writes through one.
type Preparer struct {
	Dimension int
	Now       func() time.Time
}

func NewPreparer(dimension int) Preparer {
	return Preparer{
		Dimension: dimension,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p Preparer) Prepare(rec domain.NewRecord) (domain.EmbeddingRecord, error) {
	if err := domain.CheckDimension(p.Dimension, rec.Vector); err != nil {
		return domain.EmbeddingRecord{}, err
	}
	if !rec.Chunk.SourceType.Valid() {
		return domain.EmbeddingRecord{}, fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidInput, rec.Chunk.SourceType)
	}
	if rec.Chunk.SourceID == "" {
		return domain.EmbeddingRecord{}, fmt.Errorf("%w: source id is empty", domain.ErrInvalidInput)
	}
	if rec.Chunk.Text == "" {
		return domain.EmbeddingRecord{}, fmt.Errorf("%w: chunk text is empty", domain.ErrInvalidInput)
	}

	now := p.Now()
	return domain.EmbeddingRecord{
		ID:        newRecordID(),
		Chunk:     rec.Chunk,
		Vector:    cloneVector(rec.Vector),
		Metadata:  rec.Metadata.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// PrepareReplacement prepares the full new version of a source. Any record
// that fails, or belongs to another source, fails the whole replace.
func (p Preparer) PrepareReplacement(sourceType domain.SourceType, sourceID string, recs []domain.NewRecord) ([]domain.EmbeddingRecord, error) {
	prepared := make([]domain.EmbeddingRecord, len(recs))
	for i, rec := range recs {
		if rec.Chunk.SourceType != sourceType || rec.Chunk.SourceID != sourceID {
			return nil, fmt.Errorf("%w: record %d belongs to %s/%s, not %s/%s", domain.ErrInvalidInput,
				i, rec.Chunk.SourceType, rec.Chunk.SourceID, sourceType, sourceID)
		}
		r, err := p.Prepare(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		prepared[i] = r
	}
	return prepared, nil
}

func newRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
