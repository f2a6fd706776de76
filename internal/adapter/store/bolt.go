package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/index"
	"github.com/vanessasara/full-stack-Devops/internal/adapter/memstore"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
)

// BoltStore implements VectorStore on a bbolt file. Every record is also
// held in memory for search; the in-memory view is updated only after the
// bolt transaction commits.
type BoltStore struct {
	db      *bbolt.DB
	path    string
	mu      sync.RWMutex
	catalog *memstore.Catalog
	stale   int
	closed  bool
}

// storedRecord is the on-disk form of a record.
type storedRecord struct {
	ID        string          `json:"id"`
	Chunk     domain.Chunk    `json:"chunk"`
	Vector    []float32       `json:"v"`
	Metadata  domain.Metadata `json:"m,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BoltOptions configures OpenBolt.
type BoltOptions struct {
	// Timeout bounds the wait for the file lock held by another process.
	Timeout time.Duration
	// Index is the similarity index; nil means exact search.
	Index port.VectorIndex
}

// OpenBolt opens or creates the store at path.
func OpenBolt(path string, dimension int, opts BoltOptions) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, domain.Unavailable("open bolt store "+path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	idx := opts.Index
	if idx == nil {
		idx = index.NewFlat()
	}
	s := &BoltStore{
		db:      db,
		path:    path,
		catalog: memstore.NewCatalog(dimension, idx),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return s, nil
}

// load reads every record into the catalog. Records of another dimension
// are counted as stale and left on disk until a rebuild.
func (s *BoltStore) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var stored storedRecord
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("record %s: %w", k, err)
			}
			if len(stored.Vector) != s.catalog.Dimension() {
				s.stale++
				return nil
			}
			s.catalog.Put(domain.EmbeddingRecord{
				ID:        stored.ID,
				Chunk:     stored.Chunk,
				Vector:    stored.Vector,
				Metadata:  stored.Metadata,
				CreatedAt: stored.CreatedAt,
				UpdatedAt: stored.UpdatedAt,
			})
			return nil
		})
	})
}

// SetClock replaces the timestamp source.
func (s *BoltStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog.SetClock(now)
}

// Path returns the file the store was opened from.
func (s *BoltStore) Path() string { return s.path }

func (s *BoltStore) Insert(ctx context.Context, rec domain.NewRecord) (string, error) {
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
	data, err := encodeRecord(prepared)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte(prepared.ID), data)
	})
	if err != nil {
		return "", domain.Unavailable("bolt insert", err)
	}
	s.catalog.Put(prepared)
	return prepared.ID, nil
}

func (s *BoltStore) BatchInsert(ctx context.Context, recs []domain.NewRecord) ([]domain.InsertResult, error) {
	return memstore.InsertEach(ctx, recs, s.Insert)
}

// ReplaceSource swaps a source's records in a single bolt transaction.
func (s *BoltStore) ReplaceSource(ctx context.Context, sourceType domain.SourceType, sourceID string, recs []domain.NewRecord) (int, []string, error) {
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
	encoded := make([][]byte, len(prepared))
	for i, rec := range prepared {
		if encoded[i], err = encodeRecord(rec); err != nil {
			return 0, nil, err
		}
	}

	old := s.catalog.SourceRecordIDs(sourceType, sourceID)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for _, id := range old {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		for i, rec := range prepared {
			if err := b.Put([]byte(rec.ID), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, domain.Unavailable("bolt replace source", err)
	}

	s.catalog.DeleteSource(sourceType, sourceID)
	ids := make([]string, len(prepared))
	for i, rec := range prepared {
		s.catalog.Put(rec)
		ids[i] = rec.ID
	}
	return len(old), ids, nil
}

func (s *BoltStore) DeleteBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	ids := s.catalog.SourceRecordIDs(sourceType, sourceID)
	if len(ids) == 0 {
		return 0, nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, domain.Unavailable("bolt delete source", err)
	}
	s.catalog.DeleteSource(sourceType, sourceID)
	return len(ids), nil
}

func (s *BoltStore) Search(ctx context.Context, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
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

func (s *BoltStore) Get(ctx context.Context, id string) (domain.EmbeddingRecord, error) {
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

func (s *BoltStore) ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]domain.EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.catalog.List(sourceType, sourceID), nil
}

func (s *BoltStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.catalog.Len(), nil
}

func (s *BoltStore) Dimension() int {
	return s.catalog.Dimension()
}

// IndexName reports the similarity index in use.
func (s *BoltStore) IndexName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.IndexName()
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BoltStore) checkOpen() error {
	if s.closed {
		return domain.Unavailable("bolt store", bbolt.ErrDatabaseNotOpen)
	}
	return nil
}

func encodeRecord(rec domain.EmbeddingRecord) ([]byte, error) {
	data, err := json.Marshal(storedRecord{
		ID:        rec.ID,
		Chunk:     rec.Chunk,
		Vector:    rec.Vector,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return data, nil
}

// IsLocked reports whether err comes from another process holding the file.
func IsLocked(err error) bool {
	return errors.Is(err, bbolt.ErrTimeout)
}
