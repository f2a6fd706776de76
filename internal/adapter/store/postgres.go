package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/memstore"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

const tableEmbeddings = "document_embeddings"

var recordColumns = []string{
	"embedding_id", "source_type", "source_id", "position", "content_chunk",
	"embedding", "metadata", "created_at", "updated_at",
}

// PostgresOptions configures OpenPostgres.
type PostgresOptions struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	Lists           int
	Probes          int
}

// PostgresStore implements VectorStore on PostgreSQL with pgvector.
type PostgresStore struct {
	db        *sqlx.DB
	opts      PostgresOptions
	dimension int

	mu            sync.RWMutex
	prep          memstore.Preparer
	iterativeScan bool
}

type recordRow struct {
	ID         string          `db:"embedding_id"`
	SourceType string          `db:"source_type"`
	SourceID   string          `db:"source_id"`
	Position   int             `db:"position"`
	Content    string          `db:"content_chunk"`
	Embedding  pgvector.Vector `db:"embedding"`
	Metadata   []byte          `db:"metadata"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
	Similarity float64         `db:"similarity"`
}

func (r recordRow) record() (domain.EmbeddingRecord, error) {
	var md domain.Metadata
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &md); err != nil {
			return domain.EmbeddingRecord{}, fmt.Errorf("record %s metadata: %w", r.ID, err)
		}
		if len(md) == 0 {
			md = nil
		}
	}
	return domain.EmbeddingRecord{
		ID: r.ID,
		Chunk: domain.Chunk{
			SourceType: domain.SourceType(r.SourceType),
			SourceID:   r.SourceID,
			Text:       r.Content,
			Position:   r.Position,
		},
		Vector:    r.Embedding.Slice(),
		Metadata:  md,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

// OpenPostgres connects and pings the database. It does not migrate.
func OpenPostgres(ctx context.Context, dimension int, opts PostgresOptions) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := &PostgresStore{
		db:        db,
		opts:      opts,
		prep:      memstore.NewPreparer(dimension),
		dimension: dimension,
	}

	pingCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, classify("ping postgres", err)
	}

	// The extension may not be installed until the first Migrate.
	var version string
	if err := db.GetContext(pingCtx, &version, "SELECT extversion FROM pg_extension WHERE extname = 'vector'"); err == nil {
		s.iterativeScan = supportsIterativeScan(version)
	}
	return s, nil
}

// supportsIterativeScan reports whether a pgvector version has
// ivfflat.iterative_scan, added in 0.8.0.
func supportsIterativeScan(version string) bool {
	var major, minor int
	if _, err := fmt.Sscanf(version, "%d.%d", &major, &minor); err != nil {
		return false
	}
	return major > 0 || minor >= 8
}

func (s *PostgresStore) setIterativeScan(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterativeScan = on
}

func (s *PostgresStore) usesIterativeScan() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iterativeScan
}

// SetClock replaces the timestamp source.
func (s *PostgresStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prep.Now = now
}

func (s *PostgresStore) preparer() memstore.Preparer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prep
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.QueryTimeout)
}

func (s *PostgresStore) Insert(ctx context.Context, rec domain.NewRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prepared, err := s.preparer().Prepare(rec)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := insertRecord(ctx, s.db, prepared); err != nil {
		return "", classify("insert record", err)
	}
	return prepared.ID, nil
}

func (s *PostgresStore) BatchInsert(ctx context.Context, recs []domain.NewRecord) ([]domain.InsertResult, error) {
	return memstore.InsertEach(ctx, recs, s.Insert)
}

// ReplaceSource deletes and re-inserts a source in one transaction,
// serialised per source with an advisory lock.
func (s *PostgresStore) ReplaceSource(ctx context.Context, sourceType domain.SourceType, sourceID string, recs []domain.NewRecord) (int, []string, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	prepared, err := s.preparer().PrepareReplacement(sourceType, sourceID, recs)
	if err != nil {
		return 0, nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, classify("begin replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", string(sourceType)+"/"+sourceID); err != nil {
		return 0, nil, classify("lock source", err)
	}
	removed, err := deleteSource(ctx, tx, sourceType, sourceID)
	if err != nil {
		return 0, nil, classify("delete source", err)
	}

	ids := make([]string, len(prepared))
	for i, rec := range prepared {
		if err := insertRecord(ctx, tx, rec); err != nil {
			return 0, nil, classify("insert record", err)
		}
		ids[i] = rec.ID
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, classify("commit replace", err)
	}
	return removed, ids, nil
}

func (s *PostgresStore) DeleteBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := deleteSource(ctx, s.db, sourceType, sourceID)
	if err != nil {
		return 0, classify("delete source", err)
	}
	return n, nil
}

// Search ranks with the pgvector cosine distance operator. The threshold
// is applied after the LIMIT since rows arrive in similarity order.
//
// ivfflat filters after probing, so a source-type filter can leave fewer
// than K rows even when enough exist. With pgvector 0.8+ the scan keeps
// probing lists until K rows match. Any remaining shortfall is settled by
// rerunning the query as an exact scan.
func (s *PostgresStore) Search(ctx context.Context, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := memstore.ValidateSearch(s.dimension, query, opts); err != nil {
		return nil, err
	}
	if opts.K == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(recordColumns, ", "))
	sb.WriteString(", 1 - (embedding <=> $1) AS similarity FROM ")
	sb.WriteString(tableEmbeddings)
	args := []any{pgvector.NewVector(query)}
	if opts.SourceType != "" {
		args = append(args, string(opts.SourceType))
		sb.WriteString(" WHERE source_type = $2")
	}
	args = append(args, opts.K)
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1, created_at DESC, embedding_id LIMIT $%d", len(args))
	q := sb.String()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, classify("begin search", err)
	}
	defer tx.Rollback()

	if s.opts.Probes > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", s.opts.Probes)); err != nil {
			return nil, classify("set probes", err)
		}
	}
	if opts.SourceType != "" && s.usesIterativeScan() {
		if _, err := tx.ExecContext(ctx, "SET LOCAL ivfflat.iterative_scan = relaxed_order"); err != nil {
			return nil, classify("set iterative scan", err)
		}
	}

	var rows []recordRow
	if err := tx.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, classify("search", err)
	}
	if len(rows) < opts.K {
		if _, err := tx.ExecContext(ctx, "SET LOCAL enable_indexscan = off"); err != nil {
			return nil, classify("disable index scan", err)
		}
		rows = rows[:0]
		if err := tx.SelectContext(ctx, &rows, q, args...); err != nil {
			return nil, classify("exact search", err)
		}
	}

	results := make([]domain.SearchResult, 0, len(rows))
	for _, row := range rows {
		if row.Similarity < opts.Threshold {
			continue
		}
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		results = append(results, domain.SearchResult{Record: rec, Similarity: row.Similarity})
	}
	memstore.Rank(results)
	return results, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (domain.EmbeddingRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q, args, err := builder.BuildSelect(tableEmbeddings, map[string]interface{}{"embedding_id": id}, recordColumns)
	if err != nil {
		return domain.EmbeddingRecord{}, err
	}
	var row recordRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(q), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.EmbeddingRecord{}, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
			// not a uuid
			return domain.EmbeddingRecord{}, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
		}
		return domain.EmbeddingRecord{}, classify("get record", err)
	}
	return row.record()
}

func (s *PostgresStore) ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]domain.EmbeddingRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where := map[string]interface{}{
		"source_type": string(sourceType),
		"source_id":   sourceID,
		"_orderby":    "position ASC, created_at ASC",
	}
	q, args, err := builder.BuildSelect(tableEmbeddings, where, recordColumns)
	if err != nil {
		return nil, err
	}
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, classify("list source", err)
	}
	out := make([]domain.EmbeddingRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q, args, err := builder.BuildSelect(tableEmbeddings, nil, []string{"COUNT(*)"})
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(q), args...); err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

func (s *PostgresStore) Dimension() int {
	return s.dimension
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func insertRecord(ctx context.Context, exec sqlx.ExecerContext, rec domain.EmbeddingRecord) error {
	md := []byte("{}")
	if len(rec.Metadata) > 0 {
		var err error
		if md, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	data := map[string]interface{}{
		"embedding_id":  rec.ID,
		"source_type":   string(rec.Chunk.SourceType),
		"source_id":     rec.Chunk.SourceID,
		"position":      rec.Chunk.Position,
		"content_chunk": rec.Chunk.Text,
		"embedding":     pgvector.NewVector(rec.Vector),
		"metadata":      string(md),
		"created_at":    rec.CreatedAt,
		"updated_at":    rec.UpdatedAt,
	}
	q, args, err := builder.BuildInsert(tableEmbeddings, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	return err
}

func deleteSource(ctx context.Context, exec sqlx.ExecerContext, sourceType domain.SourceType, sourceID string) (int, error) {
	where := map[string]interface{}{
		"source_type": string(sourceType),
		"source_id":   sourceID,
	}
	q, args, err := builder.BuildDelete(tableEmbeddings, where)
	if err != nil {
		return 0, err
	}
	res, err := exec.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// classify wraps connection-level failures as ErrStoreUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08", // connection exception
			pqErr.Code.Class() == "53", // insufficient resources
			pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
			return domain.Unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return domain.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
