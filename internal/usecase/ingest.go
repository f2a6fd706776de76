package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/fs"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/logging"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// MetaContentHash is the metadata key holding the fingerprint of the
// document a record was cut from.
const MetaContentHash = "content_hash"

const maxRetryDelay = 5 * time.Second

// Invalidator is notified after every successful write.
type Invalidator interface {
	Invalidate()
}

// IngestUseCase turns source documents into stored embedding records.
type IngestUseCase struct {
	chunker     port.Chunker
	embedder    port.Embedder
	store       port.VectorStore
	invalidator Invalidator

	maxRetries int
	retryDelay time.Duration
}

// IngestOption configures an IngestUseCase.
type IngestOption func(*IngestUseCase)

// WithRetry retries store writes that fail with ErrStoreUnavailable up to
// maxRetries times, doubling the delay from base each time.
func WithRetry(maxRetries int, base time.Duration) IngestOption {
	return func(u *IngestUseCase) {
		u.maxRetries = maxRetries
		u.retryDelay = base
	}
}

// WithInvalidator registers a hook run after writes, typically a query cache.
func WithInvalidator(inv Invalidator) IngestOption {
	return func(u *IngestUseCase) {
		u.invalidator = inv
	}
}

// NewIngestUseCase creates a new ingest use case.
func NewIngestUseCase(
	chunker port.Chunker,
	embedder port.Embedder,
	store port.VectorStore,
	opts ...IngestOption,
) *IngestUseCase {
	u := &IngestUseCase{
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		maxRetries: 3,
		retryDelay: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// IngestResult describes the outcome for one document.
type IngestResult struct {
	SourceType domain.SourceType
	SourceID   string
	Chunks     int
	Replaced   int
	Skipped    bool
	IDs        []string
}

// Ingest chunks, embeds and stores doc, replacing any earlier version of
// the same source. Unless force is set, a document whose content hash
// matches the stored records is skipped.
func (u *IngestUseCase) Ingest(ctx context.Context, doc domain.SourceDocument, force bool) (*IngestResult, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx).With(
		zap.String("source_type", doc.SourceType.String()),
		zap.String("source_id", doc.SourceID))

	result := &IngestResult{SourceType: doc.SourceType, SourceID: doc.SourceID}
	hash, err := ContentHash(doc, u.embedderLabel())
	if err != nil {
		return nil, err
	}

	if !force {
		existing, err := u.store.ListBySource(ctx, doc.SourceType, doc.SourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to list existing records: %w", err)
		}
		if unchanged(existing, hash) {
			logger.Debug("document unchanged, skipping")
			result.Skipped = true
			result.Chunks = len(existing)
			return result, nil
		}
	}

	chunks, err := u.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}

	recs := make([]domain.NewRecord, len(chunks))
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := u.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		for i, c := range chunks {
			md := doc.Metadata.Clone()
			if md == nil {
				md = make(domain.Metadata, 1)
			}
			md[MetaContentHash] = domain.String(hash)
			recs[i] = domain.NewRecord{Chunk: c, Vector: vectors[i], Metadata: md}
		}
	}

	err = u.retry(ctx, "replace source", func() error {
		var err error
		result.Replaced, result.IDs, err = u.store.ReplaceSource(ctx, doc.SourceType, doc.SourceID, recs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store records: %w", err)
	}
	result.Chunks = len(recs)
	u.invalidate()

	logger.Info("ingested document",
		zap.Int("chunks", result.Chunks),
		zap.Int("replaced", result.Replaced))
	return result, nil
}

// BatchResult summarises IngestAll.
type BatchResult struct {
	Ingested int
	Skipped  int
	Failed   int
	Chunks   int
	Errors   []string
}

// IngestAll ingests docs one by one. A failing document is recorded and
// the rest continue; cancellation stops the batch.
func (u *IngestUseCase) IngestAll(ctx context.Context, docs []domain.SourceDocument, force bool, progress func(done, total int)) (*BatchResult, error) {
	result := &BatchResult{}
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		r, err := u.Ingest(ctx, doc, force)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", doc.SourceType, doc.SourceID, err))
		case r.Skipped:
			result.Skipped++
		default:
			result.Ingested++
			result.Chunks += r.Chunks
		}
		if progress != nil {
			progress(i+1, len(docs))
		}
	}
	return result, nil
}

// Remove deletes every record of a source. Removing an unknown source
// returns 0.
func (u *IngestUseCase) Remove(ctx context.Context, sourceType domain.SourceType, sourceID string) (int, error) {
	var n int
	err := u.retry(ctx, "delete source", func() error {
		var err error
		n, err = u.store.DeleteBySource(ctx, sourceType, sourceID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		u.invalidate()
	}
	return n, nil
}

func (u *IngestUseCase) invalidate() {
	if u.invalidator != nil {
		u.invalidator.Invalidate()
	}
}

// retry runs op, retrying ErrStoreUnavailable with bounded exponential
// backoff. Other errors return at once.
func (u *IngestUseCase) retry(ctx context.Context, name string, op func() error) error {
	delay := u.retryDelay
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil || !errors.Is(err, domain.ErrStoreUnavailable) || attempt >= u.maxRetries {
			return err
		}
		logging.FromContext(ctx).Warn("store unavailable, retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func unchanged(existing []domain.EmbeddingRecord, hash string) bool {
	if len(existing) == 0 {
		return false
	}
	for _, rec := range existing {
		if h, _ := rec.Metadata.GetString(MetaContentHash); h != hash {
			return false
		}
	}
	return true
}

// ContentHash fingerprints a document's text and metadata together with
// the embedder that produced its vectors, so switching models re-embeds
// documents whose text did not change.
func ContentHash(doc domain.SourceDocument, embedder string) (string, error) {
	h := sha256.New()
	h.Write([]byte(embedder))
	h.Write([]byte{0})
	h.Write([]byte(doc.Text))
	h.Write([]byte{0})
	if len(doc.Metadata) > 0 {
		md, err := json.Marshal(doc.Metadata)
		if err != nil {
			return "", fmt.Errorf("%w: metadata of %s/%s: %v", domain.ErrInvalidInput, doc.SourceType, doc.SourceID, err)
		}
		h.Write(md)
	}
	return hex.EncodeToString(h.Sum(nil)[:16]), nil
}

func (u *IngestUseCase) embedderLabel() string {
	return fmt.Sprintf("%s/%d", u.embedder.ModelName(), u.embedder.Dimension())
}

// LoadDocuments reads the files under root into source documents of the
// given type. The source id is the slash path relative to root without its
// extension.
func LoadDocuments(walker port.FileWalker, root string, sourceType domain.SourceType) ([]domain.SourceDocument, error) {
	files, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	docs := make([]domain.SourceDocument, 0, len(files))
	for _, f := range files {
		text, err := fs.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.RelPath, err)
		}
		docs = append(docs, domain.SourceDocument{
			SourceType: sourceType,
			SourceID:   strings.TrimSuffix(f.RelPath, path.Ext(f.RelPath)),
			Text:       text,
			Metadata: domain.Metadata{
				"path":  domain.String(f.RelPath),
				"title": domain.String(title(text, f.RelPath)),
			},
		})
	}
	return docs, nil
}

// title returns the first markdown heading, or the file name.
func title(text, relPath string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
				return t
			}
		}
	}
	return strings.TrimSuffix(path.Base(relPath), path.Ext(relPath))
}
