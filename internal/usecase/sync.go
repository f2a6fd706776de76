package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/logging"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// SyncJob re-ingests a content directory. Unchanged files are skipped by
// their content hash, so a run only embeds what was edited.
type SyncJob struct {
	ingest     *IngestUseCase
	walker     port.FileWalker
	root       string
	sourceType domain.SourceType

	// LastResult is the outcome of the most recent run.
	LastResult *BatchResult
}

func NewSyncJob(ingest *IngestUseCase, walker port.FileWalker, root string, sourceType domain.SourceType) *SyncJob {
	return &SyncJob{
		ingest:     ingest,
		walker:     walker,
		root:       root,
		sourceType: sourceType,
	}
}

func (j *SyncJob) Name() string {
	return fmt.Sprintf("sync:%s", j.sourceType)
}

func (j *SyncJob) Run(ctx context.Context) error {
	docs, err := LoadDocuments(j.walker, j.root, j.sourceType)
	if err != nil {
		return err
	}
	result, err := j.ingest.IngestAll(ctx, docs, false, nil)
	j.LastResult = result
	if err != nil {
		return err
	}

	logging.FromContext(ctx).Info("sync complete",
		zap.String("root", j.root),
		zap.String("source_type", j.sourceType.String()),
		zap.Int("ingested", result.Ingested),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("chunks", result.Chunks))

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d sources failed, first: %s", result.Failed, len(docs), result.Errors[0])
	}
	return nil
}
