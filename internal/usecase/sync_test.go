package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/fs"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

func TestSyncJobOnlyEmbedsChangedFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 10)
	root := t.TempDir()
	write := func(name, text string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(text), 0644))
	}
	write("returns.md", "# Returns\n\nUnused items can be returned within 30 days.")
	write("warranty.md", "# Warranty\n\nSofas carry a five year frame warranty.")

	job := NewSyncJob(f.ingest, fs.NewWalker([]string{"**/*.md"}, nil), root, domain.SourcePolicy)
	assert.Equal(t, "sync:policy", job.Name())

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 2, job.LastResult.Ingested)
	assert.Zero(t, job.LastResult.Skipped)

	write("warranty.md", "# Warranty\n\nSofas carry a ten year frame warranty.")
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, job.LastResult.Ingested)
	assert.Equal(t, 1, job.LastResult.Skipped)

	recs, err := f.store.ListBySource(ctx, domain.SourcePolicy, "warranty")
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Contains(t, recs[0].Chunk.Text, "ten year")
}

func TestSyncJobMissingRoot(t *testing.T) {
	f := newFixture(t, 50, 10)
	job := NewSyncJob(f.ingest, fs.NewWalker([]string{"**/*.md"}, nil), filepath.Join(t.TempDir(), "missing"), domain.SourcePolicy)
	assert.Error(t, job.Run(context.Background()))
}
