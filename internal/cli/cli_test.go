package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/store"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "<1s", formatDuration(300*time.Millisecond))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m5s", formatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h10m", formatDuration(2*time.Hour+10*time.Minute))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "sofa", truncate("sofa", 10))
	assert.Equal(t, "söf...", truncate("söfa", 3))
}

func writeConfig(t *testing.T, dir string, dim int) {
	t.Helper()
	cfg := fmt.Sprintf("embedding:\n  provider: hashing\n  dimension: %d\nstore:\n  backend: bolt\n  path: .rag/vectors.db\n", dim)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rag.yaml"), []byte(cfg), 0644))
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func countRecords(t *testing.T, dir string, dim int) int {
	t.Helper()
	s, err := store.OpenBolt(filepath.Join(dir, ".rag", "vectors.db"), dim, store.BoltOptions{})
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestCommandsAgainstBoltStore(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, 64)

	require.NoError(t, execute(t, "--dir", dir, "ingest",
		"--type", "product",
		"--id", "oslo-sofa",
		"--text", "The Oslo sofa is a three-seat leather sofa available in brown and grey.",
		"--meta", "title=Oslo sofa"))
	assert.Equal(t, 1, countRecords(t, dir, 64))

	require.NoError(t, execute(t, "--dir", dir, "search", "brown leather sofa", "--type", "product", "--json"))
	require.NoError(t, execute(t, "--dir", dir, "context", "brown leather sofa", "--max-chars", "500"))
	require.NoError(t, execute(t, "--dir", dir, "stats"))
	require.NoError(t, execute(t, "--dir", dir, "migrate", "--reindex"))
	assert.Equal(t, 1, countRecords(t, dir, 64))

	require.NoError(t, execute(t, "--dir", dir, "delete", "--type", "product", "--id", "oslo-sofa"))
	assert.Equal(t, 0, countRecords(t, dir, 64))

	assert.Error(t, execute(t, "--dir", dir, "search", "sofa", "--type", "blog"))

	// A new dimension makes the stored schema unusable until rebuilt.
	writeConfig(t, dir, 32)
	assert.Error(t, execute(t, "--dir", dir, "context", "sofa"))
	require.NoError(t, execute(t, "--dir", dir, "migrate", "--rebuild"))
	require.NoError(t, execute(t, "--dir", dir, "context", "sofa"))
}
