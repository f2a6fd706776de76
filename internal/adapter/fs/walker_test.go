package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWalkerIncludesAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "faq/delivery.md", "We deliver within 5 days.")
	writeFile(t, root, "policy/returns.txt", "Returns within 30 days.")
	writeFile(t, root, "images/sofa.png", "binary")
	writeFile(t, root, ".rag/config.yaml", "chunk: {}")
	writeFile(t, root, "node_modules/pkg/readme.md", "ignored")

	w := NewWalker([]string{"**/*.md", "**/*.txt"}, []string{"**/.rag/**", "**/node_modules/**"})
	files, err := w.Walk(root)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		rel = append(rel, f.RelPath)
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Positive(t, f.Size)
	}
	assert.ElementsMatch(t, []string{"faq/delivery.md", "policy/returns.txt"}, rel)
}

func TestWalkerDefaultsToEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "a")
	writeFile(t, root, "b/c.json", "{}")

	files, err := NewWalker(nil, nil).Walk(root)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestReadFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "page.md", "Oslo sofa")
	text, err := ReadFile(filepath.Join(root, "page.md"))
	require.NoError(t, err)
	assert.Equal(t, "Oslo sofa", text)

	_, err = ReadFile(filepath.Join(root, "missing.md"))
	assert.Error(t, err)
}
