package usecase

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/fs"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

func TestLoadDocuments(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "help"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "help", "delivery.md"), []byte("# Delivery times\n\nFive days."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "about.txt"), []byte("Family business since 1982."), 0644))

	docs, err := LoadDocuments(fs.NewWalker([]string{"**/*.md", "**/*.txt"}, nil), root, domain.SourceFAQ)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byID := map[string]domain.SourceDocument{}
	for _, d := range docs {
		assert.Equal(t, domain.SourceFAQ, d.SourceType)
		byID[d.SourceID] = d
	}

	delivery, ok := byID["help/delivery"]
	require.True(t, ok)
	title, _ := delivery.Metadata.GetString("title")
	assert.Equal(t, "Delivery times", title)
	path, _ := delivery.Metadata.GetString("path")
	assert.Equal(t, "help/delivery.md", path)

	about, ok := byID["about"]
	require.True(t, ok)
	title, _ = about.Metadata.GetString("title")
	assert.Equal(t, "about", title)
}

func TestContentHashCoversMetadata(t *testing.T) {
	doc := domain.SourceDocument{SourceType: domain.SourceProduct, SourceID: "p", Text: "Oslo sofa"}
	base, err := ContentHash(doc, "hashing/256")
	require.NoError(t, err)
	again, err := ContentHash(doc, "hashing/256")
	require.NoError(t, err)
	assert.Equal(t, base, again)

	doc.Metadata = domain.Metadata{"price": domain.Number(1299)}
	withPrice, err := ContentHash(doc, "hashing/256")
	require.NoError(t, err)
	assert.NotEqual(t, base, withPrice)

	doc.Metadata = domain.Metadata{"price": domain.Number(999)}
	cheaper, err := ContentHash(doc, "hashing/256")
	require.NoError(t, err)
	assert.NotEqual(t, withPrice, cheaper)
}

func TestContentHashCoversEmbedder(t *testing.T) {
	doc := domain.SourceDocument{SourceType: domain.SourceProduct, SourceID: "p", Text: "Oslo sofa"}
	a, err := ContentHash(doc, "nomic-embed-text/768")
	require.NoError(t, err)
	b, err := ContentHash(doc, "mxbai-embed-large/768")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestContentHashRejectsUnencodableMetadata(t *testing.T) {
	doc := domain.SourceDocument{
		SourceType: domain.SourceProduct,
		SourceID:   "p",
		Text:       "Oslo sofa",
		Metadata:   domain.Metadata{"price": domain.Number(math.NaN())},
	}
	_, err := ContentHash(doc, "hashing/256")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
