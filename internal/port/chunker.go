package port

import "github.com/vanessasara/full-stack-Devops/internal/domain"

// Chunker splits a source document into retrievable chunks.
type Chunker interface {
	Chunk(doc domain.SourceDocument) ([]domain.Chunk, error)
}
