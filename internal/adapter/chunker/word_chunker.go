package chunker

import (
	"fmt"
	"strings"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/analyzer"
	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

// WordChunker cuts documents into overlapping windows of whole words.
type WordChunker struct {
	size    int
	overlap int
}

// NewWordChunker validates 0 <= overlap < size.
func NewWordChunker(size, overlap int) (*WordChunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &WordChunker{size: size, overlap: overlap}, nil
}

func (c *WordChunker) Size() int    { return c.size }
func (c *WordChunker) Overlap() int { return c.overlap }

func (c *WordChunker) Chunk(doc domain.SourceDocument) ([]domain.Chunk, error) {
	texts, err := Split(doc.Text, c.size, c.overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			SourceType: doc.SourceType,
			SourceID:   doc.SourceID,
			Text:       text,
			Position:   i,
		}
	}
	return chunks, nil
}

// Split returns windows of size words advancing by size-overlap words. The
// last window holds whatever remains. Words are rejoined with single spaces.
// Blank text yields no windows.
func Split(text string, size, overlap int) ([]string, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	words := analyzer.Words(text)
	if len(words) == 0 {
		return nil, nil
	}
	if len(words) <= size {
		return []string{strings.Join(words, " ")}, nil
	}

	step := size - overlap
	var out []string
	for start := 0; ; start += step {
		end := start + size
		if end >= len(words) {
			out = append(out, strings.Join(words[start:], " "))
			break
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out, nil
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", domain.ErrInvalidInput, size, overlap)
	}
	return nil
}
