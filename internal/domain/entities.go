package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultDimension is the vector length produced by the reference
// sentence-embedding model (all-MiniLM-L6-v2).
const DefaultDimension = 384

// SourceType identifies the kind of document a chunk was cut from.
type SourceType string

const (
	SourceProduct     SourceType = "product"
	SourcePageContent SourceType = "page_content"
	SourceFAQ         SourceType = "faq"
	SourcePolicy      SourceType = "policy"
)

// SourceTypes lists every accepted source type.
var SourceTypes = []SourceType{SourceProduct, SourcePageContent, SourceFAQ, SourcePolicy}

func (t SourceType) Valid() bool {
	switch t {
	case SourceProduct, SourcePageContent, SourceFAQ, SourcePolicy:
		return true
	}
	return false
}

func (t SourceType) String() string {
	return string(t)
}

// ParseSourceType converts user input into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// SourceDocument is a raw document handed over by the content pipeline.
type SourceDocument struct {
	SourceType SourceType
	SourceID   string
	Text       string
	Metadata   Metadata
}

// Validate checks the identifying fields of the document.
func (d SourceDocument) Validate() error {
	if !d.SourceType.Valid() {
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, d.SourceType)
	}
	if strings.TrimSpace(d.SourceID) == "" {
		return fmt.Errorf("%w: source id is empty", ErrInvalidInput)
	}
	return nil
}

// Chunk is a unit of retrievable text.
type Chunk struct {
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	Text       string     `json:"text"`
	Position   int        `json:"position"`
}

// EmbeddingRecord is a persisted chunk together with its vector.
type EmbeddingRecord struct {
	ID        string    `json:"id"`
	Chunk     Chunk     `json:"chunk"`
	Vector    []float32 `json:"-"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord carries the caller-supplied fields of a record about to be written.
type NewRecord struct {
	Chunk    Chunk
	Vector   []float32
	Metadata Metadata
}

// InsertResult is the outcome of one item of a batch insert.
type InsertResult struct {
	ID  string
	Err error
}

// SearchOptions constrains a similarity search.
type SearchOptions struct {
	K          int
	SourceType SourceType // empty means no filter
	Threshold  float64
}

// SearchResult is a record annotated with its cosine similarity to the query.
type SearchResult struct {
	Record     EmbeddingRecord `json:"record"`
	Similarity float64         `json:"similarity"`
}

// ContextRequest describes a retrieval for the agent layer.
type ContextRequest struct {
	Query      string
	K          int
	MaxChars   int
	SourceType SourceType
}

// ContextItem is one passage of a context bundle.
type ContextItem struct {
	Text       string     `json:"text"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	Position   int        `json:"position"`
	Similarity float64    `json:"similarity"`
}

// ContextBundle is the size-bounded set of passages returned to the agent.
type ContextBundle struct {
	Query      string        `json:"query"`
	Items      []ContextItem `json:"items"`
	TotalChars int           `json:"total_chars"`
	MaxChars   int           `json:"max_chars"`
}

func (b ContextBundle) Empty() bool {
	return len(b.Items) == 0
}

// Render concatenates the passages, each prefixed with its attribution.
func (b ContextBundle) Render() string {
	var sb strings.Builder
	for i, item := range b.Items {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s:%s] %s", item.SourceType, item.SourceID, item.Text)
	}
	return sb.String()
}

// CharCount is the budget length of a passage.
func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}
