package port

import "context"

// EmbeddingModel is a backend that turns texts into dense vectors.
type EmbeddingModel interface {
	// EmbedTexts returns one vector per input text, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of the vectors the model produces.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// Loader is implemented by models that need a one-time warm-up before the
// first call (pulling weights, checking the server is reachable).
type Loader interface {
	Load(ctx context.Context) error
}

// Embedder is the embedding generator used by the ingest and retrieval
// use cases.
type Embedder interface {
	// EmbedOne embeds a single non-blank text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts, preserving order. A failure of any item fails
	// the whole call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimension() int

	ModelName() string
}
