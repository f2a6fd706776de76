package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

// OllamaModel embeds texts with a model served by Ollama. all-minilm
// produces the 384-dimension vectors of the reference deployment.
type OllamaModel struct {
	client    *ollama.Client
	model     string
	dimension int
}

func NewOllamaModel(model, baseURL string, dimension int, timeout time.Duration) (*OllamaModel, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "all-minilm"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	client := ollama.NewClient(parsedURL, &http.Client{Timeout: timeout})
	return &OllamaModel{client: client, model: model, dimension: dimension}, nil
}

// Load checks the server is up and that the model produces vectors of the
// expected dimension.
func (m *OllamaModel) Load(ctx context.Context) error {
	if err := m.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	vecs, err := m.EmbedTexts(ctx, []string{"dimension probe"})
	if err != nil {
		return err
	}
	return domain.CheckDimension(m.dimension, vecs[0])
}

func (m *OllamaModel) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := m.client.Embed(ctx, &ollama.EmbedRequest{
		Model: m.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get embeddings from ollama: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (m *OllamaModel) Dimension() int    { return m.dimension }
func (m *OllamaModel) ModelName() string { return m.model }
