package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIModel(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		// answer out of order; the model must reorder by index
		resp := embeddingResponse{Data: []embeddingData{
			{Index: 1, Embedding: []float32{0, 1, 0}},
			{Index: 0, Embedding: []float32{1, 0, 0}},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	t.Setenv("RAG_TEST_OPENAI_KEY", "test-key")
	m, err := NewOpenAIModel(OpenAIOptions{
		APIKeyEnv: "RAG_TEST_OPENAI_KEY",
		BaseURL:   srv.URL + "/",
		Dimension: 3,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	vecs, err := m.EmbedTexts(context.Background(), []string{"sofa", "bed"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vecs)
	assert.Equal(t, 3, got.Dimensions)
	assert.Equal(t, "text-embedding-3-small", got.Model)
	assert.Equal(t, []string{"sofa", "bed"}, got.Input)
}

func TestOpenAIModelErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	t.Setenv("RAG_TEST_OPENAI_KEY", "test-key")
	m, err := NewOpenAIModel(OpenAIOptions{APIKeyEnv: "RAG_TEST_OPENAI_KEY", BaseURL: srv.URL, Dimension: 3})
	require.NoError(t, err)

	_, err = m.EmbedTexts(context.Background(), []string{"sofa"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = NewOpenAIModel(OpenAIOptions{APIKeyEnv: "RAG_TEST_OPENAI_KEY_UNSET"})
	assert.Error(t, err)
}

func TestOllamaModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/api/embed":
			var req map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "all-minilm", req["model"])
			inputs, _ := req["input"].([]any)
			embeddings := make([][]float32, len(inputs))
			for i := range embeddings {
				embeddings[i] = []float32{float32(i), 1, 0, 0}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"model": "all-minilm", "embeddings": embeddings})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m, err := NewOllamaModel("", srv.URL, 4, 5*time.Second)
	require.NoError(t, err)

	g := NewGenerator(m)
	vecs, err := g.EmbedBatch(context.Background(), []string{"sofa", "bed"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1, 0, 0}, {1, 1, 0, 0}}, vecs)
}

func TestOllamaModelLoadDetectsDimensionDrift(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/embed" {
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 2}}})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, err := NewOllamaModel("nomic-embed-text", srv.URL, 384, time.Second)
	require.NoError(t, err)
	assert.Error(t, m.Load(context.Background()))
}
