package embedding

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/vanessasara/full-stack-Devops/internal/adapter/analyzer"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// HashingModel is a deterministic bag-of-words embedder: each term is hashed
// into one of dimension buckets and the resulting vector is L2-normalized.
// It needs no network or model weights.
type HashingModel struct {
	dimension int
	tokenizer port.Tokenizer
}

func NewHashingModel(dimension int) *HashingModel {
	return &HashingModel{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

func (m *HashingModel) Dimension() int    { return m.dimension }
func (m *HashingModel) ModelName() string { return "hashing" }

func (m *HashingModel) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.embed(t)
	}
	return out, nil
}

func (m *HashingModel) embed(text string) []float32 {
	vec := make([]float32, m.dimension)
	for _, term := range m.tokenizer.Tokenize(text) {
		h := xxhash.Sum64String(term)
		vec[h%uint64(m.dimension)]++
	}
	normalize(vec)
	return vec
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
