package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/vanessasara/full-stack-Devops/internal/logging"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// WithCache wraps model with an LRU cache of vectors keyed by model name
// and text hash. A non-positive size or ttl returns model unchanged.
func WithCache(model port.EmbeddingModel, size int, ttl time.Duration) port.EmbeddingModel {
	if model == nil || size <= 0 || ttl <= 0 {
		return model
	}
	return &cachedModel{
		next:  model,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachedModel struct {
	next  port.EmbeddingModel
	cache *expirable.LRU[string, []float32]
}

func (c *cachedModel) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		keys[i] = cacheKey(c.next.ModelName(), t)
		if cached, ok := c.cache.Get(keys[i]); ok {
			out[i] = cloneVector(cached)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if hits := len(texts) - len(missIdx); hits > 0 {
		logging.FromContext(ctx).Debug("embedding cache hit",
			zap.Int("hits", hits), zap.Int("misses", len(missIdx)))
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		if j >= len(vecs) {
			break
		}
		out[i] = vecs[j]
		c.cache.Add(keys[i], cloneVector(vecs[j]))
	}
	return out, nil
}

func (c *cachedModel) Load(ctx context.Context) error {
	if loader, ok := c.next.(port.Loader); ok {
		return loader.Load(ctx)
	}
	return nil
}

func (c *cachedModel) Dimension() int    { return c.next.Dimension() }
func (c *cachedModel) ModelName() string { return c.next.ModelName() }

func cacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(text))
	return "embed:" + model + ":" + hex.EncodeToString(hash[:])
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
