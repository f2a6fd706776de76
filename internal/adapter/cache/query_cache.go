package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
	"github.com/vanessasara/full-stack-Devops/internal/logging"
	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// QueryCache holds recent context bundles. Entries expire after ttl and
// are dropped wholesale by Invalidate whenever the store changes.
type QueryCache struct {
	mu         sync.Mutex
	lru        *expirable.LRU[string, domain.ContextBundle]
	generation uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		lru: expirable.NewLRU[string, domain.ContextBundle](maxSize, nil, ttl),
	}
}

func cacheKey(req domain.ContextRequest) string {
	data := fmt.Sprintf("%s\x00%d\x00%d\x00%s", req.Query, req.K, req.MaxChars, req.SourceType)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// Get returns the cached bundle for req together with the current
// generation, which the caller hands back to Put.
func (c *QueryCache) Get(req domain.ContextRequest) (domain.ContextBundle, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bundle, ok := c.lru.Get(cacheKey(req))
	if !ok {
		return domain.ContextBundle{}, c.generation, false
	}
	return cloneBundle(bundle), c.generation, true
}

// Put stores bundle unless the cache was invalidated after generation was
// read: a bundle computed before a write must not outlive it.
func (c *QueryCache) Put(req domain.ContextRequest, bundle domain.ContextBundle, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return false
	}
	c.lru.Add(cacheKey(req), cloneBundle(bundle))
	return true
}

// Invalidate drops every entry.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.generation++
}

func (c *QueryCache) Size() int {
	return c.lru.Len()
}

func cloneBundle(b domain.ContextBundle) domain.ContextBundle {
	if b.Items != nil {
		b.Items = append([]domain.ContextItem(nil), b.Items...)
	}
	return b
}

// CachedRetriever serves repeated context requests from a QueryCache.
type CachedRetriever struct {
	retriever port.ContextRetriever
	cache     *QueryCache
}

func NewCachedRetriever(retriever port.ContextRetriever, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{
		retriever: retriever,
		cache:     cache,
	}
}

func (r *CachedRetriever) RetrieveContext(ctx context.Context, req domain.ContextRequest) (domain.ContextBundle, error) {
	logger := logging.FromContext(ctx)
	bundle, generation, hit := r.cache.Get(req)
	if hit {
		logger.Debug("context cache hit", zap.String("query", req.Query))
		return bundle, nil
	}

	bundle, err := r.retriever.RetrieveContext(ctx, req)
	if err != nil {
		return domain.ContextBundle{}, err
	}
	if !r.cache.Put(req, bundle, generation) {
		logger.Debug("store changed during retrieval, not caching", zap.String("query", req.Query))
	}
	return bundle, nil
}

// Invalidate forwards to the cache so the retriever can be handed to
// writers as their invalidation hook.
func (r *CachedRetriever) Invalidate() {
	r.cache.Invalidate()
}
