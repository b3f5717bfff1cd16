// Package embcache decorates an embedder with an in-process LRU so repeated
// texts (hot queries, re-indexed items) skip the provider entirely.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relevar/relevar/internal/domain"
)

// Compile-time checks: CachedEmbedder implements both embedding contracts.
var (
	_ domain.Embedder      = (*CachedEmbedder)(nil)
	_ domain.BatchEmbedder = (*CachedEmbedder)(nil)
)

// DefaultSize is used when the configured cache size is not positive.
const DefaultSize = 10000

// CachedEmbedder caches embeddings keyed by content hash. Degraded vectors
// are never cached, so a recovered provider replaces them on the next call.
type CachedEmbedder struct {
	inner      domain.Embedder
	batch      domain.BatchEmbedder
	cache      *expirable.LRU[string, []float32]
	cacheTotal *prometheus.CounterVec

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a caching decorator. cacheTotal is a counter vec with label
// "result" ("hit"/"miss"), passed explicitly. A zero ttl disables expiry.
func New(
	inner domain.Embedder,
	size int,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
) *CachedEmbedder {
	if size <= 0 {
		size = DefaultSize
	}
	c := &CachedEmbedder{
		inner:      inner,
		cache:      expirable.NewLRU[string, []float32](size, nil, ttl),
		cacheTotal: cacheTotal,
	}
	if be, ok := inner.(domain.BatchEmbedder); ok {
		c.batch = be
	}
	return c
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		c.count("hit")
		return domain.EmbeddingResult{Embedding: cloneVector(vec)}, nil
	}
	c.count("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	if !result.Degraded {
		c.cache.Add(key, cloneVector(result.Embedding))
	}
	return result, nil
}

// BatchEmbed serves what it can from cache and embeds only the misses in a
// single inner call.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(cacheKey(text)); ok {
			c.count("hit")
			out.Embeddings[i] = cloneVector(vec)
			continue
		}
		c.count("miss")
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	res, err := c.embedMisses(ctx, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed batch misses: %w", err)
	}

	var degraded []bool
	for j, i := range missIdx {
		out.Embeddings[i] = res.Embeddings[j]
		if res.DegradedAt(j) {
			if degraded == nil {
				degraded = make([]bool, len(texts))
			}
			degraded[i] = true
			continue
		}
		c.cache.Add(cacheKey(texts[i]), cloneVector(res.Embeddings[j]))
	}
	out.PromptTokens = res.PromptTokens
	out.TotalTokens = res.TotalTokens
	out.Degraded = degraded
	return out, nil
}

func (c *CachedEmbedder) embedMisses(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if c.batch != nil {
		return c.batch.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, c.inner, texts)
}

// Stats returns hit/miss counters and the current entry count.
func (c *CachedEmbedder) Stats() (hits, misses int64, size int) {
	return c.hits.Load(), c.misses.Load(), c.cache.Len()
}

// Purge drops every cached embedding.
func (c *CachedEmbedder) Purge() {
	c.cache.Purge()
}

func (c *CachedEmbedder) count(result string) {
	switch result {
	case "hit":
		c.hits.Add(1)
	case "miss":
		c.misses.Add(1)
	}
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
