// Package ratelimit throttles outbound provider calls with a token bucket.
// One token per API request, regardless of batch size, mirroring how
// providers meter request quotas.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/relevar/relevar/internal/domain"
)

// Compile-time checks: Embedder implements both embedding contracts.
var (
	_ domain.Embedder      = (*Embedder)(nil)
	_ domain.BatchEmbedder = (*Embedder)(nil)
)

// Embedder decorates an inner embedder with a token-bucket limiter.
type Embedder struct {
	inner   domain.Embedder
	batch   domain.BatchEmbedder
	limiter *rate.Limiter
}

// New creates the limiting decorator. rps <= 0 disables limiting.
func New(inner domain.Embedder, rps float64, burst int) *Embedder {
	e := &Embedder{inner: inner}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if be, ok := inner.(domain.BatchEmbedder); ok {
		e.batch = be
	}
	return e
}

// Embed waits for a token and delegates.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := e.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return e.inner.Embed(ctx, text)
}

// BatchEmbed waits for a token and delegates the whole chunk.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := e.wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	if e.batch != nil {
		return e.batch.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, e.inner, texts)
}

func (e *Embedder) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
