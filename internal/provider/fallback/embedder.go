// Package fallback keeps ingestion and search alive when the embedding
// provider is down. It synthesizes a deterministic pseudo-embedding from the
// text itself and flags the result degraded, so callers can re-embed once
// the provider recovers.
package fallback

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/metrics"
)

// Compile-time checks: Embedder implements both embedding contracts.
var (
	_ domain.Embedder      = (*Embedder)(nil)
	_ domain.BatchEmbedder = (*Embedder)(nil)
)

// DefaultDimensions is used when the configured dimension is not positive.
const DefaultDimensions = 384

// Embedder decorates an inner embedder with the pseudo-embedding fallback.
// A nil inner embedder is allowed: every call is then served by the
// fallback, which suits offline development and tests.
type Embedder struct {
	inner    domain.Embedder
	batch    domain.BatchEmbedder
	dim      int
	provider string
	logger   *zap.Logger
	degraded atomic.Int64
}

// New creates the fallback decorator. provider labels the fallback counter.
func New(inner domain.Embedder, dim int, provider string, logger *zap.Logger) *Embedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Embedder{inner: inner, dim: dim, provider: provider, logger: logger}
	if be, ok := inner.(domain.BatchEmbedder); ok {
		e.batch = be
	}
	return e
}

// Embed delegates to the inner embedder and degrades on failure.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if e.inner != nil {
		res, err := e.inner.Embed(ctx, text)
		if err == nil {
			return res, nil
		}
		e.logger.Warn("Embedding provider failed, using pseudo-embedding", zap.Error(err))
	}
	e.degraded.Add(1)
	metrics.EmbeddingFallbackTotal.WithLabelValues(e.provider).Inc()
	return domain.EmbeddingResult{
		Embedding: Pseudo(text, e.dim),
		Degraded:  true,
	}, nil
}

// DegradedCount reports how many embeddings this instance served from the
// pseudo-embedding path.
func (e *Embedder) DegradedCount() int64 {
	return e.degraded.Load()
}

// BatchEmbed delegates to the inner batch embedder; a failed provider call
// degrades the whole chunk since no partial result exists.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if e.inner != nil {
		res, err := e.innerBatch(ctx, texts)
		if err == nil {
			return res, nil
		}
		e.logger.Warn("Embedding provider failed, using pseudo-embeddings",
			zap.Int("texts", len(texts)), zap.Error(err))
	}

	e.degraded.Add(int64(len(texts)))
	metrics.EmbeddingFallbackTotal.WithLabelValues(e.provider).Add(float64(len(texts)))
	out := domain.BatchEmbeddingResult{
		Embeddings: make([][]float32, len(texts)),
		Degraded:   make([]bool, len(texts)),
	}
	for i, text := range texts {
		out.Embeddings[i] = Pseudo(text, e.dim)
		out.Degraded[i] = true
	}
	return out, nil
}

func (e *Embedder) innerBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if e.batch != nil {
		return e.batch.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, e.inner, texts)
}

// Pseudo derives a unit-length vector from the text alone. The same text
// always yields the same vector, so an item indexed degraded still matches
// a verbatim query.
func Pseudo(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	seed := sha256.Sum256([]byte(text))

	blocks := (dim*4 + sha256.Size - 1) / sha256.Size
	buf := make([]byte, 0, blocks*sha256.Size)
	block := make([]byte, sha256.Size+2)
	copy(block, seed[:])
	for b := 0; b < blocks; b++ {
		block[sha256.Size] = byte(b)
		block[sha256.Size+1] = byte(b >> 8)
		h := sha256.Sum256(block)
		buf = append(buf, h[:]...)
	}

	out := make([]float32, dim)
	var sum float64
	for i := 0; i < dim; i++ {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		v := float64(bits)/float64(math.MaxUint32)*2 - 1
		out[i] = float32(v)
		sum += v * v
	}
	if norm := math.Sqrt(sum); norm > 0 {
		for i := range out {
			out[i] = float32(float64(out[i]) / norm)
		}
	}
	return out
}
