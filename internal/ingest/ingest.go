// Package ingest publishes items into the search indexes and the item
// store. Each item is one atomic unit: embedding and index deltas are
// computed up front, the deltas land in the fixed publication order with
// the tenant partition entry last, and the store write commits the item.
// A reader that resolves an id therefore finds it in every structure it
// consults afterwards.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/index"
	"github.com/relevar/relevar/internal/metrics"
	"github.com/relevar/relevar/internal/store"
)

// Defaults for the ingestion knobs.
const (
	DefaultChunkSize = 32
	DefaultMaxBatch  = 1024
	DefaultWorkers   = 8
)

// lockStripes sizes the keyed mutex table serializing writes per item id.
const lockStripes = 256

// Config tunes ingestion.
type Config struct {
	// Dimension, when positive, is enforced on every vector entering the
	// indexes, supplied or generated.
	Dimension int
	// ChunkSize is the fixed embedding chunk size, independent of how large
	// a batch request is.
	ChunkSize int
	// MaxBatch caps the number of items a single IndexBatch call accepts.
	MaxBatch int
	// Workers bounds parallel per-item publication within a chunk.
	Workers int
}

// Ingester validates, embeds and publishes items.
type Ingester struct {
	idx      *index.Indexes
	st       store.Store
	embedder domain.Embedder
	dim      int
	chunk    int
	maxBatch int
	workers  int
	logger   *zap.Logger

	// locks serialize the read-modify-publish sequence per item id, so
	// concurrent writes to the same id never lose a version bump or leave
	// stale postings behind. Striped; unrelated ids rarely share a stripe.
	locks [lockStripes]sync.Mutex
}

// New creates an ingester writing through the given indexes and store.
func New(idx *index.Indexes, st store.Store, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Ingester {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		idx:      idx,
		st:       st,
		embedder: embedder,
		dim:      cfg.Dimension,
		chunk:    cfg.ChunkSize,
		maxBatch: cfg.MaxBatch,
		workers:  cfg.Workers,
		logger:   logger,
	}
}

// Index publishes one item: validate, embed when no vector is attached,
// diff against the stored version, apply the index delta, store write last.
// An empty id is assigned one. Returns the final id.
func (g *Ingester) Index(ctx context.Context, it *domain.Item) (string, error) {
	id, err := g.index(ctx, it, nil)
	observeItem("indexed", err)
	return id, err
}

// IndexWithExpectedVersion is Index under an optimistic concurrency check:
// the write proceeds only when the stored version equals expected, with 0
// meaning the item must not exist yet.
func (g *Ingester) IndexWithExpectedVersion(ctx context.Context, it *domain.Item, expected int64) (string, error) {
	id, err := g.index(ctx, it, &expected)
	observeItem("indexed", err)
	return id, err
}

func (g *Ingester) index(ctx context.Context, it *domain.Item, expected *int64) (string, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if err := it.Validate(); err != nil {
		return "", err
	}

	mu := g.lockID(it.ID)
	mu.Lock()
	defer mu.Unlock()

	prev, err := g.st.Get(ctx, it.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load previous version of %s: %w", it.ID, err)
	}

	var current int64
	if prev != nil {
		current = prev.Version
	}
	if expected != nil && *expected != current {
		return "", domain.NewVersionConflict(current)
	}
	if prev != nil && prev.TenantScope != it.TenantScope {
		return "", fmt.Errorf("tenant scope of %s is immutable (owned by %q): %w",
			it.ID, prev.TenantScope, domain.ErrAccessDenied)
	}

	if err := g.embed(ctx, it); err != nil {
		return "", err
	}
	it.Version = current + 1

	delta := index.BuildDelta(prev, it)
	g.idx.Apply(delta)
	if err := g.st.Put(ctx, it); err != nil {
		// Roll the indexes back to the stored truth so readers never see
		// an id the store cannot serve.
		if prev != nil {
			g.idx.Apply(index.BuildDelta(it, prev))
		} else {
			g.idx.Remove(it)
		}
		return "", fmt.Errorf("store item %s: %w", it.ID, err)
	}
	return it.ID, nil
}

// embed fills a missing vector from the provider chain and enforces the
// configured dimension on whatever vector the item ends up with.
func (g *Ingester) embed(ctx context.Context, it *domain.Item) error {
	if it.Embedding == nil {
		res, err := g.embedder.Embed(ctx, it.Content)
		if err != nil {
			return fmt.Errorf("embed item %s: %w", it.ID, err)
		}
		it.Embedding = res.Embedding
		it.Degraded = res.Degraded
	}
	if g.dim > 0 && len(it.Embedding) != g.dim {
		return fmt.Errorf("item %s: vector has %d dimensions, want %d: %w",
			it.ID, len(it.Embedding), g.dim, domain.ErrVectorDimMismatch)
	}
	return nil
}

// IndexBatch ingests items in fixed-size chunks, embedding each chunk with
// a single provider call when the embedder supports batching. Items succeed
// and fail independently; the returned map holds one entry per input item,
// keyed by its (possibly generated) id. Only a batch larger than the
// configured maximum fails the call itself, before any work is done.
func (g *Ingester) IndexBatch(ctx context.Context, items []*domain.Item) (map[string]bool, error) {
	if len(items) > g.maxBatch {
		return nil, domain.NewCapacityError(g.maxBatch, len(items))
	}

	// Assign ids up front so every result entry has a stable key.
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
	}

	results := make(map[string]bool, len(items))
	var mu sync.Mutex
	for start := 0; start < len(items); start += g.chunk {
		end := start + g.chunk
		if end > len(items) {
			end = len(items)
		}
		g.indexChunk(ctx, items[start:end], results, &mu)
	}
	return results, nil
}

func (g *Ingester) indexChunk(ctx context.Context, chunk []*domain.Item, results map[string]bool, mu *sync.Mutex) {
	g.embedChunk(ctx, chunk)

	var wg errgroup.Group
	wg.SetLimit(g.workers)
	for _, it := range chunk {
		it := it
		wg.Go(func() error {
			_, err := g.index(ctx, it, nil)
			if err != nil {
				g.logger.Warn("Item failed to index",
					zap.String("id", it.ID),
					zap.Error(err),
				)
			}
			observeItem("indexed", err)

			mu.Lock()
			results[it.ID] = err == nil
			mu.Unlock()
			return nil
		})
	}
	// Workers report outcomes through the results map, never an error.
	_ = wg.Wait()
}

// embedChunk fills the chunk's missing vectors with one provider call. On a
// whole-call failure the vectors stay empty and each item retries its own
// embedding during publication, so one bad text cannot sink its chunk-mates.
func (g *Ingester) embedChunk(ctx context.Context, chunk []*domain.Item) {
	var texts []string
	var missing []int
	for i, it := range chunk {
		if it.Embedding == nil {
			texts = append(texts, it.Content)
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return
	}

	res, err := g.batchEmbed(ctx, texts)
	if err != nil {
		g.logger.Warn("Batch embedding failed, retrying per item",
			zap.Int("texts", len(texts)),
			zap.Error(err),
		)
		return
	}
	if len(res.Embeddings) != len(texts) {
		g.logger.Warn("Batch embedding returned a mismatched count, retrying per item",
			zap.Int("want", len(texts)),
			zap.Int("got", len(res.Embeddings)),
		)
		return
	}
	for n, i := range missing {
		chunk[i].Embedding = res.Embeddings[n]
		chunk[i].Degraded = res.DegradedAt(n)
	}
}

func (g *Ingester) batchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := g.embedder.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, g.embedder, texts)
}

// Delete removes an item: the store record first, then every index in
// reverse publication order, so a resolver that still sees the id simply
// finds no record behind it. A non-empty tenant must match the item's
// scope.
func (g *Ingester) Delete(ctx context.Context, tenant, id string) error {
	err := g.delete(ctx, tenant, id)
	observeItem("deleted", err)
	return err
}

func (g *Ingester) delete(ctx context.Context, tenant, id string) error {
	mu := g.lockID(id)
	mu.Lock()
	defer mu.Unlock()

	prev, err := g.st.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("load item %s: %w", id, err)
	}
	if tenant != "" && prev.TenantScope != tenant {
		return fmt.Errorf("item %s belongs to another scope: %w", id, domain.ErrAccessDenied)
	}

	if err := g.st.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	g.idx.Remove(prev)
	return nil
}

// lockID returns the stripe guarding writes to id.
func (g *Ingester) lockID(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &g.locks[h.Sum32()%lockStripes]
}

func observeItem(outcome string, err error) {
	if err != nil {
		outcome = "failed"
	}
	metrics.IngestItemsTotal.WithLabelValues(outcome).Inc()
}
