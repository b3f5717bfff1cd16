// Package search ranks resolved candidates against a query using one of the
// five retrieval modes. Vector scores come from embeddings read through the
// item store, lexical scores from the inverted index, so many searches can
// run concurrently with ingestion.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/index"
	"github.com/relevar/relevar/internal/metrics"
	"github.com/relevar/relevar/internal/store"
)

// Defaults for the engine knobs.
const (
	DefaultWorkers   = 8
	DefaultFetchSize = 128
)

// Config tunes the scoring fan-out.
type Config struct {
	// Workers bounds the parallel per-candidate scoring goroutines.
	Workers int
	// FetchSize is the number of candidate records fetched from the store
	// per round-trip. The deadline is checked between fetches.
	FetchSize int
}

// Engine executes search requests over an already-resolved candidate set.
type Engine struct {
	idx      *index.Indexes
	st       store.Store
	embedder domain.Embedder
	expander domain.Expander
	workers  int
	fetch    int
	logger   *zap.Logger
}

// New creates a search engine. expander may be nil; semantic keyword
// searches then run against the raw query.
func New(idx *index.Indexes, st store.Store, embedder domain.Embedder, expander domain.Expander, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.FetchSize <= 0 {
		cfg.FetchSize = DefaultFetchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		idx:      idx,
		st:       st,
		embedder: embedder,
		expander: expander,
		workers:  cfg.Workers,
		fetch:    cfg.FetchSize,
		logger:   logger,
	}
}

// Search scores the candidates for req, sorts by the request sort spec with
// the relevance score as the final key, truncates to MaxResults and applies
// the field projection. req must already be normalized and validated, and
// candidates already tenant-scoped and filtered.
//
// When the context deadline expires mid-scoring, the ranking computed so far
// is returned rather than an error.
func (e *Engine) Search(ctx context.Context, req *domain.SearchRequest, candidates map[string]struct{}) ([]domain.Match, error) {
	started := time.Now()
	matches, err := e.search(ctx, req, candidates)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode), status).Inc()
	metrics.SearchRequestDuration.WithLabelValues(string(req.Mode)).Observe(time.Since(started).Seconds())
	if err == nil {
		metrics.SearchCandidates.Observe(float64(len(candidates)))
	}
	return matches, err
}

func (e *Engine) search(ctx context.Context, req *domain.SearchRequest, candidates map[string]struct{}) ([]domain.Match, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var (
		queryVec      []float32
		queryDegraded bool
		kq            *keywordQuery
	)

	switch req.Mode {
	case domain.ModeVectorOnly, domain.ModeFilteredVector:
		res, err := e.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		queryVec, queryDegraded = res.Embedding, res.Degraded
	case domain.ModeKeywordOnly:
		kq = newKeywordQuery(req.Query)
	case domain.ModeSemanticKeyword:
		kq = e.expandedQuery(ctx, req.Query)
	case domain.ModeHybrid:
		res, err := e.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		queryVec, queryDegraded = res.Embedding, res.Degraded
		kq = newKeywordQuery(req.Query)
	default:
		return nil, fmt.Errorf("invalid search mode %q: %w", req.Mode, domain.ErrInvalidRequest)
	}

	// Pure keyword modes only ever score candidates holding at least one
	// query term; hybrid keeps the full set so the vector side can still
	// surface items with zero lexical overlap.
	if req.Mode == domain.ModeKeywordOnly || req.Mode == domain.ModeSemanticKeyword {
		candidates = kq.prefilter(e.idx.Inverted, candidates)
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	matches, err := e.scoreAll(ctx, req, ids, queryVec, queryDegraded, kq)
	if err != nil {
		return nil, err
	}

	sortMatches(matches, req.Sort)
	if len(matches) > req.MaxResults {
		matches = matches[:req.MaxResults]
	}
	for i := range matches {
		project(&matches[i].Item, req.Projection)
	}
	return matches, nil
}

// expandedQuery asks the expansion provider for related terms, degrading to
// the raw query when the provider is unavailable.
func (e *Engine) expandedQuery(ctx context.Context, query string) *keywordQuery {
	if e.expander == nil {
		return newKeywordQuery(query)
	}
	expanded, err := e.expander.Expand(ctx, query)
	if err != nil {
		e.logger.Warn("Query expansion failed, using raw query",
			zap.Error(err),
		)
		kq := newKeywordQuery(query)
		kq.degraded = true
		return kq
	}
	return newKeywordQuery(expanded)
}

// scoreAll fetches candidate records in chunks and scores each chunk on the
// worker pool. A deadline expiry between or during fetches ends the loop
// with the matches scored so far.
func (e *Engine) scoreAll(ctx context.Context, req *domain.SearchRequest, ids []string, queryVec []float32, queryDegraded bool, kq *keywordQuery) ([]domain.Match, error) {
	out := make([]domain.Match, 0, len(ids))

	for start := 0; start < len(ids); start += e.fetch {
		if ctx.Err() != nil {
			e.logger.Warn("Search deadline reached, returning partial ranking",
				zap.Int("scored", len(out)),
				zap.Int("candidates", len(ids)),
			)
			break
		}
		end := start + e.fetch
		if end > len(ids) {
			end = len(ids)
		}

		items, err := e.st.GetMulti(ctx, ids[start:end])
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			return nil, fmt.Errorf("fetch candidates: %w", err)
		}

		scored := make([]domain.Match, len(items))
		present := make([]bool, len(items))
		var g errgroup.Group
		g.SetLimit(e.workers)
		for i, it := range items {
			if it == nil {
				// Index entry raced ahead of the store write; the
				// item is not retrievable yet.
				continue
			}
			i, it := i, it
			g.Go(func() error {
				scored[i] = e.scoreOne(req, it, queryVec, queryDegraded, kq)
				present[i] = true
				return nil
			})
		}
		// Scoring closures never return an error.
		_ = g.Wait()

		for i := range scored {
			if present[i] {
				out = append(out, scored[i])
			}
		}
	}
	return out, nil
}

func (e *Engine) scoreOne(req *domain.SearchRequest, it *domain.Item, queryVec []float32, queryDegraded bool, kq *keywordQuery) domain.Match {
	m := domain.Match{Item: *it}

	switch req.Mode {
	case domain.ModeVectorOnly, domain.ModeFilteredVector:
		m.VectorScore = Cosine(queryVec, it.Embedding)
		m.Score = m.VectorScore
		m.Degraded = queryDegraded || it.Degraded
		m.Item.SetScore("vector", m.VectorScore)
	case domain.ModeKeywordOnly, domain.ModeSemanticKeyword:
		m.KeywordScore = kq.score(e.idx.Inverted, it)
		m.Score = m.KeywordScore
		m.Degraded = kq.degraded
		m.Item.SetScore("keyword", m.KeywordScore)
	case domain.ModeHybrid:
		m.VectorScore = Cosine(queryVec, it.Embedding)
		m.KeywordScore = kq.score(e.idx.Inverted, it)
		m.Score = req.Alpha*clamp01(m.VectorScore) + (1-req.Alpha)*m.KeywordScore
		m.Degraded = queryDegraded || it.Degraded
		m.Item.SetScore("vector", m.VectorScore)
		m.Item.SetScore("keyword", m.KeywordScore)
	}
	return m
}

// sortMatches orders by the request sort keys in listed order, then score
// descending, then id for a total order. Items missing a sort field rank
// after items carrying it.
func sortMatches(matches []domain.Match, keys []domain.SortKey) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := &matches[i], &matches[j]
		for _, k := range keys {
			av, aok := a.Item.Field(k.Field)
			bv, bok := b.Item.Field(k.Field)
			switch {
			case !aok && !bok:
				continue
			case !aok:
				return false
			case !bok:
				return true
			}
			c := domain.CompareFieldValues(av, bv)
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Item.ID < b.Item.ID
	})
}

// project drops metadata fields not named by the projection. An empty
// projection keeps everything. Dotted names keep their top-level nested map.
func project(it *domain.Item, fields []string) {
	if len(fields) == 0 {
		return
	}
	keep := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		keep[f] = struct{}{}
		if dot := strings.IndexByte(f, '.'); dot > 0 {
			keep[f[:dot]] = struct{}{}
		}
	}

	for k := range it.Metadata {
		if _, ok := keep[k]; !ok {
			delete(it.Metadata, k)
		}
	}
	for k := range it.Numerics {
		if _, ok := keep[k]; !ok {
			delete(it.Numerics, k)
		}
	}
	for k := range it.Arrays {
		if _, ok := keep[k]; !ok {
			delete(it.Arrays, k)
		}
	}
	for k := range it.Nested {
		if _, ok := keep[k]; !ok {
			delete(it.Nested, k)
		}
	}
}
