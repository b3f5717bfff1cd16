package relevar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/relevar/relevar/internal/config"
	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/embcache"
	"github.com/relevar/relevar/internal/index"
	"github.com/relevar/relevar/internal/ingest"
	"github.com/relevar/relevar/internal/metrics"
	"github.com/relevar/relevar/internal/provider/fallback"
	"github.com/relevar/relevar/internal/provider/openai"
	"github.com/relevar/relevar/internal/provider/ratelimit"
	"github.com/relevar/relevar/internal/resolver"
	"github.com/relevar/relevar/internal/scorer"
	"github.com/relevar/relevar/internal/search"
	"github.com/relevar/relevar/internal/store"
	"github.com/relevar/relevar/internal/usage"
)

// Engine owns the indexes, usage history, and store for one retrieval corpus.
// Construct once per process or tenant shard; all methods are safe for
// concurrent use.
type Engine struct {
	st     store.Store
	idx    *index.Indexes
	ledger *usage.Ledger
	graph  *usage.Graph

	resolver *resolver.Resolver
	searcher *search.Engine
	scorer   *scorer.Scorer
	ingester *ingest.Ingester

	// cache is non-nil only when the engine assembled the built-in provider
	// chain itself; Stats reads its counters.
	cache       *embcache.CachedEmbedder
	docEmb      *fallback.Embedder
	queryEmb    *fallback.Embedder
	health      domain.HealthChecker
	hasProvider bool

	defaults domain.SearchDefaults
	enforce  bool
	fetch    int
	logger   *zap.Logger

	closed atomic.Bool
}

// New creates an Engine from the config plus injected dependencies. Zero
// config fields fall back to defaults; the store named by the config is
// opened unless WithStore overrides it.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg.ApplyDefaults()

	var o engineOptions
	for _, opt := range opts {
		opt.apply(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults, err := searchDefaults(cfg.Engine)
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg, o.store)
	if err != nil {
		return nil, err
	}
	readiness := time.Duration(cfg.Store.ReadinessTimeout) * time.Second
	if err := st.WaitForReady(context.Background(), readiness); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("relevar: store not ready: %w", err)
	}

	docEmb, queryEmb, cache, health, hasProvider := buildEmbedders(cfg, &o, logger)

	expander := o.expander
	if expander == nil && cfg.Provider.APIKey != "" {
		expander = openai.NewExpander(&openai.Config{
			APIKey:   cfg.Provider.APIKey,
			BaseURL:  cfg.Provider.BaseURL,
			User:     cfg.Provider.User,
			Provider: cfg.Provider.Name,
			Logger:   logger,
		}, cfg.Provider.ChatModel)
	}

	idx := index.New()
	ledger := usage.NewLedger()
	graph := usage.NewGraph()

	e := &Engine{
		st:       st,
		idx:      idx,
		ledger:   ledger,
		graph:    graph,
		resolver: resolver.New(idx, cfg.Engine.EnforceTenantIsolation),
		searcher: search.New(idx, st, queryEmb, expander, search.Config{
			Workers:   cfg.Engine.Workers,
			FetchSize: cfg.Engine.FetchSize,
		}, logger),
		scorer: scorer.New(ledger, graph, scorer.Config{
			Workers:        cfg.Engine.Workers,
			DefaultProfile: cfg.Engine.DefaultProfile,
		}, logger),
		ingester: ingest.New(idx, st, docEmb, ingest.Config{
			Dimension: cfg.Engine.Dimension,
			ChunkSize: cfg.Engine.ChunkSize,
			MaxBatch:  cfg.Engine.MaxBatchSize,
			Workers:   cfg.Engine.Workers,
		}, logger),
		cache:       cache,
		docEmb:      docEmb,
		queryEmb:    queryEmb,
		health:      health,
		hasProvider: hasProvider,
		defaults:    defaults,
		enforce:     cfg.Engine.EnforceTenantIsolation,
		fetch:       cfg.Engine.FetchSize,
		logger:      logger,
	}
	return e, nil
}

// openStore returns the injected store, or opens the backend named by the
// config.
func openStore(cfg Config, injected store.Store) (store.Store, error) {
	if injected != nil {
		return injected, nil
	}
	switch cfg.Store.Driver {
	case "", "memory":
		return store.NewMemory(), nil
	case "redis":
		s, err := store.NewRedis(store.RedisConfig{
			Addrs:    cfg.Store.Addrs,
			Username: cfg.Store.Username,
			Password: cfg.Store.Password,
			DB:       cfg.Store.DB,
			Prefix:   cfg.Store.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("relevar: create redis store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("relevar: create sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("relevar: unknown store driver %q", cfg.Store.Driver)
	}
}

// buildEmbedders assembles the embedding chain: OpenAI base, rate limiter,
// TTL cache, instruction prefix, with the degraded fallback outermost so
// provider outages never fail requests. Custom embedders from the options
// replace everything inside the fallback. The instruction prefix sits
// outside the cache, so document and query prefixes key separate entries.
func buildEmbedders(cfg Config, o *engineOptions, logger *zap.Logger) (doc, query *fallback.Embedder, cache *embcache.CachedEmbedder, health domain.HealthChecker, hasProvider bool) {
	dim := cfg.Engine.Dimension
	name := cfg.Provider.Name

	docCore := o.embedder
	queryCore := o.queryEmbedder
	switch {
	case docCore == nil && cfg.Provider.APIKey != "":
		base := openai.NewEmbedder(&openai.Config{
			APIKey:     cfg.Provider.APIKey,
			BaseURL:    cfg.Provider.BaseURL,
			Model:      cfg.Provider.Model,
			Dimensions: dim,
			User:       cfg.Provider.User,
			Provider:   name,
			Logger:     logger,
		})
		health = base
		limited := ratelimit.New(base, cfg.Provider.RateLimitRPS, cfg.Provider.RateLimitBurst)
		ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
		cache = embcache.New(limited, cfg.Cache.Size, ttl, metrics.EmbeddingCacheTotal)

		docCore = cache
		if inst := cfg.Provider.DocumentInstruction; inst != "" {
			docCore = domain.NewInstructionEmbedder(cache, inst)
		}
		if queryCore == nil {
			queryCore = domain.Embedder(cache)
			if inst := cfg.Provider.QueryInstruction; inst != "" {
				queryCore = domain.NewInstructionEmbedder(cache, inst)
			}
		}
	case docCore != nil:
		if hc, ok := docCore.(domain.HealthChecker); ok {
			health = hc
		}
	}
	if queryCore == nil {
		queryCore = docCore
	}
	hasProvider = docCore != nil || queryCore != nil

	doc = fallback.New(docCore, dim, name, logger)
	query = fallback.New(queryCore, dim, name, logger)
	return doc, query, cache, health, hasProvider
}

// searchDefaults converts the config section into typed request defaults.
func searchDefaults(cfg config.EngineConfig) (domain.SearchDefaults, error) {
	mode := domain.SearchMode(cfg.DefaultMode)
	if !mode.IsValid() {
		return domain.SearchDefaults{}, fmt.Errorf("relevar: invalid default search mode %q", cfg.DefaultMode)
	}
	alpha := make(map[domain.SearchMode]float64, len(cfg.DefaultAlpha))
	for m, a := range cfg.DefaultAlpha {
		sm := domain.SearchMode(m)
		if !sm.IsValid() {
			return domain.SearchDefaults{}, fmt.Errorf("relevar: default alpha for unknown mode %q", m)
		}
		if a < 0 || a > 1 {
			return domain.SearchDefaults{}, fmt.Errorf("relevar: default alpha %v for mode %q out of range", a, m)
		}
		alpha[sm] = a
	}
	return domain.SearchDefaults{
		Mode:              mode,
		Alpha:             alpha,
		MaxResults:        cfg.DefaultMaxResults,
		MaxResultsCeiling: cfg.MaxResultsCeiling,
	}, nil
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return domain.ErrEngineClosed
	}
	return nil
}

// Index validates, embeds, and publishes one item. A missing ID is assigned;
// the (possibly generated) id is returned. Re-indexing an existing id bumps
// its version; changing its tenant scope is rejected.
func (e *Engine) Index(ctx context.Context, it *Item) (string, error) {
	if err := e.checkOpen(); err != nil {
		return "", err
	}
	return e.ingester.Index(ctx, it)
}

// IndexWithExpectedVersion is Index guarded by optimistic concurrency: the
// write applies only if the stored version equals expected (0 for a new
// item). On mismatch it returns a VersionConflictError carrying the current
// version.
func (e *Engine) IndexWithExpectedVersion(ctx context.Context, it *Item, expected int64) (string, error) {
	if err := e.checkOpen(); err != nil {
		return "", err
	}
	return e.ingester.IndexWithExpectedVersion(ctx, it, expected)
}

// IndexBatch indexes items in fixed-size chunks and reports per-item success.
// One failed item never fails its chunk. Batches above the configured maximum
// are rejected with a CapacityError before any work starts.
func (e *Engine) IndexBatch(ctx context.Context, items []*Item) (map[string]bool, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.ingester.IndexBatch(ctx, items)
}

// Search resolves the candidate set for req and scores it under the request
// mode. Results are ordered by the request sort spec with relevance as the
// final key, truncated to MaxResults, and projected onto the requested
// fields.
func (e *Engine) Search(ctx context.Context, req *SearchRequest) ([]Match, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	req.Normalize(e.defaults)
	if err := req.Validate(e.defaults); err != nil {
		return nil, err
	}
	candidates, err := e.resolver.Resolve(req)
	if err != nil {
		return nil, err
	}
	return e.searcher.Search(ctx, req, candidates)
}

// Score re-ranks matches for the given scoring context using the ten-signal
// relevance model. Identical inputs over identical usage state produce
// identical output.
func (e *Engine) Score(ctx context.Context, matches []Match, sctx ScoringContext) ([]ScoredMatch, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.scorer.Score(ctx, matches, sctx)
}

// RegisterWeightProfile adds a named signal weight profile for Score.
// Built-in profile names cannot be overwritten.
func (e *Engine) RegisterWeightProfile(name string, w Weights) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.scorer.RegisterProfile(name, w)
}

// WeightProfiles lists the registered profile names, built-ins included.
func (e *Engine) WeightProfiles() []string {
	return e.scorer.Profiles()
}

// Get returns the stored item. A non-empty tenant must match the item's
// scope; an empty tenant is allowed only when isolation is not enforced.
func (e *Engine) Get(ctx context.Context, tenant, id string) (*Item, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if tenant == "" && e.enforce {
		return nil, fmt.Errorf("tenant scope is required: %w", domain.ErrAccessDenied)
	}
	it, err := e.st.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	if tenant != "" && it.TenantScope != tenant {
		return nil, fmt.Errorf("item %s is not in scope %q: %w", id, tenant, domain.ErrAccessDenied)
	}
	return it, nil
}

// Delete removes the item from the store first, then withdraws it from every
// index. Tenant rules match Get.
func (e *Engine) Delete(ctx context.Context, tenant, id string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if tenant == "" && e.enforce {
		return fmt.Errorf("tenant scope is required: %w", domain.ErrAccessDenied)
	}
	return e.ingester.Delete(ctx, tenant, id)
}

// RecordUsage merges one usage observation into the ledger. Consecutive uses
// by the same actor also strengthen the sequence edge from the previously
// used item, which feeds the contextual-relevance signal.
func (e *Engine) RecordUsage(ctx context.Context, ev UsageEvent) error {
	_ = ctx
	if err := e.checkOpen(); err != nil {
		return err
	}
	if ev.ItemID == "" {
		return fmt.Errorf("usage event item id is required: %w", domain.ErrInvalidRequest)
	}
	prev := e.ledger.Record(ev)
	if prev != "" && prev != ev.ItemID {
		e.graph.RecordSequence(prev, ev.ItemID)
	}
	metrics.UsageEventsTotal.WithLabelValues("use").Inc()
	return nil
}

// RecordRelationship strengthens the edge between two items. Kind must be
// one of the declared relationship kinds and the endpoints must differ.
func (e *Engine) RecordRelationship(ctx context.Context, a, b string, kind RelationKind) error {
	_ = ctx
	if err := e.checkOpen(); err != nil {
		return err
	}
	if a == "" || b == "" {
		return fmt.Errorf("relationship endpoints are required: %w", domain.ErrInvalidRequest)
	}
	if a == b {
		return fmt.Errorf("relationship endpoints must differ: %w", domain.ErrInvalidRequest)
	}
	if !kind.IsValid() {
		return fmt.Errorf("invalid relationship kind %q: %w", kind, domain.ErrInvalidRequest)
	}
	e.graph.Record(a, b, kind)
	metrics.UsageEventsTotal.WithLabelValues("relationship").Inc()
	return nil
}

// Similar returns up to k items from the source item's tenant scope, ordered
// by cosine similarity of stored embeddings. The source itself is excluded.
// k defaults to the configured result count and honors the result ceiling.
func (e *Engine) Similar(ctx context.Context, tenant, id string, k int) ([]Match, error) {
	src, err := e.Get(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if len(src.Embedding) == 0 {
		return nil, fmt.Errorf("item %s has no embedding: %w", id, domain.ErrInvalidRequest)
	}
	if k <= 0 {
		k = e.defaults.MaxResults
	}
	if e.defaults.MaxResultsCeiling > 0 && k > e.defaults.MaxResultsCeiling {
		return nil, domain.NewCapacityError(e.defaults.MaxResultsCeiling, k)
	}

	var candidates map[string]struct{}
	if src.TenantScope == "" {
		candidates = e.idx.Partition.AllIDs()
	} else {
		candidates = e.idx.Partition.TenantIDs(src.TenantScope)
	}
	ids := make([]string, 0, len(candidates))
	for cid := range candidates {
		if cid != id {
			ids = append(ids, cid)
		}
	}
	sort.Strings(ids)

	matches := make([]Match, 0, len(ids))
	for start := 0; start < len(ids); start += e.fetch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + e.fetch
		if end > len(ids) {
			end = len(ids)
		}
		records, err := e.st.GetMulti(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("fetch candidates: %w", err)
		}
		for _, rec := range records {
			if rec == nil || len(rec.Embedding) == 0 {
				continue
			}
			cos := search.Cosine(src.Embedding, rec.Embedding)
			matches = append(matches, Match{
				Item:        *rec,
				Score:       cos,
				VectorScore: cos,
				Degraded:    src.Degraded || rec.Degraded,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Stats is a point-in-time snapshot of engine state.
type Stats struct {
	Items             int      `json:"items"`
	Tenants           int      `json:"tenants"`
	Terms             int      `json:"terms"`
	TermEntries       int      `json:"term_entries"`
	Tags              int      `json:"tags"`
	FieldKeys         int      `json:"field_keys"`
	Categories        int      `json:"categories"`
	UsageRecords      int      `json:"usage_records"`
	RelationshipEdges int      `json:"relationship_edges"`
	CacheHits         int64    `json:"cache_hits"`
	CacheMisses       int64    `json:"cache_misses"`
	CacheSize         int      `json:"cache_size"`
	DegradedEmbeds    int64    `json:"degraded_embeds"`
	WeightProfiles    []string `json:"weight_profiles"`
}

// Stats reports index sizes, usage history sizes, and embedding cache
// counters.
func (e *Engine) Stats() Stats {
	s := e.idx.Stats()
	out := Stats{
		Items:             s.Items,
		Tenants:           s.Scopes,
		Terms:             s.Terms,
		TermEntries:       s.TermEntries,
		Tags:              s.Tags,
		FieldKeys:         s.FieldKeys,
		Categories:        s.Categories,
		UsageRecords:      e.ledger.Size(),
		RelationshipEdges: e.graph.Size(),
		DegradedEmbeds:    e.docEmb.DegradedCount() + e.queryEmb.DegradedCount(),
		WeightProfiles:    e.scorer.Profiles(),
	}
	if e.cache != nil {
		out.CacheHits, out.CacheMisses, out.CacheSize = e.cache.Stats()
	}
	return out
}

// Health reports component availability.
type Health struct {
	Store string `json:"store"`
	// Provider is "ok" when a real embedding provider backs the engine and
	// "fallback" when every embedding is pseudo-generated.
	Provider string `json:"provider"`
}

// Health pings the store and checks the provider when one backs the engine.
// A store failure returns the Health snapshot alongside the error. A provider
// failure is reported in the snapshot only; requests keep serving through the
// pseudo-embedding fallback.
func (e *Engine) Health(ctx context.Context) (Health, error) {
	h := Health{Store: "ok", Provider: "ok"}
	if !e.hasProvider {
		h.Provider = "fallback"
	}
	if e.closed.Load() {
		h.Store = "closed"
		return h, domain.ErrEngineClosed
	}
	if err := e.st.Ping(ctx); err != nil {
		h.Store = "unavailable"
		return h, fmt.Errorf("store ping: %w", err)
	}
	if e.health != nil {
		if err := e.health.HealthCheck(ctx); err != nil {
			h.Provider = "unavailable"
			e.logger.Warn("Provider health check failed", zap.Error(err))
		}
	}
	return h, nil
}

// Rebuild repopulates the in-memory indexes from the store. Call once after
// New when the store carries existing data.
func (e *Engine) Rebuild(ctx context.Context) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	count := 0
	err := e.st.Scan(ctx, "", func(it *domain.Item) error {
		e.idx.Apply(index.BuildDelta(nil, it))
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild indexes: %w", err)
	}
	e.logger.Info("Indexes rebuilt from store", zap.Int("items", count))
	return nil
}

// Close marks the engine closed and releases the store. Subsequent engine
// calls return ErrEngineClosed; repeated Close is a no-op.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.st.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
