package search

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/index"
	"github.com/relevar/relevar/internal/store"
)

// vocabEmbedder maps text onto term counts over a fixed vocabulary. Identical
// texts embed identically, overlapping texts correlate, disjoint texts are
// orthogonal.
type vocabEmbedder struct {
	vocab    []string
	degraded bool
}

func (e *vocabEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	vec := make([]float32, len(e.vocab))
	for _, tok := range index.Tokenize(text) {
		for i, w := range e.vocab {
			if tok == w {
				vec[i]++
			}
		}
	}
	return domain.EmbeddingResult{Embedding: vec, Degraded: e.degraded}, nil
}

type stubExpander struct {
	text string
	err  error
}

func (s *stubExpander) Expand(context.Context, string) (string, error) {
	return s.text, s.err
}

func newTestEngine(t *testing.T, x *index.Indexes, st store.Store, emb domain.Embedder, exp domain.Expander) *Engine {
	t.Helper()
	return New(x, st, emb, exp, Config{Workers: 4, FetchSize: 2}, zap.NewNop())
}

func seed(t *testing.T, x *index.Indexes, st store.Store, it *domain.Item) {
	t.Helper()
	x.Apply(index.BuildDelta(nil, it))
	if err := st.Put(context.Background(), it); err != nil {
		t.Fatalf("seed %s: %v", it.ID, err)
	}
}

func candidateSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func matchIDs(matches []domain.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Item.ID
	}
	return out
}

func TestCosine_Properties(t *testing.T) {
	x := []float32{0.3, -0.7, 1.2}
	y := []float32{1.1, 0.4, -0.2}

	if got := Cosine(x, x); math.Abs(got-1) > 1e-9 {
		t.Errorf("Cosine(x, x) = %v, want 1", got)
	}
	if Cosine(x, y) != Cosine(y, x) {
		t.Error("Cosine is not symmetric")
	}
	if got := Cosine(x, y); got < -1 || got > 1 {
		t.Errorf("Cosine(x, y) = %v, out of [-1, 1]", got)
	}
	if got := Cosine([]float32{0, 0, 0}, y); got != 0 {
		t.Errorf("Cosine(0, y) = %v, want 0", got)
	}
	if got := Cosine(x, []float32{1, 2}); got != 0 {
		t.Errorf("Cosine with mismatched lengths = %v, want 0", got)
	}
	if got := Cosine(x, []float32{-0.3, 0.7, -1.2}); math.Abs(got+1) > 1e-9 {
		t.Errorf("Cosine(x, -x) = %v, want -1", got)
	}
}

// TestSearch_ConcreteToolScenario ranks a currency conversion query across
// three tools and expects the currency converter first under hybrid blending.
func TestSearch_ConcreteToolScenario(t *testing.T) {
	vocab := []string{
		"convert", "currency", "to", "another", "amount", "using", "exchange",
		"rate", "add", "two", "integer", "between", "measurement", "unit",
	}
	emb := &vocabEmbedder{vocab: vocab}
	x := index.New()
	st := store.NewMemory()

	items := []*domain.Item{
		{ID: "calculator", Content: "adds two integers", Categories: []string{"math"}},
		{ID: "currency-converter", Content: "converts currency amounts using exchange rate", Categories: []string{"finance"}},
		{ID: "unit-converter", Content: "converts between measurement units", Categories: []string{"math"}},
	}
	for _, it := range items {
		res, err := emb.Embed(context.Background(), it.Content)
		if err != nil {
			t.Fatalf("embed %s: %v", it.ID, err)
		}
		it.Embedding = res.Embedding
		seed(t, x, st, it)
	}

	e := newTestEngine(t, x, st, emb, nil)
	req := &domain.SearchRequest{
		Query:      "convert currency to another currency",
		Mode:       domain.ModeHybrid,
		Alpha:      0.5,
		MaxResults: 10,
	}
	matches, err := e.Search(context.Background(), req, candidateSet("calculator", "currency-converter", "unit-converter"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(matches) != 3 {
		t.Fatalf("len(matches) = %d, want 3", len(matches))
	}
	if matches[0].Item.ID != "currency-converter" {
		t.Errorf("top match = %s, want currency-converter", matches[0].Item.ID)
	}
	if matches[0].Score <= matches[1].Score || matches[1].Score <= matches[2].Score {
		t.Errorf("scores not strictly descending: %v %v %v",
			matches[0].Score, matches[1].Score, matches[2].Score)
	}

	// Result length is min(maxResults, corpus size).
	req.MaxResults = 2
	matches, err = e.Search(context.Background(), req, candidateSet("calculator", "currency-converter", "unit-converter"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("len(matches) = %d, want 2", len(matches))
	}
}

// TestSearch_SelfMatchRanksFirst checks that querying with an item's own
// content puts that item at the top for both lexical and hybrid modes.
func TestSearch_SelfMatchRanksFirst(t *testing.T) {
	vocab := []string{"convert", "currency", "amount", "using", "exchange", "rate", "billing", "policy", "overview", "add", "two", "integer"}
	emb := &vocabEmbedder{vocab: vocab}
	x := index.New()
	st := store.NewMemory()

	target := &domain.Item{ID: "fx", Content: "converts currency amounts using exchange rate"}
	others := []*domain.Item{
		{ID: "doc", Content: "billing policy overview for currency accounts"},
		{ID: "calc", Content: "adds two integers"},
	}
	for _, it := range append(others, target) {
		res, _ := emb.Embed(context.Background(), it.Content)
		it.Embedding = res.Embedding
		seed(t, x, st, it)
	}

	e := newTestEngine(t, x, st, emb, nil)
	all := candidateSet("fx", "doc", "calc")

	for _, mode := range []domain.SearchMode{domain.ModeKeywordOnly, domain.ModeHybrid} {
		req := &domain.SearchRequest{
			Query:      target.Content,
			Mode:       mode,
			Alpha:      0.5,
			MaxResults: 10,
		}
		matches, err := e.Search(context.Background(), req, all)
		if err != nil {
			t.Fatalf("Search(%s) error = %v", mode, err)
		}
		if len(matches) == 0 || matches[0].Item.ID != "fx" {
			t.Errorf("Search(%s) top = %v, want fx", mode, matchIDs(matches))
		}
	}
}

func TestSearch_ExactSubstringBoost(t *testing.T) {
	x := index.New()
	st := store.NewMemory()
	seed(t, x, st, &domain.Item{ID: "exact", Content: "the exchange rate table"})
	seed(t, x, st, &domain.Item{ID: "scattered", Content: "rate of exchange"})

	e := newTestEngine(t, x, st, &vocabEmbedder{}, nil)
	req := &domain.SearchRequest{Query: "exchange rate", Mode: domain.ModeKeywordOnly, MaxResults: 10}
	matches, err := e.Search(context.Background(), req, candidateSet("exact", "scattered"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	if matches[0].Item.ID != "exact" {
		t.Fatalf("top match = %s, want exact", matches[0].Item.ID)
	}
	diff := matches[0].Score - matches[1].Score
	if math.Abs(diff-exactMatchBoost) > 1e-9 {
		t.Errorf("boost delta = %v, want %v", diff, exactMatchBoost)
	}
}

func TestSearch_VectorOnlyOrdersByRawCosine(t *testing.T) {
	x := index.New()
	st := store.NewMemory()
	seed(t, x, st, &domain.Item{ID: "aligned", Content: "a", Embedding: []float32{1, 0}})
	seed(t, x, st, &domain.Item{ID: "opposed", Content: "b", Embedding: []float32{-1, 0}})
	seed(t, x, st, &domain.Item{ID: "orthogonal", Content: "c", Embedding: []float32{0, 1}})
	seed(t, x, st, &domain.Item{ID: "zero", Content: "d", Embedding: []float32{0, 0}})

	emb := &fixedEmbedder{vec: []float32{1, 0}}
	e := newTestEngine(t, x, st, emb, nil)
	req := &domain.SearchRequest{Query: "anything", Mode: domain.ModeVectorOnly, MaxResults: 10}
	matches, err := e.Search(context.Background(), req, candidateSet("aligned", "opposed", "orthogonal", "zero"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	got := matchIDs(matches)
	// Negative similarities keep their raw order; ties break by id.
	want := []string{"aligned", "orthogonal", "zero", "opposed"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if matches[3].Score >= 0 {
		t.Errorf("opposed score = %v, want negative raw cosine", matches[3].Score)
	}
}

type fixedEmbedder struct {
	vec      []float32
	degraded bool
	err      error
}

func (e *fixedEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: e.vec, Degraded: e.degraded}, nil
}

func TestSearch_DegradedQueryEmbeddingFlagsMatches(t *testing.T) {
	x := index.New()
	st := store.NewMemory()
	seed(t, x, st, &domain.Item{ID: "a", Content: "alpha", Embedding: []float32{1, 0}})

	emb := &fixedEmbedder{vec: []float32{1, 0}, degraded: true}
	e := newTestEngine(t, x, st, emb, nil)
	req := &domain.SearchRequest{Query: "alpha", Mode: domain.ModeVectorOnly, MaxResults: 5}
	matches, err := e.Search(context.Background(), req, candidateSet("a"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 || !matches[0].Degraded {
		t.Errorf("matches = %+v, want one degraded match", matches)
	}
}

func TestSearch_SemanticKeywordExpandsQuery(t *testing.T) {
	x := index.New()
	st := store.NewMemory()
	seed(t, x, st, &domain.Item{ID: "fx", Content: "currency exchange rates for euro"})
	seed(t, x, st, &domain.Item{ID: "weather", Content: "weather report for tomorrow"})
	all := candidateSet("fx", "weather")

	req := &domain.SearchRequest{Query: "currency conversion", Mode: domain.ModeSemanticKeyword, MaxResults: 10}

	// Expansion rewrites the query into terms the corpus actually uses.
	e := newTestEngine(t, x, st, &vocabEmbedder{}, &stubExpander{text: "currency exchange rate"})
	matches, err := e.Search(context.Background(), req, all)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Item.ID != "fx" {
		t.Fatalf("matches = %v, want [fx]", matchIDs(matches))
	}
	if matches[0].Degraded {
		t.Error("expanded search should not be degraded")
	}
	expandedScore := matches[0].Score

	// Expander failure degrades to the raw query instead of failing.
	e = newTestEngine(t, x, st, &vocabEmbedder{}, &stubExpander{err: errors.New("expansion backend down")})
	matches, err = e.Search(context.Background(), req, all)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Item.ID != "fx" {
		t.Fatalf("degraded matches = %v, want [fx]", matchIDs(matches))
	}
	if !matches[0].Degraded {
		t.Error("fallback to the raw query should mark matches degraded")
	}
	if matches[0].Score >= expandedScore {
		t.Errorf("raw-query score %v should be below expanded score %v", matches[0].Score, expandedScore)
	}
}

func TestSearch_SortKeysThenProjection(t *testing.T) {
	x := index.New()
	st := store.NewMemory()
	seed(t, x, st, &domain.Item{
		ID: "cheap", Content: "currency tool",
		Numerics: map[string]float64{"price": 5},
		Metadata: map[string]string{"region": "eu", "vendor": "acme"},
	})
	seed(t, x, st, &domain.Item{
		ID: "pricey", Content: "currency tool deluxe",
		Numerics: map[string]float64{"price": 99},
		Metadata: map[string]string{"region": "us"},
	})
	seed(t, x, st, &domain.Item{ID: "unpriced", Content: "currency tool classic"})

	e := newTestEngine(t, x, st, &vocabEmbedder{}, nil)
	req := &domain.SearchRequest{
		Query:      "currency tool",
		Mode:       domain.ModeKeywordOnly,
		MaxResults: 10,
		Sort:       []domain.SortKey{{Field: "price", Descending: true}},
		Projection: []string{"price"},
	}
	matches, err := e.Search(context.Background(), req, candidateSet("cheap", "pricey", "unpriced"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	got := matchIDs(matches)
	want := []string{"pricey", "cheap", "unpriced"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if len(matches[0].Item.Metadata) != 0 {
		t.Errorf("projection kept metadata %v", matches[0].Item.Metadata)
	}
	if _, ok := matches[0].Item.Numerics["price"]; !ok {
		t.Error("projection dropped the projected field")
	}
}

// trippingStore cancels the search context after each fetch, simulating a
// deadline expiring mid-scoring.
type trippingStore struct {
	*store.Memory
	cancel context.CancelFunc
}

func (s *trippingStore) GetMulti(ctx context.Context, ids []string) ([]*domain.Item, error) {
	items, err := s.Memory.GetMulti(ctx, ids)
	s.cancel()
	return items, err
}

func TestSearch_DeadlineReturnsPartialRanking(t *testing.T) {
	x := index.New()
	mem := store.NewMemory()
	for _, id := range []string{"a", "b", "c", "d"} {
		seed(t, x, mem, &domain.Item{ID: id, Content: "item " + id, Embedding: []float32{1, 0}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &trippingStore{Memory: mem, cancel: cancel}

	e := newTestEngine(t, x, st, &fixedEmbedder{vec: []float32{1, 0}}, nil)
	req := &domain.SearchRequest{Query: "item", Mode: domain.ModeVectorOnly, MaxResults: 10}
	matches, err := e.Search(ctx, req, candidateSet("a", "b", "c", "d"))
	if err != nil {
		t.Fatalf("Search() error = %v, want partial ranking", err)
	}

	// Fetch size is 2, so only the first chunk was scored.
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2 partial results", len(matches))
	}
}

func TestSearch_EmptyCandidateSet(t *testing.T) {
	e := newTestEngine(t, index.New(), store.NewMemory(), &vocabEmbedder{}, nil)
	req := &domain.SearchRequest{Query: "anything", Mode: domain.ModeKeywordOnly, MaxResults: 10}
	matches, err := e.Search(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %v, want none", matchIDs(matches))
	}
}

func TestKeywordQuery_ScoreStaysInUnitRange(t *testing.T) {
	x := index.New()
	st := store.NewMemory()
	// Heavy repetition drives the raw log-TF sum above 1 before capping.
	seed(t, x, st, &domain.Item{ID: "spam", Content: "rate rate rate rate rate rate rate rate exchange exchange exchange exchange"})

	e := newTestEngine(t, x, st, &vocabEmbedder{}, nil)
	req := &domain.SearchRequest{Query: "exchange rate", Mode: domain.ModeKeywordOnly, MaxResults: 5}
	matches, err := e.Search(context.Background(), req, candidateSet("spam"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	if matches[0].Score > 1 || matches[0].Score <= 0 {
		t.Errorf("score = %v, want within (0, 1]", matches[0].Score)
	}
}
