package scorer

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/usage"
)

func newTestScorer() (*Scorer, *usage.Ledger, *usage.Graph) {
	ledger := usage.NewLedger()
	graph := usage.NewGraph()
	return New(ledger, graph, Config{Workers: 4}, zap.NewNop()), ledger, graph
}

// vectorMatch builds a match the way the search engine emits vector hits.
func vectorMatch(id string, score float64) domain.Match {
	m := domain.Match{
		Item:        domain.Item{ID: id, Content: id, TenantScope: "acme"},
		Score:       score,
		VectorScore: score,
	}
	m.Item.SetScore("vector", score)
	return m
}

func scoredIDs(scored []domain.ScoredMatch) []string {
	ids := make([]string, len(scored))
	for i, sm := range scored {
		ids[i] = sm.Item.ID
	}
	return ids
}

func TestScore_SoleSignalKeepsItsValue(t *testing.T) {
	s, _, _ := newTestScorer()

	scored, err := s.Score(context.Background(), []domain.Match{vectorMatch("solo", 0.8)}, domain.ScoringContext{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scored) != 1 {
		t.Fatalf("got %d results, want 1", len(scored))
	}

	sm := scored[0]
	if len(sm.Signals) != 1 {
		t.Fatalf("Signals = %v, want semantic similarity only", sm.Signals)
	}
	if v := sm.Signals[domain.SignalSemanticSimilarity]; v != 0.8 {
		t.Errorf("semantic signal = %v, want 0.8", v)
	}
	// The only present signal is renormalized to carry all the weight.
	if math.Abs(sm.FinalScore-0.8) > 1e-9 {
		t.Errorf("FinalScore = %v, want 0.8", sm.FinalScore)
	}
	// A single signal has zero variance: full agreement plus the semantic part.
	if math.Abs(sm.Confidence-0.92) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.92", sm.Confidence)
	}
}

func TestScore_SignalValues(t *testing.T) {
	s, ledger, _ := newTestScorer()

	sctx := domain.ScoringContext{
		ActorID: "alice",
		State:   map[string]string{"amount": "5"},
		Task: domain.TaskSpec{
			Complexity:           domain.ComplexityModerate,
			RequiredCapabilities: []string{"finance", "reporting"},
			Constraints:          map[string]string{"region": "eu"},
		},
	}
	sig := sctx.Signature()

	ledger.Record(usage.Event{
		ItemID: "fx", ActorID: "alice", Success: true,
		Latency: 100 * time.Millisecond, Satisfaction: 0.9, ContextSignature: sig,
	})
	ledger.Record(usage.Event{
		ItemID: "fx", ActorID: "alice", Success: false,
		Latency: 100 * time.Millisecond, ErrorType: "timeout",
		Satisfaction: math.NaN(), ContextSignature: sig,
	})

	m := vectorMatch("fx", 0.9)
	m.Item.Tags = []string{"finance"}
	m.Item.Categories = []string{"conversion"}
	m.Item.Inputs = []string{"amount", "currency"}
	m.Item.Numerics = map[string]float64{"complexity": 0.5}
	m.Item.Metadata = map[string]string{"region": "eu"}

	scored, err := s.Score(context.Background(), []domain.Match{m}, sctx)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	signals := scored[0].Signals

	if _, ok := signals[domain.SignalCoOccurrence]; ok {
		t.Error("co-occurrence reported without prior selections")
	}

	reliability := 1.0 / 1.5 // one distinct error class
	want := map[string]float64{
		domain.SignalSemanticSimilarity: 0.9,
		// 0.4*min(1, 2/5) actor uses + 0.3*min(1, 2/5) context uses, no successor data.
		domain.SignalContextualRelevance:    0.4*0.4 + 0.3*0.4,
		domain.SignalHistoricalSuccess:      0.4*0.5 + 0.3*0.9 + 0.2*reliability + 0.1*0.1,
		domain.SignalUserPreference:         1,
		domain.SignalTaskComplexityMatch:    1 - (0.5 - 1.0/3),
		domain.SignalPerformanceMetrics:     (1 / 1.2) * reliability,
		domain.SignalCapabilityMatch:        0.5,
		domain.SignalDataCompatibility:      0.5,
		domain.SignalConstraintSatisfaction: 1,
	}
	if len(signals) != len(want) {
		t.Errorf("got %d signals %v, want %d", len(signals), signals, len(want))
	}
	for name, wantV := range want {
		gotV, ok := signals[name]
		if !ok {
			t.Errorf("signal %s missing", name)
			continue
		}
		if math.Abs(gotV-wantV) > 1e-9 {
			t.Errorf("signal %s = %v, want %v", name, gotV, wantV)
		}
	}
}

func TestScore_CustomWeightsFlipRanking(t *testing.T) {
	s, ledger, _ := newTestScorer()

	// history-hero has a flawless track record across several actors,
	// semantic-hero only a strong vector match.
	for _, actor := range []string{"a1", "a2", "a3", "a1", "a2"} {
		ledger.Record(usage.Event{
			ItemID: "history-hero", ActorID: actor, Success: true,
			Latency: 50 * time.Millisecond, Satisfaction: 1, ContextSignature: "|",
		})
	}
	matches := []domain.Match{vectorMatch("semantic-hero", 0.9), vectorMatch("history-hero", 0.2)}

	semanticOnly := domain.ScoringContext{CustomWeights: &domain.Weights{domain.SignalSemanticSimilarity: 1}}
	scored, err := s.Score(context.Background(), matches, semanticOnly)
	if err != nil {
		t.Fatalf("Score(semantic weights): %v", err)
	}
	if got := scoredIDs(scored); got[0] != "semantic-hero" {
		t.Errorf("semantic-only ranking = %v, want semantic-hero first", got)
	}
	// Zero-weighted signals still show up for explanations.
	if _, ok := scored[1].Signals[domain.SignalHistoricalSuccess]; !ok {
		t.Error("historical signal dropped from Signals under semantic-only weights")
	}
	if math.Abs(scored[0].FinalScore-0.9) > 1e-9 {
		t.Errorf("semantic-hero FinalScore = %v, want 0.9", scored[0].FinalScore)
	}

	historyOnly := domain.ScoringContext{CustomWeights: &domain.Weights{domain.SignalHistoricalSuccess: 1}}
	scored, err = s.Score(context.Background(), matches, historyOnly)
	if err != nil {
		t.Fatalf("Score(history weights): %v", err)
	}
	if got := scoredIDs(scored); got[0] != "history-hero" {
		t.Errorf("history-only ranking = %v, want history-hero first", got)
	}
	// semantic-hero has no usage record, so its only weighted signal is
	// absent and its score collapses to zero.
	if scored[1].FinalScore != 0 {
		t.Errorf("semantic-hero FinalScore = %v, want 0", scored[1].FinalScore)
	}
}

func TestScore_UnknownProfileRejected(t *testing.T) {
	s, _, _ := newTestScorer()

	_, err := s.Score(context.Background(), []domain.Match{vectorMatch("a", 0.5)}, domain.ScoringContext{Profile: "made-up"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestRegisterProfile_Rules(t *testing.T) {
	s, _, _ := newTestScorer()
	valid := domain.Weights{domain.SignalSemanticSimilarity: 1}

	if err := s.RegisterProfile("", valid); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("empty name: err = %v, want ErrInvalidRequest", err)
	}
	if err := s.RegisterProfile(domain.ProfilePrecision, valid); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("built-in overwrite: err = %v, want ErrInvalidRequest", err)
	}
	if err := s.RegisterProfile("custom", domain.Weights{"bogus": 1}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("unknown signal: err = %v, want ErrInvalidRequest", err)
	}

	if err := s.RegisterProfile("semantic-heavy", valid); err != nil {
		t.Fatalf("RegisterProfile: %v", err)
	}
	names := s.Profiles()
	if len(names) != 4 {
		t.Fatalf("Profiles() = %v, want 3 built-ins plus the new one", names)
	}
	found := false
	for _, name := range names {
		if name == "semantic-heavy" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Profiles() = %v, missing semantic-heavy", names)
	}

	scored, err := s.Score(context.Background(), []domain.Match{vectorMatch("a", 0.6)}, domain.ScoringContext{Profile: "semantic-heavy"})
	if err != nil {
		t.Fatalf("Score with registered profile: %v", err)
	}
	if math.Abs(scored[0].FinalScore-0.6) > 1e-9 {
		t.Errorf("FinalScore = %v, want 0.6", scored[0].FinalScore)
	}
}

func TestScore_DeterministicForFixedState(t *testing.T) {
	s, ledger, graph := newTestScorer()

	sctx := domain.ScoringContext{
		ActorID:         "alice",
		PriorSelections: []string{"fx"},
		State:           map[string]string{"amount": "5"},
		Task: domain.TaskSpec{
			Complexity:           domain.ComplexityComplex,
			RequiredCapabilities: []string{"finance"},
		},
	}
	sig := sctx.Signature()
	for i := 0; i < 4; i++ {
		ev := usage.Event{
			ItemID:           "fx",
			ActorID:          "alice",
			Success:          i%2 == 0,
			Latency:          time.Duration(50+i*20) * time.Millisecond,
			Satisfaction:     math.NaN(),
			ContextSignature: sig,
		}
		if !ev.Success {
			ev.ErrorType = "timeout"
		}
		ledger.Record(ev)
	}
	graph.Record("fx", "chart", usage.KindComplementary)
	graph.RecordSequence("fx", "calc")

	categories := []string{"finance", "charts", "finance", "math", "charts", "misc", "finance"}
	matches := make([]domain.Match, len(categories))
	for i, cat := range categories {
		m := vectorMatch(string(rune('a'+i)), 0.9-float64(i)*0.1)
		m.Item.Categories = []string{cat}
		m.Item.Tags = []string{"finance"}
		matches[i] = m
	}

	first, err := s.Score(context.Background(), matches, sctx)
	if err != nil {
		t.Fatalf("first Score: %v", err)
	}
	second, err := s.Score(context.Background(), matches, sctx)
	if err != nil {
		t.Fatalf("second Score: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("rankings differ for identical state:\nfirst:  %v\nsecond: %v",
			scoredIDs(first), scoredIDs(second))
	}
}

func TestScore_NoSignalsKeepsInputOrder(t *testing.T) {
	s, _, _ := newTestScorer()

	// Keyword hits carry no vector component; with no actor, task or usage
	// history every signal is absent.
	matches := []domain.Match{
		{Item: domain.Item{ID: "kw-b"}, Score: 0.7, KeywordScore: 0.7},
		{Item: domain.Item{ID: "kw-a"}, Score: 0.4, KeywordScore: 0.4},
	}
	scored, err := s.Score(context.Background(), matches, domain.ScoringContext{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	got := scoredIDs(scored)
	if got[0] != "kw-b" || got[1] != "kw-a" {
		t.Errorf("order = %v, want the input order preserved on ties", got)
	}
	for _, sm := range scored {
		if len(sm.Signals) != 0 || sm.FinalScore != 0 || sm.Confidence != 0 {
			t.Errorf("%s: signals=%v final=%v confidence=%v, want all empty",
				sm.Item.ID, sm.Signals, sm.FinalScore, sm.Confidence)
		}
	}
}

func TestScore_CoOccurrenceAndRecommendations(t *testing.T) {
	s, _, graph := newTestScorer()

	for i := 0; i < 3; i++ {
		graph.Record("fx", "chart", usage.KindComplementary)
		graph.Record("fx", "table", usage.KindSubstitutable)
	}

	sctx := domain.ScoringContext{
		PriorSelections: []string{"fx"},
		Task:            domain.TaskSpec{RequiredCapabilities: []string{"reporting"}},
	}
	matches := []domain.Match{
		{Item: domain.Item{ID: "chart"}},
		{Item: domain.Item{ID: "table"}},
	}
	scored, err := s.Score(context.Background(), matches, sctx)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got := scoredIDs(scored); got[0] != "chart" || got[1] != "table" {
		t.Fatalf("order = %v, want the complementary boost to rank chart first", got)
	}

	chart, table := scored[0], scored[1]
	if v := chart.Signals[domain.SignalCoOccurrence]; math.Abs(v-0.9375) > 1e-9 {
		t.Errorf("chart co-occurrence = %v, want 0.75 boosted to 0.9375", v)
	}
	if v := table.Signals[domain.SignalCoOccurrence]; math.Abs(v-0.75) > 1e-9 {
		t.Errorf("table co-occurrence = %v, want 0.75", v)
	}

	// chart misses the required capability but has a known complement.
	if !containsString(chart.Recommendations, "combine with: fx") {
		t.Errorf("chart recommendations = %v, want a combine-with suggestion", chart.Recommendations)
	}
	// table has a substitute edge and no complement to suggest.
	if !containsString(table.Recommendations, "substitute: fx") {
		t.Errorf("table recommendations = %v, want a substitute suggestion", table.Recommendations)
	}
	if !containsString(table.Recommendations, "capability gap: combine with a complementary item") {
		t.Errorf("table recommendations = %v, want a capability-gap flag", table.Recommendations)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestScore_CanceledContextReturnsPartial(t *testing.T) {
	s, _, _ := newTestScorer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	matches := []domain.Match{vectorMatch("a", 0.9), vectorMatch("b", 0.8)}
	scored, err := s.Score(ctx, matches, domain.ScoringContext{})
	if err != nil {
		t.Fatalf("Score after cancel: %v, want best-effort partial without error", err)
	}
	if len(scored) != 0 {
		t.Errorf("got %d results, want none scored before the first batch", len(scored))
	}
}

func TestScore_EmptyMatches(t *testing.T) {
	s, _, _ := newTestScorer()

	scored, err := s.Score(context.Background(), nil, domain.ScoringContext{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scored) != 0 {
		t.Errorf("got %d results, want 0", len(scored))
	}
}

func TestConfidence_AgreementAndSemantic(t *testing.T) {
	if got := confidence(nil); got != 0 {
		t.Errorf("confidence(nil) = %v, want 0", got)
	}
	if got := confidence(map[string]float64{domain.SignalSemanticSimilarity: 0.8}); math.Abs(got-0.92) > 1e-9 {
		t.Errorf("single signal confidence = %v, want 0.92", got)
	}

	agreeing := confidence(map[string]float64{
		domain.SignalSemanticSimilarity: 0.8,
		domain.SignalCapabilityMatch:    0.8,
	})
	disagreeing := confidence(map[string]float64{
		domain.SignalSemanticSimilarity: 0.8,
		domain.SignalCapabilityMatch:    0.1,
	})
	if agreeing <= disagreeing {
		t.Errorf("agreeing signals confidence %v <= disagreeing %v", agreeing, disagreeing)
	}

	// Maximum spread: mean 0.5, variance 0.25, agreement halves.
	spread := confidence(map[string]float64{
		domain.SignalSemanticSimilarity: 1,
		domain.SignalCapabilityMatch:    0,
	})
	if math.Abs(spread-0.7) > 1e-9 {
		t.Errorf("spread confidence = %v, want 0.7", spread)
	}
}

func TestExplain_Thresholds(t *testing.T) {
	scenarios := []struct {
		name           string
		signals        map[string]float64
		wantStrengths  []string
		wantWeaknesses []string
	}{
		{
			name:          "semantic above its strength threshold",
			signals:       map[string]float64{domain.SignalSemanticSimilarity: 0.85},
			wantStrengths: []string{"excellent semantic match"},
		},
		{
			name:    "semantic in its neutral band",
			signals: map[string]float64{domain.SignalSemanticSimilarity: 0.6},
		},
		{
			name:           "semantic below its weakness threshold",
			signals:        map[string]float64{domain.SignalSemanticSimilarity: 0.45},
			wantWeaknesses: []string{"lower semantic relevance"},
		},
		{
			name:    "other signals use the wider band",
			signals: map[string]float64{domain.SignalHistoricalSuccess: 0.45},
		},
		{
			name: "mixed signals keep the stable order",
			signals: map[string]float64{
				domain.SignalSemanticSimilarity: 0.9,
				domain.SignalPerformanceMetrics: 0.1,
				domain.SignalCapabilityMatch:    0.75,
			},
			wantStrengths:  []string{"excellent semantic match", "covers the required capabilities"},
			wantWeaknesses: []string{"slow or error-prone"},
		},
	}

	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			strengths, weaknesses := explain(sc.signals)
			if !reflect.DeepEqual(strengths, sc.wantStrengths) {
				t.Errorf("strengths = %v, want %v", strengths, sc.wantStrengths)
			}
			if !reflect.DeepEqual(weaknesses, sc.wantWeaknesses) {
				t.Errorf("weaknesses = %v, want %v", weaknesses, sc.wantWeaknesses)
			}
		})
	}
}
