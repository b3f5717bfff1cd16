package scorer

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/relevar/relevar/internal/domain"
)

func rankedMatch(id string, score float64, categories ...string) domain.ScoredMatch {
	return domain.ScoredMatch{
		Match:      domain.Match{Item: domain.Item{ID: id, Categories: categories}},
		FinalScore: score,
	}
}

func TestRerankDiversity_TopResultsCoverCategories(t *testing.T) {
	ranked := []domain.ScoredMatch{
		rankedMatch("a1", 0.90, "analytics"),
		rankedMatch("a2", 0.89, "analytics"),
		rankedMatch("a3", 0.88, "analytics"),
		rankedMatch("b1", 0.50, "billing"),
		rankedMatch("b2", 0.40, "billing"),
		rankedMatch("c1", 0.30, "charts"),
		rankedMatch("x1", 0.20), // no categories, never promoted
	}

	out := rerankDiversity(ranked)

	want := []string{"a1", "b1", "c1", "a2", "a3", "b2", "x1"}
	if got := scoredIDs(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	// The top three must span at least two categories once three or more
	// exist in the candidate pool.
	top := map[string]bool{}
	for _, sm := range out[:3] {
		for _, cat := range sm.Item.Categories {
			top[cat] = true
		}
	}
	if len(top) < 2 {
		t.Errorf("top 3 cover %d categories, want at least 2", len(top))
	}

	// A permutation of the input, no re-scoring.
	if len(out) != len(ranked) {
		t.Fatalf("got %d results, want %d", len(out), len(ranked))
	}
	for _, sm := range out {
		if sm.Item.ID == "a1" && sm.FinalScore != 0.90 {
			t.Errorf("a1 FinalScore = %v, rerank must not change scores", sm.FinalScore)
		}
	}
}

func TestRerankDiversity_ShortListUntouched(t *testing.T) {
	ranked := []domain.ScoredMatch{
		rankedMatch("a1", 0.9, "analytics"),
		rankedMatch("a2", 0.8, "analytics"),
		rankedMatch("a3", 0.7, "analytics"),
		rankedMatch("b1", 0.6, "billing"),
		rankedMatch("b2", 0.5, "billing"),
	}

	out := rerankDiversity(ranked)
	want := []string{"a1", "a2", "a3", "b1", "b2"}
	if got := scoredIDs(out); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want the five-result list unchanged", got)
	}
}

func TestRerankDiversity_GreedyStopsAtTenPicks(t *testing.T) {
	var ranked []domain.ScoredMatch
	for i := 0; i < 10; i++ {
		ranked = append(ranked, rankedMatch(
			fmt.Sprintf("u%d", i), 1-float64(i)*0.05, fmt.Sprintf("cat-%d", i)))
	}
	// Past the greedy budget: a repeat category, then a fresh one that
	// would have been promoted had the budget not been spent.
	ranked = append(ranked,
		rankedMatch("repeat", 0.4, "cat-0"),
		rankedMatch("fresh", 0.3, "cat-fresh"),
	)

	out := rerankDiversity(ranked)
	got := scoredIDs(out)
	if got[10] != "repeat" || got[11] != "fresh" {
		t.Errorf("tail = %v, want score order once ten results are picked", got[10:])
	}
	for i := 0; i < 10; i++ {
		if got[i] != fmt.Sprintf("u%d", i) {
			t.Fatalf("position %d = %s, want u%d", i, got[i], i)
		}
	}
}
