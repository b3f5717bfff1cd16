package scorer

import "github.com/relevar/relevar/internal/domain"

// Diversity pass bounds.
const (
	// diversityMinResults is the list size above which the pass runs.
	diversityMinResults = 5
	// diversityMaxPicks caps the greedy phase; the rest follows by score.
	diversityMaxPicks = 10
)

// rerankDiversity reorders a ranked list so the top results cover distinct
// categories. A deterministic greedy pass walks the list in score order and
// promotes the best remaining item that introduces a category not yet seen;
// once no remaining item introduces one, or diversityMaxPicks results are
// chosen, the rest follow in their original order. Items without categories
// never introduce one and so keep their score-order position. Not a
// re-score: every FinalScore is left untouched.
func rerankDiversity(ranked []domain.ScoredMatch) []domain.ScoredMatch {
	if len(ranked) <= diversityMinResults {
		return ranked
	}

	out := make([]domain.ScoredMatch, 0, len(ranked))
	picked := make([]bool, len(ranked))
	seen := make(map[string]bool)

	for len(out) < diversityMaxPicks {
		next := -1
		for i := range ranked {
			if !picked[i] && introducesCategory(&ranked[i], seen) {
				next = i
				break
			}
		}
		if next == -1 {
			break
		}
		picked[next] = true
		for _, cat := range ranked[next].Item.Categories {
			seen[cat] = true
		}
		out = append(out, ranked[next])
	}

	for i := range ranked {
		if !picked[i] {
			out = append(out, ranked[i])
		}
	}
	return out
}

func introducesCategory(m *domain.ScoredMatch, seen map[string]bool) bool {
	for _, cat := range m.Item.Categories {
		if !seen[cat] {
			return true
		}
	}
	return false
}
