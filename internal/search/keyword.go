package search

import (
	"math"
	"strings"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/index"
)

// exactMatchBoost is added when a candidate matching every query term also
// contains the literal query text.
const exactMatchBoost = 0.3

// keywordQuery is the per-request state for lexical scoring: the distinct
// query terms and the lowered query text for the exact-substring boost.
type keywordQuery struct {
	terms   []string
	lowered string
	// degraded is set when this query came out of a failed expansion.
	degraded bool
}

func newKeywordQuery(text string) *keywordQuery {
	tokens := index.Tokenize(text)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return &keywordQuery{terms: terms, lowered: strings.ToLower(strings.TrimSpace(text))}
}

// prefilter keeps only candidates containing at least one query term,
// resolved through the inverted index. Candidates failing every term would
// score 0 anyway.
func (kq *keywordQuery) prefilter(inv *index.Inverted, candidates map[string]struct{}) map[string]struct{} {
	if len(kq.terms) == 0 {
		return map[string]struct{}{}
	}
	withTerm := inv.CandidatesAny(kq.terms)
	out := make(map[string]struct{}, len(candidates))
	for id := range candidates {
		if _, ok := withTerm[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// score computes the lexical score for one candidate in [0, 1].
//
// Per query term present in the candidate, term frequency contributes on a
// log scale (ln(1+tf)). The sum is normalized by the distinct query term
// count and damped by the fraction of query terms that matched at all.
// Candidates matching every term are checked for the literal query substring
// and boosted on a hit; the final score is capped at 1.
func (kq *keywordQuery) score(inv *index.Inverted, it *domain.Item) float64 {
	if len(kq.terms) == 0 {
		return 0
	}
	var sum float64
	matched := 0
	for _, term := range kq.terms {
		tf, ok := inv.Frequency(term, it.ID)
		if !ok || tf <= 0 {
			continue
		}
		matched++
		sum += math.Log(1 + float64(tf))
	}
	if matched == 0 {
		return 0
	}

	n := float64(len(kq.terms))
	score := (sum / n) * (float64(matched) / n)
	if matched == len(kq.terms) && strings.Contains(strings.ToLower(it.Content), kq.lowered) {
		score += exactMatchBoost
	}
	if score > 1 {
		score = 1
	}
	return score
}
