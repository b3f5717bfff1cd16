package scorer

import "github.com/relevar/relevar/internal/domain"

// Explanation thresholds. Semantic similarity uses its own, tighter bounds.
const (
	semanticStrongAbove = 0.8
	semanticWeakBelow   = 0.5
	signalStrongAbove   = 0.7
	signalWeakBelow     = 0.3
)

// Recommendation limits per candidate.
const (
	maxSubstitutes = 3
	maxComplements = 2
)

// confidence blends signal agreement (inverse variance across the present
// signals) with the raw semantic score.
func confidence(signals map[string]float64) float64 {
	if len(signals) == 0 {
		return 0
	}

	var sum float64
	for _, name := range domain.SignalNames {
		if v, ok := signals[name]; ok {
			sum += v
		}
	}
	mean := sum / float64(len(signals))

	var variance float64
	for _, name := range domain.SignalNames {
		if v, ok := signals[name]; ok {
			d := v - mean
			variance += d * d
		}
	}
	variance /= float64(len(signals))

	agreement := 1 / (1 + 4*variance)
	return clamp01(0.6*agreement + 0.4*signals[domain.SignalSemanticSimilarity])
}

var signalDescriptors = map[string]struct{ strength, weakness string }{
	domain.SignalSemanticSimilarity:     {"excellent semantic match", "lower semantic relevance"},
	domain.SignalContextualRelevance:    {"proven in similar contexts", "unproven in this context"},
	domain.SignalHistoricalSuccess:      {"strong track record", "weak track record"},
	domain.SignalCoOccurrence:           {"frequently used with prior selections", "rarely used with prior selections"},
	domain.SignalUserPreference:         {"matches this actor's habits", "outside this actor's habits"},
	domain.SignalTaskComplexityMatch:    {"complexity fits the task", "complexity mismatch"},
	domain.SignalPerformanceMetrics:     {"fast and reliable", "slow or error-prone"},
	domain.SignalCapabilityMatch:        {"covers the required capabilities", "missing required capabilities"},
	domain.SignalDataCompatibility:      {"required inputs available", "required inputs missing"},
	domain.SignalConstraintSatisfaction: {"meets the stated constraints", "violates stated constraints"},
}

// explain names the signals above the strength threshold and below the
// weakness threshold, in the fixed signal order.
func explain(signals map[string]float64) (strengths, weaknesses []string) {
	for _, name := range domain.SignalNames {
		v, ok := signals[name]
		if !ok {
			continue
		}
		strongAbove, weakBelow := signalStrongAbove, signalWeakBelow
		if name == domain.SignalSemanticSimilarity {
			strongAbove, weakBelow = semanticStrongAbove, semanticWeakBelow
		}

		d := signalDescriptors[name]
		switch {
		case v > strongAbove:
			strengths = append(strengths, d.strength)
		case v < weakBelow:
			weaknesses = append(weaknesses, d.weakness)
		}
	}
	return strengths, weaknesses
}

// recommend surfaces substitutable alternatives from the relationship graph
// and, when the candidate covers little of the required capability set,
// complements to pair it with.
func (s *Scorer) recommend(it *domain.Item, signals map[string]float64) []string {
	var recs []string
	for _, sub := range s.graph.Substitutes(it.ID, maxSubstitutes) {
		recs = append(recs, "substitute: "+sub)
	}

	if v, ok := signals[domain.SignalCapabilityMatch]; ok && v < 0.5 {
		comps := s.graph.Complements(it.ID, maxComplements)
		for _, comp := range comps {
			recs = append(recs, "combine with: "+comp)
		}
		if len(comps) == 0 {
			recs = append(recs, "capability gap: combine with a complementary item")
		}
	}
	return recs
}
