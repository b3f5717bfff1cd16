package domain

import "fmt"

// Signal names produced by the relevance scorer.
const (
	SignalSemanticSimilarity     = "semantic_similarity"
	SignalContextualRelevance    = "contextual_relevance"
	SignalHistoricalSuccess      = "historical_success"
	SignalCoOccurrence           = "co_occurrence"
	SignalUserPreference         = "user_preference"
	SignalTaskComplexityMatch    = "task_complexity_match"
	SignalPerformanceMetrics     = "performance_metrics"
	SignalCapabilityMatch        = "capability_match"
	SignalDataCompatibility      = "data_compatibility"
	SignalConstraintSatisfaction = "constraint_satisfaction"
)

// SignalNames lists every signal in stable order.
var SignalNames = []string{
	SignalSemanticSimilarity,
	SignalContextualRelevance,
	SignalHistoricalSuccess,
	SignalCoOccurrence,
	SignalUserPreference,
	SignalTaskComplexityMatch,
	SignalPerformanceMetrics,
	SignalCapabilityMatch,
	SignalDataCompatibility,
	SignalConstraintSatisfaction,
}

// Built-in weight profile names.
const (
	ProfileDefault     = "default"
	ProfilePrecision   = "precision"
	ProfileExploration = "exploration"
)

// Weights maps signal names to their relative weight. The scorer renormalizes
// over the signals actually present for a candidate, so weights need not sum to 1.
type Weights map[string]float64

// Validate rejects unknown signal names and negative weights.
func (w Weights) Validate() error {
	known := make(map[string]bool, len(SignalNames))
	for _, name := range SignalNames {
		known[name] = true
	}
	var positive bool
	for name, weight := range w {
		if !known[name] {
			return fmt.Errorf("unknown signal %q in weight profile: %w", name, ErrInvalidRequest)
		}
		if weight < 0 {
			return fmt.Errorf("negative weight for signal %q: %w", name, ErrInvalidRequest)
		}
		if weight > 0 {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("weight profile has no positive weights: %w", ErrInvalidRequest)
	}
	return nil
}

// Clone returns a copy of the weights.
func (w Weights) Clone() Weights {
	c := make(Weights, len(w))
	for k, v := range w {
		c[k] = v
	}
	return c
}

// DefaultProfiles returns the built-in weight profiles.
//
// default balances all ten signals. precision leans on semantic similarity,
// contextual history and proven success. exploration up-weights
// co-occurrence, personal preference and complexity fit so lightly-used
// items can surface.
func DefaultProfiles() map[string]Weights {
	return map[string]Weights{
		ProfileDefault: {
			SignalSemanticSimilarity:     0.30,
			SignalContextualRelevance:    0.10,
			SignalHistoricalSuccess:      0.15,
			SignalCoOccurrence:           0.05,
			SignalUserPreference:         0.05,
			SignalTaskComplexityMatch:    0.05,
			SignalPerformanceMetrics:     0.10,
			SignalCapabilityMatch:        0.10,
			SignalDataCompatibility:      0.05,
			SignalConstraintSatisfaction: 0.05,
		},
		ProfilePrecision: {
			SignalSemanticSimilarity:     0.40,
			SignalContextualRelevance:    0.15,
			SignalHistoricalSuccess:      0.20,
			SignalCoOccurrence:           0.02,
			SignalUserPreference:         0.02,
			SignalTaskComplexityMatch:    0.03,
			SignalPerformanceMetrics:     0.05,
			SignalCapabilityMatch:        0.06,
			SignalDataCompatibility:      0.04,
			SignalConstraintSatisfaction: 0.03,
		},
		ProfileExploration: {
			SignalSemanticSimilarity:     0.20,
			SignalContextualRelevance:    0.08,
			SignalHistoricalSuccess:      0.05,
			SignalCoOccurrence:           0.15,
			SignalUserPreference:         0.15,
			SignalTaskComplexityMatch:    0.15,
			SignalPerformanceMetrics:     0.05,
			SignalCapabilityMatch:        0.08,
			SignalDataCompatibility:      0.05,
			SignalConstraintSatisfaction: 0.04,
		},
	}
}
