package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ComplexityLevel grades how demanding a task is.
type ComplexityLevel string

// Task complexity levels.
const (
	ComplexitySimple   ComplexityLevel = "SIMPLE"
	ComplexityModerate ComplexityLevel = "MODERATE"
	ComplexityComplex  ComplexityLevel = "COMPLEX"
	ComplexityExpert   ComplexityLevel = "EXPERT"
)

// IsValid checks if the level is one of the supported values.
func (c ComplexityLevel) IsValid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityExpert:
		return true
	}
	return false
}

// Scale maps the level onto [0,1]: SIMPLE=0 .. EXPERT=1.
func (c ComplexityLevel) Scale() float64 {
	switch c {
	case ComplexitySimple:
		return 0
	case ComplexityModerate:
		return 1.0 / 3.0
	case ComplexityComplex:
		return 2.0 / 3.0
	case ComplexityExpert:
		return 1
	}
	return 0
}

// TaskSpec describes the task the caller is selecting items for.
type TaskSpec struct {
	Complexity           ComplexityLevel
	RequiredCapabilities []string
	DataRequirements     []string
	// Constraints are satisfied by metadata equality on the candidate.
	Constraints map[string]string
}

// ScoringContext carries everything the relevance scorer may consult.
// Plain struct; Validate before use.
type ScoringContext struct {
	Query     string
	ActorID   string
	SessionID string
	// State is the current state snapshot: data keys available to the actor.
	State map[string]string
	// PriorSelections lists item IDs already chosen in this session, in order.
	PriorSelections []string
	Task            TaskSpec
	// Profile names a registered weight profile. Empty means the default.
	Profile string
	// CustomWeights overrides the named profile when non-nil.
	CustomWeights *Weights
}

// Validate checks the scoring context.
func (sc *ScoringContext) Validate() error {
	if sc.Task.Complexity != "" && !sc.Task.Complexity.IsValid() {
		return fmt.Errorf("invalid complexity level %q: %w", sc.Task.Complexity, ErrInvalidRequest)
	}
	return nil
}

// LastSelection returns the most recent prior selection, if any.
func (sc *ScoringContext) LastSelection() (string, bool) {
	if len(sc.PriorSelections) == 0 {
		return "", false
	}
	return sc.PriorSelections[len(sc.PriorSelections)-1], true
}

// Signature is a stable key grouping similar task contexts: the complexity
// level plus the sorted required capabilities. Usage recorded under one
// signature informs the contextual-relevance signal for later queries with
// the same shape.
func (sc *ScoringContext) Signature() string {
	caps := make([]string, len(sc.Task.RequiredCapabilities))
	copy(caps, sc.Task.RequiredCapabilities)
	sort.Strings(caps)
	return string(sc.Task.Complexity) + "|" + strings.Join(caps, ",")
}

// Match is a single retrieval hit.
type Match struct {
	Item  Item
	Score float64
	// VectorScore and KeywordScore expose the blend components for hybrid mode.
	VectorScore  float64
	KeywordScore float64
	// Degraded marks scores computed from a fallback embedding.
	Degraded bool
}

// ScoredMatch is a match enriched by the relevance scorer.
type ScoredMatch struct {
	Match
	// Signals holds the present signal scores by name. Absent signals do not appear.
	Signals map[string]float64
	// FinalScore is the weighted aggregate over present signals.
	FinalScore float64
	// Confidence estimates how much the signals agree.
	Confidence float64
	// Strengths and Weaknesses name signals above/below the explain thresholds.
	Strengths  []string
	Weaknesses []string
	// Recommendations suggests substitutable or complementary items.
	Recommendations []string
}
