package scorer

import (
	"math"
	"strings"
	"time"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/usage"
)

const (
	// latencyHalfScore is the average latency at which the performance
	// signal reaches 0.5 before the reliability scaling.
	latencyHalfScore = 500 * time.Millisecond
	// complementaryBoost amplifies graph edges marked complementary.
	complementaryBoost = 1.25
)

// signalContext carries the per-request inputs shared by every candidate:
// the scoring context plus values derived from it once.
type signalContext struct {
	s    *Scorer
	sctx *domain.ScoringContext

	signature  string
	actorTotal int64
	// last is the reference point for successor prediction: the most
	// recent prior selection, or the actor's last recorded use.
	last string
}

func (s *Scorer) newSignalContext(sctx *domain.ScoringContext) *signalContext {
	sig := &signalContext{
		s:         s,
		sctx:      sctx,
		signature: sctx.Signature(),
	}
	if sctx.ActorID != "" {
		sig.actorTotal = s.ledger.ActorTotal(sctx.ActorID)
	}
	if last, ok := sctx.LastSelection(); ok {
		sig.last = last
	} else if sctx.ActorID != "" {
		if last, ok := s.ledger.LastUsed(sctx.ActorID); ok {
			sig.last = last
		}
	}
	return sig
}

// compute returns the signals present for the candidate. A signal is
// present when its inputs exist, regardless of the resulting value.
func (c *signalContext) compute(m *domain.Match) map[string]float64 {
	it := &m.Item
	signals := make(map[string]float64, len(domain.SignalNames))

	if _, tracked := it.Scores["vector"]; tracked || m.VectorScore != 0 {
		signals[domain.SignalSemanticSimilarity] = clamp01(m.VectorScore)
	}
	if c.sctx.ActorID != "" || c.last != "" {
		signals[domain.SignalContextualRelevance] = c.contextualRelevance(it)
	}
	if stats, tracked := c.s.ledger.Stats(it.ID); tracked {
		signals[domain.SignalHistoricalSuccess] = historicalSuccess(stats)
		signals[domain.SignalPerformanceMetrics] = performanceScore(stats)
	}
	if len(c.sctx.PriorSelections) > 0 {
		signals[domain.SignalCoOccurrence] = c.coOccurrence(it)
	}
	if c.actorTotal > 0 {
		signals[domain.SignalUserPreference] = c.userPreference(it)
	}
	if c.sctx.Task.Complexity.IsValid() {
		signals[domain.SignalTaskComplexityMatch] = complexityMatch(it, c.sctx.Task.Complexity)
	}
	if len(c.sctx.Task.RequiredCapabilities) > 0 {
		signals[domain.SignalCapabilityMatch] = capabilityMatch(it, c.sctx.Task.RequiredCapabilities)
	}
	if len(it.Inputs) > 0 {
		signals[domain.SignalDataCompatibility] = dataCompatibility(it, c.sctx.State)
	}
	if len(c.sctx.Task.Constraints) > 0 {
		signals[domain.SignalConstraintSatisfaction] = constraintSatisfaction(it, c.sctx.Task.Constraints)
	}
	return signals
}

// contextualRelevance scores how familiar the item is in this setting: the
// actor's own use of it, its use under similar task signatures, and whether
// it statistically follows the last-used item.
func (c *signalContext) contextualRelevance(it *domain.Item) float64 {
	var v float64
	if c.sctx.ActorID != "" {
		if uses := c.s.ledger.ActorItemUses(c.sctx.ActorID, it.ID); uses > 0 {
			v += 0.4 * math.Min(1, float64(uses)/5)
		}
	}
	if ctxUses := c.s.ledger.ContextUses(it.ID, c.signature); ctxUses > 0 {
		v += 0.3 * math.Min(1, float64(ctxUses)/5)
	}
	if c.last != "" {
		v += 0.3 * c.s.graph.SuccessorProbability(c.last, it.ID)
	}
	return v
}

// coOccurrence averages the graph affinity between the candidate and each
// prior selection. Complementary edges count extra.
func (c *signalContext) coOccurrence(it *domain.Item) float64 {
	priors := c.sctx.PriorSelections
	var sum float64
	for _, prior := range priors {
		w := c.s.graph.Normalized(prior, it.ID)
		if c.s.graph.IsComplementary(prior, it.ID) {
			w *= complementaryBoost
		}
		sum += w
	}
	return math.Min(1, sum/float64(len(priors)))
}

// userPreference is the item's share of the actor's total recorded usage,
// scaled so a fifth of all personal usage already counts as full preference.
func (c *signalContext) userPreference(it *domain.Item) float64 {
	uses := c.s.ledger.ActorItemUses(c.sctx.ActorID, it.ID)
	share := float64(uses) / float64(c.actorTotal)
	return math.Min(1, 5*share)
}

// historicalSuccess blends success rate, the rolling satisfaction average,
// a reliability factor penalizing error-class diversity, and usage breadth
// across actors. Without any reported satisfaction the remaining parts are
// renormalized so the item is not punished for missing reports.
func historicalSuccess(stats usage.Stats) float64 {
	reliability := reliabilityScore(stats)
	breadth := math.Min(1, float64(stats.DistinctActors)/10)

	v := 0.4*stats.SuccessRate() + 0.2*reliability + 0.1*breadth
	if math.IsNaN(stats.SatisfactionAvg) {
		return v / 0.7
	}
	return v + 0.3*stats.SatisfactionAvg
}

// reliabilityScore decays with the number of distinct error classes seen.
func reliabilityScore(stats usage.Stats) float64 {
	return 1 / (1 + 0.5*float64(stats.ErrorTypes))
}

// performanceScore rewards low average latency, scaled by reliability.
func performanceScore(stats usage.Stats) float64 {
	latency := 1 / (1 + stats.AvgLatency.Seconds()/latencyHalfScore.Seconds())
	return latency * reliabilityScore(stats)
}

// complexityMatch compares the item's estimated complexity against the
// requested level on the same [0,1] scale.
func complexityMatch(it *domain.Item, level domain.ComplexityLevel) float64 {
	return 1 - math.Abs(estimateComplexity(it)-level.Scale())
}

// estimateComplexity prefers an explicit "complexity" numeric field and
// otherwise derives a stable estimate from content length and the size of
// the capability surface.
func estimateComplexity(it *domain.Item) float64 {
	if v, ok := it.Numerics["complexity"]; ok {
		return clamp01(v)
	}
	length := math.Min(1, float64(len(it.Content))/1500)
	surface := math.Min(1, float64(len(it.Tags)+len(it.Categories)+len(it.Inputs))/8)
	return 0.15 + 0.55*length + 0.30*surface
}

// capabilityMatch is the fraction of required capabilities present among
// the item's categories and tags, case-insensitive.
func capabilityMatch(it *domain.Item, required []string) float64 {
	have := make(map[string]bool, len(it.Categories)+len(it.Tags))
	for _, cat := range it.Categories {
		have[strings.ToLower(cat)] = true
	}
	for _, tag := range it.Tags {
		have[strings.ToLower(tag)] = true
	}

	var matched int
	for _, name := range required {
		if have[strings.ToLower(name)] {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// dataCompatibility is the fraction of the item's declared inputs present
// in the caller's state snapshot.
func dataCompatibility(it *domain.Item, state map[string]string) float64 {
	var present int
	for _, input := range it.Inputs {
		if _, ok := state[input]; ok {
			present++
		}
	}
	return float64(present) / float64(len(it.Inputs))
}

// constraintSatisfaction is the fraction of hard constraints the item meets
// by field equality in canonical form. A missing field violates its
// constraint.
func constraintSatisfaction(it *domain.Item, constraints map[string]string) float64 {
	var satisfied int
	for field, want := range constraints {
		if value, ok := it.Field(field); ok && domain.CanonicalFieldValue(value) == want {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(constraints))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
