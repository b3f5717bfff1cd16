// Package scorer re-ranks retrieval matches using contextual relevance.
// Every candidate receives up to ten signal scores in [0,1]; a signal whose
// inputs are missing (no usage history, no task spec, no prior selections)
// drops out of both the weighted sum and its denominator, so sparse history
// never drags a score toward zero.
package scorer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/metrics"
	"github.com/relevar/relevar/internal/usage"
)

// DefaultWorkers bounds the parallel per-candidate scoring goroutines.
const DefaultWorkers = 8

// Config tunes the scorer.
type Config struct {
	// Workers bounds the scoring fan-out per batch. The context deadline is
	// checked between batches.
	Workers int
	// DefaultProfile names the weight profile used when a request names none.
	DefaultProfile string
}

// Scorer computes multi-signal relevance scores over search matches, backed
// by the usage ledger and the relationship graph.
type Scorer struct {
	ledger *usage.Ledger
	graph  *usage.Graph

	mu       sync.RWMutex
	profiles map[string]domain.Weights

	workers        int
	defaultProfile string
	logger         *zap.Logger
}

// New creates a scorer. The three built-in weight profiles are always
// registered; more can be added with RegisterProfile.
func New(ledger *usage.Ledger, graph *usage.Graph, cfg Config, logger *zap.Logger) *Scorer {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = domain.ProfileDefault
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		ledger:         ledger,
		graph:          graph,
		profiles:       domain.DefaultProfiles(),
		workers:        cfg.Workers,
		defaultProfile: cfg.DefaultProfile,
		logger:         logger,
	}
}

// RegisterProfile adds a custom weight profile under the given name.
// Built-in profiles cannot be overwritten.
func (s *Scorer) RegisterProfile(name string, w domain.Weights) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("profile name is empty: %w", domain.ErrInvalidRequest)
	}
	switch name {
	case domain.ProfileDefault, domain.ProfilePrecision, domain.ProfileExploration:
		return fmt.Errorf("cannot overwrite built-in profile %q: %w", name, domain.ErrInvalidRequest)
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}

	s.mu.Lock()
	s.profiles[name] = w.Clone()
	s.mu.Unlock()
	return nil
}

// Profiles lists the registered profile names, sorted.
func (s *Scorer) Profiles() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Score computes the signal scores for every match, aggregates them under
// the active weight profile, sorts by final score and applies the category
// diversity pass. The result is deterministic for a fixed ledger and graph
// state; ties keep their input order.
//
// When the context deadline expires mid-scoring, the candidates scored so
// far are ranked and returned rather than an error.
func (s *Scorer) Score(ctx context.Context, matches []domain.Match, sctx domain.ScoringContext) ([]domain.ScoredMatch, error) {
	scored, err := s.score(ctx, matches, sctx)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ScoreRequestsTotal.WithLabelValues(status).Inc()
	return scored, err
}

func (s *Scorer) score(ctx context.Context, matches []domain.Match, sctx domain.ScoringContext) ([]domain.ScoredMatch, error) {
	if err := sctx.Validate(); err != nil {
		return nil, err
	}
	weights, err := s.resolveWeights(&sctx)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	sig := s.newSignalContext(&sctx)

	out := make([]domain.ScoredMatch, 0, len(matches))
	for start := 0; start < len(matches); start += s.workers {
		if ctx.Err() != nil {
			s.logger.Warn("Scoring deadline reached, returning partial ranking",
				zap.Int("scored", len(out)),
				zap.Int("candidates", len(matches)),
			)
			break
		}
		end := start + s.workers
		if end > len(matches) {
			end = len(matches)
		}

		batch := matches[start:end]
		scored := make([]domain.ScoredMatch, len(batch))
		var g errgroup.Group
		for i := range batch {
			i := i
			g.Go(func() error {
				scored[i] = s.scoreOne(&batch[i], sig, weights)
				return nil
			})
		}
		// Scoring closures never return an error.
		_ = g.Wait()
		out = append(out, scored...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	return rerankDiversity(out), nil
}

// resolveWeights picks the active weight profile: explicit custom weights
// win, then the named profile, then the configured default.
func (s *Scorer) resolveWeights(sctx *domain.ScoringContext) (domain.Weights, error) {
	if sctx.CustomWeights != nil {
		if err := sctx.CustomWeights.Validate(); err != nil {
			return nil, err
		}
		return sctx.CustomWeights.Clone(), nil
	}

	name := sctx.Profile
	if name == "" {
		name = s.defaultProfile
	}
	s.mu.RLock()
	w, ok := s.profiles[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown weight profile %q: %w", name, domain.ErrInvalidRequest)
	}
	return w, nil
}

// scoreOne computes the present signals for one match and aggregates them
// under the active weights. Signals the profile zeroes out still appear in
// Signals for explanations but do not move the final score.
func (s *Scorer) scoreOne(m *domain.Match, sig *signalContext, weights domain.Weights) domain.ScoredMatch {
	signals := sig.compute(m)

	// Accumulate in the fixed signal order so float rounding is
	// reproducible run to run.
	var sum, total float64
	for _, name := range domain.SignalNames {
		value, ok := signals[name]
		if !ok {
			continue
		}
		w := weights[name]
		if w <= 0 {
			continue
		}
		sum += w * value
		total += w
	}
	var final float64
	if total > 0 {
		final = sum / total
	}

	sm := domain.ScoredMatch{
		Match:      *m,
		Signals:    signals,
		FinalScore: final,
		Confidence: confidence(signals),
	}
	sm.Strengths, sm.Weaknesses = explain(signals)
	sm.Recommendations = s.recommend(&m.Item, signals)
	return sm
}
