// Package usage tracks how items perform once callers actually use them.
// The ledger and graph feed the historical, preference and co-occurrence
// signals of the relevance scorer. Updates are merge-only, so concurrent
// writers for the same item never conflict.
package usage

import (
	"math"
	"sync"
	"time"
)

// satisfactionWindow bounds the per-item rolling satisfaction history.
const satisfactionWindow = 100

// Event is one completed use of an item.
type Event struct {
	ItemID  string
	ActorID string
	Success bool
	Latency time.Duration
	// ErrorType classifies a failed use. Empty on success.
	ErrorType string
	// Satisfaction is the caller-reported score in [0,1]. NaN means not
	// reported; unreported scores do not enter the rolling window.
	Satisfaction float64
	// ContextSignature groups uses made under similar task contexts.
	ContextSignature string
}

// Stats is a point-in-time snapshot of one item's usage record.
type Stats struct {
	Total      int64
	Successful int64
	AvgLatency time.Duration
	// ErrorTypes counts distinct error classes seen for this item.
	ErrorTypes int
	// DistinctActors counts how many actors have used this item.
	DistinctActors int
	// SatisfactionAvg averages the rolling window. NaN when nothing was
	// ever reported.
	SatisfactionAvg float64
}

// SuccessRate returns successful/total, or 0 for an unused item.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total)
}

type record struct {
	total      int64
	successful int64
	latencySum time.Duration
	errorTypes map[string]int64
	actorUses  map[string]int64
	contexts   map[string]int64
	sat        []float64
	satNext    int
}

type actorStats struct {
	total int64
	last  string
}

// Ledger holds per-item usage records, created lazily on first use and
// never deleted.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*record
	actors  map[string]*actorStats
}

// NewLedger creates an empty usage ledger.
func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[string]*record),
		actors:  make(map[string]*actorStats),
	}
}

// Record merges one usage event into the ledger and returns the actor's
// previous last-used item, so the caller can count item sequences.
func (l *Ledger) Record(ev Event) (prevLast string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.records[ev.ItemID]
	if r == nil {
		r = &record{
			errorTypes: make(map[string]int64),
			actorUses:  make(map[string]int64),
			contexts:   make(map[string]int64),
		}
		l.records[ev.ItemID] = r
	}

	r.total++
	if ev.Success {
		r.successful++
	}
	r.latencySum += ev.Latency
	if ev.ErrorType != "" {
		r.errorTypes[ev.ErrorType]++
	}
	if ev.ActorID != "" {
		r.actorUses[ev.ActorID]++
	}
	if ev.ContextSignature != "" {
		r.contexts[ev.ContextSignature]++
	}
	if !math.IsNaN(ev.Satisfaction) {
		s := ev.Satisfaction
		if s < 0 {
			s = 0
		}
		if s > 1 {
			s = 1
		}
		if len(r.sat) < satisfactionWindow {
			r.sat = append(r.sat, s)
		} else {
			r.sat[r.satNext] = s
			r.satNext = (r.satNext + 1) % satisfactionWindow
		}
	}

	if ev.ActorID == "" {
		return ""
	}
	a := l.actors[ev.ActorID]
	if a == nil {
		a = &actorStats{}
		l.actors[ev.ActorID] = a
	}
	prevLast = a.last
	a.total++
	a.last = ev.ItemID
	return prevLast
}

// Stats snapshots the usage record for itemID. ok is false when the item
// was never used.
func (l *Ledger) Stats(itemID string) (Stats, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r := l.records[itemID]
	if r == nil {
		return Stats{}, false
	}
	s := Stats{
		Total:           r.total,
		Successful:      r.successful,
		ErrorTypes:      len(r.errorTypes),
		DistinctActors:  len(r.actorUses),
		SatisfactionAvg: math.NaN(),
	}
	if r.total > 0 {
		s.AvgLatency = r.latencySum / time.Duration(r.total)
	}
	if len(r.sat) > 0 {
		var sum float64
		for _, v := range r.sat {
			sum += v
		}
		s.SatisfactionAvg = sum / float64(len(r.sat))
	}
	return s, true
}

// ActorItemUses returns how many times actorID has used itemID.
func (l *Ledger) ActorItemUses(actorID, itemID string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r := l.records[itemID]
	if r == nil {
		return 0
	}
	return r.actorUses[actorID]
}

// ActorTotal returns the actor's total recorded uses across all items.
func (l *Ledger) ActorTotal(actorID string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a := l.actors[actorID]
	if a == nil {
		return 0
	}
	return a.total
}

// LastUsed returns the actor's most recently used item id.
func (l *Ledger) LastUsed(actorID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a := l.actors[actorID]
	if a == nil || a.last == "" {
		return "", false
	}
	return a.last, true
}

// ContextUses returns how often itemID was used under signature.
func (l *Ledger) ContextUses(itemID, signature string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r := l.records[itemID]
	if r == nil {
		return 0
	}
	return r.contexts[signature]
}

// Size returns the number of items with usage records.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
