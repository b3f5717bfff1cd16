package usage

import (
	"sort"
	"sync"
)

// Kind labels a recorded relationship between two items.
type Kind string

// Relationship kinds.
const (
	// KindComplementary marks items that work well together.
	KindComplementary Kind = "complementary"
	// KindSubstitutable marks items that can replace each other.
	KindSubstitutable Kind = "substitutable"
	// KindSequence marks items used one after the other.
	KindSequence Kind = "sequence"
)

// IsValid checks if the kind is one of the supported values.
func (k Kind) IsValid() bool {
	switch k {
	case KindComplementary, KindSubstitutable, KindSequence:
		return true
	}
	return false
}

type edge struct {
	weight int64
	kinds  map[Kind]int64
}

// Graph is an undirected co-occurrence graph with summed edge weights and
// per-kind counts, plus directional successor counts for sequence
// prediction. Edge updates are commutative merges.
type Graph struct {
	mu sync.RWMutex
	// neighbors[a][b] and neighbors[b][a] share one *edge.
	neighbors map[string]map[string]*edge
	succ      map[string]map[string]int64
	succTotal map[string]int64
	edgeCount int
}

// NewGraph creates an empty relationship graph.
func NewGraph() *Graph {
	return &Graph{
		neighbors: make(map[string]map[string]*edge),
		succ:      make(map[string]map[string]int64),
		succTotal: make(map[string]int64),
	}
}

// Record merges one relationship observation. Self-edges and empty ids are
// ignored.
func (g *Graph) Record(a, b string, kind Kind) {
	if a == "" || b == "" || a == b {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.edgeLocked(a, b)
	e.weight++
	e.kinds[kind]++
}

// RecordSequence merges the directional observation "to was used right
// after from" and strengthens the undirected edge between them.
func (g *Graph) RecordSequence(from, to string) {
	if from == "" || to == "" || from == to {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.edgeLocked(from, to)
	e.weight++
	e.kinds[KindSequence]++

	m := g.succ[from]
	if m == nil {
		m = make(map[string]int64)
		g.succ[from] = m
	}
	m[to]++
	g.succTotal[from]++
}

func (g *Graph) edgeLocked(a, b string) *edge {
	if e := g.neighbors[a][b]; e != nil {
		return e
	}
	e := &edge{kinds: make(map[Kind]int64)}
	if g.neighbors[a] == nil {
		g.neighbors[a] = make(map[string]*edge)
	}
	if g.neighbors[b] == nil {
		g.neighbors[b] = make(map[string]*edge)
	}
	g.neighbors[a][b] = e
	g.neighbors[b][a] = e
	g.edgeCount++
	return e
}

// Weight returns the summed undirected edge weight between a and b.
func (g *Graph) Weight(a, b string) int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e := g.neighbors[a][b]; e != nil {
		return e.weight
	}
	return 0
}

// Normalized maps the edge weight onto [0,1) as w/(w+1), so the signal
// saturates instead of growing without bound.
func (g *Graph) Normalized(a, b string) float64 {
	w := g.Weight(a, b)
	if w <= 0 {
		return 0
	}
	return float64(w) / float64(w+1)
}

// IsComplementary reports whether the edge was ever marked complementary.
func (g *Graph) IsComplementary(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e := g.neighbors[a][b]
	return e != nil && e.kinds[KindComplementary] > 0
}

// Substitutes returns up to limit neighbors connected to id by a
// substitutable edge, strongest first, ties by id.
func (g *Graph) Substitutes(id string, limit int) []string {
	return g.neighborsByKind(id, KindSubstitutable, limit)
}

// Complements returns up to limit neighbors connected to id by a
// complementary edge, strongest first, ties by id.
func (g *Graph) Complements(id string, limit int) []string {
	return g.neighborsByKind(id, KindComplementary, limit)
}

func (g *Graph) neighborsByKind(id string, kind Kind, limit int) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	type cand struct {
		id     string
		weight int64
	}
	var out []cand
	for other, e := range g.neighbors[id] {
		if e.kinds[kind] > 0 {
			out = append(out, cand{id: other, weight: e.weight})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].weight != out[j].weight {
			return out[i].weight > out[j].weight
		}
		return out[i].id < out[j].id
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	ids := make([]string, len(out))
	for i, c := range out {
		ids[i] = c.id
	}
	return ids
}

// SuccessorProbability estimates P(to | from) over recorded sequences.
func (g *Graph) SuccessorProbability(from, to string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := g.succTotal[from]
	if total == 0 {
		return 0
	}
	return float64(g.succ[from][to]) / float64(total)
}

// Size returns the undirected edge count.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgeCount
}
