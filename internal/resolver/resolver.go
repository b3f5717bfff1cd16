// Package resolver narrows a search to the candidate ids that pass tenant
// scoping, tag constraints and metadata filters, before any scoring happens.
package resolver

import (
	"fmt"
	"sort"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/index"
)

// Resolver intersects the index structures into a candidate id set.
type Resolver struct {
	idx     *index.Indexes
	enforce bool
}

// New creates a resolver over idx. When enforceTenantIsolation is set,
// requests without a tenant scope are denied instead of seeing the full
// corpus.
func New(idx *index.Indexes, enforceTenantIsolation bool) *Resolver {
	return &Resolver{idx: idx, enforce: enforceTenantIsolation}
}

// Resolve returns the ids passing every constraint on req: tenant scope,
// then required tags, then metadata filters, then excluded tags. The
// returned set is a private snapshot the caller may mutate. An empty set is
// a valid, non-error result.
func (r *Resolver) Resolve(req *domain.SearchRequest) (map[string]struct{}, error) {
	candidates, err := r.tenantSet(req.TenantScope)
	if err != nil {
		return nil, err
	}
	r.intersectTags(candidates, req.RequiredTags)
	r.applyFilters(candidates, req.Filters)
	r.subtractTags(candidates, req.ExcludedTags)
	return candidates, nil
}

func (r *Resolver) tenantSet(scope string) (map[string]struct{}, error) {
	if scope != "" {
		return r.idx.Partition.TenantIDs(scope), nil
	}
	if r.enforce {
		return nil, fmt.Errorf("search without a tenant scope: %w", domain.ErrAccessDenied)
	}
	return r.idx.Partition.AllIDs(), nil
}

// intersectTags keeps only candidates carrying every required tag, checking
// the smallest posting set first.
func (r *Resolver) intersectTags(candidates map[string]struct{}, tags []string) {
	if len(tags) == 0 || len(candidates) == 0 {
		return
	}
	ordered := make([]string, len(tags))
	copy(ordered, tags)
	sort.Slice(ordered, func(i, j int) bool {
		return r.idx.Tags.Size(ordered[i]) < r.idx.Tags.Size(ordered[j])
	})
	for _, tag := range ordered {
		for id := range candidates {
			if !r.idx.Tags.Contains(tag, id) {
				delete(candidates, id)
			}
		}
		if len(candidates) == 0 {
			return
		}
	}
}

// applyFilters intersects per-field filter results. EQUALS and BETWEEN
// resolve through the metadata index; every other operator evaluates
// linearly over the current candidate set.
func (r *Resolver) applyFilters(candidates map[string]struct{}, filters map[string]domain.FilterCondition) {
	for field, cond := range filters {
		if len(candidates) == 0 {
			return
		}
		switch cond.Operator {
		case domain.OpEquals:
			intersect(candidates, r.idx.Fields.Equal(field, cond.Value))
		case domain.OpBetween:
			lo, okLo := domain.NumericValue(cond.Value)
			hi, okHi := domain.NumericValue(cond.Second)
			if !okLo || !okHi {
				r.linearFilter(candidates, field, cond)
				continue
			}
			intersect(candidates, r.idx.Fields.Range(field, lo, hi))
		default:
			r.linearFilter(candidates, field, cond)
		}
	}
}

// linearFilter evaluates cond against each candidate's current field value.
// A candidate without the field never matches, for any operator.
func (r *Resolver) linearFilter(candidates map[string]struct{}, field string, cond domain.FilterCondition) {
	for id := range candidates {
		v, ok := r.idx.Fields.Value(id, field)
		if !ok || !cond.Matches(v) {
			delete(candidates, id)
		}
	}
}

func (r *Resolver) subtractTags(candidates map[string]struct{}, tags []string) {
	if len(candidates) == 0 {
		return
	}
	for _, tag := range tags {
		for id := range candidates {
			if r.idx.Tags.Contains(tag, id) {
				delete(candidates, id)
			}
		}
	}
}

func intersect(candidates, keep map[string]struct{}) {
	for id := range candidates {
		if _, ok := keep[id]; !ok {
			delete(candidates, id)
		}
	}
}
