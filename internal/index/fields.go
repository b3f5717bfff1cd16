package index

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/relevar/relevar/internal/domain"
)

const fieldKeySep = "\x00"

// Fields is the metadata filter index. Exact lookups go through a
// value-keyed posting map, numeric range lookups through per-field sorted
// slices, and arbitrary-operator scans through a per-item value store.
type Fields struct {
	exact  *postings
	values *valueStore

	numMu    sync.RWMutex
	numerics map[string]*numericField
}

// NewFields creates an empty metadata filter index.
func NewFields() *Fields {
	return &Fields{
		exact:    newPostings(),
		values:   newValueStore(),
		numerics: make(map[string]*numericField),
	}
}

// Update replaces id's indexed fields: prev-only fields are removed, new and
// changed fields are upserted, and the scan store is set to the next map.
func (ix *Fields) Update(id string, prev, next map[string]any) {
	for field, pv := range prev {
		nv, stillThere := next[field]
		if stillThere && domain.CanonicalFieldValue(nv) == domain.CanonicalFieldValue(pv) {
			continue
		}
		ix.removeField(id, field, pv)
	}
	for field, nv := range next {
		pv, existed := prev[field]
		if existed && domain.CanonicalFieldValue(pv) == domain.CanonicalFieldValue(nv) {
			continue
		}
		ix.putField(id, field, nv)
	}
	ix.values.set(id, next)
}

// Remove drops every indexed field of id.
func (ix *Fields) Remove(id string, fields map[string]any) {
	for field, v := range fields {
		ix.removeField(id, field, v)
	}
	ix.values.remove(id)
}

func (ix *Fields) putField(id, field string, value any) {
	ix.exact.put(field+fieldKeySep+domain.CanonicalFieldValue(value), id, 1)
	if f, ok := domain.NumericValue(value); ok {
		ix.numeric(field, true).insert(f, id)
	}
}

func (ix *Fields) removeField(id, field string, value any) {
	ix.exact.delete(field+fieldKeySep+domain.CanonicalFieldValue(value), id)
	if f, ok := domain.NumericValue(value); ok {
		if nf := ix.numeric(field, false); nf != nil {
			nf.remove(f, id)
		}
	}
}

// Equal returns the ids whose field equals value, by canonical form.
func (ix *Fields) Equal(field string, value any) map[string]struct{} {
	return ix.exact.ids(field + fieldKeySep + domain.CanonicalFieldValue(value))
}

// Range returns the ids whose numeric field lies in [lo, hi].
func (ix *Fields) Range(field string, lo, hi float64) map[string]struct{} {
	nf := ix.numeric(field, false)
	if nf == nil {
		return map[string]struct{}{}
	}
	return nf.rangeIDs(lo, hi)
}

// Value returns id's current value for field, for linear-scan operators.
func (ix *Fields) Value(id, field string) (any, bool) {
	return ix.values.get(id, field)
}

// Stats returns the distinct (field, value) key count and posted entries.
func (ix *Fields) Stats() (keys, entries int) {
	return ix.exact.stats()
}

func (ix *Fields) numeric(field string, create bool) *numericField {
	ix.numMu.RLock()
	nf := ix.numerics[field]
	ix.numMu.RUnlock()
	if nf != nil || !create {
		return nf
	}
	ix.numMu.Lock()
	nf = ix.numerics[field]
	if nf == nil {
		nf = &numericField{}
		ix.numerics[field] = nf
	}
	ix.numMu.Unlock()
	return nf
}

// numericField keeps (value, id) pairs sorted for range queries.
type numericField struct {
	mu   sync.RWMutex
	vals []numEntry
}

type numEntry struct {
	v  float64
	id string
}

func (nf *numericField) insert(v float64, id string) {
	nf.mu.Lock()
	defer nf.mu.Unlock()
	i := sort.Search(len(nf.vals), func(i int) bool {
		e := nf.vals[i]
		return e.v > v || (e.v == v && e.id >= id)
	})
	if i < len(nf.vals) && nf.vals[i].v == v && nf.vals[i].id == id {
		return
	}
	nf.vals = append(nf.vals, numEntry{})
	copy(nf.vals[i+1:], nf.vals[i:])
	nf.vals[i] = numEntry{v: v, id: id}
}

func (nf *numericField) remove(v float64, id string) {
	nf.mu.Lock()
	defer nf.mu.Unlock()
	i := sort.Search(len(nf.vals), func(i int) bool {
		e := nf.vals[i]
		return e.v > v || (e.v == v && e.id >= id)
	})
	if i < len(nf.vals) && nf.vals[i].v == v && nf.vals[i].id == id {
		nf.vals = append(nf.vals[:i], nf.vals[i+1:]...)
	}
}

func (nf *numericField) rangeIDs(lo, hi float64) map[string]struct{} {
	out := make(map[string]struct{})
	nf.mu.RLock()
	defer nf.mu.RUnlock()
	i := sort.Search(len(nf.vals), func(i int) bool {
		return nf.vals[i].v >= lo
	})
	for ; i < len(nf.vals) && nf.vals[i].v <= hi; i++ {
		out[nf.vals[i].id] = struct{}{}
	}
	return out
}

// valueStore holds each item's flattened field map for linear scans.
type valueStore struct {
	shards []valueShard
	mask   uint32
}

type valueShard struct {
	mu sync.RWMutex
	m  map[string]map[string]any
}

func newValueStore() *valueStore {
	vs := &valueStore{
		shards: make([]valueShard, defaultShards),
		mask:   defaultShards - 1,
	}
	for i := range vs.shards {
		vs.shards[i].m = make(map[string]map[string]any)
	}
	return vs
}

func (vs *valueStore) shard(id string) *valueShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &vs.shards[h.Sum32()&vs.mask]
}

func (vs *valueStore) set(id string, fields map[string]any) {
	s := vs.shard(id)
	s.mu.Lock()
	s.m[id] = fields
	s.mu.Unlock()
}

func (vs *valueStore) remove(id string) {
	s := vs.shard(id)
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

func (vs *valueStore) get(id, field string) (any, bool) {
	s := vs.shard(id)
	s.mu.RLock()
	v, ok := s.m[id][field]
	s.mu.RUnlock()
	return v, ok
}
