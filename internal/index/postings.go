// Package index holds the in-memory retrieval index structures: the inverted
// keyword index, the tag index, the metadata filter index, and the
// tenant/category partition. All structures are safe for concurrent use;
// readers on different keys do not block each other.
package index

import (
	"hash/fnv"
	"sync"
)

// defaultShards is the shard count for concurrent maps. Power of two.
const defaultShards = 32

// postings is a sharded two-level map: key -> item id -> weight.
// Tag-like indexes store weight 1; the keyword index stores term frequency.
type postings struct {
	shards []postingShard
	mask   uint32
}

type postingShard struct {
	mu sync.RWMutex
	m  map[string]map[string]int32
}

func newPostings() *postings {
	p := &postings{
		shards: make([]postingShard, defaultShards),
		mask:   defaultShards - 1,
	}
	for i := range p.shards {
		p.shards[i].m = make(map[string]map[string]int32)
	}
	return p
}

func (p *postings) shard(key string) *postingShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &p.shards[h.Sum32()&p.mask]
}

// put records id under key with the given weight, replacing any previous one.
func (p *postings) put(key, id string, weight int32) {
	s := p.shard(key)
	s.mu.Lock()
	ids, ok := s.m[key]
	if !ok {
		ids = make(map[string]int32, 4)
		s.m[key] = ids
	}
	ids[id] = weight
	s.mu.Unlock()
}

// delete removes id from key's posting set, dropping empty sets.
func (p *postings) delete(key, id string) {
	s := p.shard(key)
	s.mu.Lock()
	if ids, ok := s.m[key]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.m, key)
		}
	}
	s.mu.Unlock()
}

// contains reports whether id is posted under key.
func (p *postings) contains(key, id string) bool {
	s := p.shard(key)
	s.mu.RLock()
	_, ok := s.m[key][id]
	s.mu.RUnlock()
	return ok
}

// weight returns the stored weight for (key, id).
func (p *postings) weight(key, id string) (int32, bool) {
	s := p.shard(key)
	s.mu.RLock()
	w, ok := s.m[key][id]
	s.mu.RUnlock()
	return w, ok
}

// size returns the posting set size for key.
func (p *postings) size(key string) int {
	s := p.shard(key)
	s.mu.RLock()
	n := len(s.m[key])
	s.mu.RUnlock()
	return n
}

// ids returns a snapshot of the posting set for key.
func (p *postings) ids(key string) map[string]struct{} {
	s := p.shard(key)
	s.mu.RLock()
	out := make(map[string]struct{}, len(s.m[key]))
	for id := range s.m[key] {
		out[id] = struct{}{}
	}
	s.mu.RUnlock()
	return out
}

// each calls fn for every (id, weight) under key until fn returns false.
// fn runs under the shard read lock and must not call back into the index.
func (p *postings) each(key string, fn func(id string, weight int32) bool) {
	s := p.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, w := range s.m[key] {
		if !fn(id, w) {
			return
		}
	}
}

// stats returns the number of keys and total posted entries.
func (p *postings) stats() (keys, entries int) {
	for i := range p.shards {
		s := &p.shards[i]
		s.mu.RLock()
		keys += len(s.m)
		for _, ids := range s.m {
			entries += len(ids)
		}
		s.mu.RUnlock()
	}
	return keys, entries
}
