package index

// allKey collects every indexed id regardless of tenant scope. The NUL
// prefix keeps it out of the space of real scope names.
const allKey = "\x00all"

// Partition tracks which ids are visible to a tenant scope and which ids
// carry a given category. Resolution starts here, so an id becomes visible
// to readers only once its partition entry lands.
type Partition struct {
	tenants    *postings
	categories *postings
}

// NewPartition creates an empty tenant and category partition index.
func NewPartition() *Partition {
	return &Partition{tenants: newPostings(), categories: newPostings()}
}

// SetTenant publishes id under scope and under the all-items key.
func (p *Partition) SetTenant(id, scope string) {
	p.tenants.put(scope, id, 1)
	p.tenants.put(allKey, id, 1)
}

// MoveTenant republishes id from prev to next. Equal scopes reduce to an
// idempotent set.
func (p *Partition) MoveTenant(id, prev, next string) {
	if prev != next {
		p.tenants.delete(prev, id)
	}
	p.SetTenant(id, next)
}

// UnsetTenant withdraws id from scope and from the all-items key. After this
// returns, resolution no longer yields the id.
func (p *Partition) UnsetTenant(id, scope string) {
	p.tenants.delete(scope, id)
	p.tenants.delete(allKey, id)
}

// TenantIDs returns a snapshot of the ids visible to scope.
func (p *Partition) TenantIDs(scope string) map[string]struct{} {
	return p.tenants.ids(scope)
}

// AllIDs returns a snapshot of every indexed id.
func (p *Partition) AllIDs() map[string]struct{} {
	return p.tenants.ids(allKey)
}

// ContainsTenant reports whether id is published under scope.
func (p *Partition) ContainsTenant(scope, id string) bool {
	return p.tenants.contains(scope, id)
}

// Size returns the number of ids currently published.
func (p *Partition) Size() int {
	return p.tenants.size(allKey)
}

// UpdateCategories replaces id's category postings.
func (p *Partition) UpdateCategories(id string, prev, next []string) {
	nextSet := make(map[string]struct{}, len(next))
	for _, c := range next {
		nextSet[c] = struct{}{}
	}
	for _, c := range prev {
		if _, keep := nextSet[c]; !keep {
			p.categories.delete(c, id)
		}
	}
	for _, c := range next {
		p.categories.put(c, id, 1)
	}
}

// RemoveCategories drops id from every category it was posted under.
func (p *Partition) RemoveCategories(id string, categories []string) {
	for _, c := range categories {
		p.categories.delete(c, id)
	}
}

// CategoryIDs returns a snapshot of the ids posted under category.
func (p *Partition) CategoryIDs(category string) map[string]struct{} {
	return p.categories.ids(category)
}

// Stats returns distinct scope and category counts. The all-items key is
// excluded from the scope count.
func (p *Partition) Stats() (scopes, categories int) {
	sk, _ := p.tenants.stats()
	ck, _ := p.categories.stats()
	if sk > 0 {
		sk--
	}
	return sk, ck
}
