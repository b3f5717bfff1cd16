package index

// Tags indexes items by tag for required-tag intersection and
// excluded-tag subtraction.
type Tags struct {
	tags *postings
}

// NewTags creates an empty tag index.
func NewTags() *Tags {
	return &Tags{tags: newPostings()}
}

// Put posts id under every tag.
func (ix *Tags) Put(id string, tags []string) {
	for _, tag := range tags {
		ix.tags.put(tag, id, 1)
	}
}

// Delete removes id from the given tags' posting sets.
func (ix *Tags) Delete(id string, tags []string) {
	for _, tag := range tags {
		ix.tags.delete(tag, id)
	}
}

// Update replaces id's tag postings: tags absent from next are removed.
func (ix *Tags) Update(id string, prev, next []string) {
	nextSet := make(map[string]struct{}, len(next))
	for _, tag := range next {
		nextSet[tag] = struct{}{}
	}
	for _, tag := range prev {
		if _, keep := nextSet[tag]; !keep {
			ix.tags.delete(tag, id)
		}
	}
	ix.Put(id, next)
}

// Contains reports whether id carries the tag.
func (ix *Tags) Contains(tag, id string) bool {
	return ix.tags.contains(tag, id)
}

// Size returns the posting set size for a tag.
func (ix *Tags) Size(tag string) int {
	return ix.tags.size(tag)
}

// IDs returns a snapshot of the posting set for a tag.
func (ix *Tags) IDs(tag string) map[string]struct{} {
	return ix.tags.ids(tag)
}

// Stats returns the distinct tag count and total posted entries.
func (ix *Tags) Stats() (tags, entries int) {
	return ix.tags.stats()
}
