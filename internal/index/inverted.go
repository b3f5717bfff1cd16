package index

// Inverted is the keyword index: term -> item id -> term frequency.
type Inverted struct {
	terms *postings
}

// NewInverted creates an empty inverted index.
func NewInverted() *Inverted {
	return &Inverted{terms: newPostings()}
}

// Put posts id under every term with its frequency.
func (ix *Inverted) Put(id string, freqs map[string]int32) {
	for term, tf := range freqs {
		ix.terms.put(term, id, tf)
	}
}

// Delete removes id from the given terms' posting sets.
func (ix *Inverted) Delete(id string, terms map[string]int32) {
	for term := range terms {
		ix.terms.delete(term, id)
	}
}

// Update replaces id's postings: terms absent from next are removed and the
// rest are posted with their next frequencies.
func (ix *Inverted) Update(id string, prev, next map[string]int32) {
	for term := range prev {
		if _, keep := next[term]; !keep {
			ix.terms.delete(term, id)
		}
	}
	ix.Put(id, next)
}

// Frequency returns the term frequency of term within item id.
func (ix *Inverted) Frequency(term, id string) (int32, bool) {
	return ix.terms.weight(term, id)
}

// CandidatesAny returns the union of posting sets across terms: every id
// containing at least one of the terms.
func (ix *Inverted) CandidatesAny(terms []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, term := range terms {
		ix.terms.each(term, func(id string, _ int32) bool {
			out[id] = struct{}{}
			return true
		})
	}
	return out
}

// Stats returns the distinct term count and total posted entries.
func (ix *Inverted) Stats() (terms, entries int) {
	return ix.terms.stats()
}
