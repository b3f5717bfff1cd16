package index

import (
	"strconv"

	"github.com/relevar/relevar/internal/domain"
)

// Indexes aggregates the four in-memory structures behind search. Writers
// mutate them only through Apply and Remove, which fix the publication
// order: readers resolve candidates from the tenant partition first, so the
// partition entry is written last and withdrawn first. An id visible there
// is therefore already present everywhere else.
type Indexes struct {
	Inverted  *Inverted
	Fields    *Fields
	Tags      *Tags
	Partition *Partition
}

// New creates an empty set of search indexes.
func New() *Indexes {
	return &Indexes{
		Inverted:  NewInverted(),
		Fields:    NewFields(),
		Tags:      NewTags(),
		Partition: NewPartition(),
	}
}

// Delta is the precomputed difference between an item's previous indexed
// form and its next one. Building it outside the apply path keeps the
// publication sequence free of tokenization and flattening work.
type Delta struct {
	ID      string
	HasPrev bool

	PrevTerms, NextTerms           map[string]int32
	PrevTags, NextTags             []string
	PrevCategories, NextCategories []string
	PrevFields, NextFields         map[string]any
	PrevScope, NextScope           string
}

// BuildDelta derives the index delta that moves an item from prev to next.
// prev is nil for a first write.
func BuildDelta(prev, next *domain.Item) Delta {
	d := Delta{
		ID:             next.ID,
		NextTerms:      TermFrequencies(next.Content),
		NextTags:       next.Tags,
		NextCategories: next.Categories,
		NextFields:     FlattenFields(next),
		NextScope:      next.TenantScope,
	}
	if prev != nil {
		d.HasPrev = true
		d.PrevTerms = TermFrequencies(prev.Content)
		d.PrevTags = prev.Tags
		d.PrevCategories = prev.Categories
		d.PrevFields = FlattenFields(prev)
		d.PrevScope = prev.TenantScope
	}
	return d
}

// Apply publishes a delta. The tenant partition entry lands last.
func (x *Indexes) Apply(d Delta) {
	x.Inverted.Update(d.ID, d.PrevTerms, d.NextTerms)
	x.Fields.Update(d.ID, d.PrevFields, d.NextFields)
	x.Tags.Update(d.ID, d.PrevTags, d.NextTags)
	x.Partition.UpdateCategories(d.ID, d.PrevCategories, d.NextCategories)
	if d.HasPrev {
		x.Partition.MoveTenant(d.ID, d.PrevScope, d.NextScope)
	} else {
		x.Partition.SetTenant(d.ID, d.NextScope)
	}
}

// Remove withdraws an item in the reverse of the publication order, starting
// with the tenant partition so readers stop resolving the id immediately.
func (x *Indexes) Remove(it *domain.Item) {
	x.Partition.UnsetTenant(it.ID, it.TenantScope)
	x.Partition.RemoveCategories(it.ID, it.Categories)
	x.Tags.Delete(it.ID, it.Tags)
	x.Fields.Remove(it.ID, FlattenFields(it))
	x.Inverted.Delete(it.ID, TermFrequencies(it.Content))
}

// Stats summarizes index sizes for the ops surface.
type Stats struct {
	Items       int `json:"items"`
	Terms       int `json:"terms"`
	TermEntries int `json:"term_entries"`
	Tags        int `json:"tags"`
	FieldKeys   int `json:"field_keys"`
	Scopes      int `json:"scopes"`
	Categories  int `json:"categories"`
}

// Stats returns current sizes across all structures.
func (x *Indexes) Stats() Stats {
	terms, termEntries := x.Inverted.Stats()
	tags, _ := x.Tags.Stats()
	fieldKeys, _ := x.Fields.Stats()
	scopes, categories := x.Partition.Stats()
	return Stats{
		Items:       x.Partition.Size(),
		Terms:       terms,
		TermEntries: termEntries,
		Tags:        tags,
		FieldKeys:   fieldKeys,
		Scopes:      scopes,
		Categories:  categories,
	}
}

// FlattenFields merges an item's filterable fields into one namespace:
// string metadata, numeric fields, array fields, and the leaves of nested
// metadata addressed by dotted path. On a name collision the later source
// in that order wins.
func FlattenFields(it *domain.Item) map[string]any {
	out := make(map[string]any, len(it.Metadata)+len(it.Numerics)+len(it.Arrays)+len(it.Nested))
	for k, v := range it.Metadata {
		out[k] = v
	}
	for k, v := range it.Numerics {
		out[k] = v
	}
	for k, v := range it.Arrays {
		out[k] = v
	}
	for k, v := range it.Nested {
		flattenInto(out, k, v)
	}
	return out
}

func flattenInto(out map[string]any, path string, v any) {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			flattenInto(out, path+"."+k, child)
		}
	case []any:
		ss := make([]string, len(node))
		for i, el := range node {
			ss[i] = flatScalar(el)
		}
		out[path] = ss
	default:
		out[path] = v
	}
}

func flatScalar(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := domain.NumericValue(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return domain.CanonicalFieldValue(v)
}
