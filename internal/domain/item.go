package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// Size limits for item fields.
const (
	// MaxContentSize is the maximum item content size in bytes.
	MaxContentSize = 163840 // 160KB
	// MaxIDLength is the maximum item identifier length.
	MaxIDLength = 256
)

// Item is a retrievable unit: a document or an invokable tool description.
// Plain struct; Validate checks invariants before the item enters the engine.
type Item struct {
	// ID uniquely identifies the item within its tenant scope.
	ID string
	// Content is the text used for keyword matching and embedding.
	Content string
	// Embedding is the dense vector for the content. Nil until generated.
	Embedding []float32
	// Metadata holds structured string fields.
	Metadata map[string]string
	// Numerics holds numeric fields usable in range filters.
	Numerics map[string]float64
	// Arrays holds multi-valued string fields.
	Arrays map[string][]string
	// Nested holds nested metadata addressable by dotted path, e.g. "limits.daily".
	Nested map[string]any
	// Tags are capability tags used for tag filtering and capability matching.
	Tags []string
	// Categories group items for diversity-aware re-ranking.
	Categories []string
	// Inputs declares the data the item requires to be applicable.
	Inputs []string
	// TenantScope isolates the item; immutable after first write.
	TenantScope string
	// Version increases monotonically on every mutation.
	Version int64
	// Degraded marks an embedding produced by the deterministic fallback.
	Degraded bool

	// Scores holds transient per-query scores. Never persisted.
	Scores map[string]float64
}

// Validate checks the item invariants. The ID must already be assigned.
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("item ID is required: %w", ErrInvalidItem)
	}
	if len(it.ID) > MaxIDLength {
		return fmt.Errorf("item ID too long (max %d): %w", MaxIDLength, ErrInvalidItem)
	}
	if !idRegex.MatchString(it.ID) {
		return fmt.Errorf("item ID must be alphanumeric with ._:- separators: %w", ErrInvalidItem)
	}
	if it.Content == "" {
		return fmt.Errorf("item content is required: %w", ErrInvalidItem)
	}
	if len(it.Content) > MaxContentSize {
		return fmt.Errorf("item content too large (max %d bytes): %w", MaxContentSize, ErrInvalidItem)
	}
	if it.TenantScope != "" && !idRegex.MatchString(it.TenantScope) {
		return fmt.Errorf("tenant scope must be alphanumeric with ._:- separators: %w", ErrInvalidItem)
	}
	for _, tag := range it.Tags {
		if tag == "" {
			return fmt.Errorf("empty tag: %w", ErrInvalidItem)
		}
	}
	for k := range it.Metadata {
		if k == "" {
			return fmt.Errorf("empty metadata field name: %w", ErrInvalidItem)
		}
	}
	for k := range it.Numerics {
		if k == "" {
			return fmt.Errorf("empty numeric field name: %w", ErrInvalidItem)
		}
	}
	return nil
}

// Field resolves a metadata field by name. Dotted paths descend into Nested.
// Returns (nil, false) when the field is absent.
func (it *Item) Field(path string) (any, bool) {
	if v, ok := it.Metadata[path]; ok {
		return v, true
	}
	if v, ok := it.Numerics[path]; ok {
		return v, true
	}
	if v, ok := it.Arrays[path]; ok {
		return v, true
	}
	if it.Nested == nil {
		return nil, false
	}
	return nestedLookup(it.Nested, path)
}

func nestedLookup(m map[string]any, path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := m[head]
	if !ok {
		return nil, false
	}
	if !nested {
		return v, true
	}
	inner, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return nestedLookup(inner, rest)
}

// Clone returns a deep copy. Transient scores are not carried over.
func (it *Item) Clone() Item {
	c := Item{
		ID:          it.ID,
		Content:     it.Content,
		TenantScope: it.TenantScope,
		Version:     it.Version,
		Degraded:    it.Degraded,
		Metadata:    cloneStringMap(it.Metadata),
		Numerics:    cloneFloat64Map(it.Numerics),
		Arrays:      cloneArrayMap(it.Arrays),
		Nested:      cloneNestedMap(it.Nested),
		Tags:        cloneStrings(it.Tags),
		Categories:  cloneStrings(it.Categories),
		Inputs:      cloneStrings(it.Inputs),
	}
	if it.Embedding != nil {
		c.Embedding = make([]float32, len(it.Embedding))
		copy(c.Embedding, it.Embedding)
	}
	return c
}

// SetScore records a transient per-query score on the item.
func (it *Item) SetScore(name string, value float64) {
	if it.Scores == nil {
		it.Scores = make(map[string]float64, 4)
	}
	it.Scores[name] = value
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneFloat64Map(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	c := make(map[string]float64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneArrayMap(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	c := make(map[string][]string, len(m))
	for k, v := range m {
		c[k] = cloneStrings(v)
	}
	return c
}

func cloneNestedMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		if inner, ok := v.(map[string]any); ok {
			c[k] = cloneNestedMap(inner)
			continue
		}
		c[k] = v
	}
	return c
}
