package domain

import "fmt"

// SearchMode is the retrieval strategy.
type SearchMode string

// Search modes.
const (
	// ModeVectorOnly ranks by cosine similarity between query and item embeddings.
	ModeVectorOnly SearchMode = "vector_only"
	// ModeKeywordOnly ranks by lexical term overlap.
	ModeKeywordOnly SearchMode = "keyword_only"
	// ModeHybrid blends vector and keyword scores by alpha.
	ModeHybrid SearchMode = "hybrid"
	// ModeFilteredVector applies metadata filtering before vector ranking.
	ModeFilteredVector SearchMode = "filtered_vector"
	// ModeSemanticKeyword expands the query before keyword ranking.
	ModeSemanticKeyword SearchMode = "semantic_keyword"
)

// IsValid checks if the mode is one of the supported values.
func (m SearchMode) IsValid() bool {
	switch m {
	case ModeVectorOnly, ModeKeywordOnly, ModeHybrid, ModeFilteredVector, ModeSemanticKeyword:
		return true
	}
	return false
}

// MaxQueryLength is the maximum allowed search query length.
const MaxQueryLength = 4096

// SortKey orders results by a metadata field. Multiple keys apply in order,
// with the relevance score as the final tiebreaker.
type SortKey struct {
	Field      string
	Descending bool
}

// SearchDefaults carries the configured request defaults applied by Normalize.
type SearchDefaults struct {
	Mode SearchMode
	// Alpha holds the per-mode default blend weight.
	Alpha map[SearchMode]float64
	// MaxResults is the default result count.
	MaxResults int
	// MaxResultsCeiling is the hard cap on requested result counts.
	MaxResultsCeiling int
}

// SearchRequest describes one retrieval call. Plain struct; call Normalize
// with the engine defaults, then Validate, before execution.
type SearchRequest struct {
	Query        string
	Filters      map[string]FilterCondition
	RequiredTags []string
	ExcludedTags []string
	TenantScope  string
	Mode         SearchMode
	// Alpha weights the vector side of hybrid blending. Clamped to [0,1].
	Alpha      float64
	MaxResults int
	// Projection limits the metadata fields carried on returned items.
	// Empty means all fields.
	Projection []string
	Sort       []SortKey

	alphaSet bool
}

// SetAlpha sets an explicit blend weight, overriding the per-mode default.
func (r *SearchRequest) SetAlpha(alpha float64) {
	r.Alpha = alpha
	r.alphaSet = true
}

// Normalize fills defaults and clamps out-of-range values.
func (r *SearchRequest) Normalize(d SearchDefaults) {
	if r.Mode == "" {
		r.Mode = d.Mode
	}
	if !r.alphaSet && r.Alpha == 0 {
		if a, ok := d.Alpha[r.Mode]; ok {
			r.Alpha = a
		}
	}
	if r.Alpha < 0 {
		r.Alpha = 0
	}
	if r.Alpha > 1 {
		r.Alpha = 1
	}
	if r.MaxResults <= 0 {
		r.MaxResults = d.MaxResults
	}
}

// Validate checks the request. MaxResults beyond the ceiling is a capacity
// error; malformed filters are invalid-filter errors.
func (r *SearchRequest) Validate(d SearchDefaults) error {
	if r.Query == "" {
		return fmt.Errorf("query is required: %w", ErrInvalidRequest)
	}
	if len(r.Query) > MaxQueryLength {
		return fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, ErrInvalidRequest)
	}
	if !r.Mode.IsValid() {
		return fmt.Errorf("invalid search mode %q: %w", r.Mode, ErrInvalidRequest)
	}
	if d.MaxResultsCeiling > 0 && r.MaxResults > d.MaxResultsCeiling {
		return NewCapacityError(d.MaxResultsCeiling, r.MaxResults)
	}
	for field, cond := range r.Filters {
		if field == "" {
			return fmt.Errorf("empty filter field name: %w", ErrInvalidFilter)
		}
		if err := cond.Validate(field); err != nil {
			return err
		}
		r.Filters[field] = cond
	}
	for _, tag := range r.RequiredTags {
		if tag == "" {
			return fmt.Errorf("empty required tag: %w", ErrInvalidRequest)
		}
	}
	for _, tag := range r.ExcludedTags {
		if tag == "" {
			return fmt.Errorf("empty excluded tag: %w", ErrInvalidRequest)
		}
	}
	for _, k := range r.Sort {
		if k.Field == "" {
			return fmt.Errorf("empty sort field: %w", ErrInvalidRequest)
		}
	}
	return nil
}
