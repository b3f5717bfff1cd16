package relevar

import (
	"github.com/relevar/relevar/internal/config"
	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/store"
	"github.com/relevar/relevar/internal/usage"
)

// Aliases re-export the engine vocabulary so callers never import internal
// packages.
type (
	// Config is the engine configuration. Load reads it from YAML; zero
	// values fall back to sensible defaults inside New.
	Config = config.Config

	// Item is a retrievable unit: a document or an invokable tool description.
	Item = domain.Item
	// FilterCondition is a single metadata predicate.
	FilterCondition = domain.FilterCondition
	// Operator is a filter comparison operator.
	Operator = domain.Operator
	// SearchRequest describes one retrieval call.
	SearchRequest = domain.SearchRequest
	// SearchMode is the retrieval strategy.
	SearchMode = domain.SearchMode
	// SortKey is one key of a multi-key sort spec.
	SortKey = domain.SortKey
	// Match is a single retrieval hit.
	Match = domain.Match
	// ScoredMatch is a match enriched by the relevance scorer.
	ScoredMatch = domain.ScoredMatch
	// ScoringContext carries everything the relevance scorer may consult.
	ScoringContext = domain.ScoringContext
	// TaskSpec describes the task the caller is selecting items for.
	TaskSpec = domain.TaskSpec
	// ComplexityLevel grades how demanding a task is.
	ComplexityLevel = domain.ComplexityLevel
	// Weights maps signal names to their relative weight.
	Weights = domain.Weights

	// Embedder produces dense vectors for text.
	Embedder = domain.Embedder
	// BatchEmbedder embeds several texts in one provider call.
	BatchEmbedder = domain.BatchEmbedder
	// Expander rewrites a query with related terms.
	Expander = domain.Expander
	// EmbeddingResult is one embedding plus provider accounting.
	EmbeddingResult = domain.EmbeddingResult
	// BatchEmbeddingResult holds per-text embeddings from one batch call.
	BatchEmbeddingResult = domain.BatchEmbeddingResult

	// UsageEvent is one observed use of an item.
	UsageEvent = usage.Event
	// RelationKind classifies a relationship between two items.
	RelationKind = usage.Kind

	// ItemStore is the persistence contract behind the engine.
	ItemStore = store.Store

	// CapacityError reports a violated size limit.
	CapacityError = domain.CapacityError
	// VersionConflictError reports an optimistic concurrency conflict.
	VersionConflictError = domain.VersionConflictError
)

// Search modes.
const (
	ModeVectorOnly      = domain.ModeVectorOnly
	ModeKeywordOnly     = domain.ModeKeywordOnly
	ModeHybrid          = domain.ModeHybrid
	ModeFilteredVector  = domain.ModeFilteredVector
	ModeSemanticKeyword = domain.ModeSemanticKeyword
)

// Filter operators.
const (
	OpEquals       = domain.OpEquals
	OpNotEquals    = domain.OpNotEquals
	OpGreaterThan  = domain.OpGreaterThan
	OpLessThan     = domain.OpLessThan
	OpGreaterEqual = domain.OpGreaterEqual
	OpLessEqual    = domain.OpLessEqual
	OpBetween      = domain.OpBetween
	OpIn           = domain.OpIn
	OpNotIn        = domain.OpNotIn
	OpContains     = domain.OpContains
	OpStartsWith   = domain.OpStartsWith
	OpEndsWith     = domain.OpEndsWith
	OpRegex        = domain.OpRegex
)

// Task complexity levels.
const (
	ComplexitySimple   = domain.ComplexitySimple
	ComplexityModerate = domain.ComplexityModerate
	ComplexityComplex  = domain.ComplexityComplex
	ComplexityExpert   = domain.ComplexityExpert
)

// Built-in weight profiles.
const (
	ProfileDefault     = domain.ProfileDefault
	ProfilePrecision   = domain.ProfilePrecision
	ProfileExploration = domain.ProfileExploration
)

// Relationship kinds.
const (
	KindComplementary = usage.KindComplementary
	KindSubstitutable = usage.KindSubstitutable
	KindSequence      = usage.KindSequence
)

// Sentinel errors. Match with errors.Is; CapacityError and
// VersionConflictError additionally carry detail via errors.As.
var (
	ErrNotFound            = domain.ErrNotFound
	ErrInvalidFilter       = domain.ErrInvalidFilter
	ErrInvalidRequest      = domain.ErrInvalidRequest
	ErrInvalidItem         = domain.ErrInvalidItem
	ErrProviderUnavailable = domain.ErrProviderUnavailable
	ErrAccessDenied        = domain.ErrAccessDenied
	ErrCapacityExceeded    = domain.ErrCapacityExceeded
	ErrVersionConflict     = domain.ErrVersionConflict
	ErrVectorDimMismatch   = domain.ErrVectorDimMismatch
	ErrEngineClosed        = domain.ErrEngineClosed
)
