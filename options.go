package relevar

import (
	"go.uber.org/zap"

	"github.com/relevar/relevar/internal/domain"
	"github.com/relevar/relevar/internal/store"
)

// Option injects dependencies the Config cannot carry: stores, providers,
// and loggers.
type Option interface {
	apply(*engineOptions)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*engineOptions)

func (f optionFunc) apply(o *engineOptions) { f(o) }

type engineOptions struct {
	store         store.Store
	embedder      domain.Embedder
	queryEmbedder domain.Embedder
	expander      domain.Expander
	logger        *zap.Logger
}

// WithStore injects a custom item store instead of the driver named in the
// config. The engine takes ownership and closes it on Close.
func WithStore(s ItemStore) Option {
	return optionFunc(func(o *engineOptions) {
		o.store = s
	})
}

// WithEmbedder replaces the built-in provider chain with a custom embedding
// provider for both documents and queries. The degraded fallback still wraps
// it, so provider failures yield pseudo-embeddings instead of errors. The
// rate limiter, cache, and instruction prefixes from the config apply only
// to the built-in chain.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(o *engineOptions) {
		o.embedder = e
	})
}

// WithQueryEmbedder overrides the embedder used for query text only.
// Retrieval models often want different document and query instructions.
func WithQueryEmbedder(e Embedder) Option {
	return optionFunc(func(o *engineOptions) {
		o.queryEmbedder = e
	})
}

// WithExpander sets the query expansion provider used by semantic keyword
// searches. Defaults to the chat model from the config when an API key is
// present; without either, expansion degrades to the raw query.
func WithExpander(x Expander) Option {
	return optionFunc(func(o *engineOptions) {
		o.expander = x
	})
}

// WithLogger sets the engine logger. Default: no logging.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *engineOptions) {
		o.logger = l
	})
}
