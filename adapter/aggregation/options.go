package aggregation

import (
	"github.com/sboesebeck/morphium-sub001/domain"
)

// WithComparer sets the comparer used when the pipeline has no collation.
func WithComparer(c domain.Comparer) Option {
	return func(e *Engine) {
		e.comparer = c
	}
}

// WithHasher sets the hasher used to bucket groups when the pipeline has no
// collation.
func WithHasher(h domain.Hasher) Option {
	return func(e *Engine) {
		e.hasher = h
	}
}

// WithFieldNavigator sets the [domain.FieldNavigator] that will be used by
// [Engine].
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(e *Engine) {
		e.fn = fn
	}
}

// WithTimeGetter sets the clock of date expressions.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(e *Engine) {
		e.timeGetter = t
	}
}

// WithCollectionSource sets the source of the collections joined by
// $lookup. Without one, $lookup fails.
func WithCollectionSource(s CollectionSource) Option {
	return func(e *Engine) {
		e.source = s
	}
}

// Option configures engine behavior through the functional options pattern.
type Option func(*Engine)
