package expression

import "github.com/sboesebeck/morphium-sub001/domain"

// WithComparer sets the comparer used by comparison operators and
// $min/$max.
func WithComparer(c domain.Comparer) Option {
	return func(ev *Evaluator) {
		ev.comparer = c
	}
}

// WithHasher sets the hasher used to deduplicate $addToSet values.
func WithHasher(h domain.Hasher) Option {
	return func(ev *Evaluator) {
		ev.hasher = h
	}
}

// WithTimeGetter sets the clock behind $$NOW.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(ev *Evaluator) {
		ev.timeGetter = t
	}
}

// Option configures evaluator behavior through the functional options
// pattern.
type Option func(*Evaluator)
