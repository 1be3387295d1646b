package modifier

import (
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// WithComparer sets the comparer used by $min, $max, $addToSet, $pull and
// $push sorting.
func WithComparer(c domain.Comparer) Option {
	return func(m *Modifier) {
		m.comparer = c
	}
}

// WithFieldNavigator sets the field navigator used to read and write
// dotted paths.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(m *Modifier) {
		m.fieldNavigator = f
	}
}

// WithMatcher sets the matcher evaluating $pull conditions and resolving
// positional paths.
func WithMatcher(mt *matcher.Matcher) Option {
	return func(m *Modifier) {
		m.matcher = mt
	}
}

// WithTimeGetter sets the clock of $currentDate.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(m *Modifier) {
		m.timeGetter = t
	}
}

// WithIDField sets the identity field that updates cannot change.
func WithIDField(f string) Option {
	return func(m *Modifier) {
		m.idField = f
	}
}

// Option configures a [Modifier].
type Option func(*Modifier)
