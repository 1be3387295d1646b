package index

import "github.com/sboesebeck/morphium-sub001/domain"

// WithCollection sets the collection name reported in constraint
// violations.
func WithCollection(name string) Option {
	return func(i *Index) {
		i.collection = name
	}
}

// WithComparer sets the comparer that orders keys.
func WithComparer(c domain.Comparer) Option {
	return func(i *Index) {
		i.comparer = c
	}
}

// WithHasher sets the hasher used by hashed keys and key lookups.
func WithHasher(h domain.Hasher) Option {
	return func(i *Index) {
		i.hasher = h
	}
}

// WithFieldNavigator sets the navigator that reads key fields.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(i *Index) {
		i.fieldNavigator = fn
	}
}

// Option configures an [Index].
type Option func(*Index)
