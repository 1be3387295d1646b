// Package uncomparable contains a map keyed by [domain.Value], which is not
// [comparable]. Keys are bucketed by a [domain.Hasher] and told apart by a
// [domain.Comparer], so keys equal by value (1 and 1.0, or "a" and "A"
// under a case-insensitive collation) share an entry. Iteration follows
// insertion order.
package uncomparable

import (
	"iter"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// Map represents a map[domain.Value]T.
type Map[T any] struct {
	buckets  map[uint64][]int
	entries  []kv[T]
	hasher   domain.Hasher
	comparer domain.Comparer
	length   int
}

// New returns a new instance of [Map] with the given [domain.Hasher] and
// [domain.Comparer].
func New[T any](hasher domain.Hasher, comparer domain.Comparer) *Map[T] {
	return &Map[T]{
		buckets:  make(map[uint64][]int),
		hasher:   hasher,
		comparer: comparer,
	}
}

func (m *Map[T]) find(key domain.Value) (uint64, int) {
	h := m.hasher.Hash(key)
	for _, n := range m.buckets[h] {
		if !m.entries[n].deleted && m.comparer.Equal(key, m.entries[n].key) {
			return h, n
		}
	}
	return h, -1
}

// Get returns the value for the given key with a bool to indicate whether it
// exists in the map or not.
func (m *Map[T]) Get(key domain.Value) (T, bool) {
	if _, n := m.find(key); n >= 0 {
		return m.entries[n].value, true
	}
	return *new(T), false
}

// Has reports whether key is in the map.
func (m *Map[T]) Has(key domain.Value) bool {
	_, n := m.find(key)
	return n >= 0
}

// Set adds or replaces the given key. Replacing keeps the original key and
// its position.
func (m *Map[T]) Set(key domain.Value, value T) {
	h, n := m.find(key)
	if n >= 0 {
		m.entries[n].value = value
		return
	}
	m.buckets[h] = append(m.buckets[h], len(m.entries))
	m.entries = append(m.entries, kv[T]{key: key, value: value})
	m.length++
}

// Delete removes a given key from the map, if it exists.
func (m *Map[T]) Delete(key domain.Value) {
	if _, n := m.find(key); n >= 0 {
		m.entries[n].deleted = true
		m.entries[n].value = *new(T)
		m.length--
	}
}

// Len returns the amount of stored values.
func (m *Map[T]) Len() int {
	return m.length
}

// Keys returns the stored keys in insertion order.
func (m *Map[T]) Keys() iter.Seq[domain.Value] {
	return func(yield func(domain.Value) bool) {
		for k := range m.Iter() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values returns the stored values in insertion order.
func (m *Map[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range m.Iter() {
			if !yield(v) {
				return
			}
		}
	}
}

// Iter returns the key+value pairs in insertion order.
func (m *Map[T]) Iter() iter.Seq2[domain.Value, T] {
	return func(yield func(domain.Value, T) bool) {
		for _, e := range m.entries {
			if e.deleted {
				continue
			}
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}

type kv[T any] struct {
	key     domain.Value
	value   T
	deleted bool
}
