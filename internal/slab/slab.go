// Package slab provides a slot collection keyed by small recycled integer
// tokens. Insert, lookup, and removal are O(1) regardless of how many
// entries are live. A token is reused only after its entry has been removed,
// and no two live entries ever share a token.
package slab

type entry[T any] struct {
	value    T
	next     int // next free slot when vacant
	occupied bool
}

// Slab maps recycled integer tokens to values. The zero value is ready to
// use. Slab is not safe for concurrent use; callers are expected to confine
// it to a single goroutine.
type Slab[T any] struct {
	entries []entry[T]
	free    int // head of the vacant free list, or len(entries)
	size    int
}

// New returns an empty slab.
func New[T any]() *Slab[T] {
	return &Slab[T]{}
}

// Insert stores v and returns its token, reusing the lowest previously
// freed slot if one exists.
func (s *Slab[T]) Insert(v T) int {
	s.size++

	if s.free < len(s.entries) {
		token := s.free
		s.free = s.entries[token].next
		s.entries[token] = entry[T]{value: v, occupied: true}
		return token
	}

	s.entries = append(s.entries, entry[T]{value: v, occupied: true})
	s.free = len(s.entries)
	return len(s.entries) - 1
}

// Get returns the value stored under token.
func (s *Slab[T]) Get(token int) (T, bool) {
	if !s.Contains(token) {
		var zero T
		return zero, false
	}
	return s.entries[token].value, true
}

// Remove deletes the entry under token and returns its value. The token
// becomes eligible for reuse by a later Insert.
func (s *Slab[T]) Remove(token int) (T, bool) {
	if !s.Contains(token) {
		var zero T
		return zero, false
	}

	v := s.entries[token].value
	var zero T
	s.entries[token] = entry[T]{value: zero, next: s.free}
	s.free = token
	s.size--
	return v, true
}

// Contains reports whether token maps to a live entry.
func (s *Slab[T]) Contains(token int) bool {
	return token >= 0 && token < len(s.entries) && s.entries[token].occupied
}

// Len returns the number of live entries.
func (s *Slab[T]) Len() int {
	return s.size
}

// Range calls fn for every live entry until fn returns false.
func (s *Slab[T]) Range(fn func(token int, v T) bool) {
	for i := range s.entries {
		if s.entries[i].occupied && !fn(i, s.entries[i].value) {
			return
		}
	}
}
