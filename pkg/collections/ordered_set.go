// Package collections provides small generic containers used by the
// extraction modules.
package collections

// OrderedSet keeps the first occurrence of each value in insertion order,
// up to an optional limit. It is not safe for concurrent use.
type OrderedSet[T comparable] struct {
	seen  map[T]struct{}
	items []T
	limit int
}

// NewOrderedSet creates a set holding at most limit values. A limit <= 0
// means unbounded.
func NewOrderedSet[T comparable](limit int) *OrderedSet[T] {
	return &OrderedSet[T]{seen: make(map[T]struct{}), limit: limit}
}

// Add inserts v and reports whether it was new and accepted.
func (s *OrderedSet[T]) Add(v T) bool {
	if _, ok := s.seen[v]; ok {
		return false
	}
	if s.Full() {
		return false
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Contains reports whether v was accepted.
func (s *OrderedSet[T]) Contains(v T) bool {
	_, ok := s.seen[v]
	return ok
}

// Full reports whether the limit has been reached.
func (s *OrderedSet[T]) Full() bool {
	return s.limit > 0 && len(s.items) >= s.limit
}

// Len returns the number of values held.
func (s *OrderedSet[T]) Len() int { return len(s.items) }

// Items returns the values in insertion order. The slice is never nil.
func (s *OrderedSet[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
