package collections

import "sort"

// Counter counts occurrences and remembers first-seen order for stable
// tie breaking.
type Counter[T comparable] struct {
	counts map[T]int
	order  []T
}

// Entry is one counted value.
type Entry[T comparable] struct {
	Value T
	Count int
}

// NewCounter creates an empty counter.
func NewCounter[T comparable]() *Counter[T] {
	return &Counter[T]{counts: make(map[T]int)}
}

// Add increments v by n.
func (c *Counter[T]) Add(v T, n int) {
	if _, ok := c.counts[v]; !ok {
		c.order = append(c.order, v)
	}
	c.counts[v] += n
}

// Inc increments v by one.
func (c *Counter[T]) Inc(v T) { c.Add(v, 1) }

// Get returns the count of v.
func (c *Counter[T]) Get(v T) int { return c.counts[v] }

// Len returns the number of distinct values.
func (c *Counter[T]) Len() int { return len(c.order) }

// MostCommon returns up to n entries by descending count; equal counts
// keep first-seen order. n <= 0 returns every entry.
func (c *Counter[T]) MostCommon(n int) []Entry[T] {
	out := make([]Entry[T], len(c.order))
	for i, v := range c.order {
		out[i] = Entry[T]{Value: v, Count: c.counts[v]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
