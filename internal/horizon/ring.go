// Package horizon provides a fixed-capacity circular buffer of optional
// cells indexed by an absolute, monotonically increasing integer position
// (a timeslot). It is the storage engine's lookahead window: capacity is a
// hard limit on how far demand may be scheduled ahead of the current tick.
package horizon

import "fmt"

// Ring is a fixed-capacity circular buffer of *T indexed by `t mod
// Capacity()`. It never grows; writing to a position more than Capacity()
// slots past the last Clean base is a programming error (see Set).
type Ring[T any] struct {
	capacity  int
	cells     []*T
	cleanBase int
}

// OutOfRangeError marks a Set call whose t falls outside the ring's
// currently valid write window [CleanBase, CleanBase+Capacity) — the
// fatal condition spec.md §4.1 calls out: writing that far past the last
// clean base would silently wrap onto an unrelated, still-live slot.
type OutOfRangeError struct {
	Timeslot  int
	CleanBase int
	Capacity  int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("horizon: write at t=%d falls outside the valid window [%d, %d)",
		e.Timeslot, e.CleanBase, e.CleanBase+e.Capacity)
}

// New creates a ring with the given capacity. Panics if capacity <= 0 —
// this is a construction-time programming error, not a runtime condition
// callers can recover from.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("horizon: capacity must be positive, got %d", capacity))
	}
	return &Ring[T]{
		capacity: capacity,
		cells:    make([]*T, capacity),
	}
}

// Capacity returns the ring's fixed size.
func (r *Ring[T]) Capacity() int {
	return r.capacity
}

func (r *Ring[T]) index(t int) int {
	m := t % r.capacity
	if m < 0 {
		m += r.capacity
	}
	return m
}

// Get returns the cell at absolute position t, or (nil, false) if empty.
func (r *Ring[T]) Get(t int) (*T, bool) {
	c := r.cells[r.index(t)]
	return c, c != nil
}

// Set writes a cell at absolute position t, overwriting whatever was
// there. t must fall within [CleanBase, CleanBase+Capacity) — the window
// established by the most recent Clean call, or [0, Capacity) before the
// first one — otherwise Set panics with *OutOfRangeError: a write that
// far ahead would silently wrap onto a slot from an unrelated lap.
func (r *Ring[T]) Set(t int, cell *T) {
	if t < r.cleanBase || t >= r.cleanBase+r.capacity {
		panic(&OutOfRangeError{Timeslot: t, CleanBase: r.cleanBase, Capacity: r.capacity})
	}
	r.cells[r.index(t)] = cell
}

// Clear empties the slot at absolute position t.
func (r *Ring[T]) Clear(t int) {
	r.cells[r.index(t)] = nil
}

// Clean clears any cells that are stale from a previous wrap: positions in
// the region [tFrom+activeLength, tFrom+capacity) that still hold data from
// before the ring most recently wrapped around to tFrom. Must be called
// before any write that may extend the horizon past what was last cleaned,
// so that leftover cells from a prior lap don't reappear as the ring wraps.
// It also advances the ring's valid write window to start at tFrom — see
// Set.
func (r *Ring[T]) Clean(tFrom int) {
	active := r.ActiveLength(tFrom)
	for h := active; h < r.capacity; h++ {
		r.Clear(tFrom + h)
	}
	r.cleanBase = tFrom
}

// ActiveLength returns the largest h >= 0 such that cells for t, t+1, ...,
// t+h-1 exist contiguously (a gap ends the count).
func (r *Ring[T]) ActiveLength(t int) int {
	h := 0
	for h < r.capacity {
		if _, ok := r.Get(t + h); !ok {
			break
		}
		h++
	}
	return h
}

// AsList returns the contiguous active prefix starting at t, in order.
func (r *Ring[T]) AsList(t int) []*T {
	n := r.ActiveLength(t)
	out := make([]*T, 0, n)
	for h := 0; h < n; h++ {
		c, _ := r.Get(t + h)
		out = append(out, c)
	}
	return out
}
