// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

// Ring is a fixed-capacity FIFO. Pushing past capacity evicts the oldest item.
type Ring[T any] struct {
	items []T
	head  int // index of the oldest item
	size  int
}

// NewRing creates a ring holding at most capacity items
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest item when full
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = v
		r.size++
		return
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
}

// Len returns the number of stored items
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the ring capacity
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Items returns a copy of the stored items, oldest first
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Clear removes all items
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

// RollingWindow keeps the last RollingDepth values of a metric and their mean
type RollingWindow struct {
	ring *Ring[float64]
	avg  float64
}

// NewRollingWindow creates an empty window with the default depth
func NewRollingWindow() *RollingWindow {
	return NewRollingWindowSize(RollingDepth)
}

// NewRollingWindowSize creates an empty window holding n values
func NewRollingWindowSize(n int) *RollingWindow {
	return &RollingWindow{ring: NewRing[float64](n)}
}

// Push adds a value and recomputes the mean
func (w *RollingWindow) Push(v float64) float64 {
	w.ring.Push(v)
	sum := 0.0
	for i := 0; i < w.ring.size; i++ {
		sum += w.ring.items[i]
	}
	w.avg = sum / float64(w.ring.size)
	return w.avg
}

// Average returns the arithmetic mean of the current contents (0 when empty)
func (w *RollingWindow) Average() float64 {
	return w.avg
}

// Len returns the number of values in the window
func (w *RollingWindow) Len() int {
	return w.ring.Len()
}

// Values returns the window contents, oldest first
func (w *RollingWindow) Values() []float64 {
	return w.ring.Items()
}

// Reset empties the window
func (w *RollingWindow) Reset() {
	w.ring.Clear()
	w.avg = 0
}
