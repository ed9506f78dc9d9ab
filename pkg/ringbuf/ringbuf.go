// Package ringbuf provides a bounded, JSON-serializable history buffer.
package ringbuf

import "encoding/json"

// Buffer keeps the most recent Capacity items. Pushing onto a full buffer
// overwrites the oldest slot in place. The zero value is unbounded until a
// capacity is set with New or WithCapacity. Like a slice, a copied Buffer
// shares storage with the original; use Clone for an independent one.
type Buffer[T any] struct {
	capacity int
	head     int // oldest slot once full
	items    []T
}

// New returns an empty buffer bounded to capacity items.
func New[T any](capacity int) Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return Buffer[T]{capacity: capacity}
}

// WithCapacity returns a copy bounded to capacity, trimming the oldest items.
func (b Buffer[T]) WithCapacity(capacity int) Buffer[T] {
	out := New[T](capacity)
	for _, item := range b.Items() {
		out.Push(item)
	}
	return out
}

// Clone returns a copy that shares no storage with b.
func (b Buffer[T]) Clone() Buffer[T] {
	return Buffer[T]{capacity: b.capacity, items: b.Items()}
}

// Push appends item, evicting the oldest entry when full.
func (b *Buffer[T]) Push(item T) {
	if b.capacity <= 0 || len(b.items) < b.capacity {
		b.items = append(b.items, item)
		return
	}
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
}

// Items returns a copy of the buffered items, oldest first.
func (b Buffer[T]) Items() []T {
	out := make([]T, 0, len(b.items))
	out = append(out, b.items[b.head:]...)
	return append(out, b.items[:b.head]...)
}

// Len returns the number of buffered items.
func (b Buffer[T]) Len() int { return len(b.items) }

// Cap returns the configured bound, 0 when unbounded.
func (b Buffer[T]) Cap() int { return b.capacity }

type wire[T any] struct {
	Capacity int `json:"capacity"`
	Items    []T `json:"items"`
}

func (b Buffer[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire[T]{Capacity: b.capacity, Items: b.Items()})
}

func (b *Buffer[T]) UnmarshalJSON(data []byte) error {
	var w wire[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*b = New[T](w.Capacity)
	for _, item := range w.Items {
		b.Push(item)
	}
	return nil
}
