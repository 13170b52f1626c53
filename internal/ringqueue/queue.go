// Package ringqueue provides a growable circular FIFO buffer.
package ringqueue

import (
	"iter"

	"github.com/genc-murat/memwarden/internal/core/models"
)

const defaultCapacity = 16

// Queue is a circular buffer that doubles its capacity when full. It never
// shrinks. Queue is not safe for concurrent use; owners provide locking.
type Queue[T any] struct {
	items []T
	head  int
	tail  int
	count int
}

func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = defaultCapacity
	}
	return &Queue[T]{items: make([]T, capacity)}
}

func (q *Queue[T]) Count() int {
	return q.count
}

func (q *Queue[T]) Capacity() int {
	return len(q.items)
}

func (q *Queue[T]) Enqueue(item T) {
	if q.count == len(q.items) {
		q.grow()
	}
	q.items[q.tail] = item
	q.tail = (q.tail + 1) % len(q.items)
	q.count++
}

// Dequeue removes the head element. It returns models.ErrEmptyCollection
// when the queue is empty.
func (q *Queue[T]) Dequeue() (T, error) {
	item, ok := q.TryDequeue()
	if !ok {
		return item, models.ErrEmptyCollection
	}
	return item, nil
}

func (q *Queue[T]) TryDequeue() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return item, true
}

func (q *Queue[T]) Peek() (T, error) {
	item, ok := q.TryPeek()
	if !ok {
		return item, models.ErrEmptyCollection
	}
	return item, nil
}

func (q *Queue[T]) TryPeek() (T, bool) {
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

// At returns the i-th element counted from the head.
func (q *Queue[T]) At(i int) (T, bool) {
	if i < 0 || i >= q.count {
		var zero T
		return zero, false
	}
	return q.items[(q.head+i)%len(q.items)], true
}

// Clear empties the queue and zeroes every slot so no references survive.
func (q *Queue[T]) Clear() {
	clear(q.items)
	q.head = 0
	q.tail = 0
	q.count = 0
}

// All yields the elements from head to tail without modifying the queue.
func (q *Queue[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < q.count; i++ {
			if !yield(q.items[(q.head+i)%len(q.items)]) {
				return
			}
		}
	}
}

func (q *Queue[T]) ToSlice() []T {
	out := make([]T, 0, q.count)
	for item := range q.All() {
		out = append(out, item)
	}
	return out
}

func (q *Queue[T]) grow() {
	next := make([]T, len(q.items)*2)
	n := copy(next, q.items[q.head:])
	copy(next[n:], q.items[:q.head])
	q.items = next
	q.head = 0
	q.tail = q.count
}
