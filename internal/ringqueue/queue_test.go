package ringqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genc-murat/memwarden/internal/core/models"
)

func TestEnqueueDequeueAcrossGrowth(t *testing.T) {
	q := New[int](4)

	for i := 0; i < 37; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 37, q.Count())
	assert.Equal(t, 64, q.Capacity())

	for i := 0; i < 37; i++ {
		v, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Count())
}

func TestGrowthWithWrappedIndices(t *testing.T) {
	q := New[int](4)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)
	_, _ = q.Dequeue()
	_, _ = q.Dequeue()

	// head is now at index 2, tail wraps around.
	for i := 4; i <= 9; i++ {
		q.Enqueue(i)
	}

	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 9}, q.ToSlice())
	assert.Equal(t, 8, q.Capacity())
}

func TestDequeueEmpty(t *testing.T) {
	q := New[string](2)

	_, err := q.Dequeue()
	assert.ErrorIs(t, err, models.ErrEmptyCollection)

	_, err = q.Peek()
	assert.ErrorIs(t, err, models.ErrEmptyCollection)

	_, ok := q.TryDequeue()
	assert.False(t, ok)

	_, ok = q.TryPeek()
	assert.False(t, ok)
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New[string](2)
	q.Enqueue("a")
	q.Enqueue("b")

	v, ok := q.TryPeek()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, q.Count())
}

func TestClearReleasesReferences(t *testing.T) {
	q := New[*int](4)
	for i := 0; i < 3; i++ {
		v := i
		q.Enqueue(&v)
	}
	capBefore := q.Capacity()

	q.Clear()

	assert.Equal(t, 0, q.Count())
	assert.Equal(t, capBefore, q.Capacity())
	for _, slot := range q.items {
		assert.Nil(t, slot)
	}

	q.Enqueue(nil)
	assert.Equal(t, 1, q.Count())
}

func TestIterationIsRestartable(t *testing.T) {
	q := New[int](2)
	for i := 1; i <= 5; i++ {
		q.Enqueue(i)
	}

	var first, second []int
	for v := range q.All() {
		first = append(first, v)
	}
	for v := range q.All() {
		second = append(second, v)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 5, q.Count())
}

func TestIterationStopsEarly(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 6; i++ {
		q.Enqueue(i)
	}

	var seen []int
	for v := range q.All() {
		if v == 3 {
			break
		}
		seen = append(seen, v)
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestAt(t *testing.T) {
	q := New[int](2)
	q.Enqueue(10)
	q.Enqueue(20)
	_, _ = q.Dequeue()
	q.Enqueue(30)

	v, ok := q.At(0)
	assert.True(t, ok)
	assert.Equal(t, 20, v)

	v, ok = q.At(1)
	assert.True(t, ok)
	assert.Equal(t, 30, v)

	_, ok = q.At(2)
	assert.False(t, ok)
	_, ok = q.At(-1)
	assert.False(t, ok)
}

func TestCapacityNeverShrinks(t *testing.T) {
	q := New[int](0)
	assert.Equal(t, defaultCapacity, q.Capacity())

	for i := 0; i < 40; i++ {
		q.Enqueue(i)
	}
	for i := 0; i < 40; i++ {
		_, _ = q.Dequeue()
	}
	assert.Equal(t, 64, q.Capacity())
}
