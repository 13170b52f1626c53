package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEmitCallsAllInOrder(t *testing.T) {
	l := NewListeners[int]("test", nil)
	var got []string

	l.Add(func(v int) { got = append(got, "a") })
	l.Add(func(v int) { got = append(got, "b") })
	l.Emit(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestPanickingListenerDoesNotStopOthers(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	l := NewListeners[string]("snapshot", zap.New(core))

	called := false
	l.Add(func(string) { panic("boom") })
	l.Add(func(string) { called = true })

	assert.NotPanics(t, func() { l.Emit("x") })
	assert.True(t, called)
	assert.Equal(t, 1, logs.FilterMessage("event listener panicked").Len())
}

func TestRemove(t *testing.T) {
	l := NewListeners[int]("test", nil)
	count := 0
	id := l.Add(func(int) { count++ })

	assert.True(t, l.Remove(id))
	assert.False(t, l.Remove(id))
	l.Emit(1)

	assert.Equal(t, 0, count)
	assert.Equal(t, 0, l.Len())
}

func TestListenerMayUnsubscribeDuringEmit(t *testing.T) {
	l := NewListeners[int]("test", nil)
	calls := 0
	var id ID
	id = l.Add(func(int) {
		calls++
		l.Remove(id)
	})
	l.Add(func(int) { calls++ })

	l.Emit(1)
	l.Emit(2)

	assert.Equal(t, 3, calls)
}
