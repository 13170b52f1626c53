// Package event implements synchronous observer lists.
package event

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type ID uint64

// Listeners is a set of callbacks for one event. Emit runs on the caller's
// goroutine over a copy of the set, so listeners may add or remove
// subscriptions while being notified. A panicking listener is logged and the
// rest are still called.
type Listeners[T any] struct {
	mu     sync.RWMutex
	name   string
	nextID ID
	subs   []subscription[T]
	logger *zap.Logger
}

type subscription[T any] struct {
	id ID
	fn func(T)
}

func NewListeners[T any](name string, logger *zap.Logger) *Listeners[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listeners[T]{name: name, logger: logger}
}

func (l *Listeners[T]) Add(fn func(T)) ID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	l.subs = append(l.subs, subscription[T]{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *Listeners[T]) Remove(id ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

// Emit must not be called while holding a lock the listeners may need.
func (l *Listeners[T]) Emit(v T) {
	l.mu.RLock()
	snapshot := make([]subscription[T], len(l.subs))
	copy(snapshot, l.subs)
	l.mu.RUnlock()

	for _, s := range snapshot {
		l.call(s, v)
	}
}

func (l *Listeners[T]) call(s subscription[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event listener panicked",
				zap.String("event", l.name),
				zap.Uint64("listener", uint64(s.id)),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	s.fn(v)
}
