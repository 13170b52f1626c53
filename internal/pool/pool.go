package pool

import (
	"sync"

	"github.com/genc-murat/memwarden/internal/ringqueue"
)

// ObjectPool keeps up to MaxSize idle instances for reuse. It performs no
// ownership tracking: callers must drop their reference after Return.
type ObjectPool[T any] struct {
	stats struct {
		sync.RWMutex
		created   int64
		hits      int64
		discarded int64
	}
	mu      sync.Mutex
	config  Config
	factory func() T
	reset   func(T)
	idle    *ringqueue.Queue[T]
}

type Stats struct {
	Pooled    int
	Created   int64
	Hits      int64
	Discarded int64
}

func NewObjectPool[T any](config Config, factory func() T, reset func(T)) (*ObjectPool[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = DefaultFactory[T]()
	}

	p := &ObjectPool[T]{
		config:  config,
		factory: factory,
		reset:   reset,
		idle:    ringqueue.New[T](config.MaxSize),
	}

	for i := 0; i < config.InitialSize; i++ {
		p.idle.Enqueue(p.create())
	}

	return p, nil
}

// Get returns an idle instance or a new one from the factory. It never blocks
// waiting for a Return.
func (p *ObjectPool[T]) Get() T {
	p.mu.Lock()
	item, ok := p.idle.TryDequeue()
	p.mu.Unlock()

	if ok {
		p.stats.Lock()
		p.stats.hits++
		p.stats.Unlock()
		return item
	}
	return p.create()
}

// Return hands an instance back. Nil items are ignored and items beyond
// MaxSize are discarded.
func (p *ObjectPool[T]) Return(item T) {
	if isNil(item) {
		return
	}

	p.mu.Lock()
	full := p.idle.Count() >= p.config.MaxSize
	p.mu.Unlock()
	if full {
		p.discard()
		return
	}

	if p.reset != nil {
		p.reset(item)
	}

	p.mu.Lock()
	if p.idle.Count() >= p.config.MaxSize {
		p.mu.Unlock()
		p.discard()
		return
	}
	p.idle.Enqueue(item)
	p.mu.Unlock()
}

// Clear drops all idle instances without resetting them.
func (p *ObjectPool[T]) Clear() {
	p.mu.Lock()
	p.idle.Clear()
	p.mu.Unlock()
}

func (p *ObjectPool[T]) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.Count()
}

func (p *ObjectPool[T]) MaxSize() int {
	return p.config.MaxSize
}

func (p *ObjectPool[T]) Stats() Stats {
	pooled := p.Count()

	p.stats.RLock()
	defer p.stats.RUnlock()
	return Stats{
		Pooled:    pooled,
		Created:   p.stats.created,
		Hits:      p.stats.hits,
		Discarded: p.stats.discarded,
	}
}

func (p *ObjectPool[T]) create() T {
	p.stats.Lock()
	p.stats.created++
	p.stats.Unlock()
	return p.factory()
}

func (p *ObjectPool[T]) discard() {
	p.stats.Lock()
	p.stats.discarded++
	p.stats.Unlock()
}
