package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genc-murat/memwarden/internal/core/models"
	"github.com/genc-murat/memwarden/internal/core/ports"
)

type widget struct {
	ID    int
	Dirty bool
}

var _ ports.Pool[*widget] = (*ObjectPool[*widget])(nil)

func TestNewObjectPoolValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid", config: Config{InitialSize: 2, MaxSize: 4}},
		{name: "zero max size", config: Config{MaxSize: 0}, wantErr: true},
		{name: "negative initial", config: Config{InitialSize: -1, MaxSize: 4}, wantErr: true},
		{name: "initial above max", config: Config{InitialSize: 5, MaxSize: 4}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewObjectPool[*widget](tt.config, nil, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGetUsesFactoryWhenEmpty(t *testing.T) {
	calls := 0
	p, err := NewObjectPool(Config{MaxSize: 2}, func() *widget {
		calls++
		return &widget{ID: calls}
	}, nil)
	require.NoError(t, err)

	a := p.Get()
	b := p.Get()

	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	assert.Equal(t, 2, calls)
}

func TestDefaultFactory(t *testing.T) {
	p, err := NewObjectPool[*widget](Config{MaxSize: 1}, nil, nil)
	require.NoError(t, err)
	w := p.Get()
	require.NotNil(t, w)
	assert.Equal(t, 0, w.ID)

	ints, err := NewObjectPool[int](Config{MaxSize: 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ints.Get())
}

func TestReturnResetsAndReuses(t *testing.T) {
	p, err := NewObjectPool(Config{MaxSize: 2}, nil, func(w *widget) {
		w.Dirty = false
	})
	require.NoError(t, err)

	w := p.Get()
	w.Dirty = true
	p.Return(w)

	again := p.Get()
	assert.Same(t, w, again)
	assert.False(t, again.Dirty)
	assert.Equal(t, int64(1), p.Stats().Hits)
}

func TestReturnNilIsIgnored(t *testing.T) {
	resets := 0
	p, err := NewObjectPool(Config{MaxSize: 2}, nil, func(*widget) { resets++ })
	require.NoError(t, err)

	p.Return(nil)

	assert.Equal(t, 0, p.Count())
	assert.Equal(t, 0, resets)
}

func TestReturnNeverExceedsMaxSize(t *testing.T) {
	const maxSize = 3
	p, err := NewObjectPool[*widget](Config{MaxSize: maxSize}, nil, nil)
	require.NoError(t, err)

	for i := 0; i < maxSize+5; i++ {
		p.Return(&widget{ID: i})
		assert.LessOrEqual(t, p.Count(), maxSize)
	}

	stats := p.Stats()
	assert.Equal(t, maxSize, stats.Pooled)
	assert.Equal(t, int64(5), stats.Discarded)
}

func TestClearSkipsReset(t *testing.T) {
	resets := 0
	p, err := NewObjectPool(Config{InitialSize: 2, MaxSize: 4}, nil, func(*widget) { resets++ })
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count())

	p.Clear()

	assert.Equal(t, 0, p.Count())
	assert.Equal(t, 0, resets)
}

func TestConcurrentGetReturn(t *testing.T) {
	p, err := NewObjectPool(Config{MaxSize: 8}, nil, func(w *widget) { w.Dirty = false })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				w := p.Get()
				w.Dirty = true
				p.Return(w)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.Count(), 8)
}

func TestSliceFactory(t *testing.T) {
	p, err := NewObjectPool(Config{MaxSize: 1}, SliceFactory[byte](32), func(b []byte) {})
	require.NoError(t, err)

	buf := p.Get()
	assert.Len(t, buf, 0)
	assert.Equal(t, 32, cap(buf))
}
