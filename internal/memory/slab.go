// Package memory pools byte buffers by size class to cut allocation churn.
package memory

import (
	"sync/atomic"

	"github.com/genc-murat/memwarden/internal/pool"
)

const (
	MinSlabSize = 64
	MaxSlabSize = 1 << 20

	defaultBuffersPerClass = 32
)

// BufferPool hands out byte slices from power-of-two size classes.
// Buffers whose capacity no longer matches a class are not taken back.
type BufferPool struct {
	classes []int
	pools   []*pool.ObjectPool[*[]byte]
	stats   struct {
		allocs   atomic.Int64
		frees    atomic.Int64
		rejected atomic.Int64
	}
}

type BufferStats struct {
	AllocCount  int64
	FreeCount   int64
	Rejected    int64
	PooledBytes int64
	SlabClasses int
}

// NewBufferPool keeps at most perClass idle buffers in each size class.
func NewBufferPool(perClass int) (*BufferPool, error) {
	if perClass <= 0 {
		perClass = defaultBuffersPerClass
	}

	bp := &BufferPool{}
	for size := MinSlabSize; size <= MaxSlabSize; size *= 2 {
		classSize := size
		p, err := pool.NewObjectPool(pool.Config{MaxSize: perClass},
			func() *[]byte {
				buf := make([]byte, classSize)
				return &buf
			},
			func(b *[]byte) {
				clear((*b)[:cap(*b)])
			})
		if err != nil {
			return nil, err
		}
		bp.classes = append(bp.classes, classSize)
		bp.pools = append(bp.pools, p)
	}
	return bp, nil
}

// Allocate returns a buffer of len size, or nil when size is negative or
// larger than MaxSlabSize.
func (bp *BufferPool) Allocate(size int) []byte {
	class := bp.findSlabClass(size)
	if class == -1 {
		return nil
	}

	buf := bp.pools[class].Get()
	bp.stats.allocs.Add(1)
	return (*buf)[:size]
}

// Free returns buf to its class. The caller must not use buf afterwards.
func (bp *BufferPool) Free(buf []byte) {
	if buf == nil {
		return
	}
	class := bp.exactClass(cap(buf))
	if class == -1 {
		bp.stats.rejected.Add(1)
		return
	}

	full := buf[:cap(buf)]
	bp.pools[class].Return(&full)
	bp.stats.frees.Add(1)
}

// Clear drops every idle buffer so the collector can reclaim it.
func (bp *BufferPool) Clear() {
	for _, p := range bp.pools {
		p.Clear()
	}
}

func (bp *BufferPool) GetStats() BufferStats {
	var pooled int64
	for i, p := range bp.pools {
		pooled += int64(p.Count()) * int64(bp.classes[i])
	}
	return BufferStats{
		AllocCount:  bp.stats.allocs.Load(),
		FreeCount:   bp.stats.frees.Load(),
		Rejected:    bp.stats.rejected.Load(),
		PooledBytes: pooled,
		SlabClasses: len(bp.classes),
	}
}

func (bp *BufferPool) findSlabClass(size int) int {
	if size < 0 {
		return -1
	}
	for i, classSize := range bp.classes {
		if size <= classSize {
			return i
		}
	}
	return -1
}

func (bp *BufferPool) exactClass(capacity int) int {
	for i, classSize := range bp.classes {
		if capacity == classSize {
			return i
		}
	}
	return -1
}
