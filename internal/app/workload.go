package app

import (
	"math/rand/v2"

	"github.com/genc-murat/memwarden/internal/coordinator"
	"github.com/genc-murat/memwarden/internal/core/ports"
	"github.com/genc-murat/memwarden/internal/memory"
	"github.com/genc-murat/memwarden/internal/monitor"
	"github.com/genc-murat/memwarden/internal/pool"
)

const (
	maxRetained     = 512
	idleEvery       = 300
	idleFrames      = 40
	transitionEvery = 1000
	transitionLen   = 30
)

type frameState struct {
	scratch  []byte
	entities []int
}

// Workload is a synthetic frame workload used by --simulate. It allocates
// through the buffer pool, keeps some buffers alive across frames and walks
// through idle periods and scene transitions.
type Workload struct {
	buffers *memory.BufferPool
	frames  ports.Pool[*frameState]
	monitor *monitor.Monitor
	coord   *coordinator.Coordinator
	rng     *rand.Rand

	retained [][]byte
	frame    int
}

func NewWorkload(coord *coordinator.Coordinator, poolCfg pool.Config, seed uint64) (*Workload, error) {
	frames, err := pool.NewObjectPool(poolCfg,
		func() *frameState { return &frameState{entities: make([]int, 0, 64)} },
		func(f *frameState) {
			f.scratch = nil
			f.entities = f.entities[:0]
		})
	if err != nil {
		return nil, err
	}
	coord.RegisterPool(frames)

	return &Workload{
		buffers: coord.Buffers(),
		frames:  frames,
		monitor: coord.Monitor(),
		coord:   coord,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Step simulates one frame.
func (w *Workload) Step() {
	w.frame++

	f := w.frames.Get()
	size := 256 << w.rng.IntN(12)
	f.scratch = w.buffers.Allocate(size)
	for i := range w.rng.IntN(32) {
		f.entities = append(f.entities, i)
	}
	w.monitor.RecordAllocation("frame_buffers", int64(size))

	if w.rng.IntN(4) == 0 {
		w.retain(f.scratch)
	} else {
		w.buffers.Free(f.scratch)
	}
	w.frames.Return(f)

	switch w.frame % idleEvery {
	case 0:
		w.coord.NotifyIdle()
	case idleFrames:
		w.coord.NotifyActive()
	}

	switch w.frame % transitionEvery {
	case 0:
		w.coord.NotifySceneTransitionStart()
		w.releaseRetained()
	case transitionLen:
		w.coord.NotifySceneTransitionEnd()
	}
}

func (w *Workload) retain(buf []byte) {
	if len(w.retained) >= maxRetained {
		// the oldest buffer is left to the collector
		w.retained = w.retained[1:]
	}
	w.retained = append(w.retained, buf)
}

func (w *Workload) releaseRetained() {
	for _, buf := range w.retained {
		w.buffers.Free(buf)
	}
	w.retained = w.retained[:0]
}

func (w *Workload) Retained() int {
	return len(w.retained)
}
