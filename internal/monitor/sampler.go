package monitor

import (
	"runtime"

	"github.com/benbjohnson/clock"

	"github.com/genc-murat/memwarden/internal/core/models"
)

// GraphicsReporter lets the host report memory the Go runtime cannot see,
// such as GPU textures owned by a renderer.
type GraphicsReporter func() int64

// RuntimeSampler reads the Go runtime's memory statistics.
type RuntimeSampler struct {
	clock    clock.Clock
	graphics GraphicsReporter
}

func NewRuntimeSampler(clk clock.Clock, graphics GraphicsReporter) *RuntimeSampler {
	if clk == nil {
		clk = clock.New()
	}
	return &RuntimeSampler{clock: clk, graphics: graphics}
}

func (s *RuntimeSampler) Sample() models.MemorySnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := models.MemorySnapshot{
		Timestamp:    s.clock.Now(),
		ManagedBytes: int64(ms.HeapAlloc),
		SystemBytes:  int64(ms.StackInuse + ms.MSpanInuse + ms.MCacheInuse + ms.GCSys),
		OtherBytes:   int64(ms.OtherSys + ms.BuckHashSys),
	}
	if s.graphics != nil {
		snap.GraphicsBytes = s.graphics()
	}
	snap.TotalBytes = snap.ManagedBytes + snap.SystemBytes + snap.GraphicsBytes + snap.OtherBytes
	return snap
}

// rate returns bytes per second between two snapshots, never negative.
func rate(oldest, newest models.MemorySnapshot) float64 {
	dt := newest.Timestamp.Sub(oldest.Timestamp)
	if dt <= 0 || newest.TotalBytes <= oldest.TotalBytes {
		return 0
	}
	return float64(newest.TotalBytes-oldest.TotalBytes) / dt.Seconds()
}
