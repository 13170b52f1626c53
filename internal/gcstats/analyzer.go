// Package gcstats tracks collector activity: how often the runtime collects
// and how much that costs the process.
package gcstats

import (
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/genc-murat/memwarden/internal/core/models"
	"github.com/genc-murat/memwarden/internal/ringqueue"
)

// Reading is the subset of runtime.MemStats the analyzer needs.
type Reading struct {
	NumGC         uint32
	PauseTotal    time.Duration
	LastPause     time.Duration
	GCCPUFraction float64
}

// ReadFunc returns the current collector counters.
type ReadFunc func() Reading

// ReadRuntime reads collector counters from the Go runtime.
func ReadRuntime() Reading {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Reading{
		NumGC:         ms.NumGC,
		PauseTotal:    time.Duration(ms.PauseTotalNs),
		LastPause:     time.Duration(ms.PauseNs[(ms.NumGC+255)%256]),
		GCCPUFraction: ms.GCCPUFraction,
	}
}

type Config struct {
	Window         time.Duration
	SampleInterval time.Duration
}

func DefaultConfig() Config {
	return Config{Window: 10 * time.Second, SampleInterval: 250 * time.Millisecond}
}

type Stats struct {
	TotalCollections  uint32
	ForcedCollections int64
	Frequency         float64
	AveragePause      time.Duration
	GCCPUFraction     float64
	Impact            models.ImpactLevel
}

// Analyzer implements ports.GCAnalyzer from periodic runtime readings.
type Analyzer struct {
	mu      sync.RWMutex
	cfg     Config
	read    ReadFunc
	clock   clock.Clock
	events  *ringqueue.Queue[time.Time]
	last    Reading
	primed  bool
	elapsed time.Duration
	forced  int64
	pauses  time.Duration
	counted int64
}

func New(cfg Config, read ReadFunc, clk clock.Clock) *Analyzer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultConfig().SampleInterval
	}
	if read == nil {
		read = ReadRuntime
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Analyzer{
		cfg:    cfg,
		read:   read,
		clock:  clk,
		events: ringqueue.New[time.Time](64),
	}
}

func (a *Analyzer) Tick(delta time.Duration) {
	a.mu.Lock()
	a.elapsed += delta
	due := a.elapsed >= a.cfg.SampleInterval
	if due {
		a.elapsed = 0
	}
	a.mu.Unlock()

	if due {
		a.Sample()
	}
}

// Sample reads the runtime counters and records any collections that
// happened since the previous reading.
func (a *Analyzer) Sample() {
	r := a.read()
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.primed && r.NumGC > a.last.NumGC {
		cycles := r.NumGC - a.last.NumGC
		for i := uint32(0); i < cycles; i++ {
			a.events.Enqueue(now)
		}
		if r.PauseTotal > a.last.PauseTotal {
			a.pauses += r.PauseTotal - a.last.PauseTotal
		}
		a.counted += int64(cycles)
	}
	a.last = r
	a.primed = true
	a.pruneLocked(now)
}

// RecordCollection counts a collection requested by this process.
func (a *Analyzer) RecordCollection(result models.GCResult) {
	if !result.Executed {
		return
	}
	a.mu.Lock()
	a.forced++
	a.mu.Unlock()
}

// CollectionFrequency is collections per second over the window.
func (a *Analyzer) CollectionFrequency() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked(a.clock.Now())
	return float64(a.events.Count()) / a.cfg.Window.Seconds()
}

func (a *Analyzer) PerformanceImpact() models.ImpactLevel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return impactOf(a.last.GCCPUFraction, a.averagePauseLocked())
}

func (a *Analyzer) Stats() Stats {
	freq := a.CollectionFrequency()

	a.mu.RLock()
	defer a.mu.RUnlock()
	avg := a.averagePauseLocked()
	return Stats{
		TotalCollections:  a.last.NumGC,
		ForcedCollections: a.forced,
		Frequency:         freq,
		AveragePause:      avg,
		GCCPUFraction:     a.last.GCCPUFraction,
		Impact:            impactOf(a.last.GCCPUFraction, avg),
	}
}

func (a *Analyzer) averagePauseLocked() time.Duration {
	if a.counted == 0 {
		return 0
	}
	return a.pauses / time.Duration(a.counted)
}

func (a *Analyzer) pruneLocked(now time.Time) {
	cutoff := now.Add(-a.cfg.Window)
	for {
		ts, ok := a.events.TryPeek()
		if !ok || !ts.Before(cutoff) {
			return
		}
		a.events.TryDequeue()
	}
}

func impactOf(cpuFraction float64, avgPause time.Duration) models.ImpactLevel {
	var level models.ImpactLevel
	switch {
	case cpuFraction >= 0.25:
		level = models.ImpactSevere
	case cpuFraction >= 0.10:
		level = models.ImpactHigh
	case cpuFraction >= 0.05:
		level = models.ImpactModerate
	case cpuFraction > 0.01:
		level = models.ImpactLow
	default:
		level = models.ImpactNone
	}
	if avgPause >= 100*time.Millisecond && level < models.ImpactHigh {
		level = models.ImpactHigh
	}
	return level
}
