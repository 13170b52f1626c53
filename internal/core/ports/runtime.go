package ports

import (
	"time"

	"github.com/genc-murat/memwarden/internal/core/models"
)

// Sampler reads the current memory breakdown from the runtime.
type Sampler interface {
	Sample() models.MemorySnapshot
}

// Collector asks the managed runtime to reclaim memory.
type Collector interface {
	Collect(mode models.ExecutionMode) error
}

// GCAnalyzer reports collector activity. AlertManager treats it as optional.
type GCAnalyzer interface {
	CollectionFrequency() float64
	PerformanceImpact() models.ImpactLevel
}

// MemorySource is the read side of the memory monitor used by alerting.
type MemorySource interface {
	CurrentUsage() int64
	AllocationRate() float64
}

// Ticker is a component driven by the host frame loop.
type Ticker interface {
	Tick(delta time.Duration)
}
