package models

import "time"

// MemorySnapshot is one sample of process memory, split by owner.
type MemorySnapshot struct {
	Timestamp     time.Time
	TotalBytes    int64
	SystemBytes   int64
	ManagedBytes  int64
	GraphicsBytes int64
	OtherBytes    int64
}

// TotalMB returns TotalBytes in mebibytes.
func (s MemorySnapshot) TotalMB() float64 {
	return float64(s.TotalBytes) / (1024 * 1024)
}

type AllocationSample struct {
	Category  string
	Bytes     int64
	Timestamp time.Time
}

// PressureLevel buckets the normalized memory pressure for display.
type PressureLevel int

const (
	PressureLow PressureLevel = iota
	PressureModerate
	PressureHigh
	PressureCritical
)

func (p PressureLevel) String() string {
	switch p {
	case PressureLow:
		return "low"
	case PressureModerate:
		return "moderate"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// PressureLevelOf maps a pressure ratio in [0,1] to a level.
func PressureLevelOf(pressure float64) PressureLevel {
	switch {
	case pressure >= 0.9:
		return PressureCritical
	case pressure >= 0.7:
		return PressureHigh
	case pressure >= 0.5:
		return PressureModerate
	default:
		return PressureLow
	}
}
