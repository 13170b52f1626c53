package models

import "time"

// Stats is the read-only view published by the coordinator.
type Stats struct {
	Enabled      bool
	Strategy     Strategy
	Idle         bool
	InTransition bool

	CurrentMemory  int64
	PeakMemory     int64
	AverageMemory  int64
	Pressure       float64
	PressureLevel  PressureLevel
	AllocationRate float64

	TotalCollections  int64
	AutoCollections   int64
	ForcedCollections int64
	FailedCollections int64
	TotalFreedBytes   int64
	AverageDuration   time.Duration
	LastCollection    time.Time

	AlertLevel        AlertLevel
	CollectorImpact   ImpactLevel
	GCFrequency       float64
	SnapshotsRetained int
}
