package models

import "time"

type AlertLevel int

const (
	AlertNormal AlertLevel = iota
	AlertWarning
	AlertCritical
	AlertEmergency
)

func (l AlertLevel) String() string {
	switch l {
	case AlertNormal:
		return "normal"
	case AlertWarning:
		return "warning"
	case AlertCritical:
		return "critical"
	case AlertEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// AlertType identifies a debounce bucket. Custom types are allowed for
// externally detected conditions.
type AlertType string

const (
	AlertMemoryUsage    AlertType = "memory_usage"
	AlertAllocationRate AlertType = "allocation_rate"
	AlertGCFrequency    AlertType = "gc_frequency"
)

// Alert is immutable once emitted.
type Alert struct {
	ID              string
	Type            AlertType
	Level           AlertLevel
	Message         string
	Timestamp       time.Time
	CurrentMemoryMB float64
}

type LevelChange struct {
	Old AlertLevel
	New AlertLevel
}
