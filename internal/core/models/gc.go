package models

import (
	"fmt"
	"strings"
	"time"
)

// Strategy is the policy profile that decides when a collection is requested.
type Strategy int

const (
	StrategyDisabled Strategy = iota
	StrategyConservative
	StrategyAdaptive
	StrategyAggressive
)

func (s Strategy) String() string {
	switch s {
	case StrategyDisabled:
		return "disabled"
	case StrategyConservative:
		return "conservative"
	case StrategyAdaptive:
		return "adaptive"
	case StrategyAggressive:
		return "aggressive"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy accepts the lower-case names produced by String.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "disabled":
		return StrategyDisabled, nil
	case "conservative":
		return StrategyConservative, nil
	case "adaptive", "":
		return StrategyAdaptive, nil
	case "aggressive":
		return StrategyAggressive, nil
	}
	return StrategyAdaptive, NewConfigurationError("strategy", fmt.Sprintf("unknown strategy %q", name))
}

type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// GCDecision is the result of one policy evaluation.
type GCDecision struct {
	ShouldCollect bool
	Reason        string
	Priority      Priority
}

type TriggerType int

const (
	TriggerManual TriggerType = iota
	TriggerIdle
	TriggerSceneTransition
	TriggerMemoryPressure
	TriggerAllocationRate
)

func (t TriggerType) String() string {
	switch t {
	case TriggerManual:
		return "manual"
	case TriggerIdle:
		return "idle"
	case TriggerSceneTransition:
		return "scene_transition"
	case TriggerMemoryPressure:
		return "memory_pressure"
	case TriggerAllocationRate:
		return "allocation_rate"
	default:
		return "unknown"
	}
}

// GCContext is the input to execution mode selection.
type GCContext struct {
	TriggerType     TriggerType
	Pressure        float64
	AllocationRate  float64
	IsIdle          bool
	InTransition    bool
	UnderPressure   bool
	HighAllocations bool
}

// ExecutionMode says how thoroughly a requested collection runs.
type ExecutionMode int

const (
	// ModeFast issues a single collection request.
	ModeFast ExecutionMode = iota
	// ModeStandard issues a collection and waits a short settle period.
	ModeStandard
	// ModeThorough collects, waits for pending finalizers, and collects again.
	ModeThorough
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeFast:
		return "fast"
	case ModeStandard:
		return "standard"
	case ModeThorough:
		return "thorough"
	default:
		return "unknown"
	}
}

// GCResult reports the outcome of a collection request. Failures are
// reported with Executed false and a populated Reason.
type GCResult struct {
	Executed    bool
	Duration    time.Duration
	MemoryFreed int64
	Reason      string
	Mode        ExecutionMode
	Trigger     TriggerType
	Timestamp   time.Time
}

// ImpactLevel grades how much the collector costs the process.
type ImpactLevel int

const (
	ImpactNone ImpactLevel = iota
	ImpactLow
	ImpactModerate
	ImpactHigh
	ImpactSevere
)

func (i ImpactLevel) String() string {
	switch i {
	case ImpactNone:
		return "none"
	case ImpactLow:
		return "low"
	case ImpactModerate:
		return "moderate"
	case ImpactHigh:
		return "high"
	case ImpactSevere:
		return "severe"
	default:
		return "unknown"
	}
}
