// Package strategy decides whether and how thoroughly to collect.
package strategy

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/genc-murat/memwarden/internal/core/models"
	"github.com/genc-murat/memwarden/internal/event"
	"github.com/genc-murat/memwarden/internal/format"
)

const mib = 1024 * 1024

type Thresholds struct {
	// PressureThreshold triggers Adaptive collections.
	PressureThreshold float64
	// AggressiveThreshold triggers Aggressive collections.
	AggressiveThreshold float64
	// ConservativeThreshold triggers Conservative collections.
	ConservativeThreshold float64
	// ForceThresholdBytes triggers Adaptive collections on absolute usage;
	// Conservative uses twice this value.
	ForceThresholdBytes int64
	// AllocationRateThreshold is in bytes per second; Aggressive uses half.
	AllocationRateThreshold float64
	// Adaptive priority bands.
	HighPriorityPressure     float64
	CriticalPriorityPressure float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		PressureThreshold:        0.8,
		AggressiveThreshold:      0.5,
		ConservativeThreshold:    0.9,
		ForceThresholdBytes:      768 * mib,
		AllocationRateThreshold:  20 * mib,
		HighPriorityPressure:     0.9,
		CriticalPriorityPressure: 0.9,
	}
}

func (t Thresholds) Validate() error {
	ratios := []struct {
		field string
		value float64
	}{
		{"strategy.pressure_threshold", t.PressureThreshold},
		{"strategy.aggressive_threshold", t.AggressiveThreshold},
		{"strategy.conservative_threshold", t.ConservativeThreshold},
		{"strategy.high_priority_pressure", t.HighPriorityPressure},
		{"strategy.critical_priority_pressure", t.CriticalPriorityPressure},
	}
	for _, r := range ratios {
		if r.value <= 0 || r.value > 1 {
			return models.NewConfigurationError(r.field, fmt.Sprintf("must be in (0,1], got %v", r.value))
		}
	}
	if t.ForceThresholdBytes <= 0 {
		return models.NewConfigurationError("strategy.force_threshold", "must be positive")
	}
	if t.AllocationRateThreshold <= 0 {
		return models.NewConfigurationError("strategy.allocation_rate_threshold", "must be positive")
	}
	if t.AggressiveThreshold > t.PressureThreshold || t.PressureThreshold > t.ConservativeThreshold {
		return models.NewConfigurationError("strategy", "thresholds must satisfy aggressive <= pressure <= conservative")
	}
	if t.HighPriorityPressure > t.CriticalPriorityPressure {
		return models.NewConfigurationError("strategy.high_priority_pressure", "cannot exceed critical_priority_pressure")
	}
	return nil
}

type Option func(*Policy)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// StrategyChange is published when the active strategy is replaced.
type StrategyChange struct {
	Old models.Strategy
	New models.Strategy
}

// Policy is a pure function of its thresholds and the active strategy.
type Policy struct {
	mu              sync.RWMutex
	thresholds      Thresholds
	strategy        models.Strategy
	logger          *zap.Logger
	strategyChanged *event.Listeners[StrategyChange]
}

func New(thresholds Thresholds, initial models.Strategy, opts ...Option) (*Policy, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	p := &Policy{
		thresholds: thresholds,
		strategy:   initial,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "strategy"))
	p.strategyChanged = event.NewListeners[StrategyChange]("strategy_changed", p.logger)
	return p, nil
}

func (p *Policy) OnStrategyChanged() *event.Listeners[StrategyChange] {
	return p.strategyChanged
}

func (p *Policy) Strategy() models.Strategy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.strategy
}

// SetStrategy replaces the active strategy. Every strategy is reachable from
// every other one.
func (p *Policy) SetStrategy(s models.Strategy) {
	p.mu.Lock()
	old := p.strategy
	p.strategy = s
	p.mu.Unlock()

	if old == s {
		return
	}
	p.logger.Info("gc strategy changed",
		zap.Stringer("old", old),
		zap.Stringer("new", s))
	p.strategyChanged.Emit(StrategyChange{Old: old, New: s})
}

func (p *Policy) Thresholds() Thresholds {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.thresholds
}

func (p *Policy) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.thresholds = t
	p.mu.Unlock()
	return nil
}

// Evaluate maps the current memory picture to a collection decision.
// allocationRate is in bytes per second, currentMemory in bytes.
func (p *Policy) Evaluate(pressure, allocationRate float64, currentMemory int64) models.GCDecision {
	p.mu.RLock()
	t := p.thresholds
	s := p.strategy
	p.mu.RUnlock()

	switch s {
	case models.StrategyAggressive:
		return evaluateAggressive(t, pressure, allocationRate)
	case models.StrategyAdaptive:
		return evaluateAdaptive(t, pressure, allocationRate, currentMemory)
	case models.StrategyConservative:
		return evaluateConservative(t, pressure, currentMemory)
	default:
		return models.GCDecision{ShouldCollect: false, Reason: "strategy disabled", Priority: models.PriorityLow}
	}
}

func evaluateAggressive(t Thresholds, pressure, allocationRate float64) models.GCDecision {
	d := models.GCDecision{Priority: models.PriorityHigh}
	switch {
	case pressure > t.AggressiveThreshold:
		d.ShouldCollect = true
		d.Reason = "memory pressure " + format.Percent(pressure) + " above aggressive threshold"
	case allocationRate > t.AllocationRateThreshold/2:
		d.ShouldCollect = true
		d.Reason = "allocation rate " + format.Bytes(int64(allocationRate)) + "/s above aggressive limit"
	default:
		d.Reason = "below aggressive thresholds"
	}
	return d
}

func evaluateAdaptive(t Thresholds, pressure, allocationRate float64, currentMemory int64) models.GCDecision {
	d := models.GCDecision{Priority: adaptivePriority(t, pressure)}
	switch {
	case pressure > t.PressureThreshold:
		d.ShouldCollect = true
		d.Reason = "memory pressure " + format.Percent(pressure) + " above threshold"
	case allocationRate > t.AllocationRateThreshold:
		d.ShouldCollect = true
		d.Reason = "allocation rate " + format.Bytes(int64(allocationRate)) + "/s above threshold"
	case currentMemory > t.ForceThresholdBytes:
		d.ShouldCollect = true
		d.Reason = "memory usage " + format.Bytes(currentMemory) + " above force threshold"
	default:
		d.Reason = "below adaptive thresholds"
	}
	return d
}

func adaptivePriority(t Thresholds, pressure float64) models.Priority {
	switch {
	case pressure > t.CriticalPriorityPressure:
		return models.PriorityCritical
	case pressure > t.HighPriorityPressure:
		return models.PriorityHigh
	default:
		return models.PriorityMedium
	}
}

// Conservative only fires in severe conditions and then always reports
// Critical priority.
func evaluateConservative(t Thresholds, pressure float64, currentMemory int64) models.GCDecision {
	d := models.GCDecision{Priority: models.PriorityCritical}
	switch {
	case pressure > t.ConservativeThreshold:
		d.ShouldCollect = true
		d.Reason = "memory pressure " + format.Percent(pressure) + " above conservative threshold"
	case currentMemory > 2*t.ForceThresholdBytes:
		d.ShouldCollect = true
		d.Reason = "memory usage " + format.Bytes(currentMemory) + " above twice the force threshold"
	default:
		d.Reason = "below conservative thresholds"
	}
	return d
}

// GetExecutionMode picks how thoroughly to collect, independent of whether
// a collection was warranted.
func (p *Policy) GetExecutionMode(ctx models.GCContext) models.ExecutionMode {
	switch ctx.TriggerType {
	case models.TriggerIdle, models.TriggerSceneTransition, models.TriggerManual:
		return models.ModeThorough
	}
	if p.Strategy() == models.StrategyAggressive {
		return models.ModeFast
	}
	return models.ModeStandard
}
