// Package alert raises debounced, escalating alerts from memory usage,
// allocation rate and collector frequency.
package alert

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/genc-murat/memwarden/internal/core/models"
	"github.com/genc-murat/memwarden/internal/core/ports"
	"github.com/genc-murat/memwarden/internal/event"
	"github.com/genc-murat/memwarden/internal/format"
	"github.com/genc-murat/memwarden/internal/ringqueue"
)

const (
	mib = 1024 * 1024

	recentAlertLimit = 100

	// emergencySignal debounces the emergency callback independently of
	// the memory_usage alert stream.
	emergencySignal models.AlertType = "emergency_condition"
)

// Thresholds are in mebibytes: a MemoryWarningMB of 500 fires at
// 500 * 1024 * 1024 bytes.
type Thresholds struct {
	MemoryWarningMB   float64
	MemoryCriticalMB  float64
	MemoryEmergencyMB float64

	AllocationWarningMBps  float64
	AllocationCriticalMBps float64

	FrequencyWarning  float64
	FrequencyCritical float64

	Cooldown      time.Duration
	CheckInterval time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MemoryWarningMB:        500,
		MemoryCriticalMB:       800,
		MemoryEmergencyMB:      1024,
		AllocationWarningMBps:  10,
		AllocationCriticalMBps: 50,
		FrequencyWarning:       3,
		FrequencyCritical:      8,
		Cooldown:               5 * time.Second,
		CheckInterval:          time.Second,
	}
}

func (t Thresholds) Validate() error {
	if t.MemoryWarningMB <= 0 {
		return models.NewConfigurationError("alerts.memory_warning_mb", "must be positive")
	}
	if t.MemoryCriticalMB < t.MemoryWarningMB || t.MemoryEmergencyMB < t.MemoryCriticalMB {
		return models.NewConfigurationError("alerts.memory", "tiers must satisfy warning <= critical <= emergency")
	}
	if t.AllocationWarningMBps <= 0 || t.AllocationCriticalMBps < t.AllocationWarningMBps {
		return models.NewConfigurationError("alerts.allocation", "tiers must satisfy 0 < warning <= critical")
	}
	if t.FrequencyWarning <= 0 || t.FrequencyCritical < t.FrequencyWarning {
		return models.NewConfigurationError("alerts.frequency", "tiers must satisfy 0 < warning <= critical")
	}
	if t.Cooldown < 0 {
		return models.NewConfigurationError("alerts.cooldown", "cannot be negative")
	}
	if t.CheckInterval <= 0 {
		return models.NewConfigurationError("alerts.check_interval", "must be positive")
	}
	return nil
}

// MemoryTier classifies a usage figure in MB.
func (t Thresholds) MemoryTier(mb float64) models.AlertLevel {
	switch {
	case mb >= t.MemoryEmergencyMB:
		return models.AlertEmergency
	case mb >= t.MemoryCriticalMB:
		return models.AlertCritical
	case mb >= t.MemoryWarningMB:
		return models.AlertWarning
	default:
		return models.AlertNormal
	}
}

func (t Thresholds) AllocationTier(mbps float64) models.AlertLevel {
	switch {
	case mbps >= t.AllocationCriticalMBps:
		return models.AlertCritical
	case mbps >= t.AllocationWarningMBps:
		return models.AlertWarning
	default:
		return models.AlertNormal
	}
}

func (t Thresholds) FrequencyTier(perSecond float64) models.AlertLevel {
	switch {
	case perSecond >= t.FrequencyCritical:
		return models.AlertCritical
	case perSecond >= t.FrequencyWarning:
		return models.AlertWarning
	default:
		return models.AlertNormal
	}
}

type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// CheckResult describes one evaluation pass.
type CheckResult struct {
	Level          models.AlertLevel
	MemoryTier     models.AlertLevel
	AllocationTier models.AlertLevel
	FrequencyTier  models.AlertLevel
	Fired          []models.Alert
	Emergency      bool
}

type Manager struct {
	mu        sync.Mutex
	th        Thresholds
	source    ports.MemorySource
	analyzer  ports.GCAnalyzer
	clock     clock.Clock
	logger    *zap.Logger
	lastFired map[models.AlertType]time.Time
	level     models.AlertLevel
	recent    *ringqueue.Queue[models.Alert]
	elapsed   time.Duration

	analyzerWarned bool

	alertRaised  *event.Listeners[models.Alert]
	levelChanged *event.Listeners[models.LevelChange]
	emergency    *event.Listeners[models.Alert]
}

// New builds a manager. analyzer may be nil, including a typed nil pointer;
// collector-frequency checks are then skipped.
func New(th Thresholds, source ports.MemorySource, analyzer ports.GCAnalyzer, opts ...Option) (*Manager, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	if isNil(source) {
		return nil, fmt.Errorf("memory source: %w", models.ErrDependencyUnavailable)
	}
	if isNil(analyzer) {
		analyzer = nil
	}

	m := &Manager{
		th:        th,
		source:    source,
		analyzer:  analyzer,
		clock:     clock.New(),
		logger:    zap.NewNop(),
		lastFired: make(map[models.AlertType]time.Time),
		recent:    ringqueue.New[models.Alert](recentAlertLimit),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "alert"))
	m.alertRaised = event.NewListeners[models.Alert]("alert_raised", m.logger)
	m.levelChanged = event.NewListeners[models.LevelChange]("alert_level_changed", m.logger)
	m.emergency = event.NewListeners[models.Alert]("emergency_condition", m.logger)
	return m, nil
}

func (m *Manager) OnAlertRaised() *event.Listeners[models.Alert] {
	return m.alertRaised
}

func (m *Manager) OnLevelChanged() *event.Listeners[models.LevelChange] {
	return m.levelChanged
}

// OnEmergency is signalled when memory reaches the emergency tier, for
// callers that must take hard action such as unloading content.
func (m *Manager) OnEmergency() *event.Listeners[models.Alert] {
	return m.emergency
}

func (m *Manager) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.th
}

func (m *Manager) SetThresholds(th Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.th = th
	m.mu.Unlock()
	return nil
}

func (m *Manager) Tick(delta time.Duration) {
	m.mu.Lock()
	m.elapsed += delta
	due := m.elapsed >= m.th.CheckInterval
	if due {
		m.elapsed = 0
	}
	m.mu.Unlock()

	if due {
		m.Check()
	}
}

// Check evaluates every tier now and fires whatever the cooldowns allow.
func (m *Manager) Check() CheckResult {
	usage := m.source.CurrentUsage()
	usageMB := format.MB(usage)
	rateMBps := m.source.AllocationRate() / mib

	m.mu.Lock()
	th := m.th
	m.mu.Unlock()

	res := CheckResult{
		MemoryTier:     th.MemoryTier(usageMB),
		AllocationTier: th.AllocationTier(rateMBps),
	}

	if m.analyzer != nil {
		res.FrequencyTier = th.FrequencyTier(m.analyzer.CollectionFrequency())
	} else {
		m.logMissingAnalyzer()
	}

	res.Level = max(res.MemoryTier, res.AllocationTier, res.FrequencyTier)

	var pending []models.Alert
	if res.MemoryTier > models.AlertNormal {
		msg := fmt.Sprintf("memory usage %s reached %s tier (threshold %.0f MB)",
			format.Bytes(usage), res.MemoryTier, memoryThreshold(th, res.MemoryTier))
		if a, ok := m.tryFire(models.AlertMemoryUsage, res.MemoryTier, msg, usageMB); ok {
			pending = append(pending, a)
		}
	}
	if res.AllocationTier > models.AlertNormal {
		msg := fmt.Sprintf("allocation rate %.1f MB/s reached %s tier", rateMBps, res.AllocationTier)
		if a, ok := m.tryFire(models.AlertAllocationRate, res.AllocationTier, msg, usageMB); ok {
			pending = append(pending, a)
		}
	}
	if res.FrequencyTier > models.AlertNormal {
		msg := fmt.Sprintf("collector running %.1f times/s, %s tier", m.analyzer.CollectionFrequency(), res.FrequencyTier)
		if a, ok := m.tryFire(models.AlertGCFrequency, res.FrequencyTier, msg, usageMB); ok {
			pending = append(pending, a)
		}
	}

	var emergency models.Alert
	if res.MemoryTier == models.AlertEmergency {
		msg := "memory usage " + format.Bytes(usage) + " at emergency tier"
		emergency, res.Emergency = m.tryFire(emergencySignal, models.AlertEmergency, msg, usageMB)
	}

	m.mu.Lock()
	old := m.level
	m.level = res.Level
	m.mu.Unlock()

	for _, a := range pending {
		m.logAlert(a)
		m.alertRaised.Emit(a)
	}
	if old != res.Level {
		m.logger.Info("alert level changed",
			zap.Stringer("old", old),
			zap.Stringer("new", res.Level))
		m.levelChanged.Emit(models.LevelChange{Old: old, New: res.Level})
	}
	if res.Emergency {
		m.emergency.Emit(emergency)
	}

	res.Fired = pending
	return res
}

// CanFireAlert reports whether alertType is outside its cooldown. It has no
// side effects.
func (m *Manager) CanFireAlert(alertType models.AlertType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canFireLocked(alertType, m.clock.Now())
}

// TriggerAlert injects an alert detected elsewhere. The per-type cooldown
// still applies; it reports whether the alert was emitted.
func (m *Manager) TriggerAlert(alertType models.AlertType, level models.AlertLevel, message string) bool {
	a, ok := m.tryFire(alertType, level, message, format.MB(m.source.CurrentUsage()))
	if !ok {
		return false
	}
	m.logAlert(a)
	m.alertRaised.Emit(a)
	return true
}

func (m *Manager) CurrentLevel() models.AlertLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// RecentAlerts returns the most recent alerts, oldest first.
func (m *Manager) RecentAlerts() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recent.ToSlice()
}

// Reset forgets cooldowns, the current level and recent alerts.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFired = make(map[models.AlertType]time.Time)
	m.level = models.AlertNormal
	m.recent.Clear()
	m.elapsed = 0
}

func (m *Manager) tryFire(alertType models.AlertType, level models.AlertLevel, message string, memoryMB float64) (models.Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if !m.canFireLocked(alertType, now) {
		return models.Alert{}, false
	}
	m.lastFired[alertType] = now

	a := models.Alert{
		ID:              uuid.NewString(),
		Type:            alertType,
		Level:           level,
		Message:         message,
		Timestamp:       now,
		CurrentMemoryMB: memoryMB,
	}
	if alertType != emergencySignal {
		if m.recent.Count() >= recentAlertLimit {
			m.recent.TryDequeue()
		}
		m.recent.Enqueue(a)
	}
	return a, true
}

func (m *Manager) canFireLocked(alertType models.AlertType, now time.Time) bool {
	last, ok := m.lastFired[alertType]
	return !ok || now.Sub(last) >= m.th.Cooldown
}

func (m *Manager) logMissingAnalyzer() {
	m.mu.Lock()
	first := !m.analyzerWarned
	m.analyzerWarned = true
	m.mu.Unlock()

	if first {
		m.logger.Warn("collector frequency check skipped",
			zap.Error(models.ErrDependencyUnavailable),
			zap.String("dependency", "gc analyzer"))
		return
	}
	m.logger.Debug("collector frequency check skipped", zap.String("dependency", "gc analyzer"))
}

func (m *Manager) logAlert(a models.Alert) {
	fields := []zap.Field{
		zap.String("id", a.ID),
		zap.String("type", string(a.Type)),
		zap.Stringer("level", a.Level),
		zap.Float64("memory_mb", a.CurrentMemoryMB),
	}
	if a.Level >= models.AlertCritical {
		m.logger.Error(a.Message, fields...)
		return
	}
	m.logger.Warn(a.Message, fields...)
}

func memoryThreshold(th Thresholds, tier models.AlertLevel) float64 {
	switch tier {
	case models.AlertEmergency:
		return th.MemoryEmergencyMB
	case models.AlertCritical:
		return th.MemoryCriticalMB
	default:
		return th.MemoryWarningMB
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
