// Package monitor samples process memory on a fixed cadence and keeps a
// bounded history of snapshots and reported allocations.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pbnjay/memory"
	"go.uber.org/zap"

	"github.com/genc-murat/memwarden/internal/core/models"
	"github.com/genc-murat/memwarden/internal/core/ports"
	"github.com/genc-murat/memwarden/internal/event"
	"github.com/genc-murat/memwarden/internal/format"
	"github.com/genc-murat/memwarden/internal/ringqueue"
)

// RateWindow is the number of most recent snapshots used for the
// allocation-rate slope.
const RateWindow = 5

const fallbackCeiling = 1 << 30

type Config struct {
	Enabled          bool
	SnapshotInterval time.Duration
	HistorySize      int
	// MemoryCeiling is the usage that counts as pressure 1.0. Zero means
	// total system memory.
	MemoryCeiling int64
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		SnapshotInterval: time.Second,
		HistorySize:      300,
	}
}

func (c Config) Validate() error {
	if c.HistorySize < 1 {
		return models.NewConfigurationError("monitor.history_size", fmt.Sprintf("must be at least 1, got %d", c.HistorySize))
	}
	if c.SnapshotInterval <= 0 {
		return models.NewConfigurationError("monitor.snapshot_interval", "must be positive")
	}
	if c.MemoryCeiling < 0 {
		return models.NewConfigurationError("monitor.memory_ceiling", "cannot be negative")
	}
	return nil
}

type Option func(*Monitor)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(m *Monitor) {
		if clk != nil {
			m.clock = clk
		}
	}
}

type Monitor struct {
	mu          sync.RWMutex
	cfg         Config
	ceiling     int64
	sampler     ports.Sampler
	clock       clock.Clock
	logger      *zap.Logger
	history     *ringqueue.Queue[models.MemorySnapshot]
	allocations map[string]*ringqueue.Queue[models.AllocationSample]
	peak        int64
	sum         int64
	elapsed     time.Duration

	snapshotCaptured   *event.Listeners[models.MemorySnapshot]
	allocationRecorded *event.Listeners[models.AllocationSample]
	historyCleared     *event.Listeners[struct{}]
}

func New(cfg Config, sampler ports.Sampler, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sampler == nil {
		return nil, fmt.Errorf("memory sampler: %w", models.ErrDependencyUnavailable)
	}

	m := &Monitor{
		cfg:         cfg,
		sampler:     sampler,
		clock:       clock.New(),
		logger:      zap.NewNop(),
		history:     ringqueue.New[models.MemorySnapshot](cfg.HistorySize),
		allocations: make(map[string]*ringqueue.Queue[models.AllocationSample]),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "monitor"))
	m.snapshotCaptured = event.NewListeners[models.MemorySnapshot]("snapshot_captured", m.logger)
	m.allocationRecorded = event.NewListeners[models.AllocationSample]("allocation_recorded", m.logger)
	m.historyCleared = event.NewListeners[struct{}]("history_cleared", m.logger)

	m.ceiling = cfg.MemoryCeiling
	if m.ceiling == 0 {
		m.ceiling = int64(memory.TotalMemory())
		if m.ceiling <= 0 {
			m.ceiling = fallbackCeiling
		}
	}
	m.logger.Debug("memory monitor configured",
		zap.Int("history_size", cfg.HistorySize),
		zap.Duration("snapshot_interval", cfg.SnapshotInterval),
		zap.String("ceiling", format.Bytes(m.ceiling)))

	return m, nil
}

func (m *Monitor) OnSnapshotCaptured() *event.Listeners[models.MemorySnapshot] {
	return m.snapshotCaptured
}

func (m *Monitor) OnAllocationRecorded() *event.Listeners[models.AllocationSample] {
	return m.allocationRecorded
}

func (m *Monitor) OnHistoryCleared() *event.Listeners[struct{}] {
	return m.historyCleared
}

// Tick advances the sampling schedule and captures a snapshot once the
// snapshot interval has elapsed.
func (m *Monitor) Tick(delta time.Duration) {
	m.mu.Lock()
	if !m.cfg.Enabled {
		m.mu.Unlock()
		return
	}
	m.elapsed += delta
	due := m.elapsed >= m.cfg.SnapshotInterval
	if due {
		m.elapsed = 0
	}
	m.mu.Unlock()

	if due {
		m.CaptureSnapshot()
	}
}

// CaptureSnapshot samples memory immediately, regardless of the schedule.
func (m *Monitor) CaptureSnapshot() models.MemorySnapshot {
	snap := m.sampler.Sample()
	if snap.Timestamp.IsZero() {
		snap.Timestamp = m.clock.Now()
	}

	m.mu.Lock()
	if m.history.Count() >= m.cfg.HistorySize {
		if evicted, ok := m.history.TryDequeue(); ok {
			m.sum -= evicted.TotalBytes
		}
	}
	m.history.Enqueue(snap)
	m.sum += snap.TotalBytes
	if snap.TotalBytes > m.peak {
		m.peak = snap.TotalBytes
	}
	m.mu.Unlock()

	m.snapshotCaptured.Emit(snap)
	return snap
}

// RecordAllocation appends to the category's bounded allocation history.
func (m *Monitor) RecordAllocation(category string, bytes int64) {
	sample := models.AllocationSample{
		Category:  category,
		Bytes:     bytes,
		Timestamp: m.clock.Now(),
	}

	m.mu.Lock()
	q, ok := m.allocations[category]
	if !ok {
		q = ringqueue.New[models.AllocationSample](min(m.cfg.HistorySize, 64))
		m.allocations[category] = q
	}
	if q.Count() >= m.cfg.HistorySize {
		q.TryDequeue()
	}
	q.Enqueue(sample)
	m.mu.Unlock()

	m.allocationRecorded.Emit(sample)
}

// GetHistory returns a copy of the retained snapshots, oldest first.
func (m *Monitor) GetHistory() []models.MemorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.ToSlice()
}

// GetHistoryRange returns snapshots with start <= Timestamp <= end.
func (m *Monitor) GetHistoryRange(start, end time.Time) []models.MemorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.MemorySnapshot
	for s := range m.history.All() {
		if !s.Timestamp.Before(start) && !s.Timestamp.After(end) {
			out = append(out, s)
		}
	}
	return out
}

func (m *Monitor) GetAllocationHistory(category string) []models.AllocationSample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.allocations[category]
	if !ok {
		return nil
	}
	return q.ToSlice()
}

// AllocationCategories lists categories that have recorded allocations.
func (m *Monitor) AllocationCategories() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.allocations))
	for k := range m.allocations {
		out = append(out, k)
	}
	return out
}

func (m *Monitor) LatestSnapshot() (models.MemorySnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.At(m.history.Count() - 1)
}

func (m *Monitor) CurrentUsage() int64 {
	s, ok := m.LatestSnapshot()
	if !ok {
		return 0
	}
	return s.TotalBytes
}

func (m *Monitor) PeakUsage() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peak
}

// AverageUsage is the mean TotalBytes over the retained history.
func (m *Monitor) AverageUsage() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.history.Count() == 0 {
		return 0
	}
	return m.sum / int64(m.history.Count())
}

// Pressure is current usage relative to the ceiling, clamped to [0,1].
func (m *Monitor) Pressure() float64 {
	current := m.CurrentUsage()
	m.mu.RLock()
	ceiling := m.ceiling
	m.mu.RUnlock()

	p := float64(current) / float64(ceiling)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func (m *Monitor) Ceiling() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ceiling
}

// AllocationRate is the growth in bytes per second between the oldest and
// newest of the last RateWindow snapshots.
func (m *Monitor) AllocationRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.history.Count()
	if n < 2 {
		return 0
	}
	first := max(0, n-RateWindow)
	oldest, _ := m.history.At(first)
	newest, _ := m.history.At(n - 1)
	return rate(oldest, newest)
}

// ClearHistory drops all snapshots, allocation records and the peak.
func (m *Monitor) ClearHistory() {
	m.mu.Lock()
	m.history.Clear()
	m.allocations = make(map[string]*ringqueue.Queue[models.AllocationSample])
	m.peak = 0
	m.sum = 0
	m.elapsed = 0
	m.mu.Unlock()

	m.logger.Info("memory history cleared")
	m.historyCleared.Emit(struct{}{})
}

func (m *Monitor) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.cfg.Enabled = enabled
	m.elapsed = 0
	m.mu.Unlock()
}

func (m *Monitor) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Enabled
}

func (m *Monitor) HistorySize() int {
	return m.cfg.HistorySize
}
