// Package coordinator ties monitoring, collection policy and alerting into a
// single tick-driven control loop.
package coordinator

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/genc-murat/memwarden/internal/alert"
	"github.com/genc-murat/memwarden/internal/core/models"
	"github.com/genc-murat/memwarden/internal/core/ports"
	"github.com/genc-murat/memwarden/internal/event"
	"github.com/genc-murat/memwarden/internal/format"
	"github.com/genc-murat/memwarden/internal/gcstats"
	"github.com/genc-murat/memwarden/internal/memory"
	"github.com/genc-murat/memwarden/internal/metrics"
	"github.com/genc-murat/memwarden/internal/monitor"
	"github.com/genc-murat/memwarden/internal/strategy"
)

var ErrShutdown = errors.New("coordinator is shut down")

type Config struct {
	Enabled                  bool          `yaml:"enabled"`
	EvaluationInterval       time.Duration `yaml:"evaluation_interval"`
	MinCollectionInterval    time.Duration `yaml:"min_collection_interval"`
	CollectOnIdle            bool          `yaml:"collect_on_idle"`
	CollectOnSceneTransition bool          `yaml:"collect_on_scene_transition"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		EvaluationInterval:       500 * time.Millisecond,
		MinCollectionInterval:    2 * time.Second,
		CollectOnIdle:            true,
		CollectOnSceneTransition: true,
	}
}

func (c Config) Validate() error {
	if c.EvaluationInterval <= 0 {
		return models.NewConfigurationError("coordinator.evaluation_interval", "must be positive")
	}
	if c.MinCollectionInterval < 0 {
		return models.NewConfigurationError("coordinator.min_collection_interval", "cannot be negative")
	}
	return nil
}

// Dependencies are the collaborators a Coordinator drives. Analyzer, Metrics
// and Buffers are optional.
type Dependencies struct {
	Monitor   *monitor.Monitor
	Policy    *strategy.Policy
	Alerts    *alert.Manager
	Collector ports.Collector
	Analyzer  *gcstats.Analyzer
	Metrics   *metrics.Metrics
	Buffers   *memory.BufferPool
}

type Option func(*Coordinator)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		if clk != nil {
			c.clock = clk
		}
	}
}

type counters struct {
	total     int64
	auto      int64
	forced    int64
	failed    int64
	freed     int64
	durations time.Duration
	last      time.Time
}

type subscription struct {
	remove func()
}

type Coordinator struct {
	mu  sync.Mutex
	cfg Config

	monitor   *monitor.Monitor
	policy    *strategy.Policy
	alerts    *alert.Manager
	collector ports.Collector
	analyzer  *gcstats.Analyzer
	metrics   *metrics.Metrics
	buffers   *memory.BufferPool

	clock     clock.Clock
	logger    *zap.Logger
	heapBytes func() int64

	started bool
	stopped bool
	enabled bool

	idle              bool
	inTransition      bool
	pendingIdle       bool
	pendingTransition bool
	elapsed           time.Duration

	stats         counters
	pools         []ports.Clearer
	subscriptions []subscription

	gcCompleted      *event.Listeners[models.GCResult]
	idleStateChanged *event.Listeners[bool]
}

func New(cfg Config, deps Dependencies, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Monitor == nil:
		return nil, fmt.Errorf("monitor: %w", models.ErrDependencyUnavailable)
	case deps.Policy == nil:
		return nil, fmt.Errorf("policy: %w", models.ErrDependencyUnavailable)
	case deps.Alerts == nil:
		return nil, fmt.Errorf("alert manager: %w", models.ErrDependencyUnavailable)
	case deps.Collector == nil:
		return nil, fmt.Errorf("collector: %w", models.ErrDependencyUnavailable)
	}

	c := &Coordinator{
		cfg:       cfg,
		monitor:   deps.Monitor,
		policy:    deps.Policy,
		alerts:    deps.Alerts,
		collector: deps.Collector,
		analyzer:  deps.Analyzer,
		metrics:   deps.Metrics,
		buffers:   deps.Buffers,
		clock:     clock.New(),
		logger:    zap.NewNop(),
		heapBytes: readHeapBytes,
		enabled:   cfg.Enabled,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.buffers == nil {
		bp, err := memory.NewBufferPool(0)
		if err != nil {
			return nil, err
		}
		c.buffers = bp
	}
	c.logger = c.logger.With(zap.String("component", "coordinator"))
	c.gcCompleted = event.NewListeners[models.GCResult]("gc_completed", c.logger)
	c.idleStateChanged = event.NewListeners[bool]("idle_state_changed", c.logger)
	return c, nil
}

func (c *Coordinator) OnGCCompleted() *event.Listeners[models.GCResult] {
	return c.gcCompleted
}

// OnIdleStateChanged receives the new idle state.
func (c *Coordinator) OnIdleStateChanged() *event.Listeners[bool] {
	return c.idleStateChanged
}

func (c *Coordinator) Monitor() *monitor.Monitor   { return c.monitor }
func (c *Coordinator) Policy() *strategy.Policy    { return c.policy }
func (c *Coordinator) Alerts() *alert.Manager      { return c.alerts }
func (c *Coordinator) Buffers() *memory.BufferPool { return c.buffers }

// Start subscribes to component events and enables ticking. Calling Start on
// a running coordinator is a no-op.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrShutdown
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	c.subscribe()
	if c.metrics != nil {
		c.metrics.SetStrategy(c.policy.Strategy())
	}
	c.logger.Info("coordinator started",
		zap.Stringer("strategy", c.policy.Strategy()),
		zap.Bool("enabled", c.Enabled()),
		zap.Duration("evaluation_interval", c.cfg.EvaluationInterval))
	return nil
}

// Shutdown stops ticking and detaches from component events. It cannot be
// undone.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	subs := c.subscriptions
	c.subscriptions = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.remove()
	}
	c.logger.Info("coordinator stopped")
}

func (c *Coordinator) subscribe() {
	var subs []subscription

	id := c.alerts.OnEmergency().Add(c.handleEmergency)
	subs = append(subs, subscription{remove: func() { c.alerts.OnEmergency().Remove(id) }})

	if c.metrics != nil {
		m := c.metrics
		raised := c.alerts.OnAlertRaised().Add(m.RecordAlert)
		level := c.alerts.OnLevelChanged().Add(func(ch models.LevelChange) { m.SetAlertLevel(ch.New) })
		strat := c.policy.OnStrategyChanged().Add(func(ch strategy.StrategyChange) { m.SetStrategy(ch.New) })
		subs = append(subs,
			subscription{remove: func() { c.alerts.OnAlertRaised().Remove(raised) }},
			subscription{remove: func() { c.alerts.OnLevelChanged().Remove(level) }},
			subscription{remove: func() { c.policy.OnStrategyChanged().Remove(strat) }},
		)
	}

	c.mu.Lock()
	c.subscriptions = subs
	c.mu.Unlock()
}

// Tick advances the control loop. Monitoring, policy evaluation and alerting
// run in that order so alerts see the snapshot the policy used.
func (c *Coordinator) Tick(delta time.Duration) {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.elapsed += delta
	due := c.elapsed >= c.cfg.EvaluationInterval
	if due {
		c.elapsed = 0
	}
	c.mu.Unlock()

	c.monitor.Tick(delta)
	if c.analyzer != nil {
		c.analyzer.Tick(delta)
	}
	if due {
		c.evaluate()
	}
	c.alerts.Tick(delta)
}

func (c *Coordinator) evaluate() {
	pressure := c.monitor.Pressure()
	rate := c.monitor.AllocationRate()
	current := c.monitor.CurrentUsage()

	if c.metrics != nil {
		if snap, ok := c.monitor.LatestSnapshot(); ok {
			c.metrics.ObserveSnapshot(snap, pressure, rate)
		}
		bs := c.buffers.GetStats()
		c.metrics.ObserveBufferPool(bs.AllocCount, bs.FreeCount, bs.Rejected, bs.PooledBytes)
	}

	c.mu.Lock()
	enabled := c.enabled
	idle, inTransition := c.idle, c.inTransition
	pendingIdle, pendingTransition := c.pendingIdle, c.pendingTransition
	throttled := !c.stats.last.IsZero() && c.clock.Since(c.stats.last) < c.cfg.MinCollectionInterval
	c.mu.Unlock()

	if !enabled || c.policy.Strategy() == models.StrategyDisabled {
		return
	}

	th := c.policy.Thresholds()
	ctx := models.GCContext{
		Pressure:        pressure,
		AllocationRate:  rate,
		IsIdle:          idle,
		InTransition:    inTransition,
		UnderPressure:   pressure > th.PressureThreshold,
		HighAllocations: rate > th.AllocationRateThreshold,
	}

	if pendingTransition || pendingIdle {
		if throttled {
			return
		}
		reason := "idle period"
		ctx.TriggerType = models.TriggerIdle
		if pendingTransition {
			reason = "scene transition"
			ctx.TriggerType = models.TriggerSceneTransition
		}
		// one thorough pass satisfies both pending opportunities
		c.mu.Lock()
		c.pendingTransition = false
		c.pendingIdle = false
		c.mu.Unlock()
		c.collect(ctx.TriggerType, c.policy.GetExecutionMode(ctx), reason, false)
		return
	}

	decision := c.policy.Evaluate(pressure, rate, current)
	if !decision.ShouldCollect {
		return
	}
	if throttled {
		c.logger.Debug("collection deferred by minimum interval",
			zap.String("reason", decision.Reason),
			zap.Duration("min_interval", c.cfg.MinCollectionInterval))
		return
	}

	ctx.TriggerType = models.TriggerMemoryPressure
	if !ctx.UnderPressure && ctx.HighAllocations {
		ctx.TriggerType = models.TriggerAllocationRate
	}
	c.logger.Debug("policy requested collection",
		zap.String("reason", decision.Reason),
		zap.Stringer("priority", decision.Priority))
	c.collect(ctx.TriggerType, c.policy.GetExecutionMode(ctx), decision.Reason, false)
}

// ForceCollect bypasses the policy. waitForFinalizers selects a thorough
// pass; otherwise a single fast collection is requested. Failures are
// reported in the result.
func (c *Coordinator) ForceCollect(waitForFinalizers bool) models.GCResult {
	mode := models.ModeFast
	if waitForFinalizers {
		mode = models.ModeThorough
	}
	return c.collect(models.TriggerManual, mode, "forced collection", true)
}

// ForceAlertCheck runs every alert check immediately.
func (c *Coordinator) ForceAlertCheck() alert.CheckResult {
	return c.alerts.Check()
}

func (c *Coordinator) collect(trigger models.TriggerType, mode models.ExecutionMode, reason string, forced bool) models.GCResult {
	before := c.heapBytes()
	start := c.clock.Now()
	err := c.runCollector(mode)
	after := c.heapBytes()

	result := models.GCResult{
		Executed:    err == nil,
		Duration:    c.clock.Since(start),
		MemoryFreed: max(before-after, 0),
		Reason:      reason,
		Mode:        mode,
		Trigger:     trigger,
		Timestamp:   start,
	}
	if err != nil {
		result.MemoryFreed = 0
		result.Reason = reason + ": " + err.Error()
	}

	c.mu.Lock()
	if result.Executed {
		c.stats.total++
		if forced {
			c.stats.forced++
		} else {
			c.stats.auto++
		}
		c.stats.freed += result.MemoryFreed
		c.stats.durations += result.Duration
		c.stats.last = start
	} else {
		c.stats.failed++
	}
	c.mu.Unlock()

	if c.analyzer != nil {
		c.analyzer.RecordCollection(result)
	}
	if c.metrics != nil {
		c.metrics.RecordCollection(result)
	}

	fields := []zap.Field{
		zap.Stringer("mode", mode),
		zap.Stringer("trigger", trigger),
		zap.Duration("duration", result.Duration),
		zap.String("freed", format.Bytes(result.MemoryFreed)),
		zap.String("reason", result.Reason),
	}
	if result.Executed {
		c.logger.Info("collection completed", fields...)
	} else {
		c.logger.Error("collection failed", fields...)
	}

	c.gcCompleted.Emit(result)
	return result
}

func (c *Coordinator) runCollector(mode models.ExecutionMode) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collector panicked: %v", r)
		}
	}()
	return c.collector.Collect(mode)
}

// handleEmergency releases every registered pool before a thorough pass.
func (c *Coordinator) handleEmergency(a models.Alert) {
	c.mu.Lock()
	pools := append([]ports.Clearer(nil), c.pools...)
	enabled := c.enabled
	c.mu.Unlock()

	c.logger.Error("emergency memory condition",
		zap.String("alert_id", a.ID),
		zap.Float64("memory_mb", a.CurrentMemoryMB),
		zap.Int("registered_pools", len(pools)))

	c.buffers.Clear()
	for _, p := range pools {
		p.Clear()
	}

	if !enabled || c.policy.Strategy() == models.StrategyDisabled {
		return
	}
	c.collect(models.TriggerMemoryPressure, models.ModeThorough, "emergency memory condition", false)
}

// RegisterPool adds a pool that is emptied on an emergency signal.
func (c *Coordinator) RegisterPool(p ports.Clearer) {
	if p == nil {
		return
	}
	c.mu.Lock()
	c.pools = append(c.pools, p)
	c.mu.Unlock()
}

func (c *Coordinator) NotifyIdle() {
	c.setIdle(true)
}

func (c *Coordinator) NotifyActive() {
	c.setIdle(false)
}

func (c *Coordinator) setIdle(idle bool) {
	c.mu.Lock()
	if c.idle == idle {
		c.mu.Unlock()
		return
	}
	c.idle = idle
	c.pendingIdle = idle && c.cfg.CollectOnIdle
	c.mu.Unlock()

	c.logger.Debug("idle state changed", zap.Bool("idle", idle))
	c.idleStateChanged.Emit(idle)
}

func (c *Coordinator) NotifySceneTransitionStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inTransition {
		return
	}
	c.inTransition = true
	c.pendingTransition = c.cfg.CollectOnSceneTransition
}

func (c *Coordinator) NotifySceneTransitionEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inTransition = false
	c.pendingTransition = false
}

func (c *Coordinator) SetStrategy(s models.Strategy) {
	c.policy.SetStrategy(s)
}

// SetEnabled toggles automatic collections. Monitoring and alerting keep
// running while disabled.
func (c *Coordinator) SetEnabled(enabled bool) {
	c.mu.Lock()
	changed := c.enabled != enabled
	c.enabled = enabled
	c.mu.Unlock()
	if changed {
		c.logger.Info("automatic collection toggled", zap.Bool("enabled", enabled))
	}
}

func (c *Coordinator) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Coordinator) GetMemoryHistory() []models.MemorySnapshot {
	return c.monitor.GetHistory()
}

func (c *Coordinator) GetPressureLevel() models.PressureLevel {
	return models.PressureLevelOf(c.monitor.Pressure())
}

func (c *Coordinator) GetCollectorPerformanceImpact() models.ImpactLevel {
	if c.analyzer == nil {
		return models.ImpactNone
	}
	return c.analyzer.PerformanceImpact()
}

func (c *Coordinator) GetStats() models.Stats {
	pressure := c.monitor.Pressure()
	s := models.Stats{
		Strategy:          c.policy.Strategy(),
		CurrentMemory:     c.monitor.CurrentUsage(),
		PeakMemory:        c.monitor.PeakUsage(),
		AverageMemory:     c.monitor.AverageUsage(),
		Pressure:          pressure,
		PressureLevel:     models.PressureLevelOf(pressure),
		AllocationRate:    c.monitor.AllocationRate(),
		AlertLevel:        c.alerts.CurrentLevel(),
		CollectorImpact:   c.GetCollectorPerformanceImpact(),
		SnapshotsRetained: len(c.monitor.GetHistory()),
	}
	if c.analyzer != nil {
		s.GCFrequency = c.analyzer.CollectionFrequency()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s.Enabled = c.enabled
	s.Idle = c.idle
	s.InTransition = c.inTransition
	s.TotalCollections = c.stats.total
	s.AutoCollections = c.stats.auto
	s.ForcedCollections = c.stats.forced
	s.FailedCollections = c.stats.failed
	s.TotalFreedBytes = c.stats.freed
	s.LastCollection = c.stats.last
	if c.stats.total > 0 {
		s.AverageDuration = c.stats.durations / time.Duration(c.stats.total)
	}
	return s
}

// Info flattens GetStats into display strings.
func (c *Coordinator) Info() map[string]string {
	s := c.GetStats()
	bs := c.buffers.GetStats()
	info := map[string]string{
		"enabled":             strconv.FormatBool(s.Enabled),
		"strategy":            s.Strategy.String(),
		"idle":                strconv.FormatBool(s.Idle),
		"in_transition":       strconv.FormatBool(s.InTransition),
		"current_memory":      format.Bytes(s.CurrentMemory),
		"peak_memory":         format.Bytes(s.PeakMemory),
		"average_memory":      format.Bytes(s.AverageMemory),
		"memory_ceiling":      format.Bytes(c.monitor.Ceiling()),
		"pressure":            format.Percent(s.Pressure),
		"pressure_level":      s.PressureLevel.String(),
		"allocation_rate":     format.Bytes(int64(s.AllocationRate)) + "/s",
		"total_collections":   strconv.FormatInt(s.TotalCollections, 10),
		"auto_collections":    strconv.FormatInt(s.AutoCollections, 10),
		"forced_collections":  strconv.FormatInt(s.ForcedCollections, 10),
		"failed_collections":  strconv.FormatInt(s.FailedCollections, 10),
		"freed_total":         format.Bytes(s.TotalFreedBytes),
		"avg_collection_time": s.AverageDuration.String(),
		"alert_level":         s.AlertLevel.String(),
		"collector_impact":    s.CollectorImpact.String(),
		"gc_frequency":        strconv.FormatFloat(s.GCFrequency, 'f', 2, 64),
		"snapshots_retained":  strconv.Itoa(s.SnapshotsRetained),
		"buffer_pool_pooled":  format.Bytes(bs.PooledBytes),
	}
	if !s.LastCollection.IsZero() {
		info["last_collection"] = s.LastCollection.Format(time.RFC3339)
	}
	for _, category := range c.monitor.AllocationCategories() {
		var total int64
		for _, sample := range c.monitor.GetAllocationHistory(category) {
			total += sample.Bytes
		}
		info["allocated_"+category] = format.Bytes(total)
	}
	return info
}

func readHeapBytes() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}
