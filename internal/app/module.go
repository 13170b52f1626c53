// Package app is the composition root: it wires every component with fx and
// owns the process lifecycle.
package app

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/genc-murat/memwarden/internal/alert"
	"github.com/genc-murat/memwarden/internal/collector"
	"github.com/genc-murat/memwarden/internal/config"
	"github.com/genc-murat/memwarden/internal/coordinator"
	"github.com/genc-murat/memwarden/internal/core/models"
	"github.com/genc-murat/memwarden/internal/core/ports"
	"github.com/genc-murat/memwarden/internal/gcstats"
	"github.com/genc-murat/memwarden/internal/logging"
	"github.com/genc-murat/memwarden/internal/memory"
	"github.com/genc-murat/memwarden/internal/metrics"
	"github.com/genc-murat/memwarden/internal/monitor"
	"github.com/genc-murat/memwarden/internal/pool"
	"github.com/genc-murat/memwarden/internal/strategy"
)

// Module provides every component. Lifecycle hooks are registered by
// Lifecycle, kept separate so one-shot commands can build the graph without
// running it.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("memwarden",
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newClock,
			newSampler,
			newMonitor,
			newPolicy,
			newAnalyzer,
			newAlertManager,
			newCollector,
			metrics.NewMetrics,
			newBufferPool,
			newCoordinator,
			newWorkload,
			newHost,
			NewServer,
			newInstanceLock,
		),
	)
}

// Lifecycle starts the coordinator, HTTP listeners and frame loop.
func Lifecycle() fx.Option {
	return fx.Invoke(registerLifecycle)
}

// FxLogger routes fx's own events through zap.
func FxLogger() fx.Option {
	return fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger.Named("fx")}
	})
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("env", cfg.Environment)), nil
}

func newClock() clock.Clock {
	return clock.New()
}

func newSampler(clk clock.Clock) ports.Sampler {
	return monitor.NewRuntimeSampler(clk, nil)
}

func newMonitor(cfg *config.Config, sampler ports.Sampler, clk clock.Clock, logger *zap.Logger) (*monitor.Monitor, error) {
	ceiling, err := cfg.Monitor.Ceiling()
	if err != nil {
		return nil, err
	}
	return monitor.New(monitor.Config{
		Enabled:          cfg.Monitor.Enabled,
		SnapshotInterval: cfg.Monitor.SnapshotInterval,
		HistorySize:      cfg.Monitor.HistorySize,
		MemoryCeiling:    ceiling,
	}, sampler, monitor.WithClock(clk), monitor.WithLogger(logger))
}

func newPolicy(cfg *config.Config, logger *zap.Logger) (*strategy.Policy, error) {
	initial, err := models.ParseStrategy(cfg.Strategy.Active)
	if err != nil {
		return nil, err
	}
	force, err := cfg.Strategy.ForceThresholdBytes()
	if err != nil {
		return nil, err
	}
	rate, err := cfg.Strategy.AllocationRateBytes()
	if err != nil {
		return nil, err
	}

	th := strategy.DefaultThresholds()
	th.PressureThreshold = cfg.Strategy.PressureThreshold
	th.AggressiveThreshold = cfg.Strategy.AggressiveThreshold
	th.ConservativeThreshold = cfg.Strategy.ConservativeThreshold
	th.ForceThresholdBytes = force
	th.AllocationRateThreshold = rate
	if cfg.Strategy.HighPriorityPressure > 0 {
		th.HighPriorityPressure = cfg.Strategy.HighPriorityPressure
	}
	if cfg.Strategy.CriticalPriorityPressure > 0 {
		th.CriticalPriorityPressure = cfg.Strategy.CriticalPriorityPressure
	}
	return strategy.New(th, initial, strategy.WithLogger(logger))
}

func newAnalyzer(cfg *config.Config, clk clock.Clock) *gcstats.Analyzer {
	return gcstats.New(gcstats.Config{
		Window:         cfg.Analyzer.Window,
		SampleInterval: cfg.Analyzer.SampleInterval,
	}, gcstats.ReadRuntime, clk)
}

func newAlertManager(cfg *config.Config, mon *monitor.Monitor, analyzer *gcstats.Analyzer, clk clock.Clock, logger *zap.Logger) (*alert.Manager, error) {
	a := cfg.Alerts
	return alert.New(alert.Thresholds{
		MemoryWarningMB:        a.MemoryWarningMB,
		MemoryCriticalMB:       a.MemoryCriticalMB,
		MemoryEmergencyMB:      a.MemoryEmergencyMB,
		AllocationWarningMBps:  a.AllocationWarningMBps,
		AllocationCriticalMBps: a.AllocationCriticalMBps,
		FrequencyWarning:       a.FrequencyWarning,
		FrequencyCritical:      a.FrequencyCritical,
		Cooldown:               a.Cooldown,
		CheckInterval:          a.CheckInterval,
	}, mon, analyzer, alert.WithClock(clk), alert.WithLogger(logger))
}

func newCollector(cfg *config.Config, logger *zap.Logger) (*collector.RuntimeCollector, error) {
	return collector.New(collector.Config{
		SettleDelay:      cfg.Coordinator.SettleDelay,
		FinalizerTimeout: cfg.Coordinator.FinalizerTimeout,
		ReleaseToOS:      cfg.Coordinator.ReleaseToOS,
	}, collector.WithLogger(logger))
}

func newBufferPool(cfg *config.Config) (*memory.BufferPool, error) {
	return memory.NewBufferPool(cfg.Pool.BuffersPerClass)
}

type coordinatorParams struct {
	fx.In

	Config    *config.Config
	Monitor   *monitor.Monitor
	Policy    *strategy.Policy
	Alerts    *alert.Manager
	Analyzer  *gcstats.Analyzer
	Collector *collector.RuntimeCollector
	Metrics   *metrics.Metrics
	Buffers   *memory.BufferPool
	Clock     clock.Clock
	Logger    *zap.Logger
}

func newCoordinator(p coordinatorParams) (*coordinator.Coordinator, error) {
	c := p.Config.Coordinator
	return coordinator.New(coordinator.Config{
		Enabled:                  c.Enabled,
		EvaluationInterval:       c.EvaluationInterval,
		MinCollectionInterval:    c.MinCollectionInterval,
		CollectOnIdle:            c.CollectOnIdle,
		CollectOnSceneTransition: c.CollectOnSceneTransition,
	}, coordinator.Dependencies{
		Monitor:   p.Monitor,
		Policy:    p.Policy,
		Alerts:    p.Alerts,
		Collector: p.Collector,
		Analyzer:  p.Analyzer,
		Metrics:   p.Metrics,
		Buffers:   p.Buffers,
	}, coordinator.WithClock(p.Clock), coordinator.WithLogger(p.Logger))
}

// newWorkload returns nil unless simulation is enabled.
func newWorkload(cfg *config.Config, coord *coordinator.Coordinator) (*Workload, error) {
	if !cfg.Runtime.Simulate {
		return nil, nil
	}
	return NewWorkload(coord, pool.Config{
		InitialSize: cfg.Pool.InitialSize,
		MaxSize:     cfg.Pool.MaxSize,
	}, uint64(cfg.Runtime.TickRate))
}

func newHost(cfg *config.Config, coord *coordinator.Coordinator, workload *Workload, clk clock.Clock, logger *zap.Logger) *Host {
	return NewHost(coord, workload, clk, cfg.Runtime.TickRate, logger)
}

func newInstanceLock(cfg *config.Config) *InstanceLock {
	return NewInstanceLock(cfg.Runtime.LockFile)
}

type lifecycleParams struct {
	fx.In

	Lifecycle   fx.Lifecycle
	Lock        *InstanceLock
	Coordinator *coordinator.Coordinator
	Server      *Server
	Host        *Host
	Logger      *zap.Logger
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return p.Lock.Acquire()
		},
		OnStop: func(_ context.Context) error {
			return p.Lock.Release()
		},
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return p.Coordinator.Start()
		},
		OnStop: func(_ context.Context) error {
			p.Coordinator.Shutdown()
			return nil
		},
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return p.Server.Start()
		},
		OnStop: func(ctx context.Context) error {
			return p.Server.Shutdown(ctx)
		},
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			p.Host.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			p.Host.Stop()
			_ = p.Logger.Sync()
			return nil
		},
	})
}
