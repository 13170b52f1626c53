package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/genc-murat/memwarden/internal/core/models"
)

const namespace = "memwarden"

// Metrics keeps collection counters in process and mirrors everything onto a
// private Prometheus registry.
type Metrics struct {
	startTime        time.Time
	totalCollections int64
	failedCollection int64
	freedBytes       int64
	modeStats        map[string]*ModeStats
	mu               sync.RWMutex

	registry        *prometheus.Registry
	collections     *prometheus.CounterVec
	collectDuration *prometheus.HistogramVec
	memoryFreed     prometheus.Counter
	memoryBytes     *prometheus.GaugeVec
	pressure        prometheus.Gauge
	allocationRate  prometheus.Gauge
	alerts          *prometheus.CounterVec
	alertLevel      prometheus.Gauge
	strategy        *prometheus.GaugeVec
	bufferPool      *prometheus.GaugeVec
}

// ModeStats aggregates collections for one execution mode.
type ModeStats struct {
	Calls        int64
	Failed       int64
	TotalTime    int64
	FreedBytes   int64
	LastExecTime time.Time
}

func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		modeStats: make(map[string]*ModeStats),
		registry:  prometheus.NewRegistry(),
	}

	m.collections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gc",
		Name:      "collections_total",
		Help:      "Collection requests by mode, trigger and result",
	}, []string{"mode", "trigger", "result"})

	m.collectDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gc",
		Name:      "collection_duration_seconds",
		Help:      "Wall time spent in requested collections",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"mode"})

	m.memoryFreed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gc",
		Name:      "freed_bytes_total",
		Help:      "Bytes reclaimed by requested collections",
	})

	m.memoryBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "bytes",
		Help:      "Latest memory snapshot by category",
	}, []string{"category"})

	m.pressure = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "pressure_ratio",
		Help:      "Current usage divided by the memory ceiling",
	})

	m.allocationRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "memory",
		Name:      "allocation_rate_bytes_per_second",
		Help:      "Growth rate over the recent snapshot window",
	})

	m.alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "raised_total",
		Help:      "Alerts emitted by type and level",
	}, []string{"type", "level"})

	m.alertLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "alert",
		Name:      "level",
		Help:      "Overall alert level (0=normal, 3=emergency)",
	})

	m.strategy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gc",
		Name:      "strategy_active",
		Help:      "Active collection strategy (1=active)",
	}, []string{"strategy"})

	m.bufferPool = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "buffer_pool",
		Name:      "value",
		Help:      "Buffer pool counters",
	}, []string{"stat"})

	m.registry.MustRegister(
		m.collections,
		m.collectDuration,
		m.memoryFreed,
		m.memoryBytes,
		m.pressure,
		m.allocationRate,
		m.alerts,
		m.alertLevel,
		m.strategy,
		m.bufferPool,
		collectors.NewGoCollector(),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordCollection(result models.GCResult) {
	mode := result.Mode.String()
	status := "executed"
	if !result.Executed {
		status = "failed"
		atomic.AddInt64(&m.failedCollection, 1)
	} else {
		atomic.AddInt64(&m.totalCollections, 1)
		atomic.AddInt64(&m.freedBytes, result.MemoryFreed)
	}

	m.mu.Lock()
	stats, exists := m.modeStats[mode]
	if !exists {
		stats = &ModeStats{}
		m.modeStats[mode] = stats
	}
	stats.Calls++
	if !result.Executed {
		stats.Failed++
	}
	stats.TotalTime += result.Duration.Nanoseconds()
	stats.FreedBytes += result.MemoryFreed
	stats.LastExecTime = result.Timestamp
	m.mu.Unlock()

	m.collections.WithLabelValues(mode, result.Trigger.String(), status).Inc()
	if result.Executed {
		m.collectDuration.WithLabelValues(mode).Observe(result.Duration.Seconds())
		if result.MemoryFreed > 0 {
			m.memoryFreed.Add(float64(result.MemoryFreed))
		}
	}
}

func (m *Metrics) ObserveSnapshot(s models.MemorySnapshot, pressure, allocationRate float64) {
	m.memoryBytes.WithLabelValues("total").Set(float64(s.TotalBytes))
	m.memoryBytes.WithLabelValues("managed").Set(float64(s.ManagedBytes))
	m.memoryBytes.WithLabelValues("system").Set(float64(s.SystemBytes))
	m.memoryBytes.WithLabelValues("graphics").Set(float64(s.GraphicsBytes))
	m.memoryBytes.WithLabelValues("other").Set(float64(s.OtherBytes))
	m.pressure.Set(pressure)
	m.allocationRate.Set(allocationRate)
}

func (m *Metrics) RecordAlert(a models.Alert) {
	m.alerts.WithLabelValues(string(a.Type), a.Level.String()).Inc()
}

func (m *Metrics) SetAlertLevel(level models.AlertLevel) {
	m.alertLevel.Set(float64(level))
}

func (m *Metrics) SetStrategy(active models.Strategy) {
	for _, s := range []models.Strategy{
		models.StrategyDisabled,
		models.StrategyConservative,
		models.StrategyAdaptive,
		models.StrategyAggressive,
	} {
		v := 0.0
		if s == active {
			v = 1
		}
		m.strategy.WithLabelValues(s.String()).Set(v)
	}
}

// ObserveBufferPool publishes the buffer pool counters.
func (m *Metrics) ObserveBufferPool(allocs, frees, rejected, pooledBytes int64) {
	m.bufferPool.WithLabelValues("allocs").Set(float64(allocs))
	m.bufferPool.WithLabelValues("frees").Set(float64(frees))
	m.bufferPool.WithLabelValues("rejected").Set(float64(rejected))
	m.bufferPool.WithLabelValues("pooled_bytes").Set(float64(pooledBytes))
}

func (m *Metrics) GetCollectionCount() int64 {
	return atomic.LoadInt64(&m.totalCollections)
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]interface{})
	stats["uptime_in_seconds"] = int(time.Since(m.startTime).Seconds())
	stats["total_collections"] = m.GetCollectionCount()
	stats["failed_collections"] = atomic.LoadInt64(&m.failedCollection)
	stats["freed_bytes"] = atomic.LoadInt64(&m.freedBytes)

	modeStats := make(map[string]map[string]interface{})
	for mode, stat := range m.modeStats {
		modeStats[mode] = map[string]interface{}{
			"calls":          stat.Calls,
			"failed":         stat.Failed,
			"total_time_us":  stat.TotalTime / 1000,
			"avg_time_us":    stat.TotalTime / stat.Calls / 1000,
			"freed_bytes":    stat.FreedBytes,
			"last_exec_time": stat.LastExecTime,
		}
	}
	stats["modestats"] = modeStats

	return stats
}
