package app

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/genc-murat/memwarden/internal/config"
	"github.com/genc-murat/memwarden/internal/coordinator"
	"github.com/genc-murat/memwarden/internal/metrics"
	"github.com/genc-murat/memwarden/internal/pool"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Output = "stderr"
	cfg.Logging.Level = "error"
	cfg.Runtime.LockFile = filepath.Join(t.TempDir(), "memwarden.lock")
	cfg.Runtime.TickRate = 5 * time.Millisecond
	cfg.Monitor.SnapshotInterval = 10 * time.Millisecond
	cfg.Monitor.MemoryCeiling = "4GiB"
	return cfg
}

func TestModuleStartsAndStops(t *testing.T) {
	cfg := testConfig(t)
	cfg.Runtime.Simulate = true

	var (
		coord *coordinator.Coordinator
		host  *Host
	)
	app := fxtest.New(t, fx.NopLogger, Module(cfg), Lifecycle(), fx.Populate(&coord, &host))
	app.RequireStart()

	assert.Eventually(t, func() bool {
		return len(coord.GetMemoryHistory()) > 0 && host.Frames() > 5
	}, 5*time.Second, 10*time.Millisecond)

	app.RequireStop()
	frames := host.Frames()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frames, host.Frames())
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg := testConfig(t)

	first := fxtest.New(t, fx.NopLogger, Module(cfg), Lifecycle())
	first.RequireStart()
	defer first.RequireStop()

	held, err := NewInstanceLock(cfg.Runtime.LockFile).Held()
	require.NoError(t, err)
	assert.True(t, held)

	second := fx.New(fx.NopLogger, Module(cfg), Lifecycle())
	require.NoError(t, second.Err())
	assert.Error(t, second.Start(context.Background()))
}

func TestInstanceLockWithoutPath(t *testing.T) {
	l := NewInstanceLock("")
	assert.NoError(t, l.Acquire())
	held, err := l.Held()
	assert.NoError(t, err)
	assert.False(t, held)
	assert.NoError(t, l.Release())
}

type countingTicker struct {
	mu     sync.Mutex
	deltas []time.Duration
}

func (c *countingTicker) Tick(d time.Duration) {
	c.mu.Lock()
	c.deltas = append(c.deltas, d)
	c.mu.Unlock()
}

func TestHostFramePassesElapsedTime(t *testing.T) {
	clk := clock.NewMock()
	target := &countingTicker{}
	h := NewHost(target, nil, clk, 50*time.Millisecond, zap.NewNop())
	h.last = clk.Now()

	h.frame(clk.Now().Add(50 * time.Millisecond))
	h.frame(clk.Now().Add(120 * time.Millisecond))

	assert.Equal(t, []time.Duration{50 * time.Millisecond, 70 * time.Millisecond}, target.deltas)
	assert.Equal(t, int64(2), h.Frames())
}

func TestHostRunsOnRealClock(t *testing.T) {
	var ticks atomic.Int64
	target := tickFunc(func(time.Duration) { ticks.Add(1) })
	h := NewHost(target, nil, clock.New(), time.Millisecond, zap.NewNop())

	h.Start()
	h.Start()
	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, 5*time.Second, time.Millisecond)
	h.Stop()
	h.Stop()
}

type tickFunc func(time.Duration)

func (f tickFunc) Tick(d time.Duration) { f(d) }

func newTestCoordinator(t *testing.T, cfg *config.Config) (*coordinator.Coordinator, *metrics.Metrics) {
	t.Helper()
	var (
		coord *coordinator.Coordinator
		m     *metrics.Metrics
	)
	fxtest.New(t, fx.NopLogger, Module(cfg), fx.Populate(&coord, &m))
	require.NotNil(t, coord)
	return coord, m
}

func TestWorkloadStepsThroughPhases(t *testing.T) {
	coord, _ := newTestCoordinator(t, testConfig(t))

	w, err := NewWorkload(coord, pool.Config{InitialSize: 2, MaxSize: 4}, 7)
	require.NoError(t, err)

	var idle []bool
	coord.OnIdleStateChanged().Add(func(v bool) { idle = append(idle, v) })

	for range transitionEvery {
		w.Step()
	}

	assert.Len(t, coord.Monitor().GetAllocationHistory("frame_buffers"), coord.Monitor().HistorySize())
	assert.Equal(t, []bool{true, false, true, false, true, false}, idle)
	assert.True(t, coord.GetStats().InTransition)
	assert.Zero(t, w.Retained())
	assert.Positive(t, coord.Buffers().GetStats().AllocCount)
}

func TestServerCommands(t *testing.T) {
	cfg := testConfig(t)
	coord, m := newTestCoordinator(t, cfg)
	s := NewServer(cfg, coord, m, zap.NewNop())
	h := s.Handler()

	get := func(path string) (int, string) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		body, err := io.ReadAll(rec.Result().Body)
		require.NoError(t, err)
		return rec.Code, string(body)
	}

	code, body := get("/control/ping")
	assert.Equal(t, 200, code)
	assert.Equal(t, "PONG", body)

	_, body = get("/control/strategy?name=aggressive")
	assert.Equal(t, "OK", body)
	_, body = get("/control/strategy")
	assert.Equal(t, "aggressive", body)

	code, _ = get("/control/strategy?name=eager")
	assert.Equal(t, 400, code)

	_, body = get("/control/gc?wait=false")
	assert.Contains(t, body, "executed:true\r\n")
	assert.Contains(t, body, "mode:fast\r\n")

	code, _ = get("/control/gc?wait=maybe")
	assert.Equal(t, 400, code)

	coord.Monitor().CaptureSnapshot()
	_, body = get("/control/info")
	assert.Contains(t, body, "strategy:aggressive\r\n")
	assert.Contains(t, body, "forced_collections:1\r\n")

	_, body = get("/control/history?n=1")
	assert.Contains(t, body, "total=")
	assert.Regexp(t, `total_mb=\d+\.\d `, body)

	_, body = get("/control/alerts")
	assert.Contains(t, body, "level:")

	_, _ = get("/control/disable")
	assert.False(t, coord.Enabled())
	_, _ = get("/control/enable")
	assert.True(t, coord.Enabled())

	_, _ = get("/control/idle")
	assert.True(t, coord.GetStats().Idle)
	_, _ = get("/control/active")
	assert.False(t, coord.GetStats().Idle)

	code, _ = get("/control/flushall")
	assert.Equal(t, 404, code)

	code, body = get("/metrics")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "memwarden_gc_collections_total")
}
