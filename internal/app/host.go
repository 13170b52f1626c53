package app

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/genc-murat/memwarden/internal/core/ports"
)

// Host drives a ticker-based frame loop on a single goroutine. Each frame
// runs the optional workload first and then ticks the target with the real
// elapsed time.
type Host struct {
	target   ports.Ticker
	workload *Workload
	clock    clock.Clock
	tickRate time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	frames int64
	last   time.Time
}

func NewHost(target ports.Ticker, workload *Workload, clk clock.Clock, tickRate time.Duration, logger *zap.Logger) *Host {
	return &Host{
		target:   target,
		workload: workload,
		clock:    clk,
		tickRate: tickRate,
		logger:   logger.With(zap.String("component", "host")),
	}
}

// Start launches the loop with its own context; the fx start context ends
// as soon as startup completes.
func (h *Host) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	h.last = h.clock.Now()

	go h.run(ctx, h.done)
	h.logger.Info("frame loop started",
		zap.Duration("tick_rate", h.tickRate),
		zap.Bool("simulate", h.workload != nil))
}

func (h *Host) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel = nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	h.logger.Info("frame loop stopped", zap.Int64("frames", h.Frames()))
}

func (h *Host) Frames() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

func (h *Host) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := h.clock.Ticker(h.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.frame(now)
		}
	}
}

func (h *Host) frame(now time.Time) {
	h.mu.Lock()
	delta := now.Sub(h.last)
	h.last = now
	h.frames++
	h.mu.Unlock()

	if delta < 0 {
		delta = 0
	}
	if h.workload != nil {
		h.workload.Step()
	}
	h.target.Tick(delta)
}
