// Package scheduler provides supervised periodic background tasks. Each
// task runs on its own ticker, survives a panic inside one tick, and stops
// cleanly: Stop waits for the tick in flight to finish before returning.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickFunc is invoked on every tick. A returned error is logged and the
// task keeps running; the next tick retries independently.
type TickFunc func(ctx context.Context) error

// Task is a single recurring background job.
type Task struct {
	name     string
	interval time.Duration
	fn       TickFunc
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a task; it does not start until Start is called. A
// non-positive interval falls back to one minute, since the ticker cannot
// run on zero.
func New(name string, interval time.Duration, fn TickFunc, logger *zap.Logger) *Task {
	if interval <= 0 {
		logger.Warn("Invalid task interval, falling back to one minute",
			zap.String("task", name),
			zap.Duration("interval", interval))
		interval = time.Minute
	}
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
	}
}

// Start launches the task loop. Starting a running task is a no-op.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.logger.Warn("Task is already running", zap.String("task", t.name))
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.loop(t.stopCh, t.doneCh)
	t.logger.Info("Started background task",
		zap.String("task", t.name),
		zap.Duration("interval", t.interval))
}

// Stop signals the loop to exit and waits for the current tick to finish.
// Stopping a stopped task is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stopCh, doneCh := t.stopCh, t.doneCh
	t.mu.Unlock()

	close(stopCh)
	<-doneCh
	t.logger.Info("Stopped background task", zap.String("task", t.name))
}

func (t *Task) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runTick(stopCh)
		case <-stopCh:
			return
		}
	}
}

// runTick isolates one tick: a panic or error never kills the loop.
func (t *Task) runTick(stopCh chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Recovered from panic in background task",
				zap.String("task", t.name),
				zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := t.fn(ctx); err != nil {
		t.logger.Error("Background task tick failed",
			zap.String("task", t.name),
			zap.Error(err))
	}
}
