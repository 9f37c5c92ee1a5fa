package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"wallet-pool-go/internal/metrics"

	"go.uber.org/zap"
)

// Loop runs a sweep on a fixed interval. A tick that fires while the previous
// sweep is still running is skipped, so a loop never overlaps with itself.
type Loop struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	metrics  *metrics.PoolMetrics

	running  atomic.Bool
	wg       sync.WaitGroup
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewLoop(name string, interval time.Duration, run func(ctx context.Context) error, m *metrics.PoolMetrics) *Loop {
	return &Loop{
		name:     name,
		interval: interval,
		run:      run,
		metrics:  m,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// SweepLoop schedules r.Sweep.
func SweepLoop(r *Reconciler, interval time.Duration, m *metrics.PoolMetrics) *Loop {
	return NewLoop(r.Name(), interval, func(ctx context.Context) error {
		_, err := r.Sweep(ctx)
		return err
	}, m)
}

func (l *Loop) Name() string {
	return l.name
}

// Start runs the first sweep immediately and then one per interval until ctx
// is done or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	zap.L().Info("Starting loop",
		zap.String("loop", l.name),
		zap.Duration("interval", l.interval))
	go l.pollLoop(ctx)
}

// Stop ends the loop and waits for an in-flight sweep to return.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	<-l.doneChan
	zap.L().Info("Loop stopped", zap.String("loop", l.name))
}

func (l *Loop) pollLoop(ctx context.Context) {
	defer close(l.doneChan)
	defer l.wg.Wait()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.spawn(ctx)

	for {
		select {
		case <-ticker.C:
			l.spawn(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) spawn(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.Tick(ctx)
	}()
}

// Tick runs one sweep unless another is in progress. Reports whether it ran.
func (l *Loop) Tick(ctx context.Context) bool {
	if !l.running.CompareAndSwap(false, true) {
		l.metrics.SweepSkipped(l.name)
		zap.L().Debug("Previous sweep still running, skipping tick", zap.String("loop", l.name))
		return false
	}
	defer l.running.Store(false)

	start := time.Now()
	if err := l.run(ctx); err != nil {
		zap.L().Error("Sweep failed", zap.String("loop", l.name), zap.Error(err))
	}
	l.metrics.ObserveSweep(l.name, time.Since(start))
	return true
}
