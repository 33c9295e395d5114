package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDrainTimeout is returned when in-flight work did not finish inside the
// drain window. The process still stops.
var ErrDrainTimeout = errors.New("drain timed out")

// LifecycleRunner drives the process through its states: Run blocks until
// the context is cancelled or Stop is called, then gives the Drainer a
// bounded window to let live conversations finish.
type LifecycleRunner struct {
	state   atomic.Int32
	drainer Drainer
	hooks   Hooks
	timeout time.Duration
	logger  *slog.Logger

	quit     chan struct{}
	quitOnce sync.Once
	stopOnce sync.Once
	stopErr  error
}

var _ Runner = (*LifecycleRunner)(nil)

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &LifecycleRunner{
		drainer: drainer,
		hooks:   hooks,
		timeout: timeout,
		logger:  slog.Default(),
		quit:    make(chan struct{}),
	}
	r.state.Store(int32(StateNew))
	return r
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return errors.New("runner already started")
	}
	PrintBanner()
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.state.Store(int32(StateRunning))
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
	case <-r.quit:
	}
	return r.shutdown()
}

func (r *LifecycleRunner) Stop() error {
	r.quitOnce.Do(func() { close(r.quit) })
	return r.shutdown()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) shutdown() error {
	r.stopOnce.Do(func() {
		r.state.Store(int32(StateDraining))
		r.logger.Info("draining", slog.Duration("timeout", r.timeout))
		r.stopErr = r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
		r.logger.Info("runner stopped", slog.String("state", r.State().String()))
	})
	return r.stopErr
}

func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- r.drainer.Drain() }()
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		r.logger.Warn("drain window elapsed, stopping anyway")
		return ErrDrainTimeout
	}
}
