// Package lifecycle runs a fixed set of workers under one shared stop
// signal and joins them with a bounded wait.
//
// The stop signal is a context.Context created by the Coordinator and
// handed to every Worker's Run. Workers poll ctx.Err (or select on
// ctx.Done) and return when it is set. Stopping is cooperative: a worker
// blocked in a read it cannot abandon keeps running, and JoinAll gives up
// on it after its timeout instead of hanging.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrTerminal is returned by Start once a Coordinator has been started
	// or stopped. A stopped pipeline must be rebuilt.
	ErrTerminal = errors.New("coordinator already started or stopped")

	// ErrForcedShutdown matches a *ShutdownTimeoutError.
	ErrForcedShutdown = errors.New("forced shutdown")
)

// Worker is one independently scheduled unit of the pipeline.
type Worker interface {
	// Name identifies the worker in logs and errors.
	Name() string

	// Run does the worker's job until ctx is cancelled or a fatal error
	// occurs. Returning nil means a clean stop.
	Run(ctx context.Context) error
}

// WorkerError is a fatal error returned by a worker's Run.
type WorkerError struct {
	Name string
	Err  error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s: %v", e.Name, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// ShutdownTimeoutError lists workers that had not exited when JoinAll
// stopped waiting.
type ShutdownTimeoutError struct {
	Workers []string
	Timeout time.Duration
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("workers %s did not exit within %v", strings.Join(e.Workers, ", "), e.Timeout)
}

// Is reports whether target is ErrForcedShutdown.
func (e *ShutdownTimeoutError) Is(target error) bool {
	return target == ErrForcedShutdown
}

// Has reports whether the named worker was still running.
func (e *ShutdownTimeoutError) Has(name string) bool {
	return slices.Contains(e.Workers, name)
}

type handle struct {
	worker Worker
	done   chan struct{}
	err    error
}

// Coordinator owns the stop signal shared by its workers.
type Coordinator struct {
	logger  *slog.Logger
	handles []*handle

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	failures chan error
}

// New creates a Coordinator for workers. Workers start in the order given
// and are joined in reverse.
func New(logger *slog.Logger, workers ...Worker) *Coordinator {
	handles := make([]*handle, len(workers))
	for i, w := range workers {
		handles[i] = &handle{worker: w, done: make(chan struct{})}
	}
	return &Coordinator{
		logger:   logger,
		handles:  handles,
		failures: make(chan error, len(workers)),
	}
}

// Start launches every worker. Cancelling parent has the same effect as
// RequestStop.
func (c *Coordinator) Start(parent context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.stopped {
		return ErrTerminal
	}
	c.started = true

	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel

	for _, h := range c.handles {
		go c.run(ctx, h)
		c.logger.Info("worker started", "worker", h.worker.Name())
	}
	return nil
}

func (c *Coordinator) run(ctx context.Context, h *handle) {
	defer close(h.done)

	err := h.worker.Run(ctx)
	if err == nil {
		c.logger.Info("worker exited", "worker", h.worker.Name())
		return
	}

	h.err = &WorkerError{Name: h.worker.Name(), Err: err}
	c.logger.Error("worker failed", "worker", h.worker.Name(), "error", err)
	if ctx.Err() == nil {
		c.failures <- h.err
	}
}

// Failures delivers a *WorkerError for each worker that fails before stop
// is requested.
func (c *Coordinator) Failures() <-chan error {
	return c.failures
}

// RequestStop sets the shared stop signal and returns immediately. It is
// safe to call more than once, and before Start.
func (c *Coordinator) RequestStop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	c.logger.Info("stop requested")
	if c.cancel != nil {
		c.cancel()
	}
}

// JoinAll waits up to timeout for each worker, last started first. It
// returns the errors of workers that failed, joined with a
// *ShutdownTimeoutError naming any still running. It does not request a
// stop itself.
func (c *Coordinator) JoinAll(timeout time.Duration) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}

	var errs []error
	var stuck []string
	for i := len(c.handles) - 1; i >= 0; i-- {
		h := c.handles[i]
		if !waitDone(h.done, timeout) {
			c.logger.Warn("worker did not exit in time", "worker", h.worker.Name(), "timeout", timeout)
			stuck = append(stuck, h.worker.Name())
			continue
		}
		if h.err != nil {
			errs = append(errs, h.err)
		}
	}

	if len(stuck) > 0 {
		errs = append(errs, &ShutdownTimeoutError{Workers: stuck, Timeout: timeout})
	}
	return errors.Join(errs...)
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
