// Package pipeline wires the serial ingestion worker, the frame queue and
// the HID decode worker under a single lifecycle coordinator.
//
//	p := pipeline.New(port, reporter, logger)
//	if err := p.Start(ctx); err != nil { ... }
//	...
//	p.RequestStop()
//	if err := p.JoinAll(3 * time.Second); err != nil { ... }
//
// A Pipeline runs once. After RequestStop it must be rebuilt, along with
// a freshly opened device.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"hidreader/hid"
	"hidreader/ingest"
	"hidreader/lifecycle"
	"hidreader/queue"
	"hidreader/report"
)

// Pipeline is one reader-to-report run.
type Pipeline struct {
	port   io.ReadCloser
	queue  *queue.Queue
	coord  *lifecycle.Coordinator
	logger *slog.Logger
}

type options struct {
	pollInterval time.Duration
}

// Option configures a Pipeline.
type Option func(*options)

// WithPollInterval sets how long the decode worker waits on an empty queue.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// New builds a pipeline reading from port. The pipeline takes ownership of
// port and closes it when the serial worker exits, or after JoinAll gives
// up on a serial worker still blocked in a read. Each worker reports
// through r scoped to its own name (see report.ForWorker).
func New(port io.ReadCloser, r report.Reporter, logger *slog.Logger, opts ...Option) *Pipeline {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	q := queue.New()
	decoder := hid.New(q, report.ForWorker(r, hid.WorkerName), logger,
		hid.WithPollInterval(o.pollInterval))
	reader := ingest.New(port, q, report.ForWorker(r, ingest.WorkerName), logger)

	return &Pipeline{
		port:   port,
		queue:  q,
		logger: logger,
		// Decoder first: it is consuming before any frame arrives and is
		// joined after the serial worker.
		coord: lifecycle.New(logger, decoder, reader),
	}
}

// Start launches both workers.
func (p *Pipeline) Start(ctx context.Context) error {
	return p.coord.Start(ctx)
}

// RequestStop signals both workers to stop and returns immediately.
func (p *Pipeline) RequestStop() {
	p.coord.RequestStop()
}

// JoinAll waits up to timeout for each worker to exit. See
// lifecycle.Coordinator.JoinAll. If the serial worker did not exit, the
// device is closed once the join has given up so its resources are
// released; a backend whose Close unblocks reads lets the worker finish.
func (p *Pipeline) JoinAll(timeout time.Duration) error {
	err := p.coord.JoinAll(timeout)

	var timeoutErr *lifecycle.ShutdownTimeoutError
	if errors.As(err, &timeoutErr) && timeoutErr.Has(ingest.WorkerName) {
		if cerr := p.port.Close(); cerr != nil {
			p.logger.Debug("close device after forced shutdown", "error", cerr)
		}
	}
	return err
}

// Failures delivers fatal worker errors, such as the device going away.
func (p *Pipeline) Failures() <-chan error {
	return p.coord.Failures()
}

// QueueLen reports how many frames are waiting to be decoded.
func (p *Pipeline) QueueLen() int {
	return p.queue.Len()
}
