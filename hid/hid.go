package hid

import (
	"context"
	"log/slog"
	"time"

	"hidreader/queue"
	"hidreader/report"
	"hidreader/wiegand"
)

// DefaultPollInterval bounds how long the worker waits on an empty queue
// before checking the stop signal again.
const DefaultPollInterval = 50 * time.Millisecond

// WorkerName identifies the decode worker in logs and shutdown errors.
const WorkerName = "hid"

// Worker drains the frame queue and decodes each frame. Decode failures are
// reported and the frame dropped; they never stop the worker.
type Worker struct {
	queue        *queue.Queue
	reporter     report.Reporter
	logger       *slog.Logger
	pollInterval time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval sets the bounded queue wait. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// New creates a Worker reading from q.
func New(q *queue.Queue, r report.Reporter, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		queue:        q,
		reporter:     r,
		logger:       logger.With("worker", WorkerName),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements lifecycle.Worker.
func (w *Worker) Name() string {
	return WorkerName
}

// Run implements lifecycle.Worker. It returns nil within one poll interval
// of ctx being cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		f, ok := w.queue.Pop(w.pollInterval)
		if !ok {
			continue
		}
		w.logger.Debug("got frame from queue", "frame_id", f.ID.String(), "data", f.Data)
		w.process(f)
	}
	return nil
}

func (w *Worker) process(f queue.Frame) {
	card, err := wiegand.Decode(f.Data)
	if err != nil {
		w.reporter.Rejected(f, err)
		return
	}
	w.reporter.Decoded(f, card)
}
