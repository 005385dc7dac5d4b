package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"hidreader/queue"
	"hidreader/report"
)

// ErrDeviceClosed is wrapped in the error returned when the device reports
// end of file, which for a serial port means it went away.
var ErrDeviceClosed = errors.New("device closed")

// WorkerName identifies the serial worker in logs and shutdown errors.
const WorkerName = "serial"

// Worker reads newline-terminated frames from the reader and queues them.
// It owns the device and closes it when Run returns.
type Worker struct {
	port     io.ReadCloser
	queue    *queue.Queue
	reporter report.Reporter
	logger   *slog.Logger
}

// New creates a Worker reading from port.
func New(port io.ReadCloser, q *queue.Queue, r report.Reporter, logger *slog.Logger) *Worker {
	return &Worker{
		port:     port,
		queue:    q,
		reporter: r,
		logger:   logger.With("worker", WorkerName),
	}
}

// Name implements lifecycle.Worker.
func (w *Worker) Name() string {
	return WorkerName
}

// Run implements lifecycle.Worker. The stop signal is checked between reads;
// a read in progress is not interrupted. Any read error ends the worker.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		if err := w.port.Close(); err != nil {
			w.logger.Debug("close device", "error", err)
		}
	}()

	r := bufio.NewReader(w.port)
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.ReadString('\n')
		if line != "" {
			w.push(line)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				err = ErrDeviceClosed
			}
			return fmt.Errorf("read frame: %w", err)
		}
	}
}

func (w *Worker) push(line string) {
	f := queue.NewFrame(strings.TrimRight(line, "\r\n"))
	w.reporter.FrameRead(f)
	w.queue.Push(f)
}
