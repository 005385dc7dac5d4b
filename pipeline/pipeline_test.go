package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hidreader/ingest"
	"hidreader/lifecycle"
	"hidreader/queue"
	"hidreader/report"
	"hidreader/wiegand"
)

type event struct {
	kind string
	data string
	card wiegand.Card
	err  error
}

type recorder struct {
	mu     sync.Mutex
	events []event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 100)}
}

func (r *recorder) FrameRead(f queue.Frame) { r.add(event{kind: "frame", data: f.Data}) }

func (r *recorder) Decoded(f queue.Frame, card wiegand.Card) {
	r.add(event{kind: "card", data: f.Data, card: card})
}

func (r *recorder) Rejected(f queue.Frame, err error) {
	r.add(event{kind: "rejected", data: f.Data, err: err})
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.notify:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for record %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func outcomes(events []event) []event {
	var out []event
	for _, e := range events {
		if e.kind != "frame" {
			out = append(out, e)
		}
	}
	return out
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// watchedPort signals each Read call and records Close.
type watchedPort struct {
	io.ReadCloser
	reads  chan struct{}
	closed atomic.Bool
}

func newWatchedPort(rc io.ReadCloser) *watchedPort {
	return &watchedPort{ReadCloser: rc, reads: make(chan struct{}, 1)}
}

func (w *watchedPort) Read(p []byte) (int, error) {
	select {
	case w.reads <- struct{}{}:
	default:
	}
	return w.ReadCloser.Read(p)
}

func (w *watchedPort) Close() error {
	w.closed.Store(true)
	return w.ReadCloser.Close()
}

func (w *watchedPort) waitRead(t *testing.T) {
	t.Helper()
	select {
	case <-w.reads:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for serial worker to read")
	}
}

// lockedBuffer is a bytes.Buffer safe for the concurrent log writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPipeline_EndToEnd(t *testing.T) {
	pr, pw := io.Pipe()
	rec := newRecorder()
	p := New(pr, rec, discard())
	require.NoError(t, p.Start(context.Background()))

	_, err := pw.Write([]byte("[26,1A2B3C]\r\ngarbage-input\r\n[34,FF]\r\n[26,000002]\r\n"))
	require.NoError(t, err)

	// One record per frame read plus one per decode outcome.
	events := rec.wait(t, 8)
	require.Len(t, events, 8)

	got := outcomes(events)
	require.Len(t, got, 4)

	require.Equal(t, "card", got[0].kind)
	require.Equal(t, uint8(13), got[0].card.FacilityCode)
	require.Equal(t, uint16(5534), got[0].card.CardCode)

	require.ErrorIs(t, got[1].err, wiegand.ErrMalformedFrame)
	require.ErrorIs(t, got[2].err, wiegand.ErrUnsupportedFormat)

	require.Equal(t, "card", got[3].kind)
	require.Equal(t, uint16(1), got[3].card.CardCode)
	require.Equal(t, 0, p.QueueLen())

	p.RequestStop()
	// Release the serial worker's blocked read so both workers exit.
	pw.Close()
	require.NoError(t, p.JoinAll(time.Second))
}

func TestPipeline_DeviceLossIsSurfaced(t *testing.T) {
	pr, pw := io.Pipe()
	rec := newRecorder()
	p := New(pr, rec, discard(), WithPollInterval(10*time.Millisecond))
	require.NoError(t, p.Start(context.Background()))

	_, err := pw.Write([]byte("[26,1A2B3C]\n"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	select {
	case err := <-p.Failures():
		require.ErrorIs(t, err, ingest.ErrDeviceClosed)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for device failure")
	}

	// The decoder still drains what was already queued.
	events := rec.wait(t, 2)
	require.Equal(t, "card", events[1].kind)

	p.RequestStop()
	err = p.JoinAll(time.Second)
	require.ErrorIs(t, err, ingest.ErrDeviceClosed)
	require.NotErrorIs(t, err, lifecycle.ErrForcedShutdown)
}

func TestPipeline_SilentDeviceForcesShutdown(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	port := newWatchedPort(pr)

	p := New(port, newRecorder(), discard())
	require.NoError(t, p.Start(context.Background()))

	// Stop only once the serial worker is parked in a read that no frame
	// will ever complete.
	port.waitRead(t)
	p.RequestStop()

	start := time.Now()
	err := p.JoinAll(50 * time.Millisecond)

	var timeoutErr *lifecycle.ShutdownTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, []string{"serial"}, timeoutErr.Workers)
	require.Less(t, time.Since(start), time.Second)

	// The device is released after the join gives up.
	require.True(t, port.closed.Load())
}

func TestPipeline_CleanStopLeavesCloseToWorker(t *testing.T) {
	pr, pw := io.Pipe()
	port := newWatchedPort(pr)

	p := New(port, newRecorder(), discard())
	require.NoError(t, p.Start(context.Background()))

	port.waitRead(t)
	p.RequestStop()
	pw.Close()
	require.NoError(t, p.JoinAll(time.Second))

	// Closed by the serial worker on its way out.
	require.True(t, port.closed.Load())
}

func TestPipeline_RecordsCarryWorker(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	pr, pw := io.Pipe()
	p := New(pr, report.NewLog(logger), logger, WithPollInterval(10*time.Millisecond))
	require.NoError(t, p.Start(context.Background()))

	_, err := pw.Write([]byte("[26,1A2B3C]\ngarbage-input\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), `"frame rejected"`)
	}, time.Second, 5*time.Millisecond)

	p.RequestStop()
	pw.Close()
	require.NoError(t, p.JoinAll(time.Second))

	workers := map[string][]any{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		msg, _ := rec["msg"].(string)
		workers[msg] = append(workers[msg], rec["worker"])
	}

	require.Equal(t, []any{"serial", "serial"}, workers["frame received"])
	require.Equal(t, []any{"hid"}, workers["card decoded"])
	require.Equal(t, []any{"hid"}, workers["frame rejected"])
}

func TestPipeline_RunsOnce(t *testing.T) {
	pr, pw := io.Pipe()
	p := New(pr, newRecorder(), discard())
	require.NoError(t, p.Start(context.Background()))

	p.RequestStop()
	pw.Close()
	require.NoError(t, p.JoinAll(time.Second))

	require.ErrorIs(t, p.Start(context.Background()), lifecycle.ErrTerminal)
}
