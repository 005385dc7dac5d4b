package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hidreader/device"
	"hidreader/lifecycle"
	"hidreader/report"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		ClientID:          "test",
		Reader:            device.Config{Type: "fifo", Device: filepath.Join(t.TempDir(), "frames")},
		ShutdownTimeout:   50 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
		LogLevel:          "debug",
		LogFormat:         "json",
	}.withDefaults()
}

func TestRun_DecodesUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	out := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logger) }()

	require.Eventually(t, func() bool {
		info, err := os.Stat(cfg.Reader.Device)
		return err == nil && info.Mode()&os.ModeNamedPipe != 0
	}, time.Second, 5*time.Millisecond)

	w, err := os.OpenFile(cfg.Reader.Device, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.WriteString("[26,1A2B3C]\r\ngarbage-input\r\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, `"msg":"card decoded"`) &&
			strings.Contains(s, `"msg":"frame rejected"`) &&
			strings.Contains(s, `"msg":"main loop running"`)
	}, time.Second, 5*time.Millisecond)

	cancel()

	// The serial worker is parked in a read on the pipe; run gives up on it
	// after the shutdown timeout and still returns cleanly.
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	s := out.String()
	require.Contains(t, s, `"facility_code":13`)
	require.Contains(t, s, `"card_code":5534`)
	require.Contains(t, s, `"reason":"malformed"`)
	require.Contains(t, s, `"msg":"forced shutdown"`)

	for _, line := range strings.Split(s, "\n") {
		switch {
		case strings.Contains(line, `"msg":"frame received"`):
			require.Contains(t, line, `"worker":"serial"`)
		case strings.Contains(line, `"msg":"card decoded"`):
			require.Contains(t, line, `"worker":"hid"`)
		}
	}

	// The pipe is removed once run gives up on the parked reader.
	_, err = os.Stat(cfg.Reader.Device)
	require.True(t, os.IsNotExist(err))
}

func TestRun_SetupErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&syncBuffer{}, nil))

	cfg := testConfig(t)
	cfg.Reader.Type = "keyboard"
	err := run(context.Background(), cfg, logger)
	require.ErrorContains(t, err, "open reader")

	cfg = testConfig(t)
	cfg.MQTT.Host = "127.0.0.1"
	cfg.MQTT.Port = 1
	cfg.Report = report.Config{Format: "xml"}
	err = run(context.Background(), cfg, logger)
	require.ErrorContains(t, err, "init reporting")
}

func TestIsOnlyForced(t *testing.T) {
	forced := &lifecycle.ShutdownTimeoutError{Workers: []string{"serial"}, Timeout: time.Second}
	failed := &lifecycle.WorkerError{Name: "serial", Err: errors.New("unplugged")}

	require.True(t, isOnlyForced(forced))
	require.True(t, isOnlyForced(errors.Join(forced)))
	require.False(t, isOnlyForced(errors.Join(failed, forced)))
	require.False(t, isOnlyForced(fmt.Errorf("wrap: %w", failed)))
}
