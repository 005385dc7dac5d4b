package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"hidreader/device"
	"hidreader/lifecycle"
	"hidreader/mqtt"
	"hidreader/pipeline"
	"hidreader/report"
)

var myBuild string

func main() {
	fmt.Printf("hidreader build %s\n", myBuild)

	flags := pflag.NewFlagSet("hidreader", pflag.ExitOnError)
	cfgFile := flags.String("cfg", "hidreader.cfg", "Config file")
	devicePath := flags.String("device", "", "Reader device path (overrides config)")
	baud := flags.Int("baud", 0, "Serial baud rate (overrides config)")
	readerType := flags.String("reader-type", "", "Reader backend: tarm, bugst or fifo (overrides config)")
	logLevel := flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.Parse(os.Args[1:])

	cfg, err := loadConfig(*cfgFile, flags.Changed("cfg"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load config: %v\n", err)
		os.Exit(1)
	}
	if *devicePath != "" {
		cfg.Reader.Device = *devicePath
	}
	if *baud != 0 {
		cfg.Reader.Baud = *baud
	}
	if *readerType != "" {
		cfg.Reader.Type = *readerType
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Init logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("hidreader failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// run starts the pipeline and blocks until ctx is cancelled or a worker
// fails, then stops and joins the workers.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	client, err := mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{}, logger)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Disconnect()

	var pub report.Publisher
	if client.IsEnabled() {
		pub = client
	}

	reporter, err := report.New(cfg.Report, cfg.ClientID, pub, logger)
	if err != nil {
		return fmt.Errorf("init reporting: %w", err)
	}

	if client.IsEnabled() {
		go func() {
			if err := client.Connect(); err != nil {
				logger.Error("mqtt connect", "error", err)
			}
		}()
	}

	port, err := device.Open(cfg.Reader)
	if err != nil {
		return fmt.Errorf("open reader: %w", err)
	}
	logger.Info("reader opened",
		"type", cfg.Reader.Type,
		"device", cfg.Reader.Device,
		"baud", cfg.Reader.Baud,
	)

	p := pipeline.New(port, reporter, logger, pipeline.WithPollInterval(cfg.PollInterval))
	if err := p.Start(ctx); err != nil {
		port.Close()
		return fmt.Errorf("start pipeline: %w", err)
	}

	runErr := wait(ctx, p, cfg.HeartbeatInterval, logger)

	logger.Info("cleaning up, stopping workers")
	p.RequestStop()
	if err := p.JoinAll(cfg.ShutdownTimeout); err != nil {
		if errors.Is(err, lifecycle.ErrForcedShutdown) {
			logger.Warn("forced shutdown", "error", err)
		}
		if runErr == nil && !isOnlyForced(err) {
			runErr = err
		}
	}
	return runErr
}

// wait idles until shutdown is due, logging a heartbeat with the queue depth.
func wait(ctx context.Context, p *pipeline.Pipeline, heartbeat time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			return nil
		case err := <-p.Failures():
			return err
		case <-ticker.C:
			logger.Debug("main loop running", "queue_depth", p.QueueLen())
		}
	}
}

// isOnlyForced reports whether err carries nothing but shutdown timeouts.
func isOnlyForced(err error) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return errors.Is(err, lifecycle.ErrForcedShutdown)
	}
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, lifecycle.ErrForcedShutdown) {
			return false
		}
	}
	return true
}
