package report

import (
	"fmt"
	"log/slog"

	"hidreader/queue"
	"hidreader/wiegand"
)

// Reporter receives one call for every frame read and one for every decode
// outcome. Implementations must be safe for concurrent use: frames are
// reported from the serial worker, outcomes from the decode worker.
type Reporter interface {
	// FrameRead is called when a frame arrives from the device.
	FrameRead(f queue.Frame)

	// Decoded is called when a frame decodes to a card.
	Decoded(f queue.Frame, card wiegand.Card)

	// Rejected is called when a frame is discarded. err wraps one of the
	// wiegand sentinel errors.
	Rejected(f queue.Frame, err error)
}

// Config holds configuration for the reporters.
type Config struct {
	// Format of MQTT payloads: "json" (default) or "cbor".
	Format string `yaml:"format"`
}

// New creates the reporters for cfg. Records always go to logger; if pub is
// non-nil they are also published through it.
func New(cfg Config, clientID string, pub Publisher, logger *slog.Logger) (Reporter, error) {
	log := NewLog(logger)
	if pub == nil {
		return log, nil
	}

	enc, err := NewEncoder(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("report encoder: %w", err)
	}

	return &Multi{reporters: []Reporter{log, NewMQTT(pub, clientID, enc, logger)}}, nil
}

// Scoper is implemented by reporters that can tag their records with the
// worker producing them.
type Scoper interface {
	ForWorker(name string) Reporter
}

// ForWorker returns r scoped to the named worker, or r itself if it does
// not support scoping.
func ForWorker(r Reporter, name string) Reporter {
	if s, ok := r.(Scoper); ok {
		return s.ForWorker(name)
	}
	return r
}
