package report

import (
	"log/slog"

	"hidreader/queue"
	"hidreader/wiegand"
)

// Log writes one structured record per call.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log reporter writing to logger.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// FrameRead implements Reporter.FrameRead.
func (l *Log) FrameRead(f queue.Frame) {
	l.logger.Info("frame received",
		"frame_id", f.ID.String(),
		"data", f.Data,
	)
}

// Decoded implements Reporter.Decoded.
func (l *Log) Decoded(f queue.Frame, card wiegand.Card) {
	l.logger.Info("card decoded",
		"frame_id", f.ID.String(),
		"data", f.Data,
		"facility_code", card.FacilityCode,
		"card_code", card.CardCode,
	)
}

// Rejected implements Reporter.Rejected.
func (l *Log) Rejected(f queue.Frame, err error) {
	l.logger.Warn("frame rejected",
		"frame_id", f.ID.String(),
		"data", f.Data,
		"reason", wiegand.Reason(err),
		"error", err,
	)
}

// ForWorker implements Scoper. Records from the returned Log carry
// worker=name.
func (l *Log) ForWorker(name string) Reporter {
	return &Log{logger: l.logger.With("worker", name)}
}
