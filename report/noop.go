package report

import (
	"hidreader/queue"
	"hidreader/wiegand"
)

// Noop implements Reporter but does nothing.
type Noop struct{}

// FrameRead implements Reporter.FrameRead.
func (Noop) FrameRead(f queue.Frame) {}

// Decoded implements Reporter.Decoded.
func (Noop) Decoded(f queue.Frame, card wiegand.Card) {}

// Rejected implements Reporter.Rejected.
func (Noop) Rejected(f queue.Frame, err error) {}
