package report

import (
	"hidreader/queue"
	"hidreader/wiegand"
)

// Multi combines multiple Reporter implementations.
type Multi struct {
	reporters []Reporter
}

// NewMulti fans every call out to reporters in order.
func NewMulti(reporters ...Reporter) *Multi {
	return &Multi{reporters: reporters}
}

// FrameRead implements Reporter.FrameRead.
func (m *Multi) FrameRead(f queue.Frame) {
	for _, r := range m.reporters {
		r.FrameRead(f)
	}
}

// Decoded implements Reporter.Decoded.
func (m *Multi) Decoded(f queue.Frame, card wiegand.Card) {
	for _, r := range m.reporters {
		r.Decoded(f, card)
	}
}

// Rejected implements Reporter.Rejected.
func (m *Multi) Rejected(f queue.Frame, err error) {
	for _, r := range m.reporters {
		r.Rejected(f, err)
	}
}

// ForWorker implements Scoper by scoping each member.
func (m *Multi) ForWorker(name string) Reporter {
	scoped := make([]Reporter, len(m.reporters))
	for i, r := range m.reporters {
		scoped[i] = ForWorker(r, name)
	}
	return &Multi{reporters: scoped}
}
