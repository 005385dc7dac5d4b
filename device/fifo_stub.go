//go:build !unix

package device

import (
	"errors"
	"io"
)

// ErrFIFONotSupported is returned by OpenFIFO where named pipes are
// unavailable.
var ErrFIFONotSupported = errors.New("named pipe device not supported on this platform")

// FIFO is a stub for platforms without named pipes.
type FIFO struct {
	io.ReadCloser
}

// OpenFIFO returns an error on platforms without named pipes.
func OpenFIFO(path string) (*FIFO, error) {
	return nil, ErrFIFONotSupported
}

// Path returns the empty string.
func (f *FIFO) Path() string { return "" }
