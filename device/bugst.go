package device

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenBugst opens a serial port with go.bug.st/serial at 8N1. Closing the
// returned port unblocks a pending Read.
func OpenBugst(device string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return p, nil
}
