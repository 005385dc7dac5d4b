package device

import (
	"fmt"

	"github.com/tarm/serial"
)

// OpenTarm opens a serial port with github.com/tarm/serial. No read timeout
// is set, so reads block until at least one byte arrives.
func OpenTarm(device string, baud int) (*serial.Port, error) {
	c := &serial.Config{
		Name: device,
		Baud: baud,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return port, nil
}
