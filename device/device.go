package device

import (
	"fmt"
	"io"
)

// Factory settings of the USB reader.
const (
	// DefaultDevice is the serial node the reader enumerates as.
	DefaultDevice = "/dev/ttyACM0"
	// DefaultBaud is the reader's line speed.
	DefaultBaud = 9600
)

// Config selects and configures the device frames are read from.
type Config struct {
	Type   string `yaml:"type"`   // "tarm" (default), "bugst", "fifo"
	Device string `yaml:"device"` // e.g., "/dev/ttyACM0", "/tmp/hidreader-frames"
	Baud   int    `yaml:"baud"`   // baud rate for serial devices
}

// WithDefaults fills unset fields with the reader's factory settings.
func (c Config) WithDefaults() Config {
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	return c
}

// Open opens the device described by cfg. Reads on the returned handle block
// until data is available.
func Open(cfg Config) (io.ReadCloser, error) {
	cfg = cfg.WithDefaults()

	// Each case returns explicitly so a failed open yields a nil interface
	// rather than one wrapping a nil pointer.
	switch cfg.Type {
	case "", "tarm", "serial":
		p, err := OpenTarm(cfg.Device, cfg.Baud)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "bugst":
		p, err := OpenBugst(cfg.Device, cfg.Baud)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "fifo":
		f, err := OpenFIFO(cfg.Device)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown device type %q", cfg.Type)
	}
}
