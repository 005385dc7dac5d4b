//go:build unix

package device

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// FIFO reads frames from a named pipe, so frames can be injected without a
// reader attached:
//
//	echo '[26,1A2B3C]' > /tmp/hidreader-frames
//
// The pipe is held open read-write, so writers may come and go without the
// reader seeing EOF.
type FIFO struct {
	path      string
	file      *os.File
	closeOnce sync.Once
}

// OpenFIFO creates a named pipe at path, replacing any existing file, and
// opens it for reading.
func OpenFIFO(path string) (*FIFO, error) {
	os.Remove(path)

	if err := unix.Mkfifo(path, 0666); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("open named pipe %s: %w", path, err)
	}

	return &FIFO{path: path, file: file}, nil
}

// Path returns the location of the named pipe.
func (f *FIFO) Path() string {
	return f.path
}

// Read implements io.Reader.
func (f *FIFO) Read(p []byte) (int, error) {
	return f.file.Read(p)
}

// Close unblocks any pending Read and removes the pipe.
func (f *FIFO) Close() error {
	var err error
	f.closeOnce.Do(func() {
		err = f.file.Close()
		if rmErr := os.Remove(f.path); rmErr != nil && err == nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
	})
	return err
}
