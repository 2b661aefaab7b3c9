// Package device opens MIDI character devices and serial ports and keeps
// them open across hot-unplug.
package device

import (
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"go.bug.st/serial"
)

// serialReadTimeout bounds a read on a serial port; a timeout reads zero
// bytes, which the reader treats as no data.
const serialReadTimeout = time.Millisecond

// Options for opening a device
type Options struct {
	BaudRate int // >0 opens the path as a serial port
}

// Serial reports whether devices are opened as serial ports.
func (o Options) Serial() bool {
	return o.BaudRate > 0
}

// OpenCapture opens path for reading.
func OpenCapture(path string, opts Options) (io.ReadCloser, error) {
	return open(path, os.O_RDONLY, opts)
}

// OpenPlayback opens path for writing.
func OpenPlayback(path string, opts Options) (io.WriteCloser, error) {
	return open(path, os.O_WRONLY, opts)
}

// OpenDuplex opens path for both directions, for a capture and playback
// device that are the same node.
func OpenDuplex(path string, opts Options) (io.ReadWriteCloser, error) {
	return open(path, os.O_RDWR, opts)
}

func open(path string, flag int, opts Options) (io.ReadWriteCloser, error) {
	if opts.Serial() {
		return openSerial(path, opts.BaudRate)
	}

	// O_NONBLOCK puts a pollable device under the runtime poller so read
	// deadlines apply.
	f, err := os.OpenFile(path, flag|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}
	return f, nil
}

func openSerial(path string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset %s: %w", path, err)
	}
	return port, nil
}

// Ports lists the serial ports of the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Present reports whether the device node at path still exists.
func Present(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
