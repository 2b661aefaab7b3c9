package device

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"
)

const writeWait = 10 * time.Millisecond

var (
	ErrNotOpen = errors.New("device not open")
	ErrBusy    = errors.New("device busy")
)

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Writer serializes writes to the playback device against closing and
// replacing it. A failed write closes the device.
type Writer struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// SetDevice attaches a new device, closing the previous one.
func (w *Writer) SetDevice(wc io.WriteCloser) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w != nil {
		w.w.Close()
	}
	w.w = wc
}

// Closed reports whether no device is attached.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w == nil
}

// Write writes one message. It returns ErrNotOpen without a device and
// ErrBusy when the device cannot take the bytes right now.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return 0, ErrNotOpen
	}
	if d, ok := w.w.(writeDeadliner); ok {
		_ = d.SetWriteDeadline(time.Now().Add(writeWait))
	}
	n, err := w.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, syscall.EAGAIN):
		return n, ErrBusy
	case errors.Is(err, io.ErrShortWrite):
		return n, err
	}
	w.w.Close()
	w.w = nil
	return n, fmt.Errorf("device write failed: %w", err)
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	err := w.w.Close()
	w.w = nil
	return err
}
