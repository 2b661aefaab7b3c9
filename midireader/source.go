package midireader

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"time"
)

const DefaultBufSize = 256

// pollWait bounds a chunk read on a reader with deadlines. An expired
// deadline fails the read before it is attempted, so it must lie ahead.
const pollWait = 100 * time.Microsecond

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Source is a small buffered adapter around a non-blocking reader with room
// for one pushed back byte. It knows nothing about MIDI.
//
// A Source is owned by a single producer. Only Close may be called
// concurrently with the other methods.
type Source struct {
	r        io.Reader
	buf      []byte
	off, n   int
	pushback int   // -1 when empty
	err      error // read error held back until the bytes read with it are used
	closed   atomic.Bool
}

// NewSource wraps r with a read buffer of size bytes.
func NewSource(r io.Reader, size int) *Source {
	if size <= 0 {
		size = DefaultBufSize
	}
	return &Source{r: r, buf: make([]byte, size), pushback: -1}
}

// Buffered returns the number of bytes available without reading, pushback
// included.
func (s *Source) Buffered() int {
	n := s.n - s.off
	if s.pushback >= 0 {
		n++
	}
	return n
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	return s.closed.Load()
}

// NextByte returns the pushed back byte if any, then buffered bytes, and
// reads a new chunk only once the buffer is empty.
func (s *Source) NextByte() (byte, error) {
	if s.closed.Load() {
		return 0, ErrNoData
	}
	if s.pushback >= 0 {
		b := byte(s.pushback)
		s.pushback = -1
		return b, nil
	}
	if s.off >= s.n {
		if _, err := s.Fill(); err != nil {
			return 0, err
		}
		if s.off >= s.n {
			return 0, ErrNoData
		}
	}
	b := s.buf[s.off]
	s.off++
	return b, nil
}

// PushBack makes b the next byte returned by NextByte.
func (s *Source) PushBack(b byte) error {
	if s.pushback >= 0 {
		return ErrPushbackFull
	}
	s.pushback = int(b)
	return nil
}

// Fill reads one chunk when the buffer is empty. It returns the number of
// bytes read; zero with a nil error means nothing was available. A read
// error that comes with data is returned by the following Fill.
func (s *Source) Fill() (int, error) {
	if s.closed.Load() || s.r == nil {
		return 0, nil
	}
	if s.off < s.n {
		return 0, nil
	}
	s.off, s.n = 0, 0
	if err := s.err; err != nil {
		s.err = nil
		return 0, err
	}

	if d, ok := s.r.(deadliner); ok {
		_ = d.SetReadDeadline(time.Now().Add(pollWait))
	}
	n, err := s.r.Read(s.buf)
	if n > 0 {
		s.n = n
	}
	if err != nil && !isNoData(err) {
		if s.closed.Load() {
			return n, nil
		}
		if n > 0 {
			s.err = &IOError{Err: err}
			return n, nil
		}
		return 0, &IOError{Err: err}
	}
	return n, nil
}

// Close marks the source closed, drops pending bytes and closes the
// underlying reader when it is an io.Closer.
func (s *Source) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// reset drops buffered bytes and the pushback. Callers must own the source.
func (s *Source) reset() {
	s.off, s.n = 0, 0
	s.pushback = -1
	s.err = nil
}

func isNoData(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, syscall.EINTR)
}
