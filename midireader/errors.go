package midireader

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means no byte is currently available. It is not a failure.
	ErrNoData = errors.New("no data available")

	// ErrPushbackFull is returned when a byte is pushed back while another
	// one is still pending.
	ErrPushbackFull = errors.New("pushback already holds a byte")

	// ErrCapacity is returned when running status expansion would not fit
	// in the frame.
	ErrCapacity = errors.New("insufficient frame capacity for expansion")
)

// IOError reports a failure of the underlying byte stream. The producer is
// expected to close the source and reopen it later.
type IOError struct {
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("midi read failed: %v", e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// DesyncReason says why the engine dropped a frame
type DesyncReason int

const (
	ReasonTooLong DesyncReason = iota + 1
	ReasonInvalidStatus
	ReasonBrokenRun
)

func (r DesyncReason) String() string {
	switch r {
	case ReasonTooLong:
		return "frame too long"
	case ReasonInvalidStatus:
		return "invalid status byte"
	case ReasonBrokenRun:
		return "unterminated running status"
	default:
		return "unknown"
	}
}

// DesyncError describes a malformed byte sequence. It is recovered locally
// and only surfaces for diagnostics.
type DesyncError struct {
	Reason DesyncReason
	Byte   byte // byte that triggered the error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("midi desync: %s (byte 0x%02x)", e.Reason, e.Byte)
}
