package midireader

import "errors"

// Result is the outcome of pushing one byte into a frame
type Result int

const (
	ResultIOError  Result = -3 // the source failed
	ResultNoData   Result = -2 // no byte was available
	ResultError    Result = -1 // desync, the frame was reset
	ResultNext     Result = 0  // byte appended, frame incomplete
	ResultComplete Result = 1  // frame complete
	ResultSkipped  Result = 2  // frame complete but filtered out and reset
)

func (r Result) String() string {
	switch r {
	case ResultIOError:
		return "io-error"
	case ResultNoData:
		return "no-data"
	case ResultError:
		return "error"
	case ResultNext:
		return "next"
	case ResultComplete:
		return "complete"
	case ResultSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Engine rebuilds MIDI messages from a byte stream, one byte per Push.
//
// A run of messages sharing one status byte under running status is kept as
// a single frame (status byte followed by data pairs) until the next status
// byte shows up; ExpandRunning splits it afterwards.
type Engine struct {
	src     *Source
	running byte // last channel voice status in effect, 0 for none
	err     error

	// ShortRuns makes runs of 2-byte messages (program change, channel
	// pressure) repeat one data byte instead of two.
	ShortRuns bool
}

// NewEngine returns an engine reading from src.
func NewEngine(src *Source) *Engine {
	return &Engine{src: src}
}

// Source returns the byte source the engine reads from.
func (e *Engine) Source() *Source { return e.src }

// SetSource switches to a new source and forgets the running status.
func (e *Engine) SetSource(src *Source) {
	e.src = src
	e.Reset()
}

// Reset clears the running status.
func (e *Engine) Reset() {
	e.running = 0
	e.err = nil
}

// Running returns the running status byte, 0 when none is in effect.
func (e *Engine) Running() byte { return e.running }

// Err returns the error behind the last ResultError or ResultIOError.
func (e *Engine) Err() error { return e.err }

// Push reads one byte from the source and adds it to f.
func (e *Engine) Push(f *Frame) Result {
	if f.Full() {
		status := f.Status()
		f.Reset()
		e.running = 0
		e.err = &DesyncError{Reason: ReasonTooLong, Byte: status}
		return ResultError
	}
	if e.src == nil {
		return ResultNoData
	}

	b, err := e.src.NextByte()
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			e.err = err
			return ResultIOError
		}
		return ResultNoData
	}

	if e.running != 0 && IsStatus(b) {
		// b starts the next message: the run in f is over.
		e.running = 0
		if err := e.src.PushBack(b); err != nil {
			f.Reset()
			e.err = &DesyncError{Reason: ReasonBrokenRun, Byte: b}
			return ResultError
		}
		if f.Len() == 0 || (f.Len()-1)%dataGroup(f.Status(), e.ShortRuns) != 0 {
			f.Reset()
			e.err = &DesyncError{Reason: ReasonBrokenRun, Byte: b}
			return ResultError
		}
		return ResultComplete
	}

	if f.Len() == 0 {
		if IsChannelVoice(b) {
			e.running = b
		} else {
			e.running = 0
		}
	}

	f.Append(b)
	c := Classify(f.Status())
	switch {
	case c.Kind == KindInvalid:
		e.running = 0
		f.Reset()
		e.err = &DesyncError{Reason: ReasonInvalidStatus, Byte: b}
		return ResultError
	case c.Kind == KindVariable && f.Len() > 1:
		if b == SysExEnd {
			return ResultComplete
		}
	case e.running == 0 && f.Len() == c.FrameLen():
		return ResultComplete
	}
	return ResultNext
}
