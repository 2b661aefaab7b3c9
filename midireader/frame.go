package midireader

const (
	DefaultMaxFrame = 128
	MinMaxFrame     = 4
	MaxMaxFrame     = 1024
)

// Frame is one MIDI message being built or already complete. Once Len() > 0
// the first byte is the status byte that governs the whole frame.
type Frame struct {
	data []byte
	n    int
}

// NewFrame returns an empty frame holding at most max bytes.
func NewFrame(max int) *Frame {
	f := &Frame{}
	f.init(max)
	return f
}

func (f *Frame) init(max int) {
	f.data = make([]byte, max)
	f.n = 0
}

func (f *Frame) Len() int { return f.n }
func (f *Frame) Cap() int { return len(f.data) }

// Full reports whether no byte can be appended.
func (f *Frame) Full() bool { return f.n >= len(f.data) }

// Bytes returns the frame content. The slice aliases the frame and is only
// valid until the frame is reused.
func (f *Frame) Bytes() []byte {
	return f.data[:f.n]
}

// Status returns the status byte, or 0 for an empty frame.
func (f *Frame) Status() byte {
	if f.n == 0 {
		return 0
	}
	return f.data[0]
}

func (f *Frame) Reset() {
	f.n = 0
	if len(f.data) > 0 {
		f.data[0] = 0
	}
}

// Append adds b and reports false when the frame is full.
func (f *Frame) Append(b byte) bool {
	if f.Full() {
		return false
	}
	f.data[f.n] = b
	f.n++
	return true
}

// CopyFrom replaces the content of f with the content of src, truncated to
// f's capacity.
func (f *Frame) CopyFrom(src *Frame) {
	f.n = copy(f.data, src.Bytes())
}
