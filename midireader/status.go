package midireader

// Kind is the length classification of a candidate status byte
type Kind uint8

const (
	KindInvalid  Kind = iota // cannot start a message
	KindFixed                // channel voice / system common with a known length
	KindVariable             // system exclusive, ends with 0xF7
	KindRealTime             // single byte, outside running status
)

func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindVariable:
		return "variable"
	case KindRealTime:
		return "realtime"
	default:
		return "invalid"
	}
}

// Class is the classification of one status byte
type Class struct {
	Kind Kind
	Len  int // total message length for KindFixed, 1 for KindRealTime
}

// FrameLen returns the expected length of a single message, or 0 when the
// length is not known in advance.
func (c Class) FrameLen() int {
	switch c.Kind {
	case KindFixed, KindRealTime:
		return c.Len
	default:
		return 0
	}
}

const (
	SysExStart = 0xF0
	SysExEnd   = 0xF7
)

var statusTable = buildStatusTable()

func buildStatusTable() (t [256]Class) {
	for b := 0x80; b <= 0xEF; b++ {
		switch b & 0xF0 {
		case 0xC0, 0xD0: // program change, channel pressure
			t[b] = Class{KindFixed, 2}
		default: // note off/on, aftertouch, control change, pitch bend
			t[b] = Class{KindFixed, 3}
		}
	}
	t[0xF0] = Class{KindVariable, 0}
	t[0xF1] = Class{KindFixed, 2} // MTC quarter frame
	t[0xF2] = Class{KindFixed, 3} // song position
	t[0xF3] = Class{KindFixed, 2} // song select
	for b := 0xF4; b <= 0xFF; b++ {
		t[b] = Class{KindRealTime, 1}
	}
	return t
}

// Classify returns the classification of b taken as a status byte.
func Classify(b byte) Class {
	return statusTable[b]
}

// IsStatus reports whether b has its high bit set.
func IsStatus(b byte) bool {
	return b&0x80 != 0
}

// IsChannelVoice reports whether b is a channel voice or mode status byte,
// the only ones that arm running status.
func IsChannelVoice(b byte) bool {
	return b >= 0x80 && b <= 0xEF
}
