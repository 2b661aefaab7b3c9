package midireader

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SkipSet is a set of status bytes whose frames are dropped
type SkipSet struct {
	set [256]bool
	n   int
}

// NewSkipSet returns a set holding the given status bytes.
func NewSkipSet(status ...byte) *SkipSet {
	s := &SkipSet{}
	for _, b := range status {
		s.Add(b)
	}
	return s
}

func (s *SkipSet) Add(b byte) {
	if !s.set[b] {
		s.set[b] = true
		s.n++
	}
}

// Contains reports whether frames starting with b must be skipped. A nil set
// contains nothing.
func (s *SkipSet) Contains(b byte) bool {
	return s != nil && s.set[b]
}

func (s *SkipSet) Len() int {
	if s == nil {
		return 0
	}
	return s.n
}

// Bytes returns the members in ascending order.
func (s *SkipSet) Bytes() []byte {
	if s == nil {
		return nil
	}
	out := make([]byte, 0, s.n)
	for i, ok := range s.set {
		if ok {
			out = append(out, byte(i))
		}
	}
	return out
}

// ParseStatusByte parses a status byte written in decimal, 0x hex or 0 octal.
func ParseStatusByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad status byte %q: %w", s, err)
	}
	return byte(v), nil
}

// ParseSkipSet builds a set from textual status bytes.
func ParseSkipSet(values []string) (*SkipSet, error) {
	s := NewSkipSet()
	for _, v := range values {
		b, err := ParseStatusByte(v)
		if err != nil {
			return nil, err
		}
		s.Add(b)
	}
	return s, nil
}

// ExpandRunning rewrites a running status frame (status byte followed by
// data pairs) into consecutive canonical 3-byte messages. Frames that are
// not channel voice, already canonical, or have an odd tail are left alone.
// If the result would not fit, ErrCapacity is returned and f is unchanged.
//
// Two-byte messages (program change, channel pressure) are also split in
// pairs; use ExpandRunningGroups for one data byte per repeat.
func ExpandRunning(f *Frame) error {
	return ExpandRunningGroups(f, 2)
}

// ExpandRunningGroups is ExpandRunning with group data bytes per repeated
// message.
func ExpandRunningGroups(f *Frame, group int) error {
	n := f.Len()
	status := f.Status()
	if group < 1 || !IsChannelVoice(status) || n <= group+1 || (n-1)%group != 0 {
		return nil
	}
	count := (n - 1) / group
	size := group + 1
	if count*size > f.Cap() {
		return ErrCapacity
	}
	// Work backwards so no group is overwritten before it is read.
	for i := count - 1; i >= 0; i-- {
		src := 1 + group*i
		dst := size * i
		copy(f.data[dst+1:dst+size], f.data[src:src+group])
		f.data[dst] = status
	}
	f.n = count * size
	return nil
}

// dataGroup returns how many data bytes each repeat of status carries in a
// running status frame.
func dataGroup(status byte, shortRuns bool) int {
	if shortRuns && Classify(status).Kind == KindFixed && Classify(status).Len == 2 {
		return 1
	}
	return 2
}

// ExpandPolicy decides what happens to a frame that cannot be expanded
type ExpandPolicy int

const (
	ExpandPass ExpandPolicy = iota // deliver unexpanded
	ExpandDrop                     // discard
)

func (p ExpandPolicy) String() string {
	if p == ExpandDrop {
		return "drop"
	}
	return "pass"
}

// ParseExpandPolicy accepts "pass" (or "") and "drop".
func ParseExpandPolicy(s string) (ExpandPolicy, error) {
	switch strings.ToLower(s) {
	case "", "pass":
		return ExpandPass, nil
	case "drop":
		return ExpandDrop, nil
	}
	return ExpandPass, fmt.Errorf("unknown expand policy %q", s)
}

// Dumper receives a copy of every delivered frame. It must not keep data.
type Dumper interface {
	DumpFrame(seq uint64, data []byte) error
}

// RawDumper writes frames byte for byte.
type RawDumper struct {
	W io.Writer
}

func (d RawDumper) DumpFrame(_ uint64, data []byte) error {
	_, err := d.W.Write(data)
	return err
}

// HexDumper writes one line of hex bytes per frame.
type HexDumper struct {
	W io.Writer
}

func (d HexDumper) DumpFrame(_ uint64, data []byte) error {
	_, err := io.WriteString(d.W, FormatHex(data)+"\n")
	return err
}

// FormatHex renders data as space separated hex bytes.
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%x", b)
	}
	return sb.String()
}
