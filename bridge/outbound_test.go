package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"

	"github.com/leafo/midibridge/device"
)

type recordingWriter struct {
	err  error
	msgs [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.msgs = append(w.msgs, append([]byte(nil), p...))
	return len(p), nil
}

func TestOutboundQueuesAndFlushes(t *testing.T) {
	w := &recordingWriter{}
	o := NewOutbound(w, 2, 8, nil)

	assert.True(t, o.Send([]byte{0x90, 0x3C, 0x40}))
	assert.True(t, o.Send([]byte{0xF8}))
	assert.False(t, o.Send([]byte{0xFA}), "queue full")
	assert.False(t, o.Send([]byte{0xF0, 1, 2, 3, 4, 5, 6, 7, 0xF7}), "longer than a frame")

	assert.Equal(t, 2, o.Flush())
	assert.Equal(t, [][]byte{{0x90, 0x3C, 0x40}, {0xF8}}, w.msgs)
	assert.Equal(t, 0, o.Flush())

	assert.True(t, o.Send([]byte{0xFA}), "room again after flush")
	stats := o.Stats()
	assert.Equal(t, uint64(3), stats.Queued)
	assert.Equal(t, uint64(2), stats.Written)
	assert.Equal(t, uint64(2), stats.Dropped)
}

func TestOutboundWriteErrors(t *testing.T) {
	w := &recordingWriter{err: device.ErrNotOpen}
	o := NewOutbound(w, 4, 0, nil)
	require.True(t, o.Send([]byte{0xF8}))
	assert.Equal(t, 0, o.Flush())
	assert.Equal(t, uint64(1), o.Stats().Dropped)

	w.err = errors.New("io failure")
	require.True(t, o.Send([]byte{0xF8}))
	assert.Equal(t, 0, o.Flush())
	assert.Equal(t, uint64(1), o.Stats().Failed)
}

func TestValidMessage(t *testing.T) {
	tests := []struct {
		data  []byte
		valid bool
	}{
		{[]byte{0x90, 0x3C, 0x40}, true},
		{[]byte{0xC0, 0x05}, true},
		{[]byte{0xF8}, true},
		{[]byte{0xF0, 0x7E, 0x01, 0xF7}, true},
		{nil, false},
		{[]byte{0x3C, 0x40}, false},
		{[]byte{0x90, 0x3C}, false},
		{[]byte{0x90, 0x3C, 0x40, 0x3C, 0x40}, false},
		{[]byte{0x90, 0x3C, 0x90}, false},
		{[]byte{0xF0, 0x7E}, false},
		{[]byte{0xF0, 0x90, 0xF7}, false},
		{[]byte{0xF8, 0x00}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, validMessage(tt.data), "% x", tt.data)
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "NoteOn channel: 1, note: 60, velocity: 100",
		describe(midi.Message{0x90, 0x3C, 0x64}))
	assert.Contains(t, describe(midi.Message{0xB1, 0x07, 0x40}), "channel: 2, data: [7 64]")
	assert.NotContains(t, describe(midi.Message{0xF8}), "channel")
}
