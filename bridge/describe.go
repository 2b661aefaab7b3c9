package bridge

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"

	"github.com/leafo/midibridge/midireader"
)

// describe creates a log line for a MIDI message, e.g.
// "NoteOn channel: 1, note: 60, velocity: 100"
func describe(msg midi.Message) string {
	messageType := msg.Type().String()

	if hasChannelInfo(msg) {
		channel := (msg[0] & 0x0F) + 1

		var ch, key, velocity uint8
		if msg.GetNoteOn(&ch, &key, &velocity) || msg.GetNoteOff(&ch, &key, &velocity) {
			return fmt.Sprintf("%s channel: %d, note: %d, velocity: %d", messageType, channel, key, velocity)
		}
		if len(msg) > 1 {
			return fmt.Sprintf("%s channel: %d, data: %v", messageType, channel, []byte(msg[1:]))
		}
		return fmt.Sprintf("%s channel: %d", messageType, channel)
	}

	if len(msg) > 1 {
		return fmt.Sprintf("%s data: %v", messageType, []byte(msg[1:]))
	}
	return messageType
}

// hasChannelInfo checks if a message has channel information (0x80-0xEF)
func hasChannelInfo(msg midi.Message) bool {
	return len(msg) > 0 && midireader.IsChannelVoice(msg[0])
}

// validMessage checks that data is one complete MIDI message as the graph
// delivers them: a status byte followed by exactly the data bytes its class
// requires, or a terminated system exclusive.
func validMessage(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	class := midireader.Classify(data[0])
	switch class.Kind {
	case midireader.KindFixed, midireader.KindRealTime:
		if len(data) != class.FrameLen() {
			return false
		}
	case midireader.KindVariable:
		if len(data) < 2 || data[len(data)-1] != midireader.SysExEnd {
			return false
		}
	default:
		return false
	}
	body := data[1:]
	if class.Kind == midireader.KindVariable {
		body = data[1 : len(data)-1]
	}
	for _, b := range body {
		if midireader.IsStatus(b) {
			return false
		}
	}
	return true
}
