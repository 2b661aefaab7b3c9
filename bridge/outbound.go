package bridge

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/leafo/midibridge/device"
	"github.com/leafo/midibridge/midireader"
)

// OutboundStats are counters of messages from the graph to the device
type OutboundStats struct {
	Queued  uint64
	Written uint64
	Invalid uint64 // malformed messages refused by Send
	Dropped uint64 // queue full, too long, or no device
	Failed  uint64 // device write errors
}

// Outbound carries messages from the graph to the playback device. Send is
// called from the real-time callback and only copies into a preallocated
// queue; Flush writes to the device from the producer.
type Outbound struct {
	dev io.Writer
	log *slog.Logger

	mu      sync.Mutex
	queue   *midireader.Queue
	stats   OutboundStats
	scratch *midireader.Frame
}

func NewOutbound(dev io.Writer, capacity, maxFrame int, log *slog.Logger) *Outbound {
	if maxFrame <= 0 {
		maxFrame = midireader.DefaultMaxFrame
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Outbound{
		dev:     dev,
		log:     log,
		queue:   midireader.NewQueue(capacity, maxFrame),
		scratch: midireader.NewFrame(maxFrame),
	}
}

// Send queues one message for the device. It returns false when the message
// is malformed or cannot be queued.
func (o *Outbound) Send(data []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !validMessage(data) {
		o.stats.Invalid++
		return false
	}
	slot := o.queue.Reserve()
	if slot == nil {
		o.stats.Dropped++
		return false
	}
	slot.Reset()
	for _, b := range data {
		if !slot.Append(b) {
			slot.Reset()
			o.stats.Dropped++
			return false
		}
	}
	o.queue.Commit()
	o.stats.Queued++
	return true
}

// Flush writes queued messages to the device and returns how many were
// written.
func (o *Outbound) Flush() int {
	n := 0
	for {
		o.mu.Lock()
		f := o.queue.Pop()
		if f == nil {
			o.mu.Unlock()
			return n
		}
		o.scratch.CopyFrom(f)
		o.mu.Unlock()

		data := o.scratch.Bytes()
		_, err := o.dev.Write(data)

		o.mu.Lock()
		switch {
		case err == nil:
			o.stats.Written++
			n++
		case errors.Is(err, device.ErrNotOpen), errors.Is(err, device.ErrBusy):
			o.stats.Dropped++
		default:
			o.stats.Failed++
		}
		o.mu.Unlock()

		if err != nil {
			o.log.Debug("midi message not written", "msg", describe(midi.Message(data)), "err", err)
		} else {
			o.log.Debug("midi message written", "msg", describe(midi.Message(data)))
		}
	}
}

func (o *Outbound) Stats() OutboundStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}
