package main

import (
	"errors"
	"fmt"
	"log/slog"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/leafo/midibridge/bridge"
	"github.com/leafo/midibridge/config"
)

// rtmidiSink exposes the device as virtual MIDI ports. The producer drains
// frames into the virtual out, so no real-time callback is involved.
type rtmidiSink struct {
	drv    *rtmididrv.Driver
	out    drivers.Out
	in     drivers.In
	send   func(midi.Message) error
	stop   func()
	bridge *bridge.Bridge
	log    *slog.Logger
}

func openRtMidi(cfg *config.Config, b *bridge.Bridge, logger *slog.Logger) (*rtmidiSink, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create MIDI driver: %w", err)
	}
	s := &rtmidiSink{drv: drv, bridge: b, log: logger}

	if cfg.Captures() {
		s.out, err = drv.OpenVirtualOut(cfg.Port() + ".TX")
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create virtual output: %w", err)
		}
		s.send, err = midi.SendTo(s.out)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create sender: %w", err)
		}
	}

	if cfg.PlaybackDevice != "" {
		s.in, err = drv.OpenVirtualIn(cfg.Port() + ".RX")
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create virtual input: %w", err)
		}
		s.stop, err = midi.ListenTo(s.in, func(msg midi.Message, timestampms int32) {
			if !b.Send(msg) {
				logger.Debug("midi message refused", "msg", msg.String())
			}
		}, midi.UseSysEx())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start listening: %w", err)
		}
	}

	if s.send != nil {
		b.Attach(s)
	} else {
		b.Attach(nil)
	}
	return s, nil
}

// Reserve sends one frame. A frame the port rejects is logged and dropped so
// it cannot hold back the queue.
func (s *rtmidiSink) Reserve(data []byte) bool {
	if err := s.send(midi.Message(data)); err != nil {
		s.log.Warn("error sending to virtual output", "err", err)
	}
	return true
}

func (s *rtmidiSink) Close() error {
	s.bridge.Detach()
	if s.stop != nil {
		s.stop()
	}
	var errs []error
	if s.in != nil {
		errs = append(errs, s.in.Close())
	}
	if s.out != nil {
		errs = append(errs, s.out.Close())
	}
	errs = append(errs, s.drv.Close())
	return errors.Join(errs...)
}
