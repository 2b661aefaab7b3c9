package main

import (
	"fmt"
	"log/slog"

	"github.com/xthexder/go-jack"

	"github.com/leafo/midibridge/bridge"
	"github.com/leafo/midibridge/config"
)

// jackSink is a JACK client with a .TX port carrying device frames and a .RX
// port carrying messages for the device.
type jackSink struct {
	client *jack.Client
	tx, rx *jack.Port
	bridge *bridge.Bridge

	// state of the current process cycle
	buf     jack.MidiBuffer
	event   jack.MidiData
	nframes uint32
}

func openJack(cfg *config.Config, b *bridge.Bridge, logger *slog.Logger, shutdown func()) (*jackSink, error) {
	client, status := jack.ClientOpen(cfg.Port(), jack.NoStartServer)
	if status != 0 {
		return nil, fmt.Errorf("failed to open JACK client: %w", jack.StrError(status))
	}

	s := &jackSink{client: client, bridge: b}

	if code := client.SetProcessCallback(s.process); code != 0 {
		client.Close()
		return nil, fmt.Errorf("could not register JACK process callback: %w", jack.StrError(code))
	}
	client.OnShutdown(func() {
		logger.Warn("JACK server shut down")
		b.Detach()
		shutdown()
	})

	flags := uint64(jack.PortIsPhysical) | uint64(jack.PortIsTerminal)
	if cfg.Captures() {
		if s.tx = client.PortRegister(".TX", jack.DEFAULT_MIDI_TYPE, uint64(jack.PortIsOutput)|flags, 0); s.tx == nil {
			client.Close()
			return nil, fmt.Errorf("could not register JACK output port")
		}
	}
	if cfg.PlaybackDevice != "" {
		if s.rx = client.PortRegister(".RX", jack.DEFAULT_MIDI_TYPE, uint64(jack.PortIsInput)|flags, 0); s.rx == nil {
			client.Close()
			return nil, fmt.Errorf("could not register JACK input port")
		}
	}

	b.Attach(nil)
	if code := client.Activate(); code != 0 {
		b.Detach()
		client.Close()
		return nil, fmt.Errorf("cannot activate JACK client: %w", jack.StrError(code))
	}
	return s, nil
}

// process runs in the JACK real-time thread.
func (s *jackSink) process(nframes uint32) int {
	if nframes == 0 {
		return 0
	}
	if s.tx != nil {
		s.buf = s.tx.MidiClearBuffer(nframes)
		s.nframes = nframes
		s.event.Time = 0
		s.bridge.Process(s)
	}
	if s.rx != nil {
		for _, event := range s.rx.GetMidiEvents(nframes) {
			s.bridge.Send(event.Buffer)
		}
	}
	return 0
}

// Reserve writes one frame into the output buffer of the current cycle.
func (s *jackSink) Reserve(data []byte) bool {
	s.event.Buffer = data
	if s.tx.MidiEventWrite(&s.event, s.buf) != 0 {
		return false
	}
	// Frames keep their order on consecutive sample offsets.
	if s.event.Time < s.nframes-1 {
		s.event.Time++
	}
	return true
}

func (s *jackSink) Close() error {
	if code := s.client.Close(); code != 0 {
		return fmt.Errorf("failed to close JACK client: %w", jack.StrError(code))
	}
	return nil
}
