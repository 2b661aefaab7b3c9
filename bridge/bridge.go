// Package bridge connects a MIDI device to a MIDI port: a producer loop reads
// the device into the frame queue and a consumer drains the queue into the
// port, while messages from the port are written back to the device.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leafo/midibridge/capture"
	"github.com/leafo/midibridge/config"
	"github.com/leafo/midibridge/device"
	"github.com/leafo/midibridge/midireader"
)

// ErrDeviceClosed stops Run when a device went away and kill-on-close is set.
var ErrDeviceClosed = errors.New("device closed")

// Port receives frames in delivery order. Reserve returns false when the
// port has no room; the frame is offered again later.
type Port interface {
	Reserve(data []byte) bool
}

// Stats of a running bridge
type Stats struct {
	Reader   midireader.Stats
	Outbound OutboundStats
}

type Bridge struct {
	log      *slog.Logger
	interval time.Duration

	reader  *midireader.Reader
	dev     *device.Writer
	watcher *device.Watcher
	out     *Outbound

	dumpFile *os.File
	capture  *capture.Writer
	session  atomic.Pointer[uuid.UUID]

	mu       sync.Mutex
	attached bool
	port     Port
}

// New builds a bridge from a validated configuration. Devices are opened by
// the first Step.
func New(cfg *config.Config, log *slog.Logger) (*Bridge, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	opts, err := cfg.ReaderOptions()
	if err != nil {
		return nil, err
	}
	interval, err := cfg.Interval()
	if err != nil {
		return nil, fmt.Errorf("invalid poll interval: %w", err)
	}

	b := &Bridge{
		log:      log,
		interval: interval,
	}

	if cfg.DumpFile != "" {
		if b.dumpFile, err = OpenDump(cfg.DumpFile); err != nil {
			return nil, err
		}
		if opts.Dumper, b.capture, err = NewDumper(cfg.DumpFormat, b.dumpFile); err != nil {
			b.dumpFile.Close()
			return nil, err
		}
	}
	opts.Logger = log

	b.reader = midireader.NewReader(opts)
	b.dev = &device.Writer{}
	b.out = NewOutbound(b.dev, opts.QueueCap, opts.MaxFrame, log)

	b.watcher = device.NewWatcher(b.reader, b.dev)
	b.watcher.Capture = cfg.CaptureDevice
	b.watcher.Playback = cfg.PlaybackDevice
	b.watcher.Options = device.Options{BaudRate: cfg.BaudRate}
	b.watcher.KillOnClose = cfg.KillOnClose
	b.watcher.Log = log
	b.watcher.OnCapture = b.beginSession

	if cfg.ReplayFile != "" {
		if err := b.replay(cfg.ReplayFile); err != nil {
			b.Close()
			return nil, err
		}
	}

	return b, nil
}

// replay feeds the frames of a capture file to the reader as one session.
func (b *Bridge) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()
	rd, err := capture.Replay(f)
	if err != nil {
		return err
	}
	b.reader.SetSource(rd)
	b.beginSession(path)
	return nil
}

func (b *Bridge) beginSession(path string) {
	id := uuid.New()
	if b.capture != nil {
		var err error
		if id, err = b.capture.BeginSession(path); err != nil {
			b.log.Warn("capture session not recorded", "err", err)
		}
	}
	b.session.Store(&id)
	b.log.Info("capture session started", "device", path, "session", id.String())
}

// Session returns the id of the current capture session, or uuid.Nil.
func (b *Bridge) Session() uuid.UUID {
	if id := b.session.Load(); id != nil {
		return *id
	}
	return uuid.Nil
}

// Attach marks a consumer as present. With a nil port the consumer drains
// from its own callback through Process; otherwise Step drains into port.
func (b *Bridge) Attach(port Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = true
	b.port = port
}

// Detach removes the consumer. Pending frames are dropped from then on.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = false
	b.port = nil
}

func (b *Bridge) consumer() (bool, Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached, b.port
}

// Process drains pending frames into port and returns how many it took.
// It never touches the device and is safe in a real-time callback.
func (b *Bridge) Process(port Port) int {
	return b.reader.Drain(port.Reserve)
}

// Send queues a message from the port for the playback device. It is safe
// in a real-time callback.
func (b *Bridge) Send(data []byte) bool {
	return b.out.Send(data)
}

// Step runs one producer cycle: device open/close, reading, delivery when a
// port is attached to the producer, and outbound writes.
func (b *Bridge) Step() error {
	if b.watcher.Check() {
		return ErrDeviceClosed
	}

	if _, err := b.reader.Advance(); err != nil {
		b.log.Warn("capture device read failed", "err", err, "session", b.Session().String())
		b.reader.Close()
	}

	attached, port := b.consumer()
	switch {
	case !attached:
		if n := b.reader.ClearQueue(); n > 0 {
			b.log.Debug("no port attached, frames dropped", "count", n)
		}
	case port != nil:
		b.Process(port)
	}

	b.out.Flush()
	return nil
}

// Run calls Step every poll interval until ctx is done or a device closes
// with kill-on-close set.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if err := b.Step(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (b *Bridge) Stats() Stats {
	return Stats{
		Reader:   b.reader.Stats(),
		Outbound: b.out.Stats(),
	}
}

// Close closes the devices and the dump file.
func (b *Bridge) Close() error {
	var errs []error
	if err := b.reader.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.dev.Close(); err != nil {
		errs = append(errs, err)
	}
	if b.dumpFile != nil {
		if err := b.dumpFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
