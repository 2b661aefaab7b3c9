package midireader

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"gitlab.com/gomidi/midi/v2"
)

// Options configure a Reader. Zero values select the defaults.
type Options struct {
	MaxFrame     int // bytes per frame
	QueueCap     int // frames in the queue
	BufSize      int // source read chunk
	Skip         *SkipSet
	Expand       bool // split running status frames
	ShortRuns    bool // one data byte per repeat for 2-byte messages
	ExpandPolicy ExpandPolicy
	Dumper       Dumper
	Logger       *slog.Logger
}

// Stats are running counters of a Reader
type Stats struct {
	Frames     uint64 // queued for delivery
	Delivered  uint64
	Skipped    uint64
	Desync     uint64
	Capacity   uint64 // expansion did not fit
	DumpErrors uint64
	IOErrors   uint64
}

// Reader turns the bytes of a MIDI device into frames for a real-time
// consumer.
//
// Two roles share a Reader. The producer calls Advance (or GetNext),
// SetSource and Close from a non real-time goroutine. The consumer calls
// Drain from the real-time callback; Drain never reads the device and never
// allocates. mu guards the engine, the frame being built and the queue;
// every critical section handles a single byte or frame. ioMu serializes
// device reads against SetSource and Close and is never taken by Drain.
type Reader struct {
	opts Options
	log  *slog.Logger

	ioMu sync.Mutex
	src  *Source

	mu     sync.Mutex
	engine *Engine
	cur    *Frame
	queue  *Queue
	seq    uint64
	stats  Stats

	// producer owned scratch frames
	out  *Frame
	dump *Frame
}

// NewReader returns a Reader without source. Call SetSource once the device
// is open.
func NewReader(opts Options) *Reader {
	if opts.MaxFrame <= 0 {
		opts.MaxFrame = DefaultMaxFrame
	}
	if opts.QueueCap <= 0 {
		opts.QueueCap = DefaultQueueCap
	}
	if opts.BufSize <= 0 {
		opts.BufSize = DefaultBufSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	engine := NewEngine(nil)
	engine.ShortRuns = opts.ShortRuns
	return &Reader{
		opts:   opts,
		log:    log,
		engine: engine,
		cur:    NewFrame(opts.MaxFrame),
		queue:  NewQueue(opts.QueueCap, opts.MaxFrame),
		out:    NewFrame(opts.MaxFrame),
		dump:   NewFrame(opts.MaxFrame),
	}
}

// SetSource starts a new device session reading from rd. The partial frame
// and running status are dropped; queued frames are kept. A previous source
// is closed.
func (r *Reader) SetSource(rd io.Reader) {
	src := NewSource(rd, r.opts.BufSize)
	if old := r.currentSource(); old != nil {
		_ = old.Close()
	}

	r.ioMu.Lock()
	defer r.ioMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src = src
	r.engine.SetSource(src)
	r.cur.Reset()
}

func (r *Reader) currentSource() *Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src
}

// Close closes the source. Frames already queued can still be drained.
func (r *Reader) Close() error {
	src := r.currentSource()
	if src == nil {
		return nil
	}
	// Marking the source closed first turns reads in flight into no-data.
	err := src.Close()

	r.ioMu.Lock()
	defer r.ioMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	src.reset()
	r.engine.Reset()
	r.cur.Reset()
	return err
}

// Closed reports whether there is no open source.
func (r *Reader) Closed() bool {
	src := r.currentSource()
	return src == nil || src.Closed()
}

// Advance reads what the device has available and queues every frame it
// completes, until the device has no more data or the queue is full. It
// reports whether a frame is pending. A non-nil error is an *IOError.
func (r *Reader) Advance() (bool, error) {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()

	debug := r.log.Enabled(context.Background(), slog.LevelDebug)
	src := r.src
	for src != nil {
		if src.Buffered() == 0 {
			// The read happens without mu so Drain never waits on the device.
			n, err := src.Fill()
			if err != nil {
				r.mu.Lock()
				r.stats.IOErrors++
				r.mu.Unlock()
				return r.Pending() > 0, err
			}
			if n == 0 {
				break
			}
		}

		r.mu.Lock()
		if r.queue.Full() {
			r.mu.Unlock()
			break
		}
		ev := event{res: r.engine.Push(r.cur)}
		switch ev.res {
		case ResultComplete:
			r.finishLocked(&ev, debug)
		case ResultError:
			r.stats.Desync++
			ev.err = r.engine.Err()
		case ResultIOError:
			r.stats.IOErrors++
			ev.err = r.engine.Err()
		}
		r.mu.Unlock()

		// Logging and dumping run without mu so Drain never waits on them.
		r.report(ev, debug)
		if ev.res == ResultIOError {
			return r.Pending() > 0, ev.err
		}
		if ev.res == ResultNoData {
			break
		}
	}
	return r.Pending() > 0, nil
}

// event is what one engine step did, recorded under mu and reported after.
type event struct {
	res     Result
	err     error
	seq     uint64
	overlen int  // length of a frame expansion could not split
	kept    bool // r.dump holds the frame
}

// finishLocked runs skip filtering and expansion on the completed frame and
// queues it. The frame is copied to r.dump when it will be logged or dumped.
func (r *Reader) finishLocked(ev *event, debug bool) {
	f := r.cur
	defer f.Reset()

	if r.opts.Skip.Contains(f.Status()) {
		r.stats.Skipped++
		ev.res = ResultSkipped
		if debug {
			r.dump.CopyFrom(f)
			ev.kept = true
		}
		return
	}
	if r.opts.Expand {
		if err := ExpandRunningGroups(f, dataGroup(f.Status(), r.opts.ShortRuns)); err != nil {
			r.stats.Capacity++
			ev.err, ev.overlen = err, f.Len()
			if r.opts.ExpandPolicy == ExpandDrop {
				ev.res = ResultSkipped
				return
			}
		}
	}

	slot := r.queue.Reserve()
	slot.CopyFrom(f)
	r.queue.Commit()
	r.seq++
	r.stats.Frames++
	ev.seq = r.seq
	if debug || r.opts.Dumper != nil {
		r.dump.CopyFrom(f)
		ev.kept = true
	}
}

func (r *Reader) report(ev event, debug bool) {
	if ev.res == ResultError {
		r.log.Debug("midi frame dropped", "err", ev.err)
		return
	}
	if ev.overlen > 0 {
		r.log.Warn("running status frame not expanded",
			"err", ev.err, "len", ev.overlen, "policy", r.opts.ExpandPolicy)
	}
	if !ev.kept {
		return
	}
	frame := r.dump.Bytes()
	switch ev.res {
	case ResultSkipped:
		r.log.Debug("midi frame skipped", "frame", FormatHex(frame))
	case ResultComplete:
		if debug {
			r.log.Debug("midi frame read", "seq", ev.seq,
				"frame", FormatHex(frame), "msg", midi.Message(frame).String())
		}
		if r.opts.Dumper != nil {
			r.dumpFrame(ev.seq)
		}
	}
}

func (r *Reader) dumpFrame(seq uint64) {
	if err := r.opts.Dumper.DumpFrame(seq, r.dump.Bytes()); err != nil {
		r.mu.Lock()
		r.stats.DumpErrors++
		r.mu.Unlock()
		r.log.Warn("midi frame dump failed", "seq", seq, "err", err)
	}
}

// GetNext advances the reader and returns the next pending frame, or nil.
// The frame is a copy owned by the Reader and valid until the next call.
func (r *Reader) GetNext() (*Frame, error) {
	_, err := r.Advance()

	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.queue.Pop()
	if f == nil {
		return nil, err
	}
	r.out.CopyFrom(f)
	r.stats.Delivered++
	return r.out, err
}

// Drain hands pending frames to fn in delivery order until fn returns false
// or nothing is pending. A frame refused by fn stays pending. data is only
// valid during the call. Drain is safe for real-time use.
func (r *Reader) Drain(fn func(data []byte) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for f := r.queue.Peek(); f != nil; f = r.queue.Peek() {
		if !fn(f.Bytes()) {
			break
		}
		r.queue.Pop()
		n++
	}
	r.stats.Delivered += uint64(n)
	return n
}

// Pending returns the number of frames waiting for the consumer.
func (r *Reader) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Pending()
}

// ClearQueue drops pending frames, for when no consumer is attached.
func (r *Reader) ClearQueue() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.queue.Pending()
	r.queue.Clear()
	return n
}

func (r *Reader) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
