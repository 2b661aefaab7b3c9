package device

import (
	"io"
	"log/slog"
)

// Source receives the capture device. *midireader.Reader implements it.
type Source interface {
	SetSource(r io.Reader)
	Close() error
	Closed() bool
}

// Sink receives the playback device. *Writer implements it.
type Sink interface {
	SetDevice(w io.WriteCloser)
	Close() error
	Closed() bool
}

// Watcher opens the configured devices when they are closed and closes them
// once their node disappears. Check is called periodically by the producer.
type Watcher struct {
	Capture     string // empty when not capturing
	Playback    string // empty when not playing back
	Options     Options
	KillOnClose bool
	Log         *slog.Logger

	// OnCapture is called after the capture device was (re)opened.
	OnCapture func(path string)

	src  Source
	sink Sink

	present func(path string) bool
	warned  map[string]bool
}

func NewWatcher(src Source, sink Sink) *Watcher {
	return &Watcher{
		src:     src,
		sink:    sink,
		present: Present,
		warned:  make(map[string]bool),
		Log:     slog.New(slog.DiscardHandler),
	}
}

// Check runs one open/close cycle. It returns true when KillOnClose is set
// and a configured device is not open.
func (w *Watcher) Check() bool {
	if w.duplex() {
		w.checkDuplex()
	} else {
		if w.Capture != "" {
			w.checkCapture()
		}
		if w.Playback != "" {
			w.checkPlayback()
		}
	}
	return w.KillOnClose && w.Lost()
}

// Lost reports whether a configured device is not open.
func (w *Watcher) Lost() bool {
	return (w.Capture != "" && w.src.Closed()) || (w.Playback != "" && w.sink.Closed())
}

func (w *Watcher) duplex() bool {
	return w.Capture != "" && w.Capture == w.Playback
}

func (w *Watcher) checkCapture() {
	if !w.src.Closed() {
		if !w.present(w.Capture) {
			w.Log.Warn("capture device gone", "device", w.Capture)
			w.src.Close()
		}
		return
	}
	rc, err := OpenCapture(w.Capture, w.Options)
	if err != nil {
		w.openFailed(w.Capture, err)
		return
	}
	w.opened(w.Capture, "capture")
	w.src.SetSource(rc)
	if w.OnCapture != nil {
		w.OnCapture(w.Capture)
	}
}

func (w *Watcher) checkPlayback() {
	if !w.sink.Closed() {
		if !w.present(w.Playback) {
			w.Log.Warn("playback device gone", "device", w.Playback)
			w.sink.Close()
		}
		return
	}
	wc, err := OpenPlayback(w.Playback, w.Options)
	if err != nil {
		w.openFailed(w.Playback, err)
		return
	}
	w.opened(w.Playback, "playback")
	w.sink.SetDevice(wc)
}

// checkDuplex treats one node used in both directions as a unit: when
// either side is lost both are reopened through a single handle.
func (w *Watcher) checkDuplex() {
	if !w.src.Closed() && !w.sink.Closed() {
		if !w.present(w.Capture) {
			w.Log.Warn("device gone", "device", w.Capture)
			w.src.Close()
			w.sink.Close()
		}
		return
	}
	w.src.Close()
	w.sink.Close()

	rwc, err := OpenDuplex(w.Capture, w.Options)
	if err != nil {
		w.openFailed(w.Capture, err)
		return
	}
	w.opened(w.Capture, "duplex")
	w.src.SetSource(rwc)
	// The capture side owns the handle.
	w.sink.SetDevice(nopCloser{rwc})
	if w.OnCapture != nil {
		w.OnCapture(w.Capture)
	}
}

func (w *Watcher) openFailed(path string, err error) {
	if w.warned[path] {
		return
	}
	w.warned[path] = true
	if w.Options.Serial() {
		ports, _ := Ports()
		w.Log.Warn("serial port not available", "device", path, "err", err, "ports", ports)
		return
	}
	w.Log.Warn("device not available", "device", path, "err", err)
}

func (w *Watcher) opened(path, mode string) {
	w.warned[path] = false
	w.Log.Info("device opened", "device", path, "mode", mode, "serial", w.Options.Serial())
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
