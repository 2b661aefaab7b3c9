package midireader

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// chunkReader returns one scripted chunk per Read and (0, nil) once the
// script is exhausted, like a non-blocking device with nothing to say.
type chunkReader struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error // returned after the chunks, when set
	reads  int
	closed bool
}

func newChunkReader(chunks ...[]byte) *chunkReader {
	return &chunkReader{chunks: chunks}
}

func (c *chunkReader) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.closed {
		return 0, errors.New("read on closed device")
	}
	if len(c.chunks) == 0 {
		return 0, c.err
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *chunkReader) add(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
}

func (c *chunkReader) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// deadlineReader records read deadlines.
type deadlineReader struct {
	*bytes.Reader
	deadlines []time.Time
}

func (d *deadlineReader) SetReadDeadline(t time.Time) error {
	d.deadlines = append(d.deadlines, t)
	return nil
}

// step is one engine result together with the frame content after the push
type step struct {
	res   Result
	frame []byte
}

// pushAll feeds every byte of data to a fresh engine, one Push per byte
// plus the pushes needed to replay pushed back bytes, and returns the steps
// up to the first ResultNoData.
func pushAll(e *Engine, f *Frame) []step {
	var steps []step
	for i := 0; i < 10000; i++ {
		res := e.Push(f)
		if res == ResultNoData {
			return steps
		}
		steps = append(steps, step{res, append([]byte(nil), f.Bytes()...)})
		if res == ResultComplete {
			f.Reset()
		}
	}
	panic("engine did not run out of data")
}

// completed returns the frames of steps that completed.
func completed(steps []step) [][]byte {
	var out [][]byte
	for _, s := range steps {
		if s.res == ResultComplete {
			out = append(out, s.frame)
		}
	}
	return out
}

func results(steps []step) []Result {
	out := make([]Result, len(steps))
	for i, s := range steps {
		out[i] = s.res
	}
	return out
}

func newTestEngine(data []byte) (*Engine, *Frame) {
	return NewEngine(NewSource(bytes.NewReader(data), 0)), NewFrame(DefaultMaxFrame)
}

// tailReader returns its data together with err in a single Read, like a
// device that fails right after delivering its last bytes.
type tailReader struct {
	data []byte
	err  error
}

func (t *tailReader) Read(p []byte) (int, error) {
	if len(t.data) == 0 {
		return 0, t.err
	}
	n := copy(p, t.data)
	t.data = t.data[n:]
	return n, t.err
}

// stallWriter blocks every Write until release is closed. entered is closed
// by the first Write.
type stallWriter struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newStallWriter() *stallWriter {
	return &stallWriter{entered: make(chan struct{}), release: make(chan struct{})}
}

func (w *stallWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.entered) })
	<-w.release
	return len(p), nil
}
