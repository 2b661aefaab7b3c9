// Package capture stores delivered MIDI frames in a CBOR stream so a device
// session can be inspected or replayed later.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Kind of a capture record
type Kind uint8

const (
	KindSession Kind = 1 // a device session starts
	KindFrame   Kind = 2 // one delivered frame
)

// Record is one entry of a capture stream
type Record struct {
	Kind    Kind   `cbor:"1,keyasint"`
	Session []byte `cbor:"2,keyasint"`
	Seq     uint64 `cbor:"3,keyasint,omitempty"`
	Time    int64  `cbor:"4,keyasint"` // unix nanoseconds
	Data    []byte `cbor:"5,keyasint,omitempty"`
	Device  string `cbor:"6,keyasint,omitempty"`
}

// SessionID decodes the session uuid of the record.
func (r *Record) SessionID() (uuid.UUID, error) {
	id, err := uuid.FromBytes(r.Session)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad session id: %w", err)
	}
	return id, nil
}

// Writer appends records to a capture stream. It implements
// midireader.Dumper.
type Writer struct {
	mu      sync.Mutex
	enc     *cbor.Encoder
	session uuid.UUID
	now     func() time.Time
}

// NewWriter returns a Writer encoding to w. Frames dumped before the first
// BeginSession belong to a random session.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		enc:     cbor.NewEncoder(w),
		session: uuid.New(),
		now:     time.Now,
	}
}

// BeginSession starts a new session for device and returns its id.
func (w *Writer) BeginSession(device string) (uuid.UUID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.session = uuid.New()
	rec := Record{
		Kind:    KindSession,
		Session: w.session[:],
		Time:    w.now().UnixNano(),
		Device:  device,
	}
	if err := w.enc.Encode(&rec); err != nil {
		return w.session, fmt.Errorf("failed to write session record: %w", err)
	}
	return w.session, nil
}

// Session returns the id of the current session.
func (w *Writer) Session() uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

func (w *Writer) DumpFrame(seq uint64, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec := Record{
		Kind:    KindFrame,
		Session: w.session[:],
		Seq:     seq,
		Time:    w.now().UnixNano(),
		Data:    data,
	}
	if err := w.enc.Encode(&rec); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", seq, err)
	}
	return nil
}

// Reader decodes a capture stream.
type Reader struct {
	dec *cbor.Decoder
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return &rec, nil
}

// ReadAll decodes every record of r.
func ReadAll(r io.Reader) ([]*Record, error) {
	cr := NewReader(r)
	var out []*Record
	for {
		rec, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Frames returns the frame payloads of recs in order, which is the byte
// stream the device produced minus skipped and malformed messages.
func Frames(recs []*Record) [][]byte {
	var out [][]byte
	for _, rec := range recs {
		if rec.Kind == KindFrame {
			out = append(out, rec.Data)
		}
	}
	return out
}

// Replay reads a capture stream and returns the recorded frames as one byte
// stream, for feeding a reader in place of a device.
func Replay(r io.Reader) (io.Reader, error) {
	recs, err := ReadAll(r)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, frame := range Frames(recs) {
		buf.Write(frame)
	}
	return bytes.NewReader(buf.Bytes()), nil
}
