package bridge

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafo/midibridge/capture"
	"github.com/leafo/midibridge/config"
	"github.com/leafo/midibridge/midireader"
)

// fakePort takes up to room frames per Step.
type fakePort struct {
	room   int
	frames [][]byte
}

func (p *fakePort) Reserve(data []byte) bool {
	if p.room == 0 {
		return false
	}
	p.room--
	p.frames = append(p.frames, append([]byte(nil), data...))
	return true
}

func newDevice(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "umidi0.0")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestBridgeDeliversFrames(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureDevice = newDevice(t, []byte{0x90, 0x40, 0x7F, 0x3C, 0x7F, 0xF8, 0xF0, 0x01, 0xF7})

	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	port := &fakePort{room: 10}
	b.Attach(port)
	require.NoError(t, b.Step())

	assert.Equal(t, [][]byte{
		{0x90, 0x40, 0x7F, 0x3C, 0x7F},
		{0xF8},
		{0xF0, 0x01, 0xF7},
	}, port.frames)
	assert.Equal(t, uint64(3), b.Stats().Reader.Delivered)
}

func TestBridgeBackPressure(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureDevice = newDevice(t, []byte{0xF8, 0xFA, 0xFC})
	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	port := &fakePort{room: 1}
	b.Attach(port)
	require.NoError(t, b.Step())
	assert.Equal(t, [][]byte{{0xF8}}, port.frames)

	port.room = 5
	require.NoError(t, b.Step())
	assert.Equal(t, [][]byte{{0xF8}, {0xFA}, {0xFC}}, port.frames)
}

func TestBridgeCallbackConsumer(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureDevice = newDevice(t, []byte{0xFE})
	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	b.Attach(nil)
	require.NoError(t, b.Step())

	port := &fakePort{room: 4}
	assert.Equal(t, 1, b.Process(port))
	assert.Equal(t, [][]byte{{0xFE}}, port.frames)
}

func TestBridgeDropsWithoutPort(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureDevice = newDevice(t, []byte{0xF8, 0xF8})
	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Step())
	port := &fakePort{room: 4}
	assert.Equal(t, 0, b.Process(port))
	assert.Equal(t, uint64(2), b.Stats().Reader.Frames)
}

func TestBridgeWritesOutbound(t *testing.T) {
	cfg := config.Default()
	cfg.PlaybackDevice = newDevice(t, nil)
	b, err := New(cfg, nil)
	require.NoError(t, err)

	assert.True(t, b.Send([]byte{0x90, 0x3C, 0x40}))
	assert.False(t, b.Send([]byte{0x90, 0x3C}), "truncated message")
	require.NoError(t, b.Step())
	require.NoError(t, b.Close())

	data, err := os.ReadFile(cfg.PlaybackDevice)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x3C, 0x40}, data)

	stats := b.Stats().Outbound
	assert.Equal(t, uint64(1), stats.Written)
	assert.Equal(t, uint64(1), stats.Invalid)
}

func TestBridgeCaptureFile(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureDevice = newDevice(t, []byte{0x90, 0x3C, 0x40, 0xF8})
	cfg.DumpFile = filepath.Join(t.TempDir(), "session.cbor")
	cfg.DumpFormat = config.DumpCBOR
	cfg.Skip = []string{"0xF8"}

	b, err := New(cfg, nil)
	require.NoError(t, err)
	b.Attach(&fakePort{room: 4})
	require.NoError(t, b.Step())
	require.NoError(t, b.Close())

	f, err := os.Open(cfg.DumpFile)
	require.NoError(t, err)
	defer f.Close()
	recs, err := capture.ReadAll(f)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, capture.KindSession, recs[0].Kind)
	assert.Equal(t, cfg.CaptureDevice, recs[0].Device)
	id, err := recs[1].SessionID()
	require.NoError(t, err)
	assert.Equal(t, b.Session(), id)
	assert.Equal(t, [][]byte{{0x90, 0x3C, 0x40}}, capture.Frames(recs))
}

func TestBridgeKillOnClose(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureDevice = filepath.Join(t.TempDir(), "missing")
	cfg.KillOnClose = true
	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.ErrorIs(t, b.Step(), ErrDeviceClosed)
	assert.ErrorIs(t, b.Run(context.Background()), ErrDeviceClosed)
}

func TestBridgeRunStops(t *testing.T) {
	cfg := config.Default()
	cfg.CaptureDevice = filepath.Join(t.TempDir(), "missing")
	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.Run(ctx))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.Default(), nil)
	assert.Error(t, err)

	cfg := config.Default()
	cfg.CaptureDevice = "/dev/null"
	cfg.DumpFile = "300"
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "descriptor")
}

func TestNewDumper(t *testing.T) {
	var buf bytes.Buffer
	d, cw, err := NewDumper(config.DumpHex, &buf)
	require.NoError(t, err)
	assert.Nil(t, cw)
	require.NoError(t, d.DumpFrame(1, []byte{0x90, 0x0A, 0x7F}))
	assert.Equal(t, "90 a 7f\n", buf.String())

	d, cw, err = NewDumper(config.DumpCBOR, &buf)
	require.NoError(t, err)
	assert.Same(t, cw, d.(*capture.Writer))

	d, _, err = NewDumper("", &buf)
	require.NoError(t, err)
	assert.IsType(t, midireader.RawDumper{}, d)

	_, _, err = NewDumper("xml", &buf)
	assert.Error(t, err)
}

func TestBridgeReplaysCapture(t *testing.T) {
	var buf bytes.Buffer
	w := capture.NewWriter(&buf)
	_, err := w.BeginSession("/dev/umidi0.0")
	require.NoError(t, err)
	require.NoError(t, w.DumpFrame(1, []byte{0xF0, 0x01, 0xF7}))
	require.NoError(t, w.DumpFrame(2, []byte{0xFA}))

	cfg := config.Default()
	cfg.ReplayFile = filepath.Join(t.TempDir(), "take1.cbor")
	require.NoError(t, os.WriteFile(cfg.ReplayFile, buf.Bytes(), 0600))

	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.NotEqual(t, uuid.Nil, b.Session())

	port := &fakePort{room: 4}
	b.Attach(port)
	require.NoError(t, b.Step())
	assert.Equal(t, [][]byte{{0xF0, 0x01, 0xF7}, {0xFA}}, port.frames)

	cfg.ReplayFile = filepath.Join(t.TempDir(), "missing.cbor")
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "replay file")
}
