package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafo/midibridge/midireader"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, `{"capture_device": "/dev/umidi0.0", "expand": true, "skip": ["0xF8", "254"]}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, SinkJack, cfg.Sink)
	assert.Equal(t, midireader.DefaultMaxFrame, cfg.MaxFrame)
	assert.True(t, cfg.Expand)
	assert.Equal(t, "midibridge_umidi0.0", cfg.Port())

	opts, err := cfg.ReaderOptions()
	require.NoError(t, err)
	assert.True(t, opts.Skip.Contains(0xF8))
	assert.True(t, opts.Skip.Contains(0xFE))
	assert.Equal(t, midireader.ExpandPass, opts.ExpandPolicy)

	d, err := cfg.Interval()
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, d)
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	tests := map[string]string{
		"unknown field":  `{"capture_device": "/dev/x", "colour": "red"}`,
		"bad sink":       `{"capture_device": "/dev/x", "sink": "alsa"}`,
		"frame too big":  `{"capture_device": "/dev/x", "max_frame": 4096}`,
		"bad skip":       `{"capture_device": "/dev/x", "skip": ["note-on"]}`,
		"bad dump":       `{"capture_device": "/dev/x", "dump_format": "xml"}`,
		"wrong type":     `{"capture_device": 5}`,
		"bad interval":   `{"capture_device": "/dev/x", "poll_interval": "often"}`,
		"invalid policy": `{"capture_device": "/dev/x", "expand_policy": "truncate"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content))
			assert.Error(t, err)
		})
	}
}

func TestValidateStructure(t *testing.T) {
	cfg := Default()
	assert.ErrorContains(t, Validate(cfg), "missing device path")

	cfg.PlaybackDevice = "/dev/umidi0.0"
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "midibridge_umidi0.0", cfg.Port())

	cfg.DumpFile = "/tmp/dump"
	assert.ErrorContains(t, Validate(cfg), "capture device")

	cfg.CaptureDevice = "/dev/umidi0.0"
	require.NoError(t, Validate(cfg))

	cfg.Skip = []string{"300"}
	assert.Error(t, Validate(cfg))
	cfg.Skip = nil

	cfg.PollInterval = "0s"
	assert.Error(t, Validate(cfg))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.CaptureDevice = "/dev/ttyUSB0"
	cfg.BaudRate = 31250
	cfg.PortName = "synth"
	cfg.Skip = []string{"0xFE"}

	path := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, "synth", loaded.Port())
}

func TestValidateReplay(t *testing.T) {
	cfg := Default()
	cfg.ReplayFile = "/var/tmp/session.cbor"
	cfg.DumpFile = "2"
	require.NoError(t, Validate(cfg))
	assert.True(t, cfg.Captures())
	assert.Equal(t, "midibridge_session", cfg.Port())

	cfg.CaptureDevice = "/dev/umidi0.0"
	assert.ErrorContains(t, Validate(cfg), "exclusive")
}
