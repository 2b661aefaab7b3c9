// Package config holds the bridge configuration, loaded from a JSON file
// and overridden by command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leafo/midibridge/midireader"
)

const (
	SinkJack   = "jack"
	SinkRtMidi = "rtmidi"

	DumpRaw  = "raw"
	DumpHex  = "hex"
	DumpCBOR = "cbor"

	DefaultPollInterval = time.Millisecond
	portPrefix          = "midibridge"
)

// Config represents the complete bridge configuration
type Config struct {
	CaptureDevice  string   `json:"capture_device,omitempty"`  // device read from
	PlaybackDevice string   `json:"playback_device,omitempty"` // device written to
	ReplayFile     string   `json:"replay_file,omitempty"`     // capture file read in place of a device
	BaudRate       int      `json:"baud_rate,omitempty"`       // open devices as serial ports when set
	PortName       string   `json:"port_name,omitempty"`
	Sink           string   `json:"sink"`
	User           string   `json:"user,omitempty"`
	KillOnClose    bool     `json:"kill_on_close"`
	Debug          bool     `json:"debug"`
	Expand         bool     `json:"expand"`
	ExpandPolicy   string   `json:"expand_policy,omitempty"`
	ShortRuns      bool     `json:"short_runs"`
	Skip           []string `json:"skip,omitempty"` // status bytes, decimal or 0x hex
	DumpFile       string   `json:"dump_file,omitempty"`
	DumpFormat     string   `json:"dump_format,omitempty"`
	MaxFrame       int      `json:"max_frame"`
	QueueCapacity  int      `json:"queue_capacity"`
	BufferSize     int      `json:"buffer_size"`
	PollInterval   string   `json:"poll_interval"`
}

// Default returns a configuration with every tunable at its default.
func Default() *Config {
	return &Config{
		Sink:          SinkJack,
		ExpandPolicy:  midireader.ExpandPass.String(),
		DumpFormat:    DumpRaw,
		MaxFrame:      midireader.DefaultMaxFrame,
		QueueCapacity: midireader.DefaultQueueCap,
		BufferSize:    midireader.DefaultBufSize,
		PollInterval:  DefaultPollInterval.String(),
	}
}

// Load loads configuration from a JSON file on top of the defaults
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := validateSchema(data); err != nil {
		return nil, err
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a JSON file, or to stdout if filename is
// empty
func Save(config *Config, filename string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if filename == "" {
		fmt.Println(string(data))
		return nil
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration against the schema and the rules the
// schema cannot express.
func Validate(config *Config) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := validateSchema(data); err != nil {
		return err
	}

	if config.CaptureDevice == "" && config.PlaybackDevice == "" && config.ReplayFile == "" {
		return fmt.Errorf("missing device path")
	}
	if config.ReplayFile != "" && config.CaptureDevice != "" {
		return fmt.Errorf("replay file and capture device are exclusive")
	}
	if config.DumpFile != "" && !config.Captures() {
		return fmt.Errorf("dump file requires a capture device")
	}
	if _, err := config.SkipSet(); err != nil {
		return err
	}
	if len(config.Skip) > 254 {
		return fmt.Errorf("too many skipped status bytes (%d)", len(config.Skip))
	}
	if _, err := midireader.ParseExpandPolicy(config.ExpandPolicy); err != nil {
		return err
	}
	if d, err := config.Interval(); err != nil || d <= 0 {
		return fmt.Errorf("invalid poll interval %q", config.PollInterval)
	}
	return nil
}

// Captures reports whether frames are read, from a device or a replay file.
func (c *Config) Captures() bool {
	return c.CaptureDevice != "" || c.ReplayFile != ""
}

// SkipSet parses the skipped status bytes.
func (c *Config) SkipSet() (*midireader.SkipSet, error) {
	return midireader.ParseSkipSet(c.Skip)
}

// Interval returns the producer poll interval.
func (c *Config) Interval() (time.Duration, error) {
	if c.PollInterval == "" {
		return DefaultPollInterval, nil
	}
	return time.ParseDuration(c.PollInterval)
}

// Port returns the audio-graph client name: the configured one, or one
// derived from the device path.
func (c *Config) Port() string {
	if c.PortName != "" {
		return c.PortName
	}
	name := c.CaptureDevice
	if name == "" {
		name = c.PlaybackDevice
	}
	if name == "" {
		base := filepath.Base(c.ReplayFile)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return portPrefix + "_" + strings.TrimPrefix(name, "/dev/")
}

// ReaderOptions converts the configuration to reader options. Dumper and
// Logger are left to the caller.
func (c *Config) ReaderOptions() (midireader.Options, error) {
	skip, err := c.SkipSet()
	if err != nil {
		return midireader.Options{}, err
	}
	policy, err := midireader.ParseExpandPolicy(c.ExpandPolicy)
	if err != nil {
		return midireader.Options{}, err
	}
	return midireader.Options{
		MaxFrame:     c.MaxFrame,
		QueueCap:     c.QueueCapacity,
		BufSize:      c.BufferSize,
		Skip:         skip,
		Expand:       c.Expand,
		ShortRuns:    c.ShortRuns,
		ExpandPolicy: policy,
	}, nil
}
