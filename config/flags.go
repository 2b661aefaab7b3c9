package config

import (
	"flag"
	"strings"
)

// skipFlag collects repeated -f values
type skipFlag []string

func (s *skipFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *skipFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Flags are the command-line options. Only flags given explicitly override
// the configuration file.
type Flags struct {
	ConfigFile string
	SaveConfig string

	fs           *flag.FlagSet
	device       string
	capture      string
	playback     string
	replay       string
	user         string
	portName     string
	dump         string
	dumpHex      string
	dumpCBOR     string
	sink         string
	expandPolicy string
	pollInterval string
	kill         bool
	debug        bool
	expand       bool
	shortRuns    bool
	baudRate     int
	maxFrame     int
	skip         skipFlag
}

// RegisterFlags defines the options on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigFile, "config", "", "Load configuration from specified file")
	fs.StringVar(&f.SaveConfig, "save-config", "", "Save the effective configuration to specified file and exit (- for stdout)")

	fs.StringVar(&f.device, "d", "", "set capture and playback device")
	fs.StringVar(&f.capture, "C", "", "set capture device only")
	fs.StringVar(&f.playback, "P", "", "set playback device only")
	fs.StringVar(&f.replay, "replay", "", "read frames from a CBOR capture `file` instead of a capture device")
	fs.StringVar(&f.user, "U", "", "attach to this user")
	fs.BoolVar(&f.kill, "k", false, "terminate if a device goes away")
	fs.StringVar(&f.portName, "n", "", "port name: default is "+portPrefix+"_<device>")
	fs.BoolVar(&f.debug, "g", false, "show frames (debug mode)")
	fs.BoolVar(&f.expand, "x", false, "expand running status MIDI frames")
	fs.Var(&f.skip, "f", "filter-out frames with status byte `n` (repeatable)")
	fs.StringVar(&f.dump, "m", "", "dump frames to `file` (descriptor or path)")
	fs.StringVar(&f.dumpHex, "M", "", "dump frames to `file` (descriptor or path), hex mode")
	fs.StringVar(&f.dumpCBOR, "capture", "", "dump frames to `file` (descriptor or path) as CBOR records")

	fs.StringVar(&f.sink, "sink", "", "port backend: jack or rtmidi")
	fs.StringVar(&f.expandPolicy, "expand-policy", "", "frames too long to expand: pass or drop")
	fs.BoolVar(&f.shortRuns, "short-runs", false, "accept one data byte per repeat for 2-byte running status messages")
	fs.IntVar(&f.baudRate, "baud", 0, "open devices as serial ports at this baud rate")
	fs.IntVar(&f.maxFrame, "max-frame", 0, "maximum frame length in bytes")
	fs.StringVar(&f.pollInterval, "poll", "", "device poll interval, e.g. 1ms")
	return f
}

// Apply copies the explicitly set flags into config.
func (f *Flags) Apply(config *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "d":
			config.CaptureDevice = f.device
			config.PlaybackDevice = f.device
		case "C":
			config.CaptureDevice = f.capture
		case "P":
			config.PlaybackDevice = f.playback
		case "replay":
			config.ReplayFile = f.replay
		case "U":
			config.User = f.user
		case "k":
			config.KillOnClose = f.kill
		case "n":
			config.PortName = f.portName
		case "g":
			config.Debug = f.debug
		case "x":
			config.Expand = f.expand
		case "f":
			config.Skip = append(config.Skip, f.skip...)
		case "m":
			config.DumpFile, config.DumpFormat = f.dump, DumpRaw
		case "M":
			config.DumpFile, config.DumpFormat = f.dumpHex, DumpHex
		case "capture":
			config.DumpFile, config.DumpFormat = f.dumpCBOR, DumpCBOR
		case "sink":
			config.Sink = f.sink
		case "expand-policy":
			config.ExpandPolicy = f.expandPolicy
		case "short-runs":
			config.ShortRuns = f.shortRuns
		case "baud":
			config.BaudRate = f.baudRate
		case "max-frame":
			config.MaxFrame = f.maxFrame
		case "poll":
			config.PollInterval = f.pollInterval
		}
	})
}
