package bridge

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/leafo/midibridge/capture"
	"github.com/leafo/midibridge/config"
	"github.com/leafo/midibridge/midireader"
)

// OpenDump opens the dump target. A target starting with a digit is an
// already open file descriptor, anything else a path that is truncated.
func OpenDump(target string) (*os.File, error) {
	if target == "" {
		return nil, fmt.Errorf("empty dump file")
	}
	if target[0] >= '0' && target[0] <= '9' {
		fd, err := strconv.ParseUint(target, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("bad dump file descriptor %q", target)
		}
		return os.NewFile(uintptr(fd), "fd"+target), nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to open dump file: %w", err)
	}
	return f, nil
}

// NewDumper returns the dumper for format. The capture writer is returned as
// well for the cbor format so sessions can be recorded.
func NewDumper(format string, w io.Writer) (midireader.Dumper, *capture.Writer, error) {
	switch format {
	case "", config.DumpRaw:
		return midireader.RawDumper{W: w}, nil, nil
	case config.DumpHex:
		return midireader.HexDumper{W: w}, nil, nil
	case config.DumpCBOR:
		cw := capture.NewWriter(w)
		return cw, cw, nil
	}
	return nil, nil, fmt.Errorf("unknown dump format %q", format)
}
