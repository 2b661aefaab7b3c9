package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "capture_device":  {"type": "string"},
    "playback_device": {"type": "string"},
    "replay_file":     {"type": "string"},
    "baud_rate":       {"type": "integer", "minimum": 0, "maximum": 4000000},
    "port_name":       {"type": "string", "maxLength": 64},
    "sink":            {"enum": ["jack", "rtmidi"]},
    "user":            {"type": "string"},
    "kill_on_close":   {"type": "boolean"},
    "debug":           {"type": "boolean"},
    "expand":          {"type": "boolean"},
    "expand_policy":   {"enum": ["", "pass", "drop"]},
    "short_runs":      {"type": "boolean"},
    "skip": {
      "type": "array",
      "items": {"type": "string", "pattern": "^(0[xX][0-9a-fA-F]{1,2}|[0-9]{1,3})$"}
    },
    "dump_file":       {"type": "string"},
    "dump_format":     {"enum": ["", "raw", "hex", "cbor"]},
    "max_frame":       {"type": "integer", "minimum": 4, "maximum": 1024},
    "queue_capacity":  {"type": "integer", "minimum": 1, "maximum": 65536},
    "buffer_size":     {"type": "integer", "minimum": 1, "maximum": 65536},
    "poll_interval":   {"type": "string", "pattern": "^[0-9.]+(ns|us|µs|ms|s)$"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// validateSchema checks a JSON document against the configuration schema
func validateSchema(document []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, fmt.Sprintf("  - %s", desc))
		}
		return fmt.Errorf("invalid config:\n%s", strings.Join(details, "\n"))
	}
	return nil
}
