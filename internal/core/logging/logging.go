// Package logging builds the service root logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Name is the root logger name. Components log through Named sub-loggers.
const Name = "segmenter"

// New creates the root logger writing to stderr.
// level is one of trace, debug, info, warn, error; format is json or text.
func New(level, format string) (hclog.Logger, error) {
	return NewWithOutput(level, format, os.Stderr)
}

// NewWithOutput creates the root logger writing to w.
func NewWithOutput(level, format string, w io.Writer) (hclog.Logger, error) {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level %q (expected trace, debug, info, warn or error)", level)
	}

	var jsonFormat bool
	switch strings.ToLower(format) {
	case "json":
		jsonFormat = true
	case "text", "":
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json or text)", format)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       Name,
		Level:      lvl,
		Output:     w,
		JSONFormat: jsonFormat,
	}), nil
}
