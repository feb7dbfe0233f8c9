// Package logging builds the application logger. The terminal belongs to the
// UI, so log output goes to a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

const prefix = "todome"

// ParseLevel maps a config level name to a log.Level. Empty means info.
func ParseLevel(v string) (log.Level, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return log.InfoLevel, nil
	}
	lvl, err := log.ParseLevel(strings.ToLower(v))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("parsing log level %q: %w", v, err)
	}
	return lvl, nil
}

// New returns a logger writing to w.
func New(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          prefix,
		ReportTimestamp: true,
		Formatter:       log.LogfmtFormatter,
	})
}

// OpenFile opens (appending) the log file at path and returns a logger on it.
// The returned closer closes the file.
func OpenFile(path, level string) (*log.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return New(f, lvl), f, nil
}

// Discard is a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
