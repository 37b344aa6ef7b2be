// Package logging configures logrus for the server's components.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger, Entry, and Fields re-export the underlying logrus types so the
// rest of the server does not import logrus in every file.
type Logger = logrus.Logger
type Entry = logrus.Entry
type Fields = logrus.Fields

// New builds a logger writing to out at the given level. Format selects the
// formatter: "json" for machine-readable output, anything else for text.
// An unparseable level falls back to info rather than failing startup.
func New(level, format string, out io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// Named creates an entry carrying the shared component field, so every line
// a component writes can be traced back to it.
func Named(l *Logger, component string) *Entry {
	entry := logrus.NewEntry(l)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return entry
}

// OpenFile opens a log file for appending, creating parent directories as
// needed. The stdio transport reserves stdout for JSON-RPC framing, so its
// logs must go to stderr, a file, or both.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
