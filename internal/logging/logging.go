// Package logging installs charmbracelet/log as the process-wide slog
// handler for the binaries.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
)

// Setup configures the default charm logger and routes slog through it.
// JSON output is meant for CloudWatch, text for terminals.
func Setup(w io.Writer, level slog.Level, json bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
	}
	if json {
		opts.Formatter = log.JSONFormatter
	}

	logger := log.NewWithOptions(w, opts)
	log.SetDefault(logger)
	slog.SetDefault(slog.New(logger))
	return logger
}
