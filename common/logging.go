// Package common holds build identity and shared logging setup.
package common

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// PackageName tags logs and metrics namespaces.
const PackageName = "mediastore"

// Version is injected at build time.
var Version = "dev"

// LoggingOpts configures SetupLogger.
type LoggingOpts struct {
	// Debug enables debug-level messages.
	Debug bool
	// JSON switches from the colored console handler to JSON output.
	JSON bool
	// Service is added as a tag to all log messages.
	Service string
	// Version is added as a tag to all log messages.
	Version string
}

// SetupLogger builds the process-wide slog logger.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
