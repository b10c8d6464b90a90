package common

import (
	"log/slog"
	"os"
)

// LoggingOpts configures the process-wide structured logger.
type LoggingOpts struct {
	// Debug lowers the handler level to slog.LevelDebug.
	Debug bool

	// JSON selects the JSON handler instead of text.
	JSON bool

	// Service is added as a "service" attribute to every record when set.
	Service string

	// Version is added as a "version" attribute to every record when set.
	Version string
}

// SetupLogger builds the slog.Logger used across the service. All components
// receive this logger (or a child of it) through their constructors; nothing
// in the codebase logs through slog.Default.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	} else {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}

	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}

	return log
}
