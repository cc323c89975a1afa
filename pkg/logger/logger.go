package logger

import (
	"log/slog"
	"os"
)

// Setup configures the global logger for the given environment and returns it.
// Production gets JSON output at info level; everything else gets human-readable
// text at debug level. The returned logger is also installed as the slog default
// so library packages that log via the package-level functions inherit it.
func Setup(env, service string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	slog.SetDefault(logger)

	return logger
}
