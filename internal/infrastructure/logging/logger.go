package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/calebren/fieldcomm-core/internal/infrastructure/config"
)

// Logger is the structured logger shared across the pipeline. It embeds
// slog.Logger, so the full slog API (Debug/Info/Warn/Error with key-value
// pairs) is available directly, with the service identity and version
// stamped on every record.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of the configuration.
//
// Format selects the handler: "text" for development, anything else gets
// JSON. Output is "stderr" or "stdout" (the default). Unrecognised levels
// fall back to info rather than failing start-up.
func New(cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	out := resolveOutput(cfg.Output)

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "fieldcomm"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// With returns a child logger carrying additional default attributes, for
// per-component loggers like With("source", "mqtt-primary").
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON/info/stdout logger for the window before the
// configuration file has been loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

func resolveOutput(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
