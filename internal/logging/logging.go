// Package logging wires [log/slog] for the docqa binary and server.
// [New] builds the root logger once at startup; request-scoped loggers
// travel in the context via [WithLogger] and come back out with
// [FromContext].
//
// Two environment variables control the output:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// contextKey keeps this package's context value private.
type contextKey struct{}

// New builds the root [*slog.Logger] from LOG_LEVEL and LOG_FORMAT.
// JSON output is the default; set LOG_FORMAT=text for something readable
// in a terminal.
func New() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// WithLogger stores logger in the returned context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext retrieves the logger placed in ctx by [WithLogger]. A context
// without one yields [slog.Default], never nil.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// parseLevel maps a LOG_LEVEL string to a [slog.Level]. Unknown values
// fall back to Info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
