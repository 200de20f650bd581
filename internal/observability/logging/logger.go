package logging

import (
	"io"
	"log/slog"
	"strings"
)

// NewJSONLogger is the server logger: one JSON object per line tagged with
// the service name.
func NewJSONLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler).With("service", service)
}

// NewCLILogger writes key=value lines without timestamps. An empty level
// means warn so command output stays readable.
func NewCLILogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelWarn
	if strings.TrimSpace(level) != "" {
		lvl = ParseLevel(level)
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(handler)
}

func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "warning":
		lvl = slog.LevelWarn
	default:
		if err := lvl.UnmarshalText([]byte(s)); err != nil {
			lvl = slog.LevelInfo
		}
	}
	return lvl
}
