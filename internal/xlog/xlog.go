// Package xlog provides a small leveled, key-value logger in the call-site
// idiom the teacher's own log package uses throughout its storage layer
// (logger.Warn("message", "key1", val1, "key2", val2)). The teacher's log
// package itself is not a third-party dependency and its source was not part
// of the retrieval pack, so this wraps the standard library's slog, which
// natively supports the same structured key-value call shape.
package xlog

import (
	"log/slog"
	"os"
)

// Logger is a narrow leveled logger bound to a fixed set of context fields,
// mirroring the teacher's log.New("database", path, "table", name) pattern.
type Logger struct {
	s *slog.Logger
}

// Root is the process-wide default logger, writing text-formatted records to
// stderr. Components that need scoped context should call New instead.
var Root = New()

// New creates a Logger with the given alternating key/value context pairs
// attached to every subsequent record, just as the teacher's log.New does.
func New(ctx ...any) *Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{s: slog.New(h).With(ctx...)}
}

func (l *Logger) Debug(msg string, ctx ...any) { l.s.Debug(msg, ctx...) }
func (l *Logger) Info(msg string, ctx ...any)  { l.s.Info(msg, ctx...) }
func (l *Logger) Warn(msg string, ctx ...any)  { l.s.Warn(msg, ctx...) }
func (l *Logger) Error(msg string, ctx ...any) { l.s.Error(msg, ctx...) }

// New returns a child logger with additional context fields appended.
func (l *Logger) New(ctx ...any) *Logger {
	return &Logger{s: l.s.With(ctx...)}
}
