// Package log provides the broker's structured logging convention:
// message + alternating key/value pairs, the same calling shape used
// throughout the teacher's peer and connection code (p.Logger.Debug("msg",
// "key", val)). It is a thin wrapper over go-kit/log so every component
// gets logfmt output by default without depending on go-kit directly.
package log

import (
	"os"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the interface every long-lived component holds.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

type logger struct {
	base kitlog.Logger
}

// NewLogfmt builds a Logger that writes logfmt lines to stderr, filtered by
// level (one of "debug", "info", "error"; anything else defaults to
// "info").
func NewLogfmt(levelName string) Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	base = kitlog.With(base, "ts", kitlog.TimestampFormat(time.Now, time.RFC3339))

	var filter level.Option
	switch levelName {
	case "debug":
		filter = level.AllowDebug()
	case "error":
		filter = level.AllowError()
	default:
		filter = level.AllowInfo()
	}
	return &logger{base: level.NewFilter(base, filter)}
}

// Nop returns a Logger that discards everything; useful in tests.
func Nop() Logger {
	return &logger{base: kitlog.NewNopLogger()}
}

func (l *logger) Debug(msg string, keyvals ...any) {
	_ = level.Debug(l.base).Log(append([]any{"msg", msg}, keyvals...)...)
}

func (l *logger) Info(msg string, keyvals ...any) {
	_ = level.Info(l.base).Log(append([]any{"msg", msg}, keyvals...)...)
}

func (l *logger) Error(msg string, keyvals ...any) {
	_ = level.Error(l.base).Log(append([]any{"msg", msg}, keyvals...)...)
}

func (l *logger) With(keyvals ...any) Logger {
	return &logger{base: kitlog.With(l.base, keyvals...)}
}
