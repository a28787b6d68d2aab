// Package logger is a thin key/value front end over log/slog shared by the
// daemon, the admin CLI and the HTTP middleware.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Setup replaces the process logger. format is "text" or "json".
func Setup(w io.Writer, format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(h)
	current.Store(l)
	return l
}

// L returns the process logger.
func L() *slog.Logger { return current.Load() }

func Debug(msg string, kv ...any) { L().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { L().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { L().Warn(msg, kv...) }
func Error(msg string, kv ...any) { L().Error(msg, kv...) }
