// Package logging configures the module's slog output. Two consumers
// with conflicting needs share it: interactive CLI runs want readable
// text on stderr plus a JSON file for later inspection, while the MCP
// stdio server must keep stdout and stderr silent (stdout carries
// JSON-RPC frames) and log to file only. Log files live under the XDG
// state directory and are split per entry mode, server.log for the
// long-running tool server and index.log for standalone index runs, so
// the two never interleave.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// maxLogSize caps a log file before it is rolled to its ".old" sibling.
const maxLogSize = 10 << 20 // 10 MiB

// Options parameterizes Setup.
type Options struct {
	// Level is one of debug, info, warn, error; anything else means info.
	Level string
	// Path is the log file to append JSON records to. Empty disables
	// file output.
	Path string
	// Console additionally writes text records to stderr.
	Console bool
}

// Setup builds a logger per opts, installs it as the slog default, and
// returns it with a close function for the file writer.
func Setup(opts Options) (*slog.Logger, func(), error) {
	level := ParseLevel(opts.Level)

	var handlers []slog.Handler
	closer := func() {}

	if opts.Path != "" {
		w, err := newRollingFile(opts.Path, maxLogSize)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
		closer = func() { _ = w.Close() }
	}
	if opts.Console {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	var logger *slog.Logger
	switch len(handlers) {
	case 0:
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		logger = slog.New(handlers[0])
	default:
		logger = slog.New(fanoutHandler(handlers))
	}

	slog.SetDefault(logger)
	return logger, closer, nil
}

// Quiet sets up file-only logging for MCP stdio mode, where any write
// to stdout or stderr would corrupt the protocol stream.
func Quiet(level string) (*slog.Logger, func(), error) {
	return Setup(Options{Level: level, Path: ServerLogPath()})
}

// ParseLevel maps a config string to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

// Dir returns the log directory: $XDG_STATE_HOME/auggie-index on Linux
// conventions, falling back to ~/.local/state/auggie-index.
func Dir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "auggie-index")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "auggie-index-logs")
	}
	return filepath.Join(home, ".local", "state", "auggie-index")
}

// ServerLogPath is where the tool server logs.
func ServerLogPath() string {
	return filepath.Join(Dir(), "server.log")
}

// IndexLogPath is where standalone index runs log.
func IndexLogPath() string {
	return filepath.Join(Dir(), "index.log")
}

// fanout duplicates records to several handlers. slog has no built-in
// multi-handler, and the two sinks here want different formats, so a
// single io.MultiWriter would not do.
type fanout []slog.Handler

func fanoutHandler(hs []slog.Handler) slog.Handler { return fanout(hs) }

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
