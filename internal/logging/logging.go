// internal/logging/logging.go
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Options pick the stderr verbosity; the run log file always gets DEBUG,
// so a support request can include full detail regardless of flags.
type Options struct {
	Debug bool
	Quiet bool
}

func (o Options) stderrLevel() slog.Level {
	switch {
	case o.Debug:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// New builds the run logger: text to stderr at the chosen level plus,
// when logPath is non-empty, a DEBUG copy appended to the run log file.
// The returned closer flushes and closes the log file.
func New(stderr io.Writer, logPath string, o Options) (*slog.Logger, func() error, error) {
	hs := []slog.Handler{
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: o.stderrLevel()}),
	}
	closer := func() error { return nil }
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		hs = append(hs, slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closer = f.Close
	}
	return slog.New(fanout(hs)), closer, nil
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fanoutHandler struct{ hs []slog.Handler }

func fanout(hs []slog.Handler) slog.Handler {
	if len(hs) == 1 {
		return hs[0]
	}
	return &fanoutHandler{hs: hs}
}

func (f *fanoutHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f.hs {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, rec slog.Record) error {
	var first error
	for _, h := range f.hs {
		if h.Enabled(ctx, rec.Level) {
			if err := h.Handle(ctx, rec.Clone()); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		out[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{hs: out}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		out[i] = h.WithGroup(name)
	}
	return &fanoutHandler{hs: out}
}
