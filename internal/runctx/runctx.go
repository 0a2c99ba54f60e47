// internal/runctx/runctx.go
package runctx

import (
	"log/slog"

	"github.com/google/uuid"

	"automlsa/internal/state"
)

// Env is the explicit per-run context handed to every stage: the run
// directory layout and the logger, plus a fresh invocation ID so log
// lines from resumed runs stay attributable. It replaces any global
// mutable state.
type Env struct {
	RunID      string // operator-chosen run name
	Invocation string // unique per process invocation
	Layout     state.Layout
	Log        *slog.Logger
}

// New builds an Env with a fresh invocation UUID.
func New(lay state.Layout, log *slog.Logger) *Env {
	inv := uuid.NewString()
	return &Env{
		RunID:      lay.RunID,
		Invocation: inv,
		Layout:     lay,
		Log:        log.With("invocation", inv[:8]),
	}
}
