// internal/checkpoint/checkpoint.go
package checkpoint

import (
	"fmt"
	"log/slog"

	"automlsa/internal/state"
)

// The fixed pipeline stages, in dependency order.
const (
	StageNormalize = "normalize-genomes"
	StageSearch    = "search"
	StageFilter    = "filter"
	StageAlign     = "align"
	StageTree      = "build-tree"
)

// Order is the fixed stage sequence; invalidating stage i implies
// clearing markers for every later stage.
var Order = []string{StageNormalize, StageSearch, StageFilter, StageAlign, StageTree}

// Valid reports whether name is a known stage.
func Valid(name string) bool {
	for _, s := range Order {
		if s == name {
			return true
		}
	}
	return false
}

// StopError is the distinguished intermediate-stop condition: the run
// halted on purpose at a stage boundary and resuming is just re-invoking
// the pipeline. It is not a failure.
type StopError struct {
	Reason string
}

func (e *StopError) Error() string { return "stopped: " + e.Reason }

// Controller persists stage-reached markers and honors one optional
// operator-requested stop. The marker state machine per stage is
// not-reached -> reached, reversed only by the invalidation engine.
type Controller struct {
	markers *state.Markers
	log     *slog.Logger
	stopAt  string // stage name, or ""
}

func New(markers *state.Markers, log *slog.Logger, stopAt string) (*Controller, error) {
	if stopAt != "" && !Valid(stopAt) {
		return nil, fmt.Errorf("checkpoint: unknown stage %q", stopAt)
	}
	return &Controller{markers: markers, log: log, stopAt: stopAt}, nil
}

// Reached reports whether the stage completed in some prior run and was
// not invalidated since.
func (c *Controller) Reached(stage string) bool { return c.markers.Has(stage) }

// MarkReached records stage completion. Idempotent.
func (c *Controller) MarkReached(stage string) error {
	if c.markers.Has(stage) {
		return nil
	}
	c.log.Debug("checkpoint reached", "stage", stage)
	return c.markers.Set(stage)
}

// StopRequested reports whether the operator asked to stop at stage.
func (c *Controller) StopRequested(stage string) bool { return c.stopAt == stage }

// Stop logs the reason and returns the intermediate-stop condition for
// the caller to unwind with. Only called at stage boundaries.
func (c *Controller) Stop(reason string) error {
	c.log.Info("checkpoint reached, stopping", "reason", reason)
	return &StopError{Reason: reason}
}
