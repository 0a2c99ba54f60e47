package checkpoint

import (
	"errors"
	"path/filepath"
	"testing"

	"automlsa/internal/logging"
	"automlsa/internal/state"
)

func TestValid(t *testing.T) {
	for _, s := range Order {
		if !Valid(s) {
			t.Fatalf("stage %q should be valid", s)
		}
	}
	if Valid("blast") {
		t.Fatal("unknown stage accepted")
	}
}

func TestNewRejectsUnknownStop(t *testing.T) {
	m := state.NewMarkers(t.TempDir())
	if _, err := New(m, logging.Discard(), "nope"); err == nil {
		t.Fatal("expected error for unknown stop stage")
	}
	if _, err := New(m, logging.Discard(), ""); err != nil {
		t.Fatalf("empty stop stage: %v", err)
	}
}

func TestMarkReachedIdempotent(t *testing.T) {
	m := state.NewMarkers(filepath.Join(t.TempDir(), "checkpoint"))
	c, err := New(m, logging.Discard(), "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Reached(StageSearch) {
		t.Fatal("fresh run claims the search stage is done")
	}
	if err := c.MarkReached(StageSearch); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkReached(StageSearch); err != nil {
		t.Fatal(err)
	}
	if !c.Reached(StageSearch) {
		t.Fatal("marker not visible")
	}
}

func TestStop(t *testing.T) {
	m := state.NewMarkers(t.TempDir())
	c, err := New(m, logging.Discard(), StageFilter)
	if err != nil {
		t.Fatal(err)
	}
	if !c.StopRequested(StageFilter) || c.StopRequested(StageSearch) {
		t.Fatal("StopRequested wrong")
	}
	stopErr := c.Stop("filter done")
	var se *StopError
	if !errors.As(stopErr, &se) || se.Reason != "filter done" {
		t.Fatalf("Stop = %v", stopErr)
	}
}
