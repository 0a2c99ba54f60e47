// internal/invalidate/invalidate.go
package invalidate

import (
	"fmt"
	"log/slog"
	"os"

	"automlsa/internal/checkpoint"
	"automlsa/internal/state"
)

// Tag names an invalidation category. Each tag maps to a fixed list of
// derived artifacts and downstream checkpoint markers; raw inputs
// (normalized genomes, blast/*.tab tables) and the identity/fingerprint
// registries are never in scope.
type Tag string

const (
	TagGenome Tag = "genome"
	TagQuery  Tag = "query"
	TagFilter Tag = "filter"
)

// Engine purges downstream caches in response to a change signal.
// Missing files are silent no-ops: invalidation is purely additive in
// effect and calling it when nothing needs removal does nothing.
type Engine struct {
	lay     state.Layout
	log     *slog.Logger
	markers *state.Markers // checkpoint markers
	updated *state.Markers // per-run fired-category sentinels
}

func New(lay state.Layout, log *slog.Logger, markers, updated *state.Markers) *Engine {
	return &Engine{lay: lay, log: log, markers: markers, updated: updated}
}

// Invalidate removes every cached artifact and checkpoint marker the tag
// covers and records the category under updated/.
func (e *Engine) Invalidate(tag Tag) error {
	files, dirs, stages := e.scope(tag)
	e.log.Debug("invalidating downstream caches", "tag", string(tag))
	for _, f := range files {
		if err := removeIfPresent(f); err != nil {
			return err
		}
	}
	for _, d := range dirs {
		if err := removeDirIfPresent(d); err != nil {
			return err
		}
	}
	for _, s := range stages {
		if err := e.markers.Clear(s); err != nil {
			return err
		}
	}
	return e.updated.Set(string(tag))
}

// Fired reports whether the tag's invalidation ran during this run.
func (e *Engine) Fired(tag Tag) bool { return e.updated.Has(string(tag)) }

// ResetFired clears the updated/ sentinels after a fully successful run.
func (e *Engine) ResetFired() error { return e.updated.ClearAll() }

func (e *Engine) scope(tag Tag) (files, dirs, stages []string) {
	summaries := []string{
		e.lay.PresenceMatrix(),
		e.lay.SummaryFile(),
		e.lay.MissingCounts(),
		e.lay.MissingByGenome(),
		e.lay.SingleCopyFile(),
		e.lay.KeepsIdxFile(),
		e.lay.BlastFilteredFile(),
	}
	switch tag {
	case TagGenome:
		files = append(files, e.lay.BlastResultsFile())
		files = append(files, summaries...)
		files = append(files, e.lay.TreeArtifacts()...)
		dirs = []string{e.lay.UnalignedDir(), e.lay.AlignedDir()}
		stages = []string{
			checkpoint.StageSearch,
			checkpoint.StageFilter,
			checkpoint.StageAlign,
			checkpoint.StageTree,
		}
	case TagFilter:
		// Raw per-genome search results stay valid; only what depends on
		// the keep-set goes.
		files = append(files, summaries...)
		files = append(files, e.lay.TreeArtifacts()...)
		dirs = []string{e.lay.UnalignedDir(), e.lay.AlignedDir()}
		stages = []string{
			checkpoint.StageFilter,
			checkpoint.StageAlign,
			checkpoint.StageTree,
		}
	case TagQuery:
		// The merged results cache is keyed by the query set, so it goes;
		// per-pair tab files and existing alignments stay. An added query
		// has no alignment yet and regenerates on its own.
		files = append(files, e.lay.BlastResultsFile())
		files = append(files, e.lay.TreeArtifacts()...)
		stages = []string{checkpoint.StageFilter, checkpoint.StageTree}
	default:
		panic(fmt.Sprintf("invalidate: unknown tag %q", tag))
	}
	return files, dirs, stages
}

func removeIfPresent(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("invalidate: remove %s: %w", path, err)
	}
	return nil
}

func removeDirIfPresent(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("invalidate: remove %s: %w", dir, err)
	}
	return nil
}
