// internal/align/align.go
package align

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"automlsa/internal/blasttab"
	"automlsa/internal/dispatch"
	"automlsa/internal/genome"
	"automlsa/internal/runctx"
)

// Run writes per-query unaligned FASTA files from the filtered best
// hits, then aligns each one with MAFFT across the worker pool. Existing
// outputs are trusted: a file present on disk is a finished unit of work.
func Run(
	ctx context.Context,
	env *runctx.Env,
	best []blasttab.Row,
	queries []string,
	kept []genome.Genome,
	mafft string,
	threads int,
) error {
	byLabel := make(map[int]genome.Genome, len(kept))
	for _, g := range kept {
		byLabel[g.Label] = g
	}
	if err := os.MkdirAll(env.Layout.UnalignedDir(), 0o755); err != nil {
		return fmt.Errorf("align: %w", err)
	}
	if err := os.MkdirAll(env.Layout.AlignedDir(), 0o755); err != nil {
		return fmt.Errorf("align: %w", err)
	}

	byQuery := make(map[string][]blasttab.Row, len(queries))
	for _, r := range best {
		byQuery[r.QSeqID] = append(byQuery[r.QSeqID], r)
	}

	var jobs []dispatch.Job
	for _, q := range queries {
		unaligned := filepath.Join(env.Layout.UnalignedDir(), q+".fas")
		aligned := filepath.Join(env.Layout.AlignedDir(), q+".aln")
		if !exists(unaligned) {
			rows := byQuery[q]
			if len(rows) == 0 {
				env.Log.Warn("query has no hits in any kept genome, skipping", "query", q)
				continue
			}
			env.Log.Debug("writing unaligned sequences", "query", q, "hits", len(rows))
			if err := writeUnaligned(unaligned, rows, byLabel); err != nil {
				return err
			}
		}
		if exists(aligned) {
			continue
		}
		jobs = append(jobs, dispatch.Job{
			Name:       "mafft:" + q,
			Argv:       []string{mafft, "--quiet", unaligned},
			StdoutPath: aligned,
			LogPath:    filepath.Join(env.Layout.LogsDir(), q+".mafft.log"),
		})
	}

	if len(jobs) == 0 {
		env.Log.Info("all alignments are up to date")
		return nil
	}
	env.Log.Info("aligning query hit sets", "pending", len(jobs), "workers", threads)
	dispatch.RunAll(ctx, env.Log, jobs, threads)

	for _, j := range jobs {
		fi, err := os.Stat(j.StdoutPath)
		if err != nil || fi.Size() == 0 {
			return &dispatch.MissingOutputError{
				Stage:  "align",
				Path:   j.StdoutPath,
				LogDir: env.Layout.LogsDir(),
			}
		}
	}
	return nil
}

// writeUnaligned emits one record per kept genome with a hit. Headers
// carry the genome base name without its FASTA extension so the final
// tree tips read naturally; alignment gap characters from the HSP are
// stripped so MAFFT sees plain residues.
func writeUnaligned(path string, rows []blasttab.Row, byLabel map[int]genome.Genome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("align: %w", err)
	}
	var werr error
	for _, r := range rows {
		label, err := strconv.Atoi(r.SSeqID)
		if err != nil {
			werr = fmt.Errorf("subject %q is not a genome label", r.SSeqID)
			break
		}
		g, ok := byLabel[label]
		if !ok {
			continue
		}
		seq := strings.ReplaceAll(r.SSeq, "-", "")
		if _, werr = fmt.Fprintf(f, ">%s\n%s\n", TipName(g.Base), seq); werr != nil {
			break
		}
	}
	if err := f.Close(); werr == nil {
		werr = err
	}
	if werr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("align: write %s: %w", path, werr)
	}
	return nil
}

// TipName is the per-genome sequence identifier used in alignments and
// the final tree: the base file name without its FASTA extension.
func TipName(base string) string {
	ext := filepath.Ext(base)
	switch strings.ToLower(ext) {
	case ".fa", ".fas", ".fasta", ".fna", ".gz":
		base = strings.TrimSuffix(base, ext)
		if e2 := filepath.Ext(base); strings.ToLower(e2) == ".fasta" || strings.ToLower(e2) == ".fa" ||
			strings.ToLower(e2) == ".fas" || strings.ToLower(e2) == ".fna" {
			base = strings.TrimSuffix(base, e2)
		}
	}
	return strings.ReplaceAll(base, " ", "_")
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
