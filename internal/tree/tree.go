// internal/tree/tree.go
package tree

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"automlsa/internal/align"
	"automlsa/internal/dispatch"
	"automlsa/internal/fasta"
	"automlsa/internal/genome"
	"automlsa/internal/runctx"
)

// Run concatenates the per-query alignments into a supermatrix with a
// partition definition and hands both to IQ-TREE. The tree file on disk
// means the stage already ran; invalidation is the only thing that
// removes it.
func Run(
	ctx context.Context,
	env *runctx.Env,
	queries []string,
	kept []genome.Genome,
	iqtree string,
	threads int,
) error {
	if exists(env.Layout.TreeFile()) {
		env.Log.Info("tree is up to date", "file", env.Layout.TreeFile())
		return nil
	}

	parts, err := buildSupermatrix(env, queries, kept)
	if err != nil {
		return err
	}
	if err := writePartitions(env.Layout.PartitionFile(), parts); err != nil {
		return err
	}

	job := dispatch.Job{
		Name: "iqtree:" + env.RunID,
		Argv: []string{
			iqtree,
			"-s", env.Layout.ConcatFile(),
			"-p", env.Layout.PartitionFile(),
			"-T", strconv.Itoa(threads),
			"--prefix", env.Layout.TreePrefix(),
		},
		LogPath: filepath.Join(env.Layout.LogsDir(), "iqtree.log"),
	}
	env.Log.Info("inferring phylogeny", "partitions", len(parts), "threads", threads)
	res := dispatch.RunAll(ctx, env.Log, []dispatch.Job{job}, 1)
	if err := res[0].Err; err != nil && ctx.Err() != nil {
		return err
	}
	if !exists(env.Layout.TreeFile()) {
		return &dispatch.MissingOutputError{
			Stage:  "build-tree",
			Path:   env.Layout.TreeFile(),
			LogDir: env.Layout.LogsDir(),
		}
	}
	env.Log.Info("tree written", "file", env.Layout.TreeFile())
	return nil
}

// partition is one query's block inside the supermatrix, 1-based
// inclusive coordinates as nexus wants them.
type partition struct {
	name  string
	start int
	end   int
}

// buildSupermatrix writes the concatenated alignment: one record per
// kept genome, each query block padded with gaps for genomes the query
// had no hit in, so every row has equal length.
func buildSupermatrix(env *runctx.Env, queries []string, kept []genome.Genome) ([]partition, error) {
	tips := make([]string, len(kept))
	for i, g := range kept {
		tips[i] = align.TipName(g.Base)
	}
	concat := make(map[string]*strings.Builder, len(tips))
	for _, t := range tips {
		concat[t] = &strings.Builder{}
	}

	var parts []partition
	offset := 0
	for _, q := range queries {
		alnPath := filepath.Join(env.Layout.AlignedDir(), q+".aln")
		seqs, alen, err := readAlignment(alnPath)
		if err != nil {
			return nil, err
		}
		if alen == 0 {
			env.Log.Warn("empty alignment, skipping query", "query", q)
			continue
		}
		for _, t := range tips {
			if s, ok := seqs[t]; ok {
				concat[t].WriteString(s)
			} else {
				concat[t].WriteString(strings.Repeat("-", alen))
			}
		}
		parts = append(parts, partition{name: q, start: offset + 1, end: offset + alen})
		offset += alen
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("tree: no non-empty alignments to concatenate")
	}

	f, err := os.Create(env.Layout.ConcatFile())
	if err != nil {
		return nil, fmt.Errorf("tree: %w", err)
	}
	var werr error
	for _, t := range tips {
		if _, werr = fmt.Fprintf(f, ">%s\n%s\n", t, concat[t].String()); werr != nil {
			break
		}
	}
	if err := f.Close(); werr == nil {
		werr = err
	}
	if werr != nil {
		_ = os.Remove(env.Layout.ConcatFile())
		return nil, fmt.Errorf("tree: write %s: %w", env.Layout.ConcatFile(), werr)
	}
	env.Log.Debug("supermatrix written",
		"file", env.Layout.ConcatFile(), "tips", len(tips), "columns", offset)
	return parts, nil
}

// readAlignment loads one aligned FASTA and verifies equal row lengths.
func readAlignment(path string) (map[string]string, int, error) {
	seqs := map[string]string{}
	alen := 0
	err := fasta.ScanFile(path, func(rec fasta.Record) error {
		if alen == 0 {
			alen = len(rec.Seq)
		} else if len(rec.Seq) != alen {
			return fmt.Errorf("tree: %s: unequal row lengths (%d vs %d)", path, len(rec.Seq), alen)
		}
		seqs[rec.ID] = string(rec.Seq)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return seqs, alen, nil
}

// writePartitions emits the nexus sets block IQ-TREE takes with -p.
func writePartitions(path string, parts []partition) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tree: %w", err)
	}
	w := bufio.NewWriter(f)
	_, werr := fmt.Fprintln(w, "#nexus")
	if werr == nil {
		_, werr = fmt.Fprintln(w, "begin sets;")
	}
	for _, p := range parts {
		if werr != nil {
			break
		}
		_, werr = fmt.Fprintf(w, "    charset %s = %d-%d;\n", p.name, p.start, p.end)
	}
	if werr == nil {
		_, werr = fmt.Fprintln(w, "end;")
	}
	if err := w.Flush(); werr == nil {
		werr = err
	}
	if err := f.Close(); werr == nil {
		werr = err
	}
	if werr != nil {
		return fmt.Errorf("tree: write %s: %w", path, werr)
	}
	return nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
