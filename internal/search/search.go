// internal/search/search.go
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"automlsa/internal/dispatch"
	"automlsa/internal/genome"
	"automlsa/internal/query"
	"automlsa/internal/runctx"
)

// Pair is one (query, genome) search unit with its durable output table.
type Pair struct {
	Query  query.Query
	Genome genome.Genome
	Tab    string // blast/<query-id>_vs_<genome-base>.tab
}

// Pairs enumerates the full query x genome cross product. The tab name
// embeds both identifiers so genome-scoped removal can glob for it.
func Pairs(env *runctx.Env, queries []query.Query, genomes []genome.Genome) []Pair {
	pairs := make([]Pair, 0, len(queries)*len(genomes))
	for _, q := range queries {
		for _, g := range genomes {
			tab := filepath.Join(env.Layout.BlastDir(),
				fmt.Sprintf("%s_vs_%s.tab", q.ID(), g.Base))
			pairs = append(pairs, Pair{Query: q, Genome: g, Tab: tab})
		}
	}
	return pairs
}

// Pending returns the pairs whose result table is missing or empty.
// Everything else is a finished unit of work and is never redone.
func Pending(pairs []Pair) []Pair {
	var todo []Pair
	for _, p := range pairs {
		fi, err := os.Stat(p.Tab)
		if err != nil || fi.Size() == 0 {
			todo = append(todo, p)
		}
	}
	return todo
}

// Options carries the search-stage knobs from the reconciled config.
type Options struct {
	Program string // tblastn or blastn
	EValue  float64
	Threads int
}

// Run executes the pending searches across the worker pool and verifies
// every expected table afterwards. Finished tables from earlier runs are
// left untouched, so a rerun only pays for what changed.
func Run(
	ctx context.Context,
	env *runctx.Env,
	pairs []Pair,
	exe string,
	o Options,
	outfmt string,
) error {
	todo := Pending(pairs)
	if len(todo) == 0 {
		env.Log.Info("all BLAST searches are up to date")
		return nil
	}

	if err := os.MkdirAll(env.Layout.BlastDir(), 0o755); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	jobs := BuildJobs(env, todo, exe, o, outfmt)
	if err := WriteCommands(env.Layout.BlastCmdsFile(), jobs); err != nil {
		return err
	}

	env.Log.Info("running BLAST searches",
		"pending", len(todo), "total", len(pairs), "workers", o.Threads)
	dispatch.RunAll(ctx, env.Log, jobs, o.Threads)

	// A table must hold at least the BLAST comment header; a zero-byte
	// file means the job died before writing and must not reach the
	// merged-results cache as a false zero-hit result.
	for _, p := range todo {
		fi, err := os.Stat(p.Tab)
		if err != nil || fi.Size() == 0 {
			return &dispatch.MissingOutputError{
				Stage:  "search",
				Path:   p.Tab,
				LogDir: env.Layout.LogsDir(),
			}
		}
	}
	return nil
}

// BuildJobs turns pending pairs into dispatchable commands.
func BuildJobs(env *runctx.Env, todo []Pair, exe string, o Options, outfmt string) []dispatch.Job {
	jobs := make([]dispatch.Job, len(todo))
	for i, p := range todo {
		jobs[i] = dispatch.Job{
			Name: strings.TrimSuffix(filepath.Base(p.Tab), ".tab"),
			Argv: []string{
				exe,
				"-query", p.Query.Path,
				"-db", p.Genome.NormPath,
				"-evalue", fmt.Sprintf("%g", o.EValue),
				"-outfmt", outfmt,
				"-out", p.Tab,
			},
			LogPath: filepath.Join(env.Layout.LogsDir(), filepath.Base(p.Tab)+".log"),
		}
	}
	return jobs
}

// WriteCommands records every pending command line, one per line,
// shell-quoted so the operator can replay the batch through a shell or
// a cluster submission script unchanged.
func WriteCommands(path string, jobs []dispatch.Job) error {
	var b strings.Builder
	for _, j := range jobs {
		for i, arg := range j.Argv {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(shellQuote(arg))
		}
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("search: write %s: %w", path, err)
	}
	return nil
}

// shellQuote single-quotes anything a POSIX shell would re-tokenize,
// notably the multi-word -outfmt argument.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("@%+=:,./-_", r):
		default:
			safe = false
		}
		if !safe {
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Tabs lists the result tables for pairs, for handing to the results
// reader.
func Tabs(pairs []Pair) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Tab
	}
	return out
}
