// internal/app/app.go
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"automlsa/internal/align"
	"automlsa/internal/blasttab"
	"automlsa/internal/checkpoint"
	"automlsa/internal/cli"
	"automlsa/internal/config"
	"automlsa/internal/dispatch"
	"automlsa/internal/expected"
	"automlsa/internal/exttool"
	"automlsa/internal/filter"
	"automlsa/internal/genome"
	"automlsa/internal/invalidate"
	"automlsa/internal/logging"
	"automlsa/internal/query"
	"automlsa/internal/runctx"
	"automlsa/internal/search"
	"automlsa/internal/state"
	"automlsa/internal/tree"
	"automlsa/internal/version"
)

// Exit codes, following the sysexits convention where one applies.
const (
	exitOK       = 0
	exitStopped  = 1 // intermediate stop, resume by re-invoking
	exitUsage    = 2
	exitData     = 65 // bad input data or configuration value
	exitNoInput  = 66 // a required input file is gone
	exitExternal = 70 // an external tool failed to produce its output
	exitConfig   = 78 // missing executable
	exitSignal   = 130
)

// RunContext is the process entry point behind the shell: parse, set up
// the run directory, then drive the pipeline stage by stage.
func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	fs := cli.NewFlagSet("automlsa")
	fs.SetOutput(stderr)

	opt, err := cli.ParseArgs(fs, argv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		_, _ = fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if opt.Version {
		_, _ = fmt.Fprintf(stdout, "automlsa version %s\n", version.Version)
		return exitOK
	}

	root, err := state.ResolveRunDir(opt.RunID)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitData
	}
	lay := state.NewLayout(root, opt.RunID)
	if err := lay.Ensure(); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitData
	}

	log, closeLog, err := logging.New(stderr, lay.RunLogFile(), logging.Options{
		Debug: opt.Debug, Quiet: opt.Quiet,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitData
	}
	defer func() { _ = closeLog() }()

	env := runctx.New(lay, log)
	env.Log.Info("starting analysis", "run", opt.RunID, "version", version.Version)

	if err := run(parent, env, &opt); err != nil {
		return report(parent, env, err)
	}
	env.Log.Info("analysis complete", "run", opt.RunID, "tree", lay.TreeFile())
	return exitOK
}

// Run is RunContext without caller-supplied cancellation.
func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}

func run(ctx context.Context, env *runctx.Env, opt *cli.Options) error {
	lay := env.Layout

	cfg, err := loadConfig(lay, opt.ConfigPath)
	if err != nil {
		return err
	}
	if err := config.Reconcile(opt, cfg); err != nil {
		return err
	}
	if len(opt.Query) == 0 {
		return &config.ValueError{Field: "query", Detail: "at least one --query FASTA file is required"}
	}
	if len(opt.Files) == 0 && len(opt.Dirs) == 0 {
		return &config.ValueError{Field: "files/dir", Detail: "at least one --files or --dir genome source is required"}
	}
	if err := config.Write(lay.ConfigFile(), config.FromOptions(*opt)); err != nil {
		return err
	}

	tools, err := exttool.Discover(env.Log, os.Getenv, nil)
	if err != nil {
		return err
	}

	markers := state.NewMarkers(lay.CheckpointDir())
	updated := state.NewMarkers(lay.UpdatedDir())
	ctl, err := checkpoint.New(markers, env.Log, opt.Checkpoint)
	if err != nil {
		return err
	}
	inv := invalidate.New(lay, env.Log, markers, updated)

	// Stage: normalize-genomes.
	genomes, err := genome.Run(ctx, env, inv, opt.Files, opt.Dirs, tools.MakeBlastDB)
	if err != nil {
		return err
	}
	bases := make([]string, len(genomes))
	for i, g := range genomes {
		bases[i] = g.Base
	}
	gdiff, err := expected.Update(lay.ExpectedGenomesFile(), bases)
	if err != nil {
		return err
	}
	if gdiff.Changed {
		env.Log.Info("genome set changed since last run",
			"added", len(gdiff.Added), "removed", len(gdiff.Removed))
		if err := inv.Invalidate(invalidate.TagGenome); err != nil {
			return err
		}
		if len(gdiff.Removed) > 0 {
			// A shrunk input set puts the normalization bookkeeping itself in
			// question, so this stage re-validates on the next pass too.
			if err := markers.Clear(checkpoint.StageNormalize); err != nil {
				return err
			}
		}
	}
	if err := ctl.MarkReached(checkpoint.StageNormalize); err != nil {
		return err
	}
	if ctl.StopRequested(checkpoint.StageNormalize) {
		return ctl.Stop("genomes normalized and databases built")
	}

	// Query extraction feeds the search stage; its expected-set is scoped
	// by content, so edits show up as remove+add.
	queries, err := query.Extract(env, opt.Query, opt.Dups)
	if err != nil {
		return err
	}
	qdiff, err := expected.Update(lay.ExpectedQueriesFile(), query.IDs(queries))
	if err != nil {
		return err
	}
	if qdiff.Changed {
		env.Log.Info("query set changed since last run",
			"added", len(qdiff.Added), "removed", len(qdiff.Removed))
		if err := inv.Invalidate(invalidate.TagQuery); err != nil {
			return err
		}
		if !qdiff.Additive() {
			// A removed or edited query leaves stale rows in the merged
			// results; only the genome scope reaches them.
			if err := inv.Invalidate(invalidate.TagGenome); err != nil {
				return err
			}
		}
	}

	// Stage: search.
	pairs := search.Pairs(env, queries, genomes)
	sopt := search.Options{Program: opt.Program, EValue: opt.EValue, Threads: opt.Threads}
	if ctl.StopRequested(checkpoint.StageSearch) {
		// Dump the pending command list so the operator can run the batch
		// elsewhere (a cluster, usually) and resume afterwards.
		jobs := search.BuildJobs(env, search.Pending(pairs), tools.Search(opt.Program), sopt, blasttab.OutFmt)
		if err := search.WriteCommands(lay.BlastCmdsFile(), jobs); err != nil {
			return err
		}
		return ctl.Stop(fmt.Sprintf("%d BLAST commands written to %s", len(jobs), lay.BlastCmdsFile()))
	}
	if err := search.Run(ctx, env, pairs, tools.Search(opt.Program), sopt, blasttab.OutFmt); err != nil {
		return err
	}
	if err := ctl.MarkReached(checkpoint.StageSearch); err != nil {
		return err
	}

	// Stage: filter.
	rows, err := blasttab.Load(env.Log, lay.BlastResultsFile(), search.Tabs(pairs), opt.Identity, opt.Coverage)
	if err != nil {
		return err
	}
	qids := make([]string, len(queries))
	for i, q := range queries {
		qids[i] = q.SafeID
	}
	fres, err := filter.Run(env, inv, rows, qids, genomes, opt.AllowMissing, opt.MissingCheck)
	if err != nil {
		return err
	}
	if err := ctl.MarkReached(checkpoint.StageFilter); err != nil {
		return err
	}
	if ctl.StopRequested(checkpoint.StageFilter) {
		return ctl.Stop(fmt.Sprintf("filtering done, %d genomes kept", len(fres.Kept)))
	}

	// Stage: align.
	if err := align.Run(ctx, env, fres.Best, fres.Queries, fres.Kept, tools.MAFFT, opt.Threads); err != nil {
		return err
	}
	if err := ctl.MarkReached(checkpoint.StageAlign); err != nil {
		return err
	}
	if ctl.StopRequested(checkpoint.StageAlign) {
		return ctl.Stop("alignments written")
	}

	// Stage: build-tree.
	if err := tree.Run(ctx, env, fres.Queries, fres.Kept, tools.IQTree, opt.Threads); err != nil {
		return err
	}
	if err := ctl.MarkReached(checkpoint.StageTree); err != nil {
		return err
	}

	// The run finished; change signals recorded along the way are spent.
	return inv.ResetFired()
}

// loadConfig prefers the run's own config.json; a --config seed file is
// only consulted before the first run creates one.
func loadConfig(lay state.Layout, seedPath string) (config.Config, error) {
	if state.Exists(lay.ConfigFile()) {
		return config.Read(lay.ConfigFile())
	}
	if seedPath != "" {
		return config.Read(seedPath)
	}
	return config.Config{}, nil
}

// report maps the failure taxonomy onto exit codes and logs once.
func report(ctx context.Context, env *runctx.Env, err error) int {
	var (
		stop     *checkpoint.StopError
		missing  *filter.MissingDataError
		value    *config.ValueError
		dupBase  *genome.DuplicateBaseError
		content  *query.ContentConflictError
		name     *query.NameConflictError
		noFile   *query.MissingFileError
		noOutput *dispatch.MissingOutputError
		noBinary *exttool.NotFoundError
	)
	switch {
	case errors.As(err, &stop):
		env.Log.Info("run stopped", "reason", stop.Reason)
		return exitStopped
	case errors.As(err, &missing):
		env.Log.Warn(missing.Error())
		return exitStopped
	case errors.As(err, &value), errors.As(err, &dupBase),
		errors.As(err, &content), errors.As(err, &name),
		errors.Is(err, genome.ErrNoGenomes):
		env.Log.Error(err.Error())
		return exitData
	case errors.As(err, &noFile):
		env.Log.Error(noFile.Error())
		return exitNoInput
	case errors.As(err, &noOutput):
		env.Log.Error(noOutput.Error())
		return exitExternal
	case errors.As(err, &noBinary):
		env.Log.Error(noBinary.Error())
		return exitConfig
	case ctx.Err() != nil:
		env.Log.Warn("run interrupted")
		return exitSignal
	default:
		env.Log.Error(err.Error())
		return exitStopped
	}
}
