package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"automlsa/internal/checkpoint"
	"automlsa/internal/cli"
	"automlsa/internal/config"
	"automlsa/internal/dispatch"
	"automlsa/internal/exttool"
	"automlsa/internal/filter"
	"automlsa/internal/genome"
	"automlsa/internal/logging"
	"automlsa/internal/query"
	"automlsa/internal/runctx"
	"automlsa/internal/state"
)

func parseForTest(argv ...string) (cli.Options, error) {
	fs := cli.NewFlagSet("automlsa")
	fs.SetOutput(io.Discard)
	return cli.ParseArgs(fs, argv)
}

func testEnv(t *testing.T) *runctx.Env {
	t.Helper()
	lay := state.NewLayout(filepath.Join(t.TempDir(), "run"), "run")
	if err := lay.Ensure(); err != nil {
		t.Fatal(err)
	}
	return runctx.New(lay, logging.Discard())
}

func TestRunContextUsageErrors(t *testing.T) {
	var out, errBuf bytes.Buffer
	code := RunContext(context.Background(), []string{"-badflag"}, &out, &errBuf)
	if code != exitUsage {
		t.Fatalf("code = %d want %d", code, exitUsage)
	}
	code = RunContext(context.Background(), nil, &out, &errBuf)
	if code != exitUsage {
		t.Fatalf("missing runid: code = %d want %d", code, exitUsage)
	}
}

func TestRunContextHelp(t *testing.T) {
	var out, errBuf bytes.Buffer
	code := RunContext(context.Background(), []string{"-h"}, &out, &errBuf)
	if code != exitOK {
		t.Fatalf("code = %d", code)
	}
	if !strings.Contains(errBuf.String(), "Usage:") {
		t.Fatalf("usage not printed: %q", errBuf.String())
	}
}

func TestRunContextVersion(t *testing.T) {
	var out, errBuf bytes.Buffer
	code := RunContext(context.Background(), []string{"-version"}, &out, &errBuf)
	if code != exitOK {
		t.Fatalf("code = %d", code)
	}
	if !strings.Contains(out.String(), "automlsa version") {
		t.Fatalf("version not printed: %q", out.String())
	}
}

func TestReportExitCodes(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"stop", &checkpoint.StopError{Reason: "x"}, exitStopped},
		{"missing gate", &filter.MissingDataError{SummaryFile: "s"}, exitStopped},
		{"config value", &config.ValueError{Field: "evalue"}, exitData},
		{"dup base", &genome.DuplicateBaseError{Base: "g.fa"}, exitData},
		{"content conflict", &query.ContentConflictError{}, exitData},
		{"name conflict", &query.NameConflictError{}, exitData},
		{"no genomes", genome.ErrNoGenomes, exitData},
		{"missing query file", &query.MissingFileError{Path: "q.fa"}, exitNoInput},
		{"tool output missing", &dispatch.MissingOutputError{Stage: "search"}, exitExternal},
		{"tool not installed", &exttool.NotFoundError{Name: "mafft-linsi"}, exitConfig},
		{"anything else", errors.New("boom"), exitStopped},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := report(ctx, env, tc.err); got != tc.want {
				t.Fatalf("report(%v) = %d want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestReportCancellation(t *testing.T) {
	env := testEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := report(ctx, env, ctx.Err()); got != exitSignal {
		t.Fatalf("report = %d want %d", got, exitSignal)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	lay := state.NewLayout(filepath.Join(t.TempDir(), "run"), "run")
	if err := lay.Ensure(); err != nil {
		t.Fatal(err)
	}
	seed := filepath.Join(t.TempDir(), "seed.json")
	ev := 1e-30
	if err := config.Write(seed, config.Config{EValue: &ev}); err != nil {
		t.Fatal(err)
	}

	// No run config yet: the seed applies.
	c, err := loadConfig(lay, seed)
	if err != nil {
		t.Fatal(err)
	}
	if c.EValue == nil || *c.EValue != 1e-30 {
		t.Fatalf("seed ignored: %+v", c)
	}

	// Once the run has its own config, the seed is never consulted again.
	own := 1e-10
	if err := config.Write(lay.ConfigFile(), config.Config{EValue: &own}); err != nil {
		t.Fatal(err)
	}
	c, err = loadConfig(lay, seed)
	if err != nil {
		t.Fatal(err)
	}
	if c.EValue == nil || *c.EValue != 1e-10 {
		t.Fatalf("run config lost to seed: %+v", c)
	}
}

func TestRunMissingQueryFlag(t *testing.T) {
	env := testEnv(t)
	opt, err := parseForTest("-dir", "genomes", env.Layout.Root)
	if err != nil {
		t.Fatal(err)
	}
	runErr := run(context.Background(), env, &opt)
	var ve *config.ValueError
	if !errors.As(runErr, &ve) || ve.Field != "query" {
		t.Fatalf("want query ValueError, got %v", runErr)
	}
}

func TestRunMissingGenomeSource(t *testing.T) {
	env := testEnv(t)
	opt, err := parseForTest("-query", "q.fa", env.Layout.Root)
	if err != nil {
		t.Fatal(err)
	}
	runErr := run(context.Background(), env, &opt)
	var ve *config.ValueError
	if !errors.As(runErr, &ve) || ve.Field != "files/dir" {
		t.Fatalf("want files/dir ValueError, got %v", runErr)
	}
}
