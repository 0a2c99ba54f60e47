package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"automlsa/internal/dispatch"
	"automlsa/internal/genome"
	"automlsa/internal/logging"
	"automlsa/internal/query"
	"automlsa/internal/runctx"
	"automlsa/internal/state"
)

func newEnv(t *testing.T) *runctx.Env {
	t.Helper()
	lay := state.NewLayout(filepath.Join(t.TempDir(), "run"), "run")
	if err := lay.Ensure(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(lay.BlastDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	return runctx.New(lay, logging.Discard())
}

func fixtures() ([]query.Query, []genome.Genome) {
	qs := []query.Query{
		{SafeID: "rpoB", Digest: "aaa", Path: "/run/queries/rpoB_aaa.fas"},
		{SafeID: "gyrB", Digest: "bbb", Path: "/run/queries/gyrB_bbb.fas"},
	}
	gs := []genome.Genome{
		{Base: "g1.fa", NormPath: "/run/fasta/g1.fa", Label: 0},
		{Base: "g2.fa", NormPath: "/run/fasta/g2.fa", Label: 1},
	}
	return qs, gs
}

func TestPairsNaming(t *testing.T) {
	env := newEnv(t)
	qs, gs := fixtures()
	pairs := Pairs(env, qs, gs)
	if len(pairs) != 4 {
		t.Fatalf("got %d pairs", len(pairs))
	}
	want := filepath.Join(env.Layout.BlastDir(), "rpoB_aaa_vs_g1.fa.tab")
	if pairs[0].Tab != want {
		t.Fatalf("Tab = %q want %q", pairs[0].Tab, want)
	}
}

func TestPendingSkipsFinishedTables(t *testing.T) {
	env := newEnv(t)
	qs, gs := fixtures()
	pairs := Pairs(env, qs, gs)

	// One finished, one empty (crashed mid-write), two missing.
	if err := os.WriteFile(pairs[0].Tab, []byte("# done\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pairs[1].Tab, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	todo := Pending(pairs)
	if len(todo) != 3 {
		t.Fatalf("got %d pending, want 3", len(todo))
	}
	for _, p := range todo {
		if p.Tab == pairs[0].Tab {
			t.Fatal("finished table re-queued")
		}
	}
}

func TestBuildJobsArgv(t *testing.T) {
	env := newEnv(t)
	qs, gs := fixtures()
	pairs := Pairs(env, qs[:1], gs[:1])

	jobs := BuildJobs(env, pairs, "/usr/bin/tblastn",
		Options{Program: "tblastn", EValue: 1e-5, Threads: 4}, "7 qseqid sseqid")
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs", len(jobs))
	}
	argv := strings.Join(jobs[0].Argv, " ")
	for _, want := range []string{
		"/usr/bin/tblastn",
		"-query /run/queries/rpoB_aaa.fas",
		"-db /run/fasta/g1.fa",
		"-evalue 1e-05",
		"-outfmt 7 qseqid sseqid",
		"-out " + pairs[0].Tab,
	} {
		if !strings.Contains(argv, want) {
			t.Fatalf("argv %q missing %q", argv, want)
		}
	}
	if jobs[0].LogPath == "" {
		t.Fatal("job has no log path")
	}
}

func TestWriteCommands(t *testing.T) {
	env := newEnv(t)
	qs, gs := fixtures()
	jobs := BuildJobs(env, Pairs(env, qs, gs), "tblastn",
		Options{EValue: 1e-5}, "7 qseqid sseqid")

	path := env.Layout.BlastCmdsFile()
	if err := WriteCommands(path, jobs); err != nil {
		t.Fatalf("WriteCommands: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d command lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "tblastn -query") {
		t.Fatalf("line 0 = %q", lines[0])
	}
	// The multi-word format string must survive a shell round trip.
	if !strings.Contains(lines[0], "-outfmt '7 qseqid sseqid'") {
		t.Fatalf("outfmt not shell-quoted: %q", lines[0])
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"tblastn", "tblastn"},
		{"/run/fasta/g1.fa", "/run/fasta/g1.fa"},
		{"1e-05", "1e-05"},
		{"7 qseqid sseqid", "'7 qseqid sseqid'"},
		{"", "''"},
		{"it's", `'it'"'"'s'`},
	}
	for _, tc := range tests {
		if got := shellQuote(tc.in); got != tc.want {
			t.Fatalf("shellQuote(%q) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestRunRejectsEmptyTable(t *testing.T) {
	env := newEnv(t)
	qs, gs := fixtures()
	pairs := Pairs(env, qs[:1], gs[:1])

	// The tool exits zero but leaves a zero-byte -out file; without the
	// size check this would be cached as a false zero-hit result.
	if err := os.WriteFile(pairs[0].Tab, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := Run(context.Background(), env, pairs, "true", Options{Threads: 1}, "7")
	var miss *dispatch.MissingOutputError
	if !errors.As(err, &miss) {
		t.Fatalf("Run = %v, want MissingOutputError", err)
	}
	if miss.Path != pairs[0].Tab {
		t.Fatalf("Path = %q want %q", miss.Path, pairs[0].Tab)
	}
}

func TestRunAllUpToDateIsNoop(t *testing.T) {
	env := newEnv(t)
	qs, gs := fixtures()
	pairs := Pairs(env, qs, gs)
	for _, p := range pairs {
		if err := os.WriteFile(p.Tab, []byte("# done\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Nothing pending: Run must not invoke the (nonexistent) executable.
	err := Run(context.Background(), env, pairs, "/nonexistent/tblastn", Options{Threads: 2}, "7")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}
