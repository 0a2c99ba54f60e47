package tree

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"automlsa/internal/genome"
	"automlsa/internal/logging"
	"automlsa/internal/runctx"
	"automlsa/internal/state"
)

func newEnv(t *testing.T) *runctx.Env {
	t.Helper()
	lay := state.NewLayout(filepath.Join(t.TempDir(), "run"), "run")
	if err := lay.Ensure(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(lay.AlignedDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	return runctx.New(lay, logging.Discard())
}

func writeAln(t *testing.T, env *runctx.Env, q, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(env.Layout.AlignedDir(), q+".aln"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildSupermatrix(t *testing.T) {
	env := newEnv(t)
	kept := []genome.Genome{
		{Base: "g1.fa", Label: 0},
		{Base: "g2.fa", Label: 1},
	}
	writeAln(t, env, "rpoB", ">g1\nMKLS\n>g2\nMKLT\n")
	writeAln(t, env, "gyrB", ">g1\nAA\n") // g2 has no gyrB hit

	parts, err := buildSupermatrix(env, []string{"rpoB", "gyrB"}, kept)
	if err != nil {
		t.Fatalf("buildSupermatrix: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d partitions", len(parts))
	}
	if parts[0].start != 1 || parts[0].end != 4 || parts[1].start != 5 || parts[1].end != 6 {
		t.Fatalf("partition bounds: %+v", parts)
	}

	raw, err := os.ReadFile(env.Layout.ConcatFile())
	if err != nil {
		t.Fatal(err)
	}
	want := ">g1\nMKLSAA\n>g2\nMKLT--\n"
	if string(raw) != want {
		t.Fatalf("concat = %q want %q", raw, want)
	}
}

func TestBuildSupermatrixUnequalRows(t *testing.T) {
	env := newEnv(t)
	kept := []genome.Genome{{Base: "g1.fa", Label: 0}, {Base: "g2.fa", Label: 1}}
	writeAln(t, env, "rpoB", ">g1\nMKLS\n>g2\nMK\n")
	if _, err := buildSupermatrix(env, []string{"rpoB"}, kept); err == nil {
		t.Fatal("ragged alignment accepted")
	}
}

func TestWritePartitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.nex")
	parts := []partition{
		{name: "rpoB", start: 1, end: 400},
		{name: "gyrB", start: 401, end: 650},
	}
	if err := writePartitions(path, parts); err != nil {
		t.Fatalf("writePartitions: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(raw)
	for _, want := range []string{
		"#nexus",
		"begin sets;",
		"charset rpoB = 1-400;",
		"charset gyrB = 401-650;",
		"end;",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("partition file %q missing %q", got, want)
		}
	}
}

func TestRunUpToDateIsNoop(t *testing.T) {
	env := newEnv(t)
	if err := os.WriteFile(env.Layout.TreeFile(), []byte("(g1,g2);\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := Run(context.Background(), env, []string{"rpoB"}, nil, "/nonexistent/iqtree2", 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunNoAlignments(t *testing.T) {
	env := newEnv(t)
	kept := []genome.Genome{{Base: "g1.fa", Label: 0}}
	if err := Run(context.Background(), env, nil, kept, "/nonexistent/iqtree2", 1); err == nil {
		t.Fatal("expected error with nothing to concatenate")
	}
}
