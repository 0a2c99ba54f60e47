package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/runs/demo", "demo")
	if got, want := l.StateDir(), filepath.Join("/runs/demo", DirName); got != want {
		t.Fatalf("StateDir=%q want %q", got, want)
	}
	if got := l.LabelsFile(); !strings.HasSuffix(got, ".automlsa/labels.json") {
		t.Fatalf("LabelsFile=%q", got)
	}
	if got := l.ConcatFile(); got != "/runs/demo/demo_concat.fas" {
		t.Fatalf("ConcatFile=%q", got)
	}
	if got := l.TreeFile(); got != "/runs/demo/demo.treefile" {
		t.Fatalf("TreeFile=%q", got)
	}
	arts := l.TreeArtifacts()
	require.Contains(t, arts, l.ConcatFile())
	require.Contains(t, arts, l.PartitionFile())
	require.Contains(t, arts, "/runs/demo/demo.ckp.gz")
}

func TestLayoutEnsure(t *testing.T) {
	l := NewLayout(filepath.Join(t.TempDir(), "run1"), "run1")
	require.NoError(t, l.Ensure())
	for _, d := range []string{l.StateDir(), l.CheckpointDir(), l.UpdatedDir(), l.BackupDir(), l.LogsDir()} {
		fi, err := os.Stat(d)
		require.NoError(t, err)
		require.True(t, fi.IsDir())
	}
	// Second call is a no-op.
	require.NoError(t, l.Ensure())
}

func TestWriteJSONReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.json")
	in := map[string]int{"a": 1, "b": 2}
	require.NoError(t, WriteJSON(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(raw), "\n"), "trailing newline")
	require.Contains(t, string(raw), "    \"a\": 1", "indented for hand edits")

	var out map[string]int
	require.NoError(t, ReadJSON(path, &out))
	require.Equal(t, in, out)
}

func TestWriteJSONLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteJSON(filepath.Join(dir, "x.json"), []string{"v"}))
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, ents, 1)
}

func TestMarkers(t *testing.T) {
	m := NewMarkers(filepath.Join(t.TempDir(), "marks"))
	require.False(t, m.Has("search"))

	require.NoError(t, m.Set("search"))
	require.NoError(t, m.Set("search")) // idempotent
	require.True(t, m.Has("search"))

	require.NoError(t, m.Set("filter"))
	names, err := m.List()
	require.NoError(t, err)
	require.Equal(t, []string{"filter", "search"}, names)

	require.NoError(t, m.Clear("search"))
	require.NoError(t, m.Clear("search")) // absent is a no-op
	require.False(t, m.Has("search"))

	require.NoError(t, m.ClearAll())
	names, err = m.List()
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestResolveRunDirPrefersSibling(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "abc"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "work"), 0o755))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Join(base, "work")))
	defer func() { _ = os.Chdir(cwd) }()

	got, err := ResolveRunDir("abc")
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(filepath.Join(base, "abc"))
	gotEval, _ := filepath.EvalSymlinks(got)
	require.Equal(t, want, gotEval)
}
