package expected

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		prev     []string
		cur      []string
		added    []string
		removed  []string
		changed  bool
		additive bool
	}{
		{name: "identical", prev: []string{"a", "b"}, cur: []string{"b", "a"}},
		{name: "first run", cur: []string{"a"}, added: []string{"a"}, changed: true, additive: true},
		{name: "pure add", prev: []string{"a"}, cur: []string{"a", "b"}, added: []string{"b"}, changed: true, additive: true},
		{name: "removal", prev: []string{"a", "b"}, cur: []string{"a"}, removed: []string{"b"}, changed: true},
		{name: "swap", prev: []string{"a"}, cur: []string{"b"}, added: []string{"b"}, removed: []string{"a"}, changed: true},
		{name: "duplicates collapse", prev: []string{"a", "a"}, cur: []string{"a"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Compare(tc.prev, tc.cur)
			require.Equal(t, tc.added, d.Added)
			require.Equal(t, tc.removed, d.Removed)
			require.Equal(t, tc.changed, d.Changed)
			require.Equal(t, tc.additive, d.Additive())
		})
	}
}

func TestUpdatePersistsSortedSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expected.json")

	d, err := Update(path, []string{"b", "a", "b"})
	require.NoError(t, err)
	require.True(t, d.Changed)
	require.Equal(t, []string{"a", "b"}, d.Added)

	saved, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, saved)

	// Unchanged set: no diff, but the snapshot is rewritten anyway.
	before, err := os.Stat(path)
	require.NoError(t, err)
	d, err = Update(path, []string{"a", "b"})
	require.NoError(t, err)
	require.False(t, d.Changed)
	after, err := os.Stat(path)
	require.NoError(t, err)
	require.False(t, after.ModTime().Before(before.ModTime()))
}

func TestLoadMissingMeansEmpty(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Nil(t, got)
}
