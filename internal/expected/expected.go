// internal/expected/expected.go
package expected

import (
	"sort"

	"automlsa/internal/state"
)

// Diff is the outcome of comparing the previous run's artifact set with
// the current one. Order is irrelevant and duplicates collapse; Changed
// is plain set inequality.
type Diff struct {
	Added   []string
	Removed []string
	Changed bool
}

// Additive reports a change consisting purely of additions: every prior
// member is still present.
func (d Diff) Additive() bool { return d.Changed && len(d.Removed) == 0 }

// Compare diffs two identifier lists under set semantics.
func Compare(prev, cur []string) Diff {
	ps := toSet(prev)
	cs := toSet(cur)
	var d Diff
	for k := range cs {
		if _, ok := ps[k]; !ok {
			d.Added = append(d.Added, k)
		}
	}
	for k := range ps {
		if _, ok := cs[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	d.Changed = len(d.Added) > 0 || len(d.Removed) > 0
	return d
}

// Load reads the persisted snapshot at path; missing file means no prior
// run, i.e. an empty set.
func Load(path string) ([]string, error) {
	if !state.Exists(path) {
		return nil, nil
	}
	var prev []string
	if err := state.ReadJSON(path, &prev); err != nil {
		return nil, err
	}
	return prev, nil
}

// Update compares the snapshot at path against cur and then persists cur
// as the new snapshot. The write happens even when nothing changed, so a
// partially written prior snapshot heals itself on the next run.
func Update(path string, cur []string) (Diff, error) {
	prev, err := Load(path)
	if err != nil {
		return Diff{}, err
	}
	d := Compare(prev, cur)
	dedup := setToSorted(toSet(cur))
	if err := state.WriteJSON(path, dedup); err != nil {
		return Diff{}, err
	}
	return d, nil
}

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		m[x] = struct{}{}
	}
	return m
}

func setToSorted(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
