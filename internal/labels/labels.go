// internal/labels/labels.go
package labels

import (
	"fmt"

	"automlsa/internal/state"
)

// Registry assigns stable integer labels to genome base names. The label
// of a base name is its index in the persisted ordered list; names are
// only ever appended, so a label, once assigned, survives every later
// run even if the genome disappears.
type Registry struct {
	path  string
	names []string
	index map[string]int
}

// Load reads the registry from path. A missing file yields an empty
// registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, index: map[string]int{}}
	if state.Exists(path) {
		if err := state.ReadJSON(path, &r.names); err != nil {
			return nil, err
		}
	}
	for i, n := range r.names {
		if _, dup := r.index[n]; dup {
			return nil, fmt.Errorf("labels: %s lists %q twice; fix the file by hand", path, n)
		}
		r.index[n] = i
	}
	return r, nil
}

// Assign appends every base name not yet present, persists the updated
// list, and returns it. Existing entries are never moved or removed, so
// the call is idempotent.
func (r *Registry) Assign(bases []string) ([]string, error) {
	for _, b := range bases {
		if _, ok := r.index[b]; !ok {
			r.index[b] = len(r.names)
			r.names = append(r.names, b)
		}
	}
	if err := state.WriteJSON(r.path, r.names); err != nil {
		return nil, err
	}
	return r.names, nil
}

// Label returns the integer label for base.
func (r *Registry) Label(base string) (int, bool) {
	i, ok := r.index[base]
	return i, ok
}

// Names returns the full ordered list; index == label.
func (r *Registry) Names() []string { return r.names }

// Base returns the base name carrying the given label, or "" when the
// label was never assigned.
func (r *Registry) Base(label int) string {
	if label < 0 || label >= len(r.names) {
		return ""
	}
	return r.names[label]
}
