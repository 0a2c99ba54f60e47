// internal/state/markers.go
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Markers is a present/absent store backed by zero-byte files in one
// directory. It models the checkpoint/ and updated/ sentinels as an
// explicit finite-state API instead of ad hoc file touches.
type Markers struct {
	dir string
}

func NewMarkers(dir string) *Markers { return &Markers{dir: dir} }

// Set creates the marker. Setting an existing marker is a no-op.
func (m *Markers) Set(name string) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("markers: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(m.dir, name), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("markers: set %s: %w", name, err)
	}
	return f.Close()
}

// Has reports whether the marker is present.
func (m *Markers) Has(name string) bool {
	return Exists(filepath.Join(m.dir, name))
}

// Clear removes the marker. Clearing an absent marker is a no-op.
func (m *Markers) Clear(name string) error {
	err := os.Remove(filepath.Join(m.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("markers: clear %s: %w", name, err)
	}
	return nil
}

// List returns the present markers in sorted order.
func (m *Markers) List() ([]string, error) {
	ents, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("markers: %w", err)
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ClearAll removes every marker in the store.
func (m *Markers) ClearAll() error {
	names, err := m.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := m.Clear(n); err != nil {
			return err
		}
	}
	return nil
}
