package vol

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manager resolves logical file names against ordered search paths and
// mounted volume archives. Loose files win over volume entries.
type Manager struct {
	paths   []string
	volumes []*Volume
}

// NewManager returns an empty resource manager.
func NewManager() *Manager {
	return &Manager{}
}

// AddPath appends a directory to the search path list.
func (m *Manager) AddPath(dir string) {
	m.paths = append(m.paths, dir)
}

// AddVolume opens and mounts a volume archive.
func (m *Manager) AddVolume(path string) error {
	v, err := Open(path)
	if err != nil {
		return err
	}
	m.volumes = append(m.volumes, v)
	return nil
}

// Close closes all mounted volumes.
func (m *Manager) Close() error {
	var firstErr error
	for _, v := range m.volumes {
		if err := v.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenFile returns the full contents of the named file, searching loose
// directories first and then the mounted volumes.
func (m *Manager) OpenFile(name string) ([]byte, error) {
	for _, dir := range m.paths {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	for _, v := range m.volumes {
		data, err := v.ReadFile(name)
		if err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// Enumerate lists entries across all mounted volumes, optionally restricted
// to a file extension (with leading dot, compared case-insensitively).
func (m *Manager) Enumerate(ext string) []Entry {
	var out []Entry
	for _, v := range m.volumes {
		for _, e := range v.Entries() {
			if ext != "" && !strings.EqualFold(filepath.Ext(e.Name), ext) {
				continue
			}
			out = append(out, e)
		}
	}
	return out
}
