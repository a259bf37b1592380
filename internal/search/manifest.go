package search

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// ManifestVersion is the current schema version.
	ManifestVersion = 1

	// ManifestFilename is the manifest file name under the base directory.
	ManifestFilename = "manifest.json"
)

// Manifest records the state of every index across restarts.
type Manifest struct {
	Version int                   `json:"version"`
	Indexes map[string]IndexState `json:"indexes"`

	mu   sync.RWMutex
	path string
}

// IndexState is the persisted state of one index.
type IndexState struct {
	LastRebuild time.Time   `json:"last_rebuild,omitzero"`
	LastUpdate  time.Time   `json:"last_update,omitzero"`
	DocCount    uint64      `json:"doc_count"`
	LastStats   ThreadStats `json:"last_stats"`
	Error       string      `json:"error,omitempty"`
}

// LoadManifest reads the manifest at path, or returns an empty one if it
// does not exist.
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{Version: ManifestVersion, Indexes: make(map[string]IndexState), path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Indexes == nil {
		m.Indexes = make(map[string]IndexState)
	}
	return m, nil
}

// Save writes the manifest atomically (temp file + rename).
func (m *Manifest) Save() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tempPath := m.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest temp file: %w", err)
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename manifest file: %w", err)
	}
	return nil
}

// State returns the state of an index and whether it was recorded.
func (m *Manifest) State(index string) (IndexState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.Indexes[index]
	return s, ok
}

// Update applies fn to the state of an index.
func (m *Manifest) Update(index string, fn func(*IndexState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.Indexes[index]
	fn(&s)
	m.Indexes[index] = s
}

// RemoveStale drops indexes not in names and returns the removed names.
func (m *Manifest) RemoveStale(names []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	var removed []string
	for n := range m.Indexes {
		if !keep[n] {
			removed = append(removed, n)
		}
	}
	for _, n := range removed {
		delete(m.Indexes, n)
	}
	sort.Strings(removed)
	return removed
}
