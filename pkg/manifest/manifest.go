// Package manifest records what a build produced in <dest>/build.json
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/poltergeist/polterpack/pkg/logger"
	"github.com/poltergeist/polterpack/pkg/types"
)

// FileName is the manifest's name inside the destination directory
const FileName = "build.json"

// Manifest is the persisted summary of a one-shot build
type Manifest struct {
	Bundler types.Bundler             `json:"bundler"`
	BuiltAt time.Time                 `json:"builtAt"`
	Assets  map[string]string         `json:"assets"`
	CSS     []string                  `json:"css"`
	Targets map[string]TargetManifest `json:"targets"`
}

// TargetManifest summarizes one target's result
type TargetManifest struct {
	DurationMs int64    `json:"durationMs"`
	Chunks     []string `json:"chunks"`
	Entries    []string `json:"entries,omitempty"`
	Warnings   int      `json:"warnings"`
}

// Manager writes and reads manifests for one destination directory
type Manager struct {
	dest   string
	logger logger.Logger
	mu     sync.Mutex
}

// NewManager creates a manager for dest
func NewManager(dest string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{dest: dest, logger: log}
}

// Path returns the manifest location
func (m *Manager) Path() string {
	return filepath.Join(m.dest, FileName)
}

// Build assembles a manifest from per-target results. Client assets and
// stylesheets are the ones a page needs to load.
func Build(bundler types.Bundler, results map[types.BuildTarget]*types.Result) *Manifest {
	man := &Manifest{
		Bundler: bundler,
		BuiltAt: time.Now().UTC(),
		Assets:  map[string]string{},
		CSS:     []string{},
		Targets: map[string]TargetManifest{},
	}

	for target, r := range results {
		if r == nil {
			continue
		}

		tm := TargetManifest{DurationMs: r.DurationMs(), Warnings: len(r.Warnings), Chunks: []string{}}
		for _, c := range r.Chunks {
			tm.Chunks = append(tm.Chunks, c.File)
			if c.IsEntry {
				tm.Entries = append(tm.Entries, c.File)
			}
		}
		sort.Strings(tm.Chunks)
		sort.Strings(tm.Entries)
		man.Targets[string(target)] = tm

		if target != types.TargetClient {
			continue
		}
		for name, file := range r.Assets {
			man.Assets[name] = file
		}
		for _, css := range r.CSSFiles {
			man.CSS = append(man.CSS, css.ID)
		}
	}
	sort.Strings(man.CSS)

	return man
}

// Write stores man atomically
func (m *Manager) Write(man *Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dest, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", m.dest, err)
	}

	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := m.Path()
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	m.logger.Debug("Wrote build manifest", logger.WithField("path", path))
	return nil
}

// Read loads the manifest written by the last build
func (m *Manager) Read() (*Manifest, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		return nil, err
	}

	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &man, nil
}
