package audio

import (
	"cmp"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ManifestFile is the manifest file name inside each pack directory.
const ManifestFile = "pack.json"

// ErrPackNotFound is returned when a requested pack does not exist.
var ErrPackNotFound = errors.New("sound pack not found")

// Manager discovers sound packs in a directory.
type Manager struct {
	dir    string
	logger *zap.SugaredLogger
	mu     sync.RWMutex
	packs  map[string]*Pack
}

// NewManager creates a Manager over dir.
func NewManager(dir string, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		dir:    dir,
		logger: logger.Named("audio"),
		packs:  make(map[string]*Pack),
	}
}

// Discover scans the directory for <pack>/pack.json manifests, replacing
// any previously discovered packs. A missing directory yields no packs.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.packs = make(map[string]*Pack)

	info, err := os.Stat(m.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		packPath := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(packPath, ManifestFile))
		if err != nil {
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			m.logger.Warnw("skipping sound pack with invalid manifest", "path", packPath, "error", err)
			continue
		}
		if manifest.Name == "" {
			manifest.Name = entry.Name()
		}

		m.packs[manifest.Name] = &Pack{
			Manifest:   manifest,
			Path:       packPath,
			Executable: filepath.Join(packPath, manifest.Executable),
		}
	}

	m.logger.Debugw("sound packs discovered", "dir", m.dir, "count", len(m.packs))
	return nil
}

// Get returns a pack by name.
func (m *Manager) Get(name string) (*Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.packs[name]
	if !ok {
		return nil, ErrPackNotFound
	}
	return p, nil
}

// List returns all discovered packs sorted by name.
func (m *Manager) List() []*Pack {
	m.mu.RLock()
	defer m.mu.RUnlock()

	packs := make([]*Pack, 0, len(m.packs))
	for _, p := range m.packs {
		packs = append(packs, p)
	}
	slices.SortFunc(packs, func(a, b *Pack) int {
		return cmp.Compare(a.Manifest.Name, b.Manifest.Name)
	})
	return packs
}

// Dir returns the pack directory.
func (m *Manager) Dir() string {
	return m.dir
}
