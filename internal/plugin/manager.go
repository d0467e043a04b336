package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// ManifestFile is the file that marks a subdirectory as a plugin.
const ManifestFile = "plugin.json"

// Manager discovers plugins below a directory and hands them to the dispatcher.
type Manager struct {
	pluginDir string

	mu       sync.RWMutex
	plugins  map[string]*Plugin
	rejected map[string]string
}

// NewManager creates a new plugin Manager with the given plugin directory.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
		rejected:  make(map[string]string),
	}
}

// Discover rescans the plugin directory. Every subdirectory holding a
// plugin.json is a candidate; candidates with an unreadable manifest, no name,
// or a missing or non-executable binary are skipped and reported by Rejected.
// A missing plugin directory is not an error.
func (m *Manager) Discover() error {
	plugins := make(map[string]*Plugin)
	rejected := make(map[string]string)

	entries, err := os.ReadDir(m.pluginDir)
	if errors.Is(err, os.ErrNotExist) {
		m.replace(plugins, rejected)
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.pluginDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
			continue
		}

		p, err := loadPlugin(dir)
		if err != nil {
			rejected[entry.Name()] = err.Error()
			continue
		}
		if _, dup := plugins[p.Manifest.Name]; dup {
			rejected[entry.Name()] = fmt.Sprintf("duplicate plugin name %q", p.Manifest.Name)
			continue
		}
		plugins[p.Manifest.Name] = p
	}

	m.replace(plugins, rejected)
	return nil
}

func (m *Manager) replace(plugins map[string]*Plugin, rejected map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = plugins
	m.rejected = rejected
}

func loadPlugin(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := jsoniter.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if manifest.Name == "" || manifest.Executable == "" {
		return nil, errors.New("manifest needs a name and an executable")
	}

	exe := filepath.Join(dir, manifest.Executable)
	info, err := os.Stat(exe)
	if err != nil {
		return nil, fmt.Errorf("executable %s: %w", manifest.Executable, err)
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0111 == 0 {
		return nil, fmt.Errorf("executable %s is not an executable file", manifest.Executable)
	}

	return &Plugin{Manifest: manifest, Path: dir, Executable: exe}, nil
}

// Get returns a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}

	return plugin, nil
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})

	return plugins
}

// Rejected returns the directories skipped by the last Discover, keyed by
// directory name, with the reason.
func (m *Manager) Rejected() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.rejected))
	for k, v := range m.rejected {
		out[k] = v
	}
	return out
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
