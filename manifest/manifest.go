// Package manifest handles kuri.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project manifest.
const FileName = "kuri.toml"

// Manifest represents a kuri.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Dependencies map[string]Dependency `toml:"dependencies"`
	Diagnostics  Diagnostics           `toml:"diagnostics"`
	Cache        Cache                 `toml:"cache"`
	Server       Server                `toml:"server"`

	// Dir is the directory containing the kuri.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs []string `toml:"dirs"`
	Root string   `toml:"root"` // module compiled as the program root
}

// Dependency is another kuri project whose modules can be imported.
type Dependency struct {
	Git    string `toml:"git"`
	Tag    string `toml:"tag"`
	Path   string `toml:"path"`
	Module string `toml:"module"` // import name override
}

// Diagnostics configures error reporting.
type Diagnostics struct {
	CollectAll bool `toml:"collect-all"`
	Max        int  `toml:"max"`
}

// Cache configures the module interface cache.
type Cache struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

// Server configures kuri serve.
type Server struct {
	Addr       string `toml:"addr"`
	HealthAddr string `toml:"health-addr"`
}

// Load parses and validates a kuri.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text, checks it against the schema and applies
// defaults.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	m.applyDefaults()
	return &m, nil
}

// Default returns the manifest of a directory without kuri.toml: its
// modules live directly in dir and the cache is disabled.
func Default(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		Project: Project{Name: ToModuleName(filepath.Base(abs))},
		Source:  Source{Dirs: []string{"."}},
		Cache:   Cache{Disabled: true},
		Dir:     abs,
	}
	m.applyDefaults()
	return m, nil
}

func (m *Manifest) applyDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Source.Root == "" {
		m.Source.Root = "principal"
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".kuri", "cache.db")
	}
	if m.Server.Addr == "" {
		m.Server.Addr = "127.0.0.1:7470"
	}
	if m.Server.HealthAddr == "" {
		m.Server.HealthAddr = "127.0.0.1:7471"
	}
}

// FindAndLoad walks up from startDir to find a kuri.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// CachePath returns the absolute path of the interface cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// DepsDir returns the path to the .kuri/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".kuri", "deps")
}

// LockFilePath returns the path to .kuri/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".kuri", "lock.toml")
}
