package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/diekev/delsace-sub011/compiler"
)

// Extension is the file extension of kuri modules.
const Extension = ".kuri"

// DirLoader finds imported modules on disk: `importe "x"` reads x.kuri
// from the importer's directory, then each source directory, then the
// source directories of each dependency in load order.
type DirLoader struct {
	Dirs []string
	Deps []ResolvedDep
}

// NewLoader builds a loader over the project's source directories and its
// resolved dependencies.
func NewLoader(m *Manifest, deps []ResolvedDep) *DirLoader {
	return &DirLoader{Dirs: m.SourceDirPaths(), Deps: deps}
}

// SearchPath lists the directories LoadModule tries for importer.
func (l *DirLoader) SearchPath(importer *compiler.Module) []string {
	var dirs []string
	if importer != nil && importer.Path != "" {
		dirs = append(dirs, filepath.Dir(importer.Path))
	}
	dirs = append(dirs, l.Dirs...)
	for _, dep := range l.Deps {
		dirs = append(dirs, dep.SourceDirs()...)
	}
	return dirs
}

// LoadModule implements compiler.ModuleLoader.
func (l *DirLoader) LoadModule(name string, importer *compiler.Module) (string, string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", "", fmt.Errorf("invalid module name %q: %w", name, compiler.ErrModuleNotFound)
	}
	for _, dir := range l.SearchPath(importer) {
		path := filepath.Join(dir, name+Extension)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("read %s: %w", path, err)
		}
	}
	return "", "", fmt.Errorf("module %q: %w", name, compiler.ErrModuleNotFound)
}
