package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("kuri.manifest")

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	Module    string    // import name prefix for its modules
	LocalPath string    // local filesystem path
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// SourceDirs returns the directories searched for the dependency's modules.
func (rd ResolvedDep) SourceDirs() []string {
	if rd.Manifest != nil {
		return rd.Manifest.SourceDirPaths()
	}
	return []string{rd.LocalPath}
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (topologically sorted: dependencies before dependents).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

// resolveAll resolves the dependencies of m recursively, in name order so
// the result is stable.
func (r *Resolver) resolveAll(m *Manifest, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue // already resolved
		}

		rd, err := r.resolveOne(m, name, m.Dependencies[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.Manifest, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

// resolveModuleName determines the import name of a dependency:
//  1. Consumer override (dep.Module from TOML)
//  2. Producer manifest (depManifest.Project.Name)
//  3. The dependency key
func resolveModuleName(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var mod string
	switch {
	case dep.Module != "":
		mod = dep.Module
	case depManifest != nil && depManifest.Project.Name != "":
		mod = ToModuleName(depManifest.Project.Name)
	default:
		mod = ToModuleName(name)
	}

	if IsReservedModuleName(mod) {
		return "", fmt.Errorf("dependency %q resolves to reserved module name %q; add module = \"...\" in [dependencies]", name, mod)
	}
	return mod, nil
}

// resolveOne resolves a single dependency declared by owner.
func (r *Resolver) resolveOne(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	var localPath string

	switch {
	case dep.Path != "":
		localPath = dep.Path
		if !filepath.IsAbs(localPath) {
			localPath = filepath.Join(owner.Dir, localPath)
		}
		abs, err := filepath.Abs(localPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		localPath = abs
		if _, err := os.Stat(localPath); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
		}

	case dep.Git != "":
		depsDir := r.manifest.DepsDir()
		if err := os.MkdirAll(depsDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating deps dir: %w", err)
		}
		localPath = filepath.Join(depsDir, name)
		if err := r.fetchGit(name, dep, localPath); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	// A dependency without a manifest is a plain directory of modules.
	depManifest, err := Load(localPath)
	if err != nil {
		if _, statErr := os.Stat(filepath.Join(localPath, FileName)); statErr == nil {
			return nil, err
		}
		depManifest = nil
	}

	mod, err := resolveModuleName(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	log.Debugf("resolved %s as module %s at %s", name, mod, localPath)

	return &ResolvedDep{
		Name:      name,
		Module:    mod,
		LocalPath: localPath,
		Manifest:  depManifest,
	}, nil
}

func (r *Resolver) fetchGit(name string, dep Dependency, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(name, dep.Git, dir); err != nil {
			return err
		}
	} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
		log.Infof("fetching %s", name)
		if err := gitFetch(name, dir); err != nil {
			return err
		}
	}

	if dep.Tag != "" {
		return gitCheckout(name, dir, dep.Tag)
	}
	return nil
}

// writeLock writes the resolved dependencies to the lock file.
func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}

	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rd := resolved[name]
		ld := LockedDep{Name: rd.Name}

		dep := r.dependency(name)
		if dep.Git != "" {
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			if commit, err := gitCurrentCommit(name, rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		} else {
			ld.Path = dep.Path
			if ld.Path == "" {
				ld.Path = rd.LocalPath
			}
		}
		lf.Deps = append(lf.Deps, ld)
	}

	lockDir := filepath.Dir(r.manifest.LockFilePath())
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}

// dependency returns the root manifest's declaration of name. Transitive
// dependencies are declared elsewhere and yield the zero value.
func (r *Resolver) dependency(name string) Dependency {
	if dep, ok := r.manifest.Dependencies[name]; ok {
		return dep
	}
	return Dependency{}
}
