package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/manifest"
	"github.com/diekev/delsace-sub011/modcache"
	"github.com/diekev/delsace-sub011/server"
)

// project is the loaded configuration every command starts from.
type project struct {
	Manifest *manifest.Manifest
	Loader   *manifest.DirLoader
	Cache    *modcache.Cache // nil when disabled
}

// loadProject finds kuri.toml above dir, resolves its dependencies and
// opens the interface cache. A directory without a manifest is a project
// whose modules live directly in it.
func loadProject(dir string) (*project, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		log.Debugf("no %s above %s", manifest.FileName, dir)
		if m, err = manifest.Default(dir); err != nil {
			return nil, err
		}
	}

	var deps []manifest.ResolvedDep
	if len(m.Dependencies) > 0 {
		if deps, err = manifest.NewResolver(m).Resolve(); err != nil {
			return nil, fmt.Errorf("dependencies: %w", err)
		}
	}

	p := &project{Manifest: m, Loader: manifest.NewLoader(m, deps)}
	if !m.Cache.Disabled && !noCache {
		path := m.CachePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cache dir: %w", err)
		}
		if p.Cache, err = modcache.Open(modcache.Config{Path: path}); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Close releases the cache.
func (p *project) Close() {
	if p.Cache != nil {
		p.Cache.Close()
	}
}

// options returns the compiler options from the manifest, overridden by
// the command's flags.
func (p *project) options(collectAll bool, maxDiags int) compiler.Options {
	opts := compiler.Options{
		CollectAll:     p.Manifest.Diagnostics.CollectAll || collectAll,
		MaxDiagnostics: p.Manifest.Diagnostics.Max,
	}
	if maxDiags > 0 {
		opts.MaxDiagnostics = maxDiags
	}
	return opts
}

// workspace returns the server workspace compiling this project.
func (p *project) workspace(opts compiler.Options) *server.Workspace {
	return &server.Workspace{Loader: p.Loader, Options: opts, Cache: p.Cache}
}

// newContext returns a compilation context importing from the project.
func (p *project) newContext(opts compiler.Options) *compiler.Context {
	c := compiler.NewContext(opts)
	c.Loader = p.Loader
	return c
}

// rootFiles returns the files to check when none are named: the
// manifest's root module.
func (p *project) rootFiles() ([]string, error) {
	name := p.Manifest.Source.Root
	for _, dir := range p.Manifest.SourceDirPaths() {
		path := filepath.Join(dir, name+manifest.Extension)
		if _, err := os.Stat(path); err == nil {
			return []string{path}, nil
		}
	}
	return nil, fmt.Errorf("root module %q not found in %s", name, strings.Join(p.Manifest.SourceDirPaths(), ", "))
}

// moduleName derives a module name from a file path.
func moduleName(path string) string {
	return manifest.ToModuleName(strings.TrimSuffix(filepath.Base(path), manifest.Extension))
}

// addFile reads path and registers it in c as a root module.
func addFile(c *compiler.Context, path string) (*compiler.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.AddModule(moduleName(path), path, string(data), true)
}

// compileFile compiles one file as a root module.
func (p *project) compileFile(path string, opts compiler.Options) (*compiler.Context, *compiler.Module, error) {
	c := p.newContext(opts)
	m, err := addFile(c, path)
	if err != nil {
		return nil, nil, err
	}
	return c, m, c.Compile(m)
}
