package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "calcul"
version = "0.1.0"

[source]
dirs = ["src", "lib"]
root = "calcul"

[dependencies]
aide = { path = "../aide" }
maths = { git = "https://example.org/maths.git", tag = "v1.2.0", module = "m" }

[diagnostics]
collect-all = true
max = 20

[cache]
path = "/tmp/kuri-cache.db"

[server]
addr = ":9000"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "calcul" {
		t.Errorf("project name = %q, want calcul", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Source.Root != "calcul" {
		t.Errorf("source root = %q, want calcul", m.Source.Root)
	}
	if dep, ok := m.Dependencies["aide"]; !ok || dep.Path != "../aide" {
		t.Errorf("aide dep = %v, want path ../aide", m.Dependencies["aide"])
	}
	if dep := m.Dependencies["maths"]; dep.Git == "" || dep.Tag != "v1.2.0" || dep.Module != "m" {
		t.Errorf("maths dep = %+v", dep)
	}
	if !m.Diagnostics.CollectAll || m.Diagnostics.Max != 20 {
		t.Errorf("diagnostics = %+v", m.Diagnostics)
	}
	if m.CachePath() != "/tmp/kuri-cache.db" {
		t.Errorf("cache path = %q", m.CachePath())
	}
	if m.Server.Addr != ":9000" || m.Server.HealthAddr != "127.0.0.1:7471" {
		t.Errorf("server = %+v", m.Server)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Source.Root != "principal" {
		t.Errorf("default root = %q, want principal", m.Source.Root)
	}
	if want := filepath.Join(m.Dir, ".kuri", "cache.db"); m.CachePath() != want {
		t.Errorf("default cache path = %q, want %q", m.CachePath(), want)
	}
	if m.Server.Addr == "" || m.Server.HealthAddr == "" {
		t.Errorf("server defaults missing: %+v", m.Server)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[project\nname = 1", "parse error"},
		{"missing project", "[source]\ndirs = [\"src\"]\n", "invalid manifest"},
		{"empty name", "[project]\nname = \"\"\n", "invalid manifest"},
		{"unknown key", "[project]\nname = \"a\"\ncolour = \"bleu\"\n", "invalid manifest"},
		{"bad version", "[project]\nname = \"a\"\nversion = \"un\"\n", "invalid manifest"},
		{"negative max", "[project]\nname = \"a\"\n[diagnostics]\nmax = -1\n", "invalid manifest"},
		{"dependency with both sources", "[project]\nname = \"a\"\n[dependencies]\nx = { path = \"p\", git = \"g\" }\n", "invalid manifest"},
		{"dependency without source", "[project]\nname = \"a\"\n[dependencies]\nx = { tag = \"v1\" }\n", "invalid manifest"},
		{"root not an identifier", "[project]\nname = \"a\"\n[source]\nroot = \"a-b\"\n", "invalid manifest"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.content))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected an error for a directory without kuri.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"trouve\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "trouve" {
		t.Errorf("project name = %q, want trouve", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no kuri.toml exists")
	}
}

func TestDefault(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mon-outil")
	m, err := Default(dir)
	if err != nil {
		t.Fatalf("Default error: %v", err)
	}
	if m.Project.Name != "mon_outil" {
		t.Errorf("project name = %q, want mon_outil", m.Project.Name)
	}
	if paths := m.SourceDirPaths(); len(paths) != 1 || paths[0] != dir {
		t.Errorf("SourceDirPaths = %v, want [%s]", paths, dir)
	}
	if m.Source.Root != "principal" || !m.Cache.Disabled {
		t.Errorf("defaults = %+v", m)
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/src" {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/app/lib" {
		t.Errorf("paths[1] = %q, want /app/lib", paths[1])
	}
}

func TestLockFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "lock.toml")

	lf := &LockFile{
		Deps: []LockedDep{
			{Name: "maths", Git: "https://example.org/maths.git", Commit: "abc123", Tag: "v0.5.0"},
			{Name: "aide", Path: "../aide"},
		},
	}

	if err := WriteLock(lockPath, lf); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}

	loaded, err := ReadLock(lockPath)
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}

	if len(loaded.Deps) != 2 {
		t.Fatalf("expected 2 deps, got %d", len(loaded.Deps))
	}
	if loaded.Deps[0].Name != "maths" {
		t.Errorf("dep[0].Name = %q, want maths", loaded.Deps[0].Name)
	}
	if loaded.Deps[0].Commit != "abc123" {
		t.Errorf("dep[0].Commit = %q, want abc123", loaded.Deps[0].Commit)
	}

	found := loaded.FindLockedDep("aide")
	if found == nil || found.Path != "../aide" {
		t.Errorf("FindLockedDep(aide) = %v, want path ../aide", found)
	}

	notFound := loaded.FindLockedDep("absent")
	if notFound != nil {
		t.Errorf("FindLockedDep(absent) = %v, want nil", notFound)
	}

	var none *LockFile
	if none.FindLockedDep("aide") != nil {
		t.Error("FindLockedDep on a nil lock file should be nil")
	}
}

func TestReadLockNotFound(t *testing.T) {
	lf, err := ReadLock("/nonexistent/path/lock.toml")
	if err != nil {
		t.Errorf("ReadLock should return nil,nil for missing file, got err: %v", err)
	}
	if lf != nil {
		t.Errorf("ReadLock should return nil for missing file, got %v", lf)
	}
}
