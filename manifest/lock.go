package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// LockFile pins the resolved version of every dependency.
type LockFile struct {
	Deps []LockedDep `toml:"dep"`
}

// LockedDep is one pinned dependency.
type LockedDep struct {
	Name   string `toml:"name"`
	Git    string `toml:"git,omitempty"`
	Tag    string `toml:"tag,omitempty"`
	Commit string `toml:"commit,omitempty"`
	Path   string `toml:"path,omitempty"`
}

// ReadLock reads a lock file. A missing file yields nil, nil.
func ReadLock(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lf LockFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &lf, nil
}

// WriteLock writes lf to path.
func WriteLock(path string, lf *LockFile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(lf); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// FindLockedDep returns the pinned entry for name, or nil.
func (lf *LockFile) FindLockedDep(name string) *LockedDep {
	if lf == nil {
		return nil
	}
	for i := range lf.Deps {
		if lf.Deps[i].Name == name {
			return &lf.Deps[i]
		}
	}
	return nil
}
