package manifest

import (
	"fmt"
	"os/exec"
	"strings"
)

// FetchError reports a git command that failed while materializing a
// dependency under .kuri/deps.
type FetchError struct {
	Dep    string // dependency name from kuri.toml
	Step   string // clone, fetch, checkout or rev-parse
	Output string // trimmed git output, may be empty
	Err    error
}

func (e *FetchError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("dependency %s: git %s: %v", e.Dep, e.Step, e.Err)
	}
	return fmt.Sprintf("dependency %s: git %s: %s: %v", e.Dep, e.Step, e.Output, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// runGit runs one git step for dep in dir and returns its standard output.
func runGit(dep, dir, step string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", &FetchError{Dep: dep, Step: step, Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

// gitClone clones the repository named by a git dependency into its
// directory under .kuri/deps.
func gitClone(dep, url, dest string) error {
	_, err := runGit(dep, "", "clone", "clone", "--quiet", url, dest)
	return err
}

// gitFetch refreshes an existing checkout whose locked tag no longer
// matches kuri.toml.
func gitFetch(dep, dir string) error {
	_, err := runGit(dep, dir, "fetch", "fetch", "--quiet", "--all", "--tags")
	return err
}

// gitCheckout moves the checkout to the tag pinned in kuri.toml.
func gitCheckout(dep, dir, tag string) error {
	_, err := runGit(dep, dir, "checkout", "checkout", "--quiet", tag)
	return err
}

// gitCurrentCommit is the commit recorded in kuri.lock.
func gitCurrentCommit(dep, dir string) (string, error) {
	return runGit(dep, dir, "rev-parse", "rev-parse", "HEAD")
}
