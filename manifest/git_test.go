package manifest

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestFetchErrorMessage(t *testing.T) {
	cause := errors.New("exit status 128")
	tests := []struct {
		err  *FetchError
		want string
	}{
		{&FetchError{Dep: "maths", Step: "clone", Err: cause}, "dependency maths: git clone: exit status 128"},
		{&FetchError{Dep: "maths", Step: "checkout", Output: "error: pathspec 'v9' did not match", Err: cause},
			"dependency maths: git checkout: error: pathspec 'v9' did not match: exit status 128"},
	}
	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
		if !errors.Is(tc.err, cause) {
			t.Errorf("%q does not unwrap to its cause", tc.err.Error())
		}
	}
}

func TestGitCloneNamesDependency(t *testing.T) {
	dir := t.TempDir()
	err := gitClone("maths", filepath.Join(dir, "absent"), filepath.Join(dir, "deps", "maths"))
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want a *FetchError", err)
	}
	if fe.Dep != "maths" || fe.Step != "clone" {
		t.Errorf("FetchError = %+v, want dependency maths step clone", fe)
	}
}
