package server

import (
	"context"
	"path/filepath"
	"testing"

	"connectrpc.com/connect"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/modcache"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

// modules is an in-memory module loader.
type modules map[string]string

func (l modules) LoadModule(name string, _ *compiler.Module) (string, string, error) {
	src, ok := l[name]
	if !ok {
		return "", "", compiler.ErrModuleNotFound
	}
	return name + ".kuri", src, nil
}

// testLibrary is importable from every test workspace.
var testLibrary = modules{
	"formes": "structure Cercle { rayon : r32 }\nfonction aire(c : Cercle) : r32 { retourne c.rayon * c.rayon; }\n",
}

const (
	validSource   = "fonction f(x : e32) : e32 { retourne x; }\nfonction principale() { soit y = f(5); }\n"
	invalidSource = "fonction f(n : e64) {\n\tsi n { }\n}\n"
	importSource  = "importe \"formes\"\nfonction principale() { soit c = Cercle { rayon = 2.0 }; soit a = aire(c); }\n"
)

// testEnv bundles a workspace with its worker and stores.
type testEnv struct {
	Workspace *Workspace
	Worker    *CompileWorker
	Results   *ResultStore
	Sessions  *SessionStore
}

// newTestEnv creates a fresh workspace; the worker stops with the test.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ws := &Workspace{Loader: testLibrary}
	w := NewCompileWorker(ws)
	t.Cleanup(w.Stop)
	results := NewResultStore()
	return &testEnv{
		Workspace: ws,
		Worker:    w,
		Results:   results,
		Sessions:  NewSessionStore(results),
	}
}

// withCache attaches an interface cache in a temporary directory.
func (e *testEnv) withCache(t *testing.T) *testEnv {
	t.Helper()
	cache, err := modcache.Open(modcache.Config{Path: filepath.Join(t.TempDir(), "cache.db")})
	if err != nil {
		t.Fatalf("modcache.Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	e.Workspace.Cache = cache
	return e
}

func (e *testEnv) checkService() *CheckService {
	return NewCheckService(e.Worker, e.Results, e.Sessions)
}

func (e *testEnv) sessionService() *SessionService {
	return NewSessionService(e.Worker, e.Sessions)
}

// ---------------------------------------------------------------------------
// Request builder helpers.
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}
