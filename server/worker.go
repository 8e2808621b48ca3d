package server

import (
	"errors"
	"fmt"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/modcache"
)

// Workspace is the compiler state shared by every request. A
// compiler.Context has a single owner, so workspaces and the session
// contexts they hold are only touched from the worker goroutine.
type Workspace struct {
	Loader  compiler.ModuleLoader
	Options compiler.Options
	Cache   *modcache.Cache // nil disables the interface cache
}

var errStopped = errors.New("compile worker stopped")

// workRequest represents a unit of work to be executed on the worker goroutine.
type workRequest struct {
	fn   func(*Workspace) interface{}
	done chan workResult
}

// workResult holds the return value from a worker operation.
type workResult struct {
	value interface{}
	err   error
}

// CompileWorker serializes all compiler access through a single goroutine.
// Connect handlers and the LSP must go through the worker to avoid data
// races on compilation contexts.
type CompileWorker struct {
	ws       *Workspace
	requests chan workRequest
	quit     chan struct{}
}

// NewCompileWorker creates a CompileWorker and starts the processing goroutine.
func NewCompileWorker(ws *Workspace) *CompileWorker {
	w := &CompileWorker{
		ws:       ws,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *CompileWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			result := w.execute(req.fn)
			req.done <- result
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the workspace, recovering from panics.
func (w *CompileWorker) execute(fn func(*Workspace) interface{}) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("compile worker recovered: %v", r)
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.ws)
	}()
	return result
}

// Do submits a function for execution on the worker goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *CompileWorker) Do(fn func(*Workspace) interface{}) (interface{}, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case <-w.quit:
		return nil, errStopped
	default:
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, errStopped
	}
}

// Stop shuts down the worker goroutine.
func (w *CompileWorker) Stop() {
	close(w.quit)
}
