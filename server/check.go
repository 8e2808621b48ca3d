package server

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/compiler/wire"
)

// checkOutcome is what a check produces on the worker goroutine.
type checkOutcome struct {
	ctx    *compiler.Context
	module *compiler.Module
	err    error
	cached bool
	iface  *wire.Interface
}

// newContext returns an empty compilation context configured from ws.
func (ws *Workspace) newContext(collectAll bool) *compiler.Context {
	opts := ws.Options
	if collectAll {
		opts.CollectAll = true
	}
	c := compiler.NewContext(opts)
	c.Loader = ws.Loader
	return c
}

// check compiles one root module. With a session the session's context is
// reused: an unchanged module is answered from the previous validation and
// imported modules stay validated between checks. Must run on the worker
// goroutine.
func (ws *Workspace) check(ctx context.Context, session *Session, req *CheckRequest) *checkOutcome {
	if session == nil {
		return ws.checkFresh(ctx, req)
	}

	c := session.ctx
	if c == nil || c.Options.CollectAll != (req.CollectAll || ws.Options.CollectAll) {
		session.reset()
		c = ws.newContext(req.CollectAll)
		session.ctx = c
	}

	m, ok := c.Module(req.Module)
	switch {
	case !ok:
		var err error
		if m, err = c.AddModule(req.Module, req.Path, req.Source, true); err != nil {
			return &checkOutcome{err: err}
		}
	case m.Source == req.Source && m.IsRoot && session.valid[req.Module]:
		return &checkOutcome{ctx: c, module: m}
	case !m.IsRoot || importedBy(c, m):
		// Dependents were validated against the old declarations.
		session.reset()
		c = ws.newContext(req.CollectAll)
		session.ctx = c
		var err error
		if m, err = c.AddModule(req.Module, req.Path, req.Source, true); err != nil {
			return &checkOutcome{err: err}
		}
	default:
		delete(session.valid, req.Module)
		if err := c.UpdateSource(m, req.Source); err != nil {
			session.reset()
			return &checkOutcome{ctx: c, module: m, err: err}
		}
	}

	if err := c.CompileContext(ctx, m); err != nil {
		// A failed validation can leave imported modules half checked.
		session.reset()
		return &checkOutcome{ctx: c, module: m, err: err}
	}
	if session.valid == nil {
		session.valid = make(map[string]bool)
	}
	session.valid[req.Module] = true
	return &checkOutcome{ctx: c, module: m}
}

// checkFresh compiles in a throwaway context. A module without imports is
// answered from the cache when it holds an interface for the same source;
// the cache key does not cover imported modules.
func (ws *Workspace) checkFresh(ctx context.Context, req *CheckRequest) *checkOutcome {
	if ws.Cache != nil {
		iface, err := ws.Cache.Lookup(ctx, req.Module, req.Source)
		if err == nil && len(iface.Imports) == 0 {
			return &checkOutcome{cached: true, iface: iface}
		}
	}

	c := ws.newContext(req.CollectAll)
	m, err := c.AddModule(req.Module, req.Path, req.Source, true)
	if err != nil {
		return &checkOutcome{err: err}
	}
	return &checkOutcome{ctx: c, module: m, err: c.CompileContext(ctx, m)}
}

// importedBy reports whether another module of c imports m.
func importedBy(c *compiler.Context, m *compiler.Module) bool {
	for _, other := range c.Modules() {
		for _, dep := range other.ImportedModules() {
			if dep == m {
				return true
			}
		}
	}
	return false
}

// response turns an outcome into a CheckResponse, storing the interface of
// a successful check.
func (ws *Workspace) response(ctx context.Context, out *checkOutcome, results *ResultStore, sessionID string) *CheckResponse {
	if out.err != nil {
		if errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded) {
			log.Debugf("check cancelled: %v", out.err)
		}
		return &CheckResponse{Diagnostics: diagnosticMessages(out.err)}
	}

	iface := out.iface
	if iface == nil {
		iface = wire.FromModule(out.ctx, out.module)
		if ws.Cache != nil {
			if _, err := ws.Cache.Put(ctx, iface); err != nil {
				log.Warningf("caching interface of %s: %v", iface.Module, err)
			}
		}
	}

	return &CheckResponse{
		Valid:       true,
		CompileID:   results.Create(iface, sessionID),
		Fingerprint: hex.EncodeToString(iface.Fingerprint[:]),
		Interface:   iface,
		Cached:      out.cached,
	}
}
