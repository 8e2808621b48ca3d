package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Compilation context
// ---------------------------------------------------------------------------

var log = commonlog.GetLogger("kuri.compiler")

// Options controls diagnostic collection.
type Options struct {
	// CollectAll keeps validating after an error, skipping only the failed
	// statement or declaration. The default stops at the first error.
	CollectAll bool

	// MaxDiagnostics caps CollectAll mode; zero means no cap.
	MaxDiagnostics int
}

// ModuleLoader resolves an `importe` statement to source text.
type ModuleLoader interface {
	LoadModule(name string, importer *Module) (path string, source string, err error)
}

// ErrModuleNotFound is returned by loaders that cannot find a module.
var ErrModuleNotFound = errors.New("module not found")

// Context owns everything one compilation shares: the type table, the node
// arena, the module registry and the structure registry. Stages run one at
// a time; a Context is not safe for concurrent use.
type Context struct {
	Types   *TypeTable
	Arena   *Arena
	Options Options
	Loader  ModuleLoader
	Log     commonlog.Logger

	modules    []*Module
	byName     map[string]*Module
	structures map[string]*Structure
	structList []*Structure
	diags      DiagnosticList
}

// NewContext returns an empty compilation context.
func NewContext(opts Options) *Context {
	return &Context{
		Types:      NewTypeTable(),
		Arena:      NewArena(),
		Options:    opts,
		Log:        log,
		modules:    []*Module{nil}, // ModuleID 0 is reserved
		byName:     make(map[string]*Module),
		structures: make(map[string]*Structure),
	}
}

// AddModule registers a module under a unique name.
func (c *Context) AddModule(name, path, source string, root bool) (*Module, error) {
	if _, dup := c.byName[name]; dup {
		return nil, fmt.Errorf("compiler: module %q already registered", name)
	}
	m := newModule(ModuleID(len(c.modules)), name, path, source, root)
	c.modules = append(c.modules, m)
	c.byName[name] = m
	return m, nil
}

// Module returns the module registered under name.
func (c *Context) Module(name string) (*Module, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// ModuleByID returns the module for id, or nil.
func (c *Context) ModuleByID(id ModuleID) *Module {
	if id == 0 || int(id) >= len(c.modules) {
		return nil
	}
	return c.modules[id]
}

// Modules returns every registered module in registration order.
func (c *Context) Modules() []*Module {
	return c.modules[1:]
}

// Structure returns a declared structure or enum.
func (c *Context) Structure(name string) (*Structure, bool) {
	s, ok := c.structures[name]
	return s, ok
}

// Structures returns every declared structure and enum in declaration order.
func (c *Context) Structures() []*Structure {
	return c.structList
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// Tokenize fills m.Tokens.
func (c *Context) Tokenize(m *Module) error {
	toks, err := Tokenize(m.Source, m.ID)
	if err != nil {
		return c.attach(err)
	}
	m.Tokens = toks
	return nil
}

// Parse builds m's tree, tokenizing first if needed. A previous tree is
// released back to the arena.
func (c *Context) Parse(m *Module) error {
	if m.Tokens == nil {
		if err := c.Tokenize(m); err != nil {
			return err
		}
	}
	if m.Root.IsValid() {
		c.Arena.ReleaseTree(m.Root)
		m.Root = NoNode
	}

	p := newParser(c, m)
	root, err := p.parseModule()
	if err != nil {
		return c.attach(err)
	}
	m.Root = root
	m.state = moduleParsed
	return nil
}

// UpdateSource replaces m's text and re-parses it, releasing the previous
// tree and forgetting the symbols m declared.
func (c *Context) UpdateSource(m *Module, source string) error {
	m.Source = source
	m.Tokens = nil
	m.Imports = nil
	m.Functions = make(map[string][]*Function)
	m.Globals = make(map[string]*Global)
	m.order = nil
	m.poisoned = nil
	m.imported = nil
	m.linked = false
	m.state = moduleNew

	kept := c.structList[:0]
	for _, s := range c.structList {
		if s.Module == m {
			delete(c.structures, s.Name)
			continue
		}
		kept = append(kept, s)
	}
	c.structList = kept
	return c.Parse(m)
}

// Compile runs the whole front end on m and every module it imports.
func (c *Context) Compile(m *Module) error {
	return c.CompileContext(context.Background(), m)
}

// CompileContext is Compile with cancellation, checked between top-level
// declarations.
func (c *Context) CompileContext(ctx context.Context, m *Module) error {
	c.diags = nil
	if err := c.load(ctx, m); err != nil {
		return err
	}
	return c.validate(ctx, c.dependencyOrder(m))
}

// Validate runs semantic validation over already-parsed modules. Imports
// must have been resolved by Compile or listed here first.
func (c *Context) Validate(mods ...*Module) error {
	c.diags = nil
	return c.validate(context.Background(), mods)
}

// load parses m and, recursively, its imports.
func (c *Context) load(ctx context.Context, m *Module) error {
	if m.linked {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.linked = true
	if m.state < moduleParsed {
		if err := c.Parse(m); err != nil {
			return err
		}
	}

	for _, imp := range c.importNodes(m) {
		n := c.Arena.Get(imp)
		dep, err := c.resolveImport(n.Str, n.Token, m)
		if err != nil {
			return err
		}
		m.imported = append(m.imported, dep)
		if err := c.load(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) importNodes(m *Module) []NodeID {
	var out []NodeID
	if root := c.Arena.Get(m.Root); root != nil {
		for _, id := range root.Children {
			if n := c.Arena.Get(id); n != nil && n.Kind == NodeImport {
				out = append(out, id)
			}
		}
	}
	return out
}

func (c *Context) resolveImport(name string, tok Token, importer *Module) (*Module, error) {
	if dep, ok := c.byName[name]; ok {
		return dep, nil
	}
	if c.Loader == nil {
		return nil, c.errorf(UnknownIdentifier, tok, "unknown module %q", name)
	}
	path, src, err := c.Loader.LoadModule(name, importer)
	if err != nil {
		d := c.errorf(UnknownIdentifier, tok, "cannot import module %q: %v", name, err)
		return nil, d
	}
	c.Log.Debugf("importing %s from %s", name, path)
	return c.AddModule(name, path, src, false)
}

// dependencyOrder lists m and its transitive imports, imports first.
func (c *Context) dependencyOrder(m *Module) []*Module {
	var out []*Module
	seen := make(map[*Module]bool)
	var visit func(*Module)
	visit = func(x *Module) {
		if seen[x] {
			return
		}
		seen[x] = true
		for _, dep := range x.imported {
			visit(dep)
		}
		out = append(out, x)
	}
	visit(m)
	return out
}

// validate declares every structure and signature of mods before checking
// any function body, so declarations may appear in any order.
func (c *Context) validate(ctx context.Context, mods []*Module) error {
	pending := mods[:0:0]
	for _, m := range mods {
		if m.state < moduleParsed {
			return fmt.Errorf("compiler: module %q has not been parsed", m.Name)
		}
		if m.state == moduleChecking {
			// a failed earlier run left annotations on the tree
			imported := m.imported
			if err := c.UpdateSource(m, m.Source); err != nil {
				return err
			}
			m.imported, m.linked = imported, true
		}
		if m.state < moduleValidated {
			pending = append(pending, m)
		}
	}
	mods = pending
	for _, m := range mods {
		m.state = moduleChecking
	}

	phases := []func(*validator) error{
		(*validator).declareTypes,
		(*validator).resolveTypes,
		(*validator).declareSignatures,
		(*validator).checkBodies,
	}
	for _, phase := range phases {
		for _, m := range mods {
			if err := ctx.Err(); err != nil {
				return err
			}
			v := newValidator(ctx, c, m)
			if err := phase(v); err != nil {
				return err
			}
			if c.full() {
				return c.diags.Err()
			}
		}
	}
	for _, m := range mods {
		m.state = moduleValidated
		c.reportUnused(m)
	}
	return c.diags.Err()
}

func (c *Context) reportUnused(m *Module) {
	if m.IsRoot {
		return
	}
	for _, f := range m.order {
		if !f.Used && !f.External {
			c.Log.Debugf("function %s in module %s is never called", f.Name, m.Name)
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics plumbing
// ---------------------------------------------------------------------------

// errorf builds a diagnostic at tok, taking the path and source line from
// the module the token was read from.
func (c *Context) errorf(kind ErrorKind, tok Token, format string, args ...any) *Diagnostic {
	d := &Diagnostic{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Token:   tok,
	}
	if m := c.ModuleByID(tok.Module); m != nil {
		d.Path = m.Path
		d.LineText = lineAt(m.Source, tok.Offset)
	}
	return d
}

// attach fills in the path of diagnostics raised without one.
func (c *Context) attach(err error) error {
	for _, d := range Diagnostics(err) {
		if d.Path == "" {
			if m := c.ModuleByID(d.Token.Module); m != nil {
				d.Path = m.Path
			}
		}
	}
	return err
}

// record keeps d in collect mode. It returns a non-nil error when
// validation must stop.
func (c *Context) record(d *Diagnostic) error {
	if !c.Options.CollectAll {
		return d
	}
	c.diags = append(c.diags, d)
	if c.full() {
		return c.diags
	}
	return nil
}

func (c *Context) full() bool {
	return c.Options.MaxDiagnostics > 0 && len(c.diags) >= c.Options.MaxDiagnostics
}
