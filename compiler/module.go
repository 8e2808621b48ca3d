package compiler

import "strings"

// ---------------------------------------------------------------------------
// Symbols: modules, functions, structures, globals
// ---------------------------------------------------------------------------

// Param is one declared function parameter.
type Param struct {
	Name     string
	Token    Token
	Spec     *TypeSpec
	Type     TypeID
	Variadic bool
	Mutable  bool
}

// Capture is a local variable live across a coroutine suspension point.
type Capture struct {
	Name string
	Type TypeID
}

// Function is one declared signature. Overloads share a Name.
type Function struct {
	Name        string
	MangledName string
	Token       Token
	Params      []Param
	ReturnSpec  *TypeSpec
	Return      TypeID
	Type        TypeID // fonction(...)ret or coroutine(...)ret

	External  bool
	Variadic  bool
	Coroutine bool
	Used      bool

	Decl     NodeID
	Module   *Module
	Captured []Capture
}

// Signature renders the function for candidate listings.
func (f *Function) Signature(tt *TypeTable) string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString(" : ")
		if p.Variadic {
			b.WriteString("...")
		}
		b.WriteString(tt.Text(p.Type))
	}
	b.WriteString(") : ")
	b.WriteString(tt.Text(f.Return))
	return b.String()
}

// internallyVariadic reports whether trailing arguments are packed into an
// array node before the call.
func (f *Function) internallyVariadic() bool {
	return f.Variadic && !f.External
}

// Member is one field of a structure, or one value of an enum.
type Member struct {
	Name    string
	Token   Token
	Spec    *TypeSpec
	Type    TypeID
	Default NodeID
	Value   int64 // enum value
}

// Structure is a declared structure or enum.
type Structure struct {
	Name    string
	Token   Token
	Type    TypeID
	Enum    bool
	Members []Member
	Decl    NodeID
	Module  *Module

	index    map[string]int
	resolved bool
}

// Member looks up a member by name.
func (s *Structure) Member(name string) (*Member, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return &s.Members[i], true
}

func (s *Structure) addMember(m Member) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, dup := s.index[m.Name]; dup {
		return false
	}
	s.index[m.Name] = len(s.Members)
	s.Members = append(s.Members, m)
	return true
}

// Global is a module-level variable.
type Global struct {
	Name    string
	Token   Token
	Type    TypeID
	Mutable bool
	Decl    NodeID
	Module  *Module
}

// Module is one compilation unit.
type Module struct {
	ID     ModuleID
	Name   string
	Path   string
	Source string
	IsRoot bool

	Tokens  []Token
	Root    NodeID
	Imports []string

	Functions map[string][]*Function
	Globals   map[string]*Global

	order    []*Function // declaration order
	imported []*Module
	linked   bool // imports resolved
	state    moduleState
	poisoned map[string]bool // top-level names whose declaration failed
}

type moduleState uint8

const (
	moduleNew moduleState = iota
	moduleParsed
	moduleChecking // validation started
	moduleValidated
)

func newModule(id ModuleID, name, path, source string, root bool) *Module {
	return &Module{
		ID:        id,
		Name:      name,
		Path:      path,
		Source:    source,
		IsRoot:    root,
		Functions: make(map[string][]*Function),
		Globals:   make(map[string]*Global),
	}
}

// AllFunctions returns every declared function in declaration order.
func (m *Module) AllFunctions() []*Function {
	return m.order
}

// ImportedModules returns the resolved imports in import order.
func (m *Module) ImportedModules() []*Module {
	return m.imported
}

func (m *Module) addFunction(f *Function) {
	f.Module = m
	m.Functions[f.Name] = append(m.Functions[f.Name], f)
	m.order = append(m.order, f)
}

// mangle computes the symbol name a code generator emits for f. Functions
// of imported modules are prefixed with the module name; overloaded names
// also carry their signature so each overload gets its own symbol.
func (m *Module) mangle(f *Function, tt *TypeTable) string {
	if f.External || m.IsRoot && f.Name == "principale" {
		return f.Name
	}
	base := f.Name
	if !m.IsRoot {
		base = m.Name + "_" + f.Name
	}
	if len(m.Functions[f.Name]) < 2 {
		return base
	}
	return base + "_" + signatureSymbol(tt, f)
}

// mangleAll names every declared function once all signatures are known.
func (m *Module) mangleAll(tt *TypeTable) {
	for _, f := range m.order {
		f.MangledName = m.mangle(f, tt)
	}
}

// signatureSymbol renders parameter and return types with identifier
// characters only: e32_Pe8 for (e32, *e8), Ve32 for ...e32, with __r64
// appended for a r64 return.
func signatureSymbol(tt *TypeTable, f *Function) string {
	var b strings.Builder
	if len(f.Params) == 0 {
		b.WriteString("v")
	}
	for i, p := range f.Params {
		if i > 0 {
			b.WriteByte('_')
		}
		if p.Variadic {
			b.WriteByte('V')
			writeTypeSymbol(&b, tt.Text(tt.Element(p.Type)))
			continue
		}
		writeTypeSymbol(&b, tt.Text(p.Type))
	}
	if f.Return != TypeRien {
		b.WriteString("__")
		writeTypeSymbol(&b, tt.Text(f.Return))
	}
	return b.String()
}

func writeTypeSymbol(b *strings.Builder, text string) {
	for _, r := range strings.ReplaceAll(text, "...", "V") {
		switch r {
		case '*':
			b.WriteByte('P')
		case '&':
			b.WriteByte('R')
		case '[':
			b.WriteByte('A')
		case '(':
			b.WriteByte('O')
		case ')':
			b.WriteByte('C')
		case ',':
			b.WriteByte('_')
		case ']':
		default:
			b.WriteRune(r)
		}
	}
}

// visibleFunctions gathers the overloads of name visible from m: its own,
// then each import's, in import order.
func (m *Module) visibleFunctions(name string) []*Function {
	out := append([]*Function(nil), m.Functions[name]...)
	for _, imp := range m.imported {
		out = append(out, imp.Functions[name]...)
	}
	return out
}
