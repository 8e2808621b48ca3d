package compiler

import (
	"context"
	"errors"
	"strings"
)

// ---------------------------------------------------------------------------
// Semantic validation: declarations and statements
// ---------------------------------------------------------------------------

// validator checks one module. It runs in phases driven by
// Context.validate so every structure and signature of every module is
// known before any function body is checked.
type validator struct {
	ctx   context.Context
	c     *Context
	tt    *TypeTable
	arena *Arena
	m     *Module
	scope *Scope
	fn    *Function
}

func newValidator(ctx context.Context, c *Context, m *Module) *validator {
	return &validator{
		ctx:   ctx,
		c:     c,
		tt:    c.Types,
		arena: c.Arena,
		m:     m,
		scope: NewScope(),
	}
}

func (v *validator) errorf(kind ErrorKind, tok Token, format string, args ...any) *Diagnostic {
	return v.c.errorf(kind, tok, format, args...)
}

// recover absorbs a diagnostic in collect mode, marking the failed node.
// Anything else, including a full diagnostic list, is returned.
func (v *validator) recover(id NodeID, err error) error {
	if err == nil || !v.c.Options.CollectAll {
		return err
	}
	if errors.Is(err, errPoisoned) {
		v.poison(id)
		return nil
	}
	var d *Diagnostic
	if !errors.As(err, &d) {
		return err
	}
	v.poison(id)
	return v.c.record(d)
}

// errPoisoned aborts a statement that uses a name whose declaration already
// failed. recover drops it without a diagnostic.
var errPoisoned = errors.New("compiler: use of a name whose declaration failed")

// poison marks the failed node and remembers the name it declares, so
// later uses fail with errPoisoned instead of reporting it as unknown.
func (v *validator) poison(id NodeID) {
	n := v.arena.Get(id)
	if n == nil {
		return
	}
	n.Flags |= FlagFailed

	name := ""
	switch n.Kind {
	case NodeFunctionDecl:
		if n.Func.Type == TypeUnresolved {
			name = n.Func.Name
		}
	case NodeVariable:
		if n.Flags.Has(FlagDeclaration) {
			name = n.Str
		}
	case NodeAssign:
		if vn := v.arena.Get(n.Children[0]); vn.Kind == NodeVariable && vn.Flags.Has(FlagDeclaration) {
			name = vn.Str
		}
	}
	if name == "" {
		return
	}
	if v.fn == nil {
		if v.m.poisoned == nil {
			v.m.poisoned = make(map[string]bool)
		}
		v.m.poisoned[name] = true
		return
	}
	if _, ok := v.scope.Lookup(name); ok {
		return
	}
	if _, ok := v.lookupGlobal(name); ok {
		return
	}
	v.scope.Declare(Local{Name: name, Type: TypeUnresolved, Decl: id, Failed: true})
}

// isPoisoned reports whether name failed to declare at the top level of
// this module or of a module it imports.
func (v *validator) isPoisoned(name string) bool {
	if v.m.poisoned[name] {
		return true
	}
	for _, imp := range v.m.imported {
		if imp.poisoned[name] {
			return true
		}
	}
	return false
}

func (v *validator) topLevel() []NodeID {
	if root := v.arena.Get(v.m.Root); root != nil {
		return root.Children
	}
	return nil
}

// ---------------------------------------------------------------------------
// Phase 1: structure and enum names
// ---------------------------------------------------------------------------

func (v *validator) declareTypes() error {
	var firstErr error
	v.arena.Walk(v.m.Root, func(id NodeID, n *Node) bool {
		if firstErr != nil {
			return false
		}
		switch n.Kind {
		case NodeStructDecl, NodeEnumDecl:
			firstErr = v.recover(id, v.declareType(id, n))
			return false
		case NodeRoot, NodeFunctionDecl, NodeBlock, NodeIf, NodeUnless, NodeFor,
			NodeLoop, NodeWhile, NodeDefer, NodeUnsafe:
			return true
		}
		return false
	})
	return firstErr
}

func (v *validator) declareType(id NodeID, n *Node) error {
	if prev, dup := v.c.structures[n.Str]; dup {
		d := v.errorf(Redeclaration, n.Token, "'%s' is already declared", n.Str)
		d.Related = &prev.Token
		return d
	}
	s := &Structure{
		Name:   n.Str,
		Token:  n.Token,
		Enum:   n.Kind == NodeEnumDecl,
		Decl:   id,
		Module: v.m,
	}
	s.Type = v.tt.DeclareStructure(s.Name, s.Enum)
	n.Type = s.Type
	v.c.structures[s.Name] = s
	v.c.structList = append(v.c.structList, s)
	return nil
}

// ---------------------------------------------------------------------------
// Phase 2: members and enum values
// ---------------------------------------------------------------------------

func (v *validator) resolveTypes() error {
	for _, s := range v.c.structList {
		if s.Module != v.m || s.resolved {
			continue
		}
		s.resolved = true
		var err error
		if s.Enum {
			err = v.resolveEnum(s)
		} else {
			err = v.resolveStructure(s)
		}
		if err = v.recover(s.Decl, err); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) resolveStructure(s *Structure) error {
	decl := v.arena.Get(s.Decl)
	layout := make([]TypeID, 0, len(decl.Children))

	for _, mid := range decl.Children {
		mn := v.arena.Get(mid)
		member := Member{Name: mn.Str, Token: mn.Token, Spec: mn.Spec}

		if mn.Spec != nil {
			t, err := v.resolveSpec(mn.Spec)
			if err != nil {
				return err
			}
			member.Type = t
		}
		if len(mn.Children) > 0 {
			def := mn.Children[0]
			if err := v.expr(def); err != nil {
				return err
			}
			dn := v.arena.Get(def)
			if member.Type == TypeUnresolved {
				member.Type = dn.Type
			} else if c := v.tt.Compatible(member.Type, dn.Type, dn.Kind); c == CompatReject {
				return v.errorf(TypeMismatch, dn.Token, "default value of '%s' has type %s, member type is %s",
					member.Name, v.tt.Text(dn.Type), v.tt.Text(member.Type))
			} else {
				dn.Flags |= coercionFlags(c)
			}
			member.Default = def
		}

		if v.containsByValue(member.Type, s.Type) {
			return v.errorf(RecursiveValueMember, mn.Token,
				"structure '%s' cannot contain itself by value; use a pointer", s.Name)
		}
		if !s.addMember(member) {
			prev, _ := s.Member(member.Name)
			d := v.errorf(DuplicateMember, mn.Token, "member '%s' is declared twice in '%s'", member.Name, s.Name)
			d.Related = &prev.Token
			return d
		}
		mn.Type = member.Type
		layout = append(layout, member.Type)
	}
	v.tt.SetLayout(s.Type, layout)
	return nil
}

// containsByValue reports whether t is self or a fixed array of self.
func (v *validator) containsByValue(t, self TypeID) bool {
	d := v.tt.Descriptor(t)
	i := 0
	for i < len(d) && d[i].Kind() == TagArray && d[i].Payload() != 0 {
		i++
	}
	return len(d) == i+1 && v.tt.Descriptor(self).Equal(d[i:])
}

func (v *validator) resolveEnum(s *Structure) error {
	decl := v.arena.Get(s.Decl)
	base := TypeE32
	if decl.Spec != nil {
		t, err := v.resolveSpec(decl.Spec)
		if err != nil {
			return err
		}
		if !v.tt.IsIntegral(t) {
			return v.errorf(TypeMismatch, decl.Spec.Token, "enum '%s' needs an integral base type, not %s", s.Name, v.tt.Text(t))
		}
		base = t
	}

	next := int64(0)
	for _, mid := range decl.Children {
		mn := v.arena.Get(mid)
		if len(mn.Children) > 0 {
			vn := v.arena.Get(mn.Children[0])
			if vn.Kind != NodeIntLiteral {
				return v.errorf(TypeMismatch, vn.Token, "value of '%s.%s' must be an integer literal", s.Name, mn.Str)
			}
			vn.Type = base
			next = vn.Int
		}
		member := Member{Name: mn.Str, Token: mn.Token, Type: s.Type, Value: next}
		if !s.addMember(member) {
			prev, _ := s.Member(member.Name)
			d := v.errorf(DuplicateMember, mn.Token, "value '%s' is declared twice in '%s'", member.Name, s.Name)
			d.Related = &prev.Token
			return d
		}
		mn.Type = s.Type
		mn.Int = next
		next++
	}
	v.tt.SetLayout(s.Type, []TypeID{base})
	return nil
}

// resolveSpec turns a written type into a TypeID.
func (v *validator) resolveSpec(spec *TypeSpec) (TypeID, error) {
	var id TypeID
	switch {
	case spec.Callable != TagInvalid:
		params := make([]TypeID, len(spec.Params))
		for i, ps := range spec.Params {
			t, err := v.resolveSpec(ps)
			if err != nil {
				return TypeUnresolved, err
			}
			if ps.Variadic {
				t = v.tt.VariadicOf(t)
			}
			params[i] = t
		}
		ret := TypeRien
		if spec.Return != nil {
			t, err := v.resolveSpec(spec.Return)
			if err != nil {
				return TypeUnresolved, err
			}
			ret = t
		}
		id = v.tt.FunctionType(params, ret, spec.Callable == TagCoroutine)
	case spec.Base == TokenIdentifier:
		s, ok := v.c.structures[spec.Name]
		if !ok {
			return TypeUnresolved, v.errorf(UnknownType, spec.Token, "unknown type '%s'", spec.Name)
		}
		id = s.Type
	default:
		t, ok := builtinByToken[spec.Base]
		if !ok {
			return TypeUnresolved, v.errorf(UnknownType, spec.Token, "unknown type '%s'", spec.Token.Text)
		}
		id = t
	}
	for i := len(spec.Modifiers) - 1; i >= 0; i-- {
		id = v.tt.Wrap(spec.Modifiers[i], id)
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Phase 3: signatures and globals
// ---------------------------------------------------------------------------

func (v *validator) declareSignatures() error {
	for _, id := range v.topLevel() {
		n := v.arena.Get(id)
		if n.Kind != NodeFunctionDecl {
			continue
		}
		if err := v.recover(id, v.declareFunction(n.Func)); err != nil {
			return err
		}
	}
	v.m.mangleAll(v.tt)
	for _, id := range v.topLevel() {
		n := v.arena.Get(id)
		if n.Kind != NodeVariable && n.Kind != NodeAssign {
			continue
		}
		if err := v.recover(id, v.declareGlobal(id)); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) declareFunction(fn *Function) error {
	params := make([]TypeID, len(fn.Params))
	seen := make(map[string]Token, len(fn.Params))
	for i := range fn.Params {
		p := &fn.Params[i]
		if prev, dup := seen[p.Name]; dup {
			d := v.errorf(Redeclaration, p.Token, "parameter '%s' is declared twice", p.Name)
			d.Related = &prev
			return d
		}
		seen[p.Name] = p.Token

		t, err := v.resolveSpec(p.Spec)
		if err != nil {
			return err
		}
		params[i] = t
		if p.Variadic {
			params[i] = v.tt.VariadicOf(t)
			t = v.tt.ArrayOf(t, 0)
		}
		p.Type = t
	}

	fn.Return = TypeRien
	if fn.ReturnSpec != nil {
		t, err := v.resolveSpec(fn.ReturnSpec)
		if err != nil {
			return err
		}
		fn.Return = t
	}
	fn.Type = v.tt.FunctionType(params, fn.Return, fn.Coroutine)

	for _, other := range v.m.Functions[fn.Name] {
		if other.Type == fn.Type {
			d := v.errorf(Redeclaration, fn.Token, "function '%s' is already declared with the same signature", fn.Name)
			d.Related = &other.Token
			return d
		}
	}

	fn.Used = false
	fn.Captured = nil
	if v.m.IsRoot && fn.Name == "principale" {
		fn.Used = true
	}
	v.m.addFunction(fn)
	if n := v.arena.Get(fn.Decl); n != nil {
		n.Type = fn.Type
	}
	return nil
}

func (v *validator) declareGlobal(id NodeID) error {
	n := v.arena.Get(id)
	varID, value := id, NoNode
	if n.Kind == NodeAssign {
		varID, value = n.Children[0], n.Children[1]
	}
	vn := v.arena.Get(varID)

	if prev, dup := v.m.Globals[vn.Str]; dup {
		d := v.errorf(Redeclaration, vn.Token, "global '%s' is already declared", vn.Str)
		d.Related = &prev.Token
		return d
	}

	t, err := v.declaredType(vn, value)
	if err != nil {
		return err
	}
	vn.Type = t
	n.Type = t
	v.m.Globals[vn.Str] = &Global{
		Name:    vn.Str,
		Token:   vn.Token,
		Type:    t,
		Mutable: vn.Flags.Has(FlagMutable),
		Decl:    varID,
		Module:  v.m,
	}
	return nil
}

// declaredType resolves the type of a declaration from its written type,
// its initial value, or both.
func (v *validator) declaredType(vn *Node, value NodeID) (TypeID, error) {
	t := TypeUnresolved
	if vn.Spec != nil {
		var err error
		if t, err = v.resolveSpec(vn.Spec); err != nil {
			return TypeUnresolved, err
		}
	}
	if !value.IsValid() {
		return t, nil
	}

	if err := v.expr(value); err != nil {
		return TypeUnresolved, err
	}
	val := v.arena.Get(value)
	if val.Type == TypeRien {
		return TypeUnresolved, v.errorf(TypeMismatch, val.Token, "expression has no value")
	}
	if t == TypeUnresolved {
		return val.Type, nil
	}
	c := v.tt.Compatible(t, val.Type, val.Kind)
	if c == CompatReject {
		return TypeUnresolved, v.errorf(TypeMismatch, val.Token, "cannot assign a value of type %s to '%s' of type %s",
			v.tt.Text(val.Type), vn.Str, v.tt.Text(t))
	}
	val.Flags |= coercionFlags(c)
	return t, nil
}

func (v *validator) lookupGlobal(name string) (*Global, bool) {
	if g, ok := v.m.Globals[name]; ok {
		return g, true
	}
	for _, imp := range v.m.imported {
		if g, ok := imp.Globals[name]; ok {
			return g, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Phase 4: function bodies
// ---------------------------------------------------------------------------

func (v *validator) checkBodies() error {
	for _, id := range v.topLevel() {
		if err := v.ctx.Err(); err != nil {
			return err
		}
		n := v.arena.Get(id)
		if n.Kind != NodeFunctionDecl || n.Flags.Has(FlagExternal) || n.Flags.Has(FlagFailed) {
			continue
		}
		if err := v.recover(id, v.function(n)); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) function(n *Node) error {
	fn := n.Func
	v.fn = fn
	defer func() { v.fn = nil }()

	v.scope.Reset()
	v.scope.PushBlock()
	defer v.scope.PopBlock()

	for _, p := range fn.Params {
		v.scope.Declare(Local{Name: p.Name, Type: p.Type, Mutable: p.Mutable, Param: true, Variadic: p.Variadic})
	}

	body := n.Children[0]
	if err := v.block(body); err != nil {
		return err
	}

	if fn.Return != TypeRien && !fn.Coroutine {
		bn := v.arena.Get(body)
		last := v.arena.Get(v.arena.Child(body, len(bn.Children)-1))
		if !v.endsInReturn(body) {
			tok := fn.Token
			if last != nil {
				tok = last.Token
			}
			return v.errorf(MissingReturn, tok, "function '%s' must end with a 'retourne' of type %s",
				fn.Name, v.tt.Text(fn.Return))
		}
	}
	return nil
}

// endsInReturn reports whether every path through id ends with a
// 'retourne': a block through its last statement, an if only when both
// branches do.
func (v *validator) endsInReturn(id NodeID) bool {
	n := v.arena.Get(id)
	if n == nil {
		return false
	}
	switch n.Kind {
	case NodeReturn:
		return true
	case NodeBlock:
		return len(n.Children) > 0 && v.endsInReturn(n.Children[len(n.Children)-1])
	case NodeIf, NodeUnless:
		return len(n.Children) == 3 && v.endsInReturn(n.Children[1]) && v.endsInReturn(n.Children[2])
	}
	return false
}

func (v *validator) block(id NodeID) error {
	n := v.arena.Get(id)
	v.scope.PushBlock()
	defer v.scope.PopBlock()
	for _, child := range n.Children {
		if err := v.recover(child, v.stmt(child)); err != nil {
			return err
		}
	}
	return nil
}

// stmt validates one statement. Anything not listed is an expression
// statement.
func (v *validator) stmt(id NodeID) error {
	n := v.arena.Get(id)
	switch n.Kind {
	case NodeBlock:
		return v.block(id)

	case NodeAssign:
		return v.assign(id)

	case NodeVariable:
		if n.Flags.Has(FlagDeclaration) {
			t, err := v.declaredType(n, NoNode)
			if err != nil {
				return err
			}
			return v.declareLocal(id, t)
		}
		return v.expr(id)

	case NodeReturn:
		return v.returnStmt(n)

	case NodeYield:
		return v.yield(n)

	case NodeIf, NodeUnless:
		if err := v.condition(n.Children[0]); err != nil {
			return err
		}
		if err := v.block(n.Children[1]); err != nil {
			return err
		}
		if len(n.Children) > 2 {
			return v.stmt(n.Children[2])
		}
		return nil

	case NodeFor:
		return v.forLoop(n)

	case NodeLoop:
		labels := v.scope.PushLoop("", false)
		n.Names = []string{labels.Continue, labels.Break}
		defer v.scope.PopLoop()
		return v.block(n.Children[0])

	case NodeWhile:
		if err := v.condition(n.Children[0]); err != nil {
			return err
		}
		labels := v.scope.PushLoop("", false)
		n.Names = []string{labels.Continue, labels.Break}
		defer v.scope.PopLoop()
		return v.block(n.Children[1])

	case NodeBreakContinue:
		if !v.scope.InLoop() {
			return v.errorf(InvalidControlTransfer, n.Token, "'%s' used outside of a loop", n.Token.Text)
		}
		labels, ok := v.scope.Loop(n.Label)
		if !ok {
			return v.errorf(InvalidControlTransfer, n.Token, "no enclosing loop over a variable named '%s'", n.Label)
		}
		n.Str = labels.Break
		if n.Token.Kind == TokenContinue {
			n.Str = labels.Continue
		}
		return nil

	case NodeDefer:
		return v.block(n.Children[0])

	case NodeUnsafe:
		v.scope.EnterUnsafe()
		defer v.scope.LeaveUnsafe()
		return v.block(n.Children[0])

	case NodeStructDecl, NodeEnumDecl:
		return nil
	}
	return v.expr(id)
}

func (v *validator) condition(id NodeID) error {
	if err := v.expr(id); err != nil {
		return err
	}
	n := v.arena.Get(id)
	if n.Type != TypeBool {
		return v.errorf(TypeMismatch, n.Token, "condition must be of type bool, not %s", v.tt.Text(n.Type))
	}
	return nil
}

// declareLocal adds a declared variable to the scope. Shadowing a visible
// local or a global is a redeclaration.
func (v *validator) declareLocal(id NodeID, t TypeID) error {
	n := v.arena.Get(id)
	if prev, ok := v.scope.Lookup(n.Str); ok && !prev.Failed {
		d := v.errorf(Redeclaration, n.Token, "'%s' is already declared", n.Str)
		if pn := v.arena.Get(prev.Decl); pn != nil {
			d.Related = &pn.Token
		}
		return d
	}
	if g, ok := v.lookupGlobal(n.Str); ok {
		d := v.errorf(Redeclaration, n.Token, "'%s' is already declared as a global", n.Str)
		d.Related = &g.Token
		return d
	}
	n.Type = t
	v.scope.Declare(Local{Name: n.Str, Type: t, Mutable: n.Flags.Has(FlagMutable), Decl: id})
	return nil
}

func (v *validator) assign(id NodeID) error {
	n := v.arena.Get(id)
	left, right := n.Children[0], n.Children[1]
	ln := v.arena.Get(left)

	if ln.Kind == NodeVariable && ln.Flags.Has(FlagDeclaration) {
		t, err := v.declaredType(ln, right)
		if err != nil {
			return err
		}
		n.Type = t
		return v.declareLocal(left, t)
	}

	if err := v.expr(left); err != nil {
		return err
	}
	if err := v.expr(right); err != nil {
		return err
	}
	if !v.assignable(left) {
		return v.errorf(InvalidAssignmentTarget, ln.Token, "cannot assign to '%s'", ln.Token.Text)
	}
	rn := v.arena.Get(right)
	c := v.tt.Compatible(ln.Type, rn.Type, rn.Kind)
	if c == CompatReject {
		return v.errorf(TypeMismatch, rn.Token, "cannot assign a value of type %s to a target of type %s",
			v.tt.Text(rn.Type), v.tt.Text(ln.Type))
	}
	rn.Flags |= coercionFlags(c)
	n.Type = ln.Type
	return nil
}

// assignable reports whether the expression denotes writable storage:
// mutable locals, mutable globals inside `nonsûr`, and members or elements
// of those.
func (v *validator) assignable(id NodeID) bool {
	n := v.arena.Get(id)
	switch n.Kind {
	case NodeVariable:
		if l, ok := v.scope.Lookup(n.Str); ok {
			return l.Mutable
		}
		if g, ok := v.lookupGlobal(n.Str); ok {
			return g.Mutable && v.scope.Unsafe()
		}
		return false
	case NodeMemberAccess:
		return v.assignable(n.Children[0])
	case NodeBinaryOp:
		return n.Str == "[]" && v.assignable(n.Children[0])
	case NodeMemory:
		return true
	}
	return false
}

func (v *validator) returnStmt(n *Node) error {
	fn := v.fn
	n.Type = fn.Return
	if len(n.Children) == 0 {
		if fn.Return != TypeRien && !fn.Coroutine {
			return v.errorf(ReturnTypeMismatch, n.Token, "'%s' must return a value of type %s", fn.Name, v.tt.Text(fn.Return))
		}
		return nil
	}

	value := n.Children[0]
	if err := v.expr(value); err != nil {
		return err
	}
	vn := v.arena.Get(value)
	if fn.Coroutine {
		return v.errorf(ReturnTypeMismatch, vn.Token, "coroutine '%s' yields values with 'retiens'; 'retourne' takes no value", fn.Name)
	}
	c := v.tt.Compatible(fn.Return, vn.Type, vn.Kind)
	if c == CompatReject {
		return v.errorf(ReturnTypeMismatch, vn.Token, "returning %s from '%s', which returns %s",
			v.tt.Text(vn.Type), fn.Name, v.tt.Text(fn.Return))
	}
	vn.Flags |= coercionFlags(c)
	return nil
}

// yield checks `retiens` and snapshots the locals the coroutine must keep
// across the suspension.
func (v *validator) yield(n *Node) error {
	fn := v.fn
	if !fn.Coroutine {
		return v.errorf(InvalidControlTransfer, n.Token, "'retiens' used outside of a coroutine")
	}
	value := n.Children[0]
	if err := v.expr(value); err != nil {
		return err
	}
	vn := v.arena.Get(value)
	c := v.tt.Compatible(fn.Return, vn.Type, vn.Kind)
	if c == CompatReject {
		return v.errorf(TypeMismatch, vn.Token, "yielding %s from coroutine '%s', which yields %s",
			v.tt.Text(vn.Type), fn.Name, v.tt.Text(fn.Return))
	}
	vn.Flags |= coercionFlags(c)
	n.Type = fn.Return

	for _, l := range v.scope.Locals() {
		if l.Param || capturedName(fn.Captured, l.Name) {
			continue
		}
		fn.Captured = append(fn.Captured, Capture{Name: l.Name, Type: l.Type})
	}
	return nil
}

func capturedName(cs []Capture, name string) bool {
	for _, c := range cs {
		if c.Name == name {
			return true
		}
	}
	return false
}

// forLoop validates `pour`: the iterable decides the element type and the
// lowering hint.
func (v *validator) forLoop(n *Node) error {
	iter := n.Children[forIterable]
	if err := v.expr(iter); err != nil {
		return err
	}
	in := v.arena.Get(iter)
	withIndex := n.Children[forIndex].IsValid()

	var elem TypeID
	var hint, hintIndexed GenHint
	varFlags := NodeFlags(0)
	switch {
	case in.Kind == NodeRange:
		elem, hint, hintIndexed = in.Type, HintRange, HintRangeIndex
	case in.Kind == NodeCall && in.Func != nil && in.Func.Coroutine:
		elem, hint, hintIndexed = in.Type, HintCoroutine, HintCoroutineIndex
	case v.tt.IsArray(in.Type):
		elem, hint, hintIndexed = v.tt.Element(in.Type), HintArray, HintArrayIndex
		varFlags = FlagNeedsDeref
	case in.Type == TypeChaine:
		elem, hint, hintIndexed = TypeE8, HintString, HintStringIndex
	default:
		return v.errorf(TypeMismatch, in.Token, "cannot iterate over a value of type %s", v.tt.Text(in.Type))
	}
	n.Hint = hint
	if withIndex {
		n.Hint = hintIndexed
	}

	v.scope.PushBlock()
	if err := v.declareLocal(n.Children[forVar], elem); err != nil {
		v.scope.PopBlock()
		return err
	}
	v.arena.Get(n.Children[forVar]).Flags |= varFlags
	if withIndex {
		if err := v.declareLocal(n.Children[forIndex], TypeE32); err != nil {
			v.scope.PopBlock()
			return err
		}
	}

	labels := v.scope.PushLoop(n.Label, n.Children[forNoBreak].IsValid())
	n.Names = []string{labels.Continue, labels.Break}
	err := v.block(n.Children[forBody])
	v.scope.PopLoop()
	v.scope.PopBlock()
	if err != nil {
		return err
	}

	for _, slot := range []int{forNoBreak, forElse} {
		if id := n.Children[slot]; id.IsValid() {
			if err := v.block(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeEscapes resolves backslash escapes. bad is the offending escape
// when ok is false.
func decodeEscapes(s string) (out string, bad string, ok bool) {
	if !strings.Contains(s, `\`) {
		return s, "", true
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", `\`, false
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '0':
			b.WriteByte(0)
		default:
			return "", s[i-1 : i+1], false
		}
	}
	return b.String(), "", true
}
